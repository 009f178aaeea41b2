package kasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/plug-power/internal/logger"
)

// DefaultTimeout bounds dialing and every request/reply exchange.
const DefaultTimeout = 5 * time.Second

// Device is a session with one plug.
// Plugs drop idle sessions on their own; the next exchange dials a fresh one.
type Device struct {
	// address is the host with the port resolved.
	address string
	// timeout is the deadline applied to each dial and exchange.
	timeout time.Duration

	// mu serializes exchanges and guards conn, closed and info.
	mu sync.Mutex
	// conn is the TCP session; nil until dialed or after the peer hung up.
	conn net.Conn
	// closed is set by Close; a closed device never dials again.
	closed bool
	// info is the snapshot from the last Update; nil before the first one.
	info *SysInfo
}

// Option configures Connect.
type Option func(*Device)

// WithTimeout sets the dial and per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Connect opens a session with the plug at host and checks that it speaks the
// protocol and exposes a relay. Port 9999 is used when host carries none.
// The returned Device holds no state until Update is called.
func Connect(ctx context.Context, host string, opts ...Option) (*Device, error) {
	if host == "" {
		return nil, errHostRequired
	}

	device := &Device{
		address: resolveAddress(host, DefaultPort),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(device)
	}

	// Handshake: anything that does not answer get_sysinfo with a relay is not a plug.
	info, err := device.querySysInfo(ctx)
	if err != nil {
		_ = device.Close()

		return nil, err
	}

	if info.RelayState == nil {
		_ = device.Close()

		return nil, fmt.Errorf("%w: %s is not a smart plug (model %q)", ErrConnection, host, info.Model)
	}

	logger.DebugKV(ctx, "Connected to plug", "address", device.address, "model", info.Model)

	return device, nil
}

// Update refreshes the state snapshot from the device.
func (d *Device) Update(ctx context.Context) error {
	info, err := d.querySysInfo(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	logger.DebugKV(ctx, "Plug state refreshed", "alias", info.Alias, "is_on", info.IsOn())

	return nil
}

// Alias returns the device name from the last Update.
func (d *Device) Alias() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info == nil {
		return ""
	}

	return d.info.Alias
}

// IsOn reports the relay state from the last Update.
func (d *Device) IsOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.info.IsOn()
}

// SysInfo returns a copy of the last snapshot, or nil before the first Update.
func (d *Device) SysInfo() *SysInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.info.clone()
}

// TurnOn closes the relay.
func (d *Device) TurnOn(ctx context.Context) error {
	return d.setRelayState(ctx, relayOn)
}

// TurnOff opens the relay.
func (d *Device) TurnOff(ctx context.Context) error {
	return d.setRelayState(ctx, relayOff)
}

// Close ends the session. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	if d.conn == nil {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil

	return err
}

// querySysInfo runs get_sysinfo and validates the reply.
func (d *Device) querySysInfo(ctx context.Context) (*SysInfo, error) {
	request := &Request{
		System: SystemRequest{
			GetSysInfo: &struct{}{},
		},
	}

	response, err := d.exchange(ctx, request)
	if err != nil {
		return nil, err
	}

	info := response.System.GetSysInfo
	if info == nil {
		return nil, fmt.Errorf("%w: reply from %s lacks get_sysinfo", ErrConnection, d.address)
	}

	if err = checkResult("get_sysinfo", info.Result); err != nil {
		return nil, err
	}

	return info, nil
}

// setRelayState runs set_relay_state and keeps the cached snapshot in sync.
func (d *Device) setRelayState(ctx context.Context, state int) error {
	request := &Request{
		System: SystemRequest{
			SetRelayState: &SetRelayState{State: state},
		},
	}

	response, err := d.exchange(ctx, request)
	if err != nil {
		return err
	}

	result := response.System.SetRelayState
	if result == nil {
		return fmt.Errorf("%w: reply from %s lacks set_relay_state", ErrConnection, d.address)
	}

	if err = checkResult("set_relay_state", *result); err != nil {
		return err
	}

	d.mu.Lock()
	if d.info != nil {
		d.info.RelayState = &state
	}
	d.mu.Unlock()

	logger.DebugKV(ctx, "Relay state set", "address", d.address, "state", state)

	return nil
}

// exchange sends one request and reads one reply on the session.
// A failed exchange drops the session and is not retried.
func (d *Device) exchange(ctx context.Context, request *Request) (*Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: %w", ErrConnection, errClosed)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err = callCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	conn, err := d.session(callCtx)
	if err != nil {
		return nil, err
	}

	response, err := d.roundTrip(callCtx, conn, payload)
	if err != nil {
		_ = conn.Close()
		d.conn = nil

		return nil, err
	}

	return response, nil
}

// session returns a usable connection, dialing when there is none or the plug
// has hung up since the last exchange. The caller holds d.mu.
func (d *Device) session(ctx context.Context) (net.Conn, error) {
	if d.conn != nil && peerClosed(d.conn) {
		logger.DebugKV(ctx, "Plug closed the session, reconnecting", "address", d.address)

		_ = d.conn.Close()
		d.conn = nil
	}

	if d.conn != nil {
		return d.conn, nil
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	d.conn = conn

	return conn, nil
}

// roundTrip writes payload and decodes the reply within the deadline of ctx.
func (d *Device) roundTrip(ctx context.Context, conn net.Conn, payload []byte) (*Response, error) {
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrConnection, err)
	}

	// Unblock pending I/O when the caller gives up early.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, d.address, err)
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, d.address, err)
	}

	var response Response
	if err = json.Unmarshal(reply, &response); err != nil {
		return nil, fmt.Errorf("%w: decode reply from %s: %w", ErrConnection, d.address, err)
	}

	return &response, nil
}

// peerClosed reports whether an idle session is no longer usable.
// Replies are read in full, so either EOF or stray bytes mean the plug is done with it.
func peerClosed(conn net.Conn) bool {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return true
	}

	var buf [1]byte

	_, err := conn.Read(buf[:])

	return !errors.Is(err, os.ErrDeadlineExceeded)
}

// resolveAddress appends port to host unless host already carries one.
func resolveAddress(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}

	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}
