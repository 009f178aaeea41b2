// Package kasatest provides an in-process fake Kasa plug for tests.
package kasatest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/oshokin/plug-power/internal/kasa"
)

// Server is a fake plug listening on a loopback TCP port.
type Server struct {
	listener net.Listener

	// wg tracks the accept loop and connection handlers.
	wg sync.WaitGroup

	mu sync.Mutex
	// conns holds open sessions so Close can drop them.
	conns map[net.Conn]struct{}
	// closing is set once Close has started.
	closing bool
	// sessions counts accepted connections.
	sessions int
	// alias and model are reported by get_sysinfo.
	alias string
	model string
	// hasRelay controls whether relay_state is reported at all.
	hasRelay bool
	// relay is the current relay state (0 or 1).
	relay int
	// sysInfoOK is how many get_sysinfo queries succeed before sysInfoErr applies.
	sysInfoOK int
	// sysInfoErr is the err_code returned by get_sysinfo once sysInfoOK is used up.
	sysInfoErr int
	// relayErr is the err_code returned by set_relay_state; 0 means success.
	relayErr int
	// garbage makes the server reply with a frame that is not JSON.
	garbage bool
	// hangupAfterRelay closes the session after each set_relay_state reply.
	hangupAfterRelay bool
	// requests records every decoded request in arrival order.
	requests []kasa.Request
}

// Option configures a Server.
type Option func(*Server)

// WithAlias sets the device alias.
func WithAlias(alias string) Option {
	return func(s *Server) {
		s.alias = alias
	}
}

// WithRelay sets the initial relay state.
func WithRelay(isOn bool) Option {
	return func(s *Server) {
		s.relay = 0
		if isOn {
			s.relay = 1
		}
	}
}

// WithoutRelay makes the device look like something other than a plug.
func WithoutRelay() Option {
	return func(s *Server) {
		s.hasRelay = false
		s.model = "KL110(US)"
	}
}

// WithSysInfoError lets the first ok get_sysinfo queries succeed and fails
// the rest with code.
func WithSysInfoError(ok, code int) Option {
	return func(s *Server) {
		s.sysInfoOK = ok
		s.sysInfoErr = code
	}
}

// WithRelayError makes set_relay_state fail with code.
func WithRelayError(code int) Option {
	return func(s *Server) {
		s.relayErr = code
	}
}

// WithGarbageReplies makes every reply undecodable.
func WithGarbageReplies() Option {
	return func(s *Server) {
		s.garbage = true
	}
}

// WithHangupAfterRelay closes the session right after answering each
// set_relay_state, the way real plugs drop sessions they consider finished.
func WithHangupAfterRelay() Option {
	return func(s *Server) {
		s.hangupAfterRelay = true
	}
}

// NewServer starts a fake plug and stops it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("kasatest: listen: %v", err)
	}

	s := &Server{
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
		alias:    "Test Plug",
		model:    "HS103(US)",
		hasRelay: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)

	go s.serve()

	t.Cleanup(s.Close)

	return s
}

// Addr returns the host:port the fake plug listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// IsOn reports the current relay state.
func (s *Server) IsOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.relay == 1
}

// Sessions returns how many connections were accepted so far.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions
}

// OpenSessions returns how many connections are currently being served.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []kasa.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]kasa.Request(nil), s.requests...)
}

// RelayCalls returns the states passed to set_relay_state, in order.
func (s *Server) RelayCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []int

	for _, r := range s.requests {
		if r.System.SetRelayState != nil {
			calls = append(calls, r.System.SetRelayState.State)
		}
	}

	return calls
}

// Close stops accepting, drops open sessions and waits for handlers.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	s.closing = true

	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			_ = conn.Close()

			return
		}

		s.conns[conn] = struct{}{}
		s.sessions++
		s.mu.Unlock()

		s.wg.Add(1)

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	// Close before deregistering so OpenSessions never counts a live socket out.
	defer func() {
		_ = conn.Close()

		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		payload, err := kasa.ReadFrame(conn)
		if err != nil {
			return
		}

		reply, hangup, err := s.reply(payload)
		if err != nil {
			return
		}

		if err = kasa.WriteFrame(conn, reply); err != nil || hangup {
			return
		}
	}
}

var errBadRequest = errors.New("kasatest: undecodable request")

// reply builds the response to payload and reports whether the session
// should be closed once it is sent.
func (s *Server) reply(payload []byte) ([]byte, bool, error) {
	var request kasa.Request
	if err := json.Unmarshal(payload, &request); err != nil {
		return nil, false, errBadRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, request)

	if s.garbage {
		return []byte("not json"), false, nil
	}

	var response kasa.Response

	if request.System.GetSysInfo != nil {
		info := &kasa.SysInfo{
			Alias:           s.alias,
			Model:           s.model,
			DeviceID:        "8006000000000000000000000000000000000000",
			MAC:             "50:C7:BF:00:00:01",
			SoftwareVersion: "1.0.2 Build 200804 Rel.100948",
			HardwareVersion: "2.1",
			RSSI:            -52,
		}

		if s.hasRelay {
			relay := s.relay
			info.RelayState = &relay
		}

		if s.sysInfoOK > 0 {
			s.sysInfoOK--
		} else if s.sysInfoErr != 0 {
			info.ErrCode = s.sysInfoErr
			info.ErrMsg = "internal error"
		}

		response.System.GetSysInfo = info
	}

	if set := request.System.SetRelayState; set != nil {
		result := new(kasa.Result)

		if s.relayErr != 0 {
			result.ErrCode = s.relayErr
			result.ErrMsg = "module not support"
		} else {
			s.relay = set.State
		}

		response.System.SetRelayState = result
	}

	reply, err := json.Marshal(&response)
	hangup := s.hangupAfterRelay && request.System.SetRelayState != nil

	return reply, hangup, err
}
