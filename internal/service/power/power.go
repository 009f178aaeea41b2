package power

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/plug-power/internal/config"
	"github.com/oshokin/plug-power/internal/domain/plug"
	"github.com/oshokin/plug-power/internal/kasa"
	"github.com/oshokin/plug-power/internal/logger"
)

// DefaultCycleDelay is how long the plug stays off during a cycle.
const DefaultCycleDelay = 3 * time.Second

// Device is the connected plug as seen by the dispatcher.
type Device interface {
	// Update refreshes the cached state from the plug.
	Update(ctx context.Context) error
	// TurnOn closes the relay.
	TurnOn(ctx context.Context) error
	// TurnOff opens the relay.
	TurnOff(ctx context.Context) error
	// Alias is the device name from the last Update.
	Alias() string
	// IsOn is the relay state from the last Update.
	IsOn() bool
	// Close ends the session.
	Close() error
}

// describer is implemented by devices that report hardware details.
type describer interface {
	SysInfo() *kasa.SysInfo
}

// Connector opens a Device for a host.
type Connector interface {
	Connect(ctx context.Context, host string) (Device, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, host string) (Device, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, host string) (Device, error) {
	return f(ctx, host)
}

// KasaConnector connects to Kasa plugs with the given client options.
func KasaConnector(opts ...kasa.Option) Connector {
	return ConnectorFunc(func(ctx context.Context, host string) (Device, error) {
		device, err := kasa.Connect(ctx, host, opts...)
		if err != nil {
			return nil, err
		}

		return device, nil
	})
}

// Options configures a single plug-power invocation.
type Options struct {
	// ConfigPath to the YAML settings file; empty means the optional default file.
	ConfigPath string
	// Host overrides the configured host when not nil. Passed verbatim to
	// Connect, so an explicit empty host fails there.
	Host *string
	// Command selects the action to run.
	Command plug.Command
	// Stdout receives command output; os.Stdout when nil.
	Stdout io.Writer
	// Connector opens the plug; Kasa over TCP when nil.
	Connector Connector
	// CycleDelay overrides DefaultCycleDelay when positive.
	CycleDelay time.Duration
}

// errNoDevice is returned when a Connector yields neither a device nor an error.
var errNoDevice = errors.New("connector returned no device")

// Run loads settings, resolves the host and dispatches the command.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name and actor for tracking.
	ctx = logger.WithKV(logger.WithName(ctx, "plug-power"), "actor", detectActor())

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	// Use host from options if provided, otherwise use config.
	host := cfg.Host
	if opts.Host != nil {
		host = *opts.Host
	}

	connector := opts.Connector
	if connector == nil {
		connector = KasaConnector(kasa.WithTimeout(cfg.Timeout))
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	dispatcher := &Dispatcher{
		Connector:  connector,
		Stdout:     stdout,
		CycleDelay: opts.CycleDelay,
	}

	return dispatcher.Dispatch(ctx, opts.Command, host)
}

// Dispatcher runs commands against one plug per call.
type Dispatcher struct {
	// Connector opens the plug.
	Connector Connector
	// Stdout receives command output.
	Stdout io.Writer
	// CycleDelay overrides DefaultCycleDelay when positive.
	CycleDelay time.Duration
}

// Dispatch connects to host, refreshes the plug state and runs command.
// The session is closed before returning.
func (d *Dispatcher) Dispatch(ctx context.Context, command plug.Command, host string) error {
	ctx = logger.WithKV(ctx, "command", command.String(), "host", host)

	device, err := d.connect(ctx, host)
	if err != nil {
		return err
	}

	defer func() {
		_ = device.Close()
	}()

	switch command {
	case plug.CommandStatus:
		return d.status(device, host)
	case plug.CommandOn:
		return d.turnOn(ctx, device)
	case plug.CommandOff:
		return d.turnOff(ctx, device)
	case plug.CommandCycle:
		return d.cycle(ctx, device)
	default:
		return fmt.Errorf("%w: %s", plug.ErrUnknownCommand, command)
	}
}

// connect opens the device and refreshes its state.
func (d *Dispatcher) connect(ctx context.Context, host string) (Device, error) {
	logger.DebugKV(ctx, "Connecting to plug")

	device, err := d.Connector.Connect(ctx, host)
	if err != nil {
		return nil, err
	}

	if device == nil {
		return nil, errNoDevice
	}

	// State is not trusted until refreshed.
	if err = device.Update(ctx); err != nil {
		_ = device.Close()

		return nil, err
	}

	if described, ok := device.(describer); ok {
		if info := described.SysInfo(); info != nil {
			logger.DebugKV(ctx, "Plug identified",
				"model", info.Model,
				"sw_ver", info.SoftwareVersion,
				"hw_ver", info.HardwareVersion,
				"mac", info.MAC,
				"rssi", info.RSSI,
			)
		}
	}

	return device, nil
}

// status prints the alias, host and power state.
func (d *Dispatcher) status(device Device, host string) error {
	state := plug.State{
		Alias: device.Alias(),
		Host:  host,
		IsOn:  device.IsOn(),
	}

	return d.printf("Device: %s\nHost:   %s\nState:  %s\n", state.Alias, state.Host, state.PowerLabel())
}

// turnOn switches the plug on unless it already is.
func (d *Dispatcher) turnOn(ctx context.Context, device Device) error {
	if device.IsOn() {
		return d.printLine("Already ON")
	}

	if err := device.TurnOn(ctx); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Plug switched", "state", plug.PowerOn)

	return d.printLine("Turned ON")
}

// turnOff switches the plug off unless it already is.
func (d *Dispatcher) turnOff(ctx context.Context, device Device) error {
	if !device.IsOn() {
		return d.printLine("Already OFF")
	}

	if err := device.TurnOff(ctx); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Plug switched", "state", plug.PowerOff)

	return d.printLine("Turned OFF")
}

// cycle forces off, wait, on regardless of the current state.
// The wait is not interrupted by ctx.
func (d *Dispatcher) cycle(ctx context.Context, device Device) error {
	delay := d.cycleDelay()

	if err := d.printLine("Power cycling..."); err != nil {
		return err
	}

	if err := device.TurnOff(ctx); err != nil {
		return err
	}

	if err := d.printf("OFF - waiting %ds...\n", int(delay/time.Second)); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Waiting before power on", "delay", delay.String())
	time.Sleep(delay)

	if err := device.TurnOn(ctx); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Plug power cycled", "delay", delay.String())

	return d.printLine(plug.PowerOn)
}

func (d *Dispatcher) cycleDelay() time.Duration {
	if d.CycleDelay > 0 {
		return d.CycleDelay
	}

	return DefaultCycleDelay
}

func (d *Dispatcher) printLine(line string) error {
	return d.printf("%s\n", line)
}

func (d *Dispatcher) printf(format string, args ...any) error {
	out := d.Stdout
	if out == nil {
		out = os.Stdout
	}

	if _, err := fmt.Fprintf(out, format, args...); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}
