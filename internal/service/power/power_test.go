package power

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/plug-power/internal/config"
	"github.com/oshokin/plug-power/internal/domain/plug"
	"github.com/oshokin/plug-power/internal/kasa"
)

const testHost = "192.168.4.100"

var (
	errUnreachable = errors.New("dial tcp 192.168.4.100:9999: connect: no route to host")
	errRejected    = errors.New("set_relay_state: device returned err_code -1")
)

// TestDispatch_Status prints the three status lines and never switches the relay.
func TestDispatch_Status(t *testing.T) {
	t.Parallel()

	for isOn, label := range map[bool]string{true: "ON", false: "OFF"} {
		device := newMockDevice(isOn)

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandStatus, testHost))
		require.Equal(t, "Device: STM32 Board\nHost:   "+testHost+"\nState:  "+label+"\n", out.String())

		device.AssertNotCalled(t, "TurnOn", mock.Anything)
		device.AssertNotCalled(t, "TurnOff", mock.Anything)
		device.AssertExpectations(t)
	}
}

// TestDispatch_On covers the already-on no-op and the switching path.
func TestDispatch_On(t *testing.T) {
	t.Parallel()

	t.Run("already on", func(t *testing.T) {
		t.Parallel()

		device := newMockDevice(true)

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandOn, testHost))
		require.Equal(t, "Already ON\n", out.String())
		device.AssertNotCalled(t, "TurnOn", mock.Anything)
		device.AssertExpectations(t)
	})

	t.Run("was off", func(t *testing.T) {
		t.Parallel()

		device := newMockDevice(false)
		device.On("TurnOn", mock.Anything).Return(nil).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandOn, testHost))
		require.Equal(t, "Turned ON\n", out.String())
		device.AssertNumberOfCalls(t, "TurnOn", 1)
		device.AssertNotCalled(t, "TurnOff", mock.Anything)
		device.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		device := newMockDevice(false)
		device.On("TurnOn", mock.Anything).Return(errRejected).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.ErrorIs(t, d.Dispatch(context.Background(), plug.CommandOn, testHost), errRejected)
		require.Empty(t, out.String())
		device.AssertExpectations(t)
	})
}

// TestDispatch_Off mirrors TestDispatch_On.
func TestDispatch_Off(t *testing.T) {
	t.Parallel()

	t.Run("already off", func(t *testing.T) {
		t.Parallel()

		device := newMockDevice(false)

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandOff, testHost))
		require.Equal(t, "Already OFF\n", out.String())
		device.AssertNotCalled(t, "TurnOff", mock.Anything)
		device.AssertExpectations(t)
	})

	t.Run("was on", func(t *testing.T) {
		t.Parallel()

		device := newMockDevice(true)
		device.On("TurnOff", mock.Anything).Return(nil).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandOff, testHost))
		require.Equal(t, "Turned OFF\n", out.String())
		device.AssertNumberOfCalls(t, "TurnOff", 1)
		device.AssertNotCalled(t, "TurnOn", mock.Anything)
		device.AssertExpectations(t)
	})
}

// TestDispatch_Cycle issues off, waits the delay, then on, whatever the starting state.
func TestDispatch_Cycle(t *testing.T) {
	t.Parallel()

	for _, isOn := range []bool{true, false} {
		synctest.Test(t, func(t *testing.T) {
			var offAt, onAt time.Time

			device := newMockDevice(isOn)
			device.On("TurnOff", mock.Anything).Return(nil).Once().Run(func(mock.Arguments) {
				offAt = time.Now()
			})
			device.On("TurnOn", mock.Anything).Return(nil).Once().Run(func(mock.Arguments) {
				onAt = time.Now()
			})

			var out bytes.Buffer

			d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

			start := time.Now()

			require.NoError(t, d.Dispatch(context.Background(), plug.CommandCycle, testHost))
			require.Equal(t, "Power cycling...\nOFF - waiting 3s...\nON\n", out.String())
			require.Equal(t, []string{"Update", "TurnOff", "TurnOn", "Close"}, methodCalls(device))
			require.Equal(t, DefaultCycleDelay, onAt.Sub(offAt))
			require.Equal(t, DefaultCycleDelay, time.Since(start))
			device.AssertExpectations(t)
		})
	}
}

// TestDispatch_CycleCustomDelay reports the configured delay in whole seconds.
func TestDispatch_CycleCustomDelay(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := newMockDevice(true)
		device.On("TurnOff", mock.Anything).Return(nil).Once()
		device.On("TurnOn", mock.Anything).Return(nil).Once()

		var out bytes.Buffer

		d := &Dispatcher{
			Connector:  connectorFor(testHost, device),
			Stdout:     &out,
			CycleDelay: 10 * time.Second,
		}

		start := time.Now()

		require.NoError(t, d.Dispatch(context.Background(), plug.CommandCycle, testHost))
		require.Equal(t, "Power cycling...\nOFF - waiting 10s...\nON\n", out.String())
		require.Equal(t, 10*time.Second, time.Since(start))
	})
}

// TestDispatch_CycleTurnOffFails never waits and never turns the plug back on.
func TestDispatch_CycleTurnOffFails(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := newMockDevice(true)
		device.On("TurnOff", mock.Anything).Return(errRejected).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		start := time.Now()

		err := d.Dispatch(context.Background(), plug.CommandCycle, testHost)
		require.ErrorIs(t, err, errRejected)
		require.Zero(t, time.Since(start))
		require.Equal(t, "Power cycling...\n", out.String())
		device.AssertNotCalled(t, "TurnOn", mock.Anything)
		device.AssertExpectations(t)
	})
}

// TestDispatch_CycleTurnOnFails reports the failure after the wait.
func TestDispatch_CycleTurnOnFails(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		device := newMockDevice(false)
		device.On("TurnOff", mock.Anything).Return(nil).Once()
		device.On("TurnOn", mock.Anything).Return(errRejected).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.ErrorIs(t, d.Dispatch(context.Background(), plug.CommandCycle, testHost), errRejected)
		require.Equal(t, "Power cycling...\nOFF - waiting 3s...\n", out.String())
		device.AssertExpectations(t)
	})
}

// TestDispatch_ConnectFails produces no output for any command.
func TestDispatch_ConnectFails(t *testing.T) {
	t.Parallel()

	for _, command := range plug.Commands() {
		connector := new(mockConnector)
		connector.On("Connect", mock.Anything, testHost).Return(nil, errUnreachable).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connector, Stdout: &out}

		require.ErrorIs(t, d.Dispatch(context.Background(), command, testHost), errUnreachable, command.String())
		require.Empty(t, out.String(), command.String())
		connector.AssertExpectations(t)
	}
}

// TestDispatch_UpdateFails closes the session and produces no output for any command.
func TestDispatch_UpdateFails(t *testing.T) {
	t.Parallel()

	for _, command := range plug.Commands() {
		device := new(mockDevice)
		device.On("Update", mock.Anything).Return(errUnreachable).Once()
		device.On("Close").Return(nil).Once()

		var out bytes.Buffer

		d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: &out}

		require.ErrorIs(t, d.Dispatch(context.Background(), command, testHost), errUnreachable, command.String())
		require.Empty(t, out.String(), command.String())
		require.Equal(t, []string{"Update", "Close"}, methodCalls(device))
		device.AssertExpectations(t)
	}
}

// TestDispatch_NilDevice guards against a connector returning nothing.
func TestDispatch_NilDevice(t *testing.T) {
	t.Parallel()

	connector := new(mockConnector)
	connector.On("Connect", mock.Anything, testHost).Return(nil, nil).Once()

	d := &Dispatcher{Connector: connector, Stdout: new(bytes.Buffer)}

	require.ErrorIs(t, d.Dispatch(context.Background(), plug.CommandStatus, testHost), errNoDevice)
}

// TestDispatch_UnknownCommand rejects values outside the enumeration after closing the session.
func TestDispatch_UnknownCommand(t *testing.T) {
	t.Parallel()

	device := newMockDevice(true)

	d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: new(bytes.Buffer)}

	require.ErrorIs(t, d.Dispatch(context.Background(), plug.Command(99), testHost), plug.ErrUnknownCommand)
	device.AssertExpectations(t)
}

// TestDispatch_IdentifiesDevice reads hardware details from devices that
// report them and tolerates devices that do not.
func TestDispatch_IdentifiesDevice(t *testing.T) {
	t.Parallel()

	device := &mockDescribedDevice{mockDevice: newMockDevice(true)}
	device.On("SysInfo").Return(&kasa.SysInfo{Model: "HS103(US)", SoftwareVersion: "1.0.2"}).Once()

	d := &Dispatcher{Connector: connectorFor(testHost, device), Stdout: new(bytes.Buffer)}

	require.NoError(t, d.Dispatch(context.Background(), plug.CommandStatus, testHost))
	device.AssertExpectations(t)

	device = &mockDescribedDevice{mockDevice: newMockDevice(false)}
	device.On("SysInfo").Return(nil).Once()

	d = &Dispatcher{Connector: connectorFor(testHost, device), Stdout: new(bytes.Buffer)}

	require.NoError(t, d.Dispatch(context.Background(), plug.CommandStatus, testHost))
	device.AssertExpectations(t)
}

// TestRun_HostFromConfig uses the settings file host unless Options.Host overrides it verbatim.
func TestRun_HostFromConfig(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("host: 10.0.0.7\n"), 0o600))

	device := newMockDevice(true)

	var out bytes.Buffer

	err := Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		Command:    plug.CommandStatus,
		Stdout:     &out,
		Connector:  connectorFor("10.0.0.7", device),
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "Host:   10.0.0.7\n")

	override := " plug.local:9999"
	device = newMockDevice(true)
	connector := connectorFor(override, device)

	err = Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		Host:       &override,
		Command:    plug.CommandStatus,
		Stdout:     new(bytes.Buffer),
		Connector:  connector,
	})
	require.NoError(t, err)
	connector.AssertExpectations(t)
}

// TestRun_EmptyHostOverride hands an explicit empty host to Connect instead of
// falling back to the configured one.
func TestRun_EmptyHostOverride(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("host: 10.0.0.7\n"), 0o600))

	empty := ""
	connector := new(mockConnector)
	connector.On("Connect", mock.Anything, "").Return(nil, errUnreachable).Once()

	var out bytes.Buffer

	err := Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		Host:       &empty,
		Command:    plug.CommandStatus,
		Stdout:     &out,
		Connector:  connector,
	})
	require.ErrorIs(t, err, errUnreachable)
	require.Empty(t, out.String())
	connector.AssertExpectations(t)

	// The Kasa client refuses it before dialing.
	err = Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		Host:       &empty,
		Command:    plug.CommandStatus,
		Stdout:     &out,
	})
	require.ErrorContains(t, err, "host must be provided")
	require.Empty(t, out.String())
}

// TestRun_DefaultHost falls back to the built-in host without a settings file.
//
//nolint:paralleltest // Changes the working directory.
func TestRun_DefaultHost(t *testing.T) {
	t.Chdir(t.TempDir())

	device := newMockDevice(false)
	connector := connectorFor(config.DefaultHost, device)

	err := Run(context.Background(), &Options{
		Command:   plug.CommandOff,
		Stdout:    new(bytes.Buffer),
		Connector: connector,
	})
	require.NoError(t, err)
	connector.AssertExpectations(t)
}

// TestRun_BadConfig fails before connecting.
func TestRun_BadConfig(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("host: not a host\n"), 0o600))

	connector := new(mockConnector)

	err := Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		Connector:  connector,
	})
	require.Error(t, err)
	connector.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}
