package power

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/oshokin/plug-power/internal/kasa"
)

// mockDevice is a testify mock standing in for a connected plug.
type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) Update(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDevice) TurnOn(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDevice) TurnOff(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDevice) Alias() string {
	return m.Called().String(0)
}

func (m *mockDevice) IsOn() bool {
	return m.Called().Bool(0)
}

func (m *mockDevice) Close() error {
	return m.Called().Error(0)
}

// newMockDevice returns a device that refreshes fine, reports isOn and closes cleanly.
func newMockDevice(isOn bool) *mockDevice {
	device := new(mockDevice)
	device.On("Update", mock.Anything).Return(nil).Once()
	device.On("Alias").Return("STM32 Board").Maybe()
	device.On("IsOn").Return(isOn).Maybe()
	device.On("Close").Return(nil).Once()

	return device
}

// mockDescribedDevice is a mockDevice that also reports hardware details.
type mockDescribedDevice struct {
	*mockDevice
}

func (m *mockDescribedDevice) SysInfo() *kasa.SysInfo {
	info, _ := m.Called().Get(0).(*kasa.SysInfo)

	return info
}

// mockConnector is a testify mock standing in for the device client.
type mockConnector struct {
	mock.Mock
}

func (m *mockConnector) Connect(ctx context.Context, host string) (Device, error) {
	args := m.Called(ctx, host)

	device, _ := args.Get(0).(Device)

	return device, args.Error(1)
}

// connectorFor returns a connector that hands out device for host exactly once.
func connectorFor(host string, device Device) *mockConnector {
	connector := new(mockConnector)
	connector.On("Connect", mock.Anything, host).Return(device, nil).Once()

	return connector
}

// methodCalls lists the mocked methods that talk to the plug, in call order.
func methodCalls(device *mockDevice) []string {
	var names []string

	for _, call := range device.Calls {
		switch call.Method {
		case "Alias", "IsOn":
			continue
		default:
			names = append(names, call.Method)
		}
	}

	return names
}
