package plug

const (
	// PowerOn is the label printed for an energized relay.
	PowerOn = "ON"
	// PowerOff is the label printed for a de-energized relay.
	PowerOff = "OFF"
)

// State is the plug snapshot taken right after a refresh.
type State struct {
	// Alias is the human-readable name configured on the device.
	Alias string
	// Host is the address the plug was reached at.
	Host string
	// IsOn reports whether the relay is closed.
	IsOn bool
}

// PowerLabel renders IsOn as "ON" or "OFF".
func (s State) PowerLabel() string {
	return PowerLabel(s.IsOn)
}

// PowerLabel renders a relay state as "ON" or "OFF".
func PowerLabel(isOn bool) string {
	if isOn {
		return PowerOn
	}

	return PowerOff
}
