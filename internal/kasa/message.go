package kasa

// Request is the JSON envelope sent to a device.
// Only the "system" module is used.
type Request struct {
	System SystemRequest `json:"system"`
}

// SystemRequest holds the system module methods; nil methods are omitted.
type SystemRequest struct {
	GetSysInfo    *struct{}      `json:"get_sysinfo,omitempty"`
	SetRelayState *SetRelayState `json:"set_relay_state,omitempty"`
}

// SetRelayState switches the relay: 1 closes it, 0 opens it.
type SetRelayState struct {
	State int `json:"state"`
}

// Response is the JSON envelope returned by a device.
type Response struct {
	System SystemResponse `json:"system"`
}

// SystemResponse mirrors SystemRequest; only requested methods are populated.
type SystemResponse struct {
	GetSysInfo    *SysInfo `json:"get_sysinfo,omitempty"`
	SetRelayState *Result  `json:"set_relay_state,omitempty"`
}

// Result is the status part every method reply carries.
type Result struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

// SysInfo is the get_sysinfo reply of a plug.
type SysInfo struct {
	Result

	Alias           string `json:"alias"`
	Model           string `json:"model"`
	DeviceID        string `json:"deviceId"`
	HardwareID      string `json:"hwId"`
	MAC             string `json:"mac"`
	SoftwareVersion string `json:"sw_ver"`
	HardwareVersion string `json:"hw_ver"`
	MIC             string `json:"mic_type"`
	Feature         string `json:"feature"`
	// RelayState is absent on devices without a relay (bulbs, strips' parent).
	RelayState *int `json:"relay_state,omitempty"`
	OnTime     int  `json:"on_time"`
	LEDOff     int  `json:"led_off"`
	RSSI       int  `json:"rssi"`
}

// relayOn and relayOff are the set_relay_state values.
const (
	relayOff = 0
	relayOn  = 1
)

// IsOn reports whether the relay is closed.
func (s *SysInfo) IsOn() bool {
	return s != nil && s.RelayState != nil && *s.RelayState == relayOn
}

// clone returns a copy that does not share the RelayState pointer.
func (s *SysInfo) clone() *SysInfo {
	if s == nil {
		return nil
	}

	cloned := *s

	if s.RelayState != nil {
		state := *s.RelayState
		cloned.RelayState = &state
	}

	return &cloned
}
