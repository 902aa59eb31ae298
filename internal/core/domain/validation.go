package domain

// Check names used in ValidationResult.
const (
	CheckFingerprintPresent     = "fingerprint_present"
	CheckIPValid                = "ip_valid"
	CheckMouseMovementValid     = "mouse_movement_valid"
	CheckSessionDurationValid   = "session_duration_valid"
	CheckUserAgentValid         = "user_agent_valid"
	CheckKeyboardInputValid     = "keyboard_input_valid"
	CheckDeviceOrientationValid = "device_orientation_valid"
	CheckGeolocationMatch       = "geolocation_match"
)

// ValidationResult holds the named rule outcomes. A false value is data, not
// an error.
type ValidationResult struct {
	FingerprintPresent     bool `json:"fingerprint_present"`
	IPValid                bool `json:"ip_valid"`
	MouseMovementValid     bool `json:"mouse_movement_valid"`
	SessionDurationValid   bool `json:"session_duration_valid"`
	UserAgentValid         bool `json:"user_agent_valid"`
	KeyboardInputValid     bool `json:"keyboard_input_valid"`
	DeviceOrientationValid bool `json:"device_orientation_valid"`
	GeolocationMatch       bool `json:"geolocation_match"`
}

// Map returns the results keyed by check name.
func (r ValidationResult) Map() map[string]bool {
	return map[string]bool{
		CheckFingerprintPresent:     r.FingerprintPresent,
		CheckIPValid:                r.IPValid,
		CheckMouseMovementValid:     r.MouseMovementValid,
		CheckSessionDurationValid:   r.SessionDurationValid,
		CheckUserAgentValid:         r.UserAgentValid,
		CheckKeyboardInputValid:     r.KeyboardInputValid,
		CheckDeviceOrientationValid: r.DeviceOrientationValid,
		CheckGeolocationMatch:       r.GeolocationMatch,
	}
}

// Failed returns the names of failed checks in a stable order.
func (r ValidationResult) Failed() []string {
	var out []string
	for _, c := range []struct {
		name string
		ok   bool
	}{
		{CheckFingerprintPresent, r.FingerprintPresent},
		{CheckIPValid, r.IPValid},
		{CheckMouseMovementValid, r.MouseMovementValid},
		{CheckSessionDurationValid, r.SessionDurationValid},
		{CheckUserAgentValid, r.UserAgentValid},
		{CheckKeyboardInputValid, r.KeyboardInputValid},
		{CheckDeviceOrientationValid, r.DeviceOrientationValid},
		{CheckGeolocationMatch, r.GeolocationMatch},
	} {
		if !c.ok {
			out = append(out, c.name)
		}
	}
	return out
}
