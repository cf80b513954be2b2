package mqtt

// Topics builds the bridge's topic names under a configurable prefix.
//
// Layout:
//
//	<prefix>/<icd_id>/state    retained JSON snapshot per thermostat
//	<prefix>/bridge/status     retained bridge online/offline status (LWT)
type Topics struct {
	Prefix string
}

const defaultPrefix = "sensi"

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return defaultPrefix
	}
	return t.Prefix
}

// State returns the retained snapshot topic for one thermostat.
func (t Topics) State(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/state"
}

// BridgeStatus returns the bridge's own status topic, also used as the
// LWT target.
func (t Topics) BridgeStatus() string {
	return t.prefix() + "/bridge/status"
}
