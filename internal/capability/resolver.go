package capability

import "strings"

// Flag is a vendor tri-state string ("yes"/"no", "on"/"off", "true"/"").
// The cloud is inconsistent about which spelling it uses per field, so all
// truthy spellings are accepted.
type Flag string

// Bool reports whether the flag carries a truthy vendor value.
func (f Flag) Bool() bool {
	switch strings.ToLower(string(f)) {
	case "yes", "on", "true":
		return true
	default:
		return false
	}
}

// Toggle names for boolean settings a thermostat may support.
// These match the vendor field names used in both capability documents
// and set_* commands.
const (
	ToggleContinuousBacklight = "continuous_backlight"
	ToggleDisplayHumidity     = "display_humidity"
	ToggleDisplayTime         = "display_time"
	ToggleKeypadLockout       = "keypad_lockout"
	ToggleCompressorLockout   = "compressor_lockout"
	ToggleEarlyStart          = "early_start"
)

// DefaultHumidityStep is the humidity target granularity used when the
// capability document does not declare one.
const DefaultHumidityStep = 5

// Document is the raw capabilities payload for one thermostat.
type Document struct {
	DisplayHumidity     Flag `json:"display_humidity"`
	ContinuousBacklight Flag `json:"continuous_backlight"`
	DegreesFC           Flag `json:"degrees_fc"`
	DisplayTime         Flag `json:"display_time"`
	KeypadLockout       Flag `json:"keypad_lockout"`
	CompressorLockout   Flag `json:"compressor_lockout"`
	EarlyStart          Flag `json:"early_start"`

	OperatingModeSettings OperatingModeDocument `json:"operating_mode_settings"`
	FanModeSettings       FanModeDocument       `json:"fan_mode_settings"`

	CirculatingFan  *CirculatingFanDocument  `json:"circulating_fan"`
	HumidityControl *HumidityControlDocument `json:"humidity_control"`
}

// OperatingModeDocument declares which operating modes are enabled.
type OperatingModeDocument struct {
	Off  Flag `json:"off"`
	Heat Flag `json:"heat"`
	Cool Flag `json:"cool"`
	Auto Flag `json:"auto"`
	Aux  Flag `json:"aux"`
}

// FanModeDocument declares which fan modes are enabled.
type FanModeDocument struct {
	Auto Flag `json:"auto"`
	On   Flag `json:"on"`
}

// CirculatingFanDocument declares circulating fan support and its
// duty-cycle bounds.
type CirculatingFanDocument struct {
	Capable      Flag `json:"capable"`
	MinDutyCycle int  `json:"min_duty_cycle"`
	MaxDutyCycle int  `json:"max_duty_cycle"`
	Step         int  `json:"step"`
}

// HumidityControlDocument declares humidification and dehumidification
// support with their target bounds.
type HumidityControlDocument struct {
	Humidification   *HumidityRangeDocument `json:"humidification"`
	Dehumidification *HumidityRangeDocument `json:"dehumidification"`
}

// HumidityRangeDocument declares target-percent bounds for one humidity
// control direction.
type HumidityRangeDocument struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

// Set is the resolved view of a capability document: the operations that
// are valid for the device right now.
type Set struct {
	// OperatingModes holds the enabled mode names ("off", "heat", ...).
	OperatingModes []string

	// FanModes holds the enabled fan mode names ("auto", "on").
	FanModes []string

	// Toggles maps toggle names to whether the device supports them.
	Toggles map[string]bool

	// CirculatingFan carries duty-cycle bounds; zero value when not capable.
	CirculatingFan FanRange

	// Humidification and Dehumidification are nil when unsupported.
	Humidification   *HumidityRange
	Dehumidification *HumidityRange
}

// FanRange holds circulating fan duty-cycle bounds.
type FanRange struct {
	Capable      bool
	MinDutyCycle int
	MaxDutyCycle int
	Step         int
}

// HumidityRange holds humidity target bounds for one direction.
type HumidityRange struct {
	Min  int
	Max  int
	Step int
}

// Resolve produces the Set of valid operations for a capability document.
// It is a pure function with no side effects.
func Resolve(doc Document) Set {
	set := Set{
		Toggles: map[string]bool{
			ToggleContinuousBacklight: doc.ContinuousBacklight.Bool(),
			ToggleDisplayHumidity:     doc.DisplayHumidity.Bool(),
			ToggleDisplayTime:         doc.DisplayTime.Bool(),
			ToggleKeypadLockout:       doc.KeypadLockout.Bool(),
			ToggleCompressorLockout:   doc.CompressorLockout.Bool(),
			ToggleEarlyStart:          doc.EarlyStart.Bool(),
		},
	}

	modes := doc.OperatingModeSettings
	for _, m := range []struct {
		name string
		flag Flag
	}{
		{"off", modes.Off},
		{"heat", modes.Heat},
		{"cool", modes.Cool},
		{"auto", modes.Auto},
		{"aux", modes.Aux},
	} {
		if m.flag.Bool() {
			set.OperatingModes = append(set.OperatingModes, m.name)
		}
	}

	if doc.FanModeSettings.Auto.Bool() {
		set.FanModes = append(set.FanModes, "auto")
	}
	if doc.FanModeSettings.On.Bool() {
		set.FanModes = append(set.FanModes, "on")
	}

	if fan := doc.CirculatingFan; fan != nil && fan.Capable.Bool() {
		set.CirculatingFan = FanRange{
			Capable:      true,
			MinDutyCycle: fan.MinDutyCycle,
			MaxDutyCycle: fan.MaxDutyCycle,
			Step:         fan.Step,
		}
	}

	if hc := doc.HumidityControl; hc != nil {
		set.Humidification = resolveHumidityRange(hc.Humidification)
		set.Dehumidification = resolveHumidityRange(hc.Dehumidification)
	}

	return set
}

func resolveHumidityRange(doc *HumidityRangeDocument) *HumidityRange {
	if doc == nil {
		return nil
	}

	step := doc.Step
	if step <= 0 {
		step = DefaultHumidityStep
	}

	return &HumidityRange{
		Min:  doc.Min,
		Max:  doc.Max,
		Step: step,
	}
}

// SupportsOperatingMode reports whether the mode is enabled for the device.
func (s Set) SupportsOperatingMode(mode string) bool {
	for _, m := range s.OperatingModes {
		if m == mode {
			return true
		}
	}
	return false
}

// SupportsFanMode reports whether the fan mode is enabled for the device.
func (s Set) SupportsFanMode(mode string) bool {
	for _, m := range s.FanModes {
		if m == mode {
			return true
		}
	}
	return false
}

// SupportsToggle reports whether the named boolean setting is writable.
func (s Set) SupportsToggle(name string) bool {
	return s.Toggles[name]
}
