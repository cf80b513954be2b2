package device

import (
	"time"

	"github.com/ablyth/sensi-core/internal/capability"
)

// OperatingMode is the thermostat operating mode reported by the cloud.
type OperatingMode string

// Operating mode values. Aux is forced auxiliary heat on heat pump systems.
const (
	ModeOff     OperatingMode = "off"
	ModeAux     OperatingMode = "aux"
	ModeHeat    OperatingMode = "heat"
	ModeCool    OperatingMode = "cool"
	ModeAuto    OperatingMode = "auto"
	ModeUnknown OperatingMode = "unknown"
)

// ParseOperatingMode maps a wire value to an OperatingMode, returning
// ModeUnknown for unrecognised values.
func ParseOperatingMode(s string) OperatingMode {
	switch OperatingMode(s) {
	case ModeOff, ModeAux, ModeHeat, ModeCool, ModeAuto:
		return OperatingMode(s)
	default:
		return ModeUnknown
	}
}

// FanMode is the fan mode reported by the cloud. "circulate" is a derived
// presentation mode, never a wire value; see Derived.EffectiveFanMode.
type FanMode string

// Fan mode values.
const (
	FanAuto    FanMode = "auto"
	FanOn      FanMode = "on"
	FanUnknown FanMode = "unknown"
)

// ParseFanMode maps a wire value to a FanMode, returning FanUnknown for
// unrecognised values.
func ParseFanMode(s string) FanMode {
	switch FanMode(s) {
	case FanAuto, FanOn:
		return FanMode(s)
	default:
		return FanUnknown
	}
}

// HVACAction is the effective heating/cooling activity derived from the
// operating mode and demand status.
type HVACAction string

// HVAC action values.
const (
	ActionOff     HVACAction = "off"
	ActionHeating HVACAction = "heating"
	ActionCooling HVACAction = "cooling"
	ActionIdle    HVACAction = "idle"
)

// HumidityStatus is the active humidity-control activity.
type HumidityStatus string

// Humidity status values reported or derived for humidity control.
const (
	HumidityNone          HumidityStatus = "none"
	HumidityHumidifying   HumidityStatus = "humidifying"
	HumidityDehumidifying HumidityStatus = "dehumidifying"
	HumidityOvercooling   HumidityStatus = "overcooling"
	HumidityOvercooled    HumidityStatus = "overcooled"
)

// TemperatureUnit is the display unit derived from the display scale.
type TemperatureUnit string

// Temperature units.
const (
	UnitCelsius    TemperatureUnit = "°C"
	UnitFahrenheit TemperatureUnit = "°F"
)

// Registration holds quasi-static thermostat metadata. It changes rarely
// and is replaced wholesale when an update arrives.
type Registration struct {
	Name        string `json:"name"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	Timezone    string `json:"timezone"`
	ProductType string `json:"product_type"`
}

// Info holds hardware and firmware details returned by get_info.
// Replaced wholesale like Registration.
type Info struct {
	ModelNumber       string `json:"model_number"`
	SerialNumber      string `json:"serial_number"`
	UniqueHardwareID  string `json:"unique_hardware_id"`
	WifiMacAddress    string `json:"wifi_mac_address"`
	FirmwareVersion   string `json:"firmware_version"`
	BootloaderVersion string `json:"bootloader_version"`
	WifiVersion       string `json:"wifi_version"`
}

// CirculatingFan is the runtime circulating fan sub-state.
type CirculatingFan struct {
	Enabled   bool `json:"enabled"`
	DutyCycle int  `json:"duty_cycle"`
}

// DemandStatus carries runtime demand percentages for HVAC equipment.
type DemandStatus struct {
	Heat             int    `json:"heat"`
	Cool             int    `json:"cool"`
	Fan              int    `json:"fan"`
	Aux              int    `json:"aux"`
	Humidification   int    `json:"humidification"`
	Dehumidification int    `json:"dehumidification"`
	Last             string `json:"last"`
	LastStart        int64  `json:"last_start"`
}

// RelayStatus carries per-wire relay states.
type RelayStatus struct {
	W  bool `json:"w"`
	W2 bool `json:"w2"`
	G  bool `json:"g"`
	Y  bool `json:"y"`
	Y2 bool `json:"y2"`
	OB bool `json:"o_b"`
}

// HumiditySetting is one direction of humidity control.
type HumiditySetting struct {
	TargetPercent int    `json:"target_percent"`
	Enabled       bool   `json:"enabled"`
	Mode          string `json:"mode"`
}

// HumidityControl is the runtime humidity control sub-state.
type HumidityControl struct {
	Humidification   HumiditySetting `json:"humidification"`
	Dehumidification HumiditySetting `json:"dehumidification"`
	Status           HumidityStatus  `json:"status"`
}

// ErrorBitfield carries device fault flags.
type ErrorBitfield struct {
	BadTemperatureSensor bool `json:"bad_temperature_sensor"`
	BadHumiditySensor    bool `json:"bad_humidity_sensor"`
	StuckKey             bool `json:"stuck_key"`
	HighVoltage          bool `json:"high_voltage"`
	E5Alert              bool `json:"e5_alert"`
}

// State is the mutable runtime snapshot for one thermostat.
//
// Fields are only ever written through the merge algorithm: a field present
// in an inbound payload overwrites the stored value, a field absent from a
// partial payload is left untouched.
type State struct {
	// Status is the vendor-reported connectivity ("online"/"offline").
	// Advisory only; see the package documentation.
	Status string `json:"status"`

	OperatingMode        OperatingMode `json:"operating_mode"`
	CurrentOperatingMode string        `json:"current_operating_mode"`
	FanMode              FanMode       `json:"fan_mode"`

	DisplayTemp  float64 `json:"display_temp"`
	Humidity     int     `json:"humidity"`
	DisplayScale string  `json:"display_scale"`

	CurrentHeatTemp int `json:"current_heat_temp"`
	CurrentCoolTemp int `json:"current_cool_temp"`
	HeatMaxTemp     int `json:"heat_max_temp"`
	CoolMinTemp     int `json:"cool_min_temp"`

	BatteryVoltage        float64 `json:"battery_voltage"`
	PowerStatus           string  `json:"power_status"`
	WifiConnectionQuality int     `json:"wifi_connection_quality"`

	TempOffset     int    `json:"temp_offset"`
	HumidityOffset int    `json:"humidity_offset"`
	HoldMode       string `json:"hold_mode"`

	DisplayHumidity     bool `json:"display_humidity"`
	ContinuousBacklight bool `json:"continuous_backlight"`
	DisplayTime         bool `json:"display_time"`
	KeypadLockout       bool `json:"keypad_lockout"`
	CompressorLockout   bool `json:"compressor_lockout"`
	EarlyStart          bool `json:"early_start"`

	CirculatingFan  CirculatingFan  `json:"circulating_fan"`
	DemandStatus    DemandStatus    `json:"demand_status"`
	RelayStatus     RelayStatus     `json:"relay_status"`
	HumidityControl HumidityControl `json:"humidity_control"`
	OtherErrors     ErrorBitfield   `json:"other_error_bitfield"`
}

// Device is one known thermostat with its three sub-documents.
type Device struct {
	ID string

	Registration Registration
	Info         Info

	// CapabilitiesDoc is the raw capability document; Capabilities is its
	// resolved set. Both replaced together, only on capability fetches.
	CapabilitiesDoc capability.Document
	Capabilities    capability.Set

	State State

	// Timestamps of the last accepted update per sub-document.
	RegistrationUpdatedAt time.Time
	CapabilitiesUpdatedAt time.Time
	StateUpdatedAt        time.Time
}

// Snapshot is a deep-copied, read-only view of one device handed to
// consumers. Derived attributes are recomputed for every snapshot.
type Snapshot struct {
	ID           string          `json:"icd_id"`
	Registration Registration    `json:"registration"`
	Info         Info            `json:"info"`
	Capabilities capability.Set  `json:"capabilities"`
	State        State           `json:"state"`
	Derived      Derived         `json:"derived"`

	// Stale indicates the transport has been in reconnect backoff past its
	// failure threshold; the data shown may lag the device.
	Stale bool `json:"stale"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cp := *d

	// Capability documents hold pointers; copy them so the cached device
	// cannot be mutated through a snapshot.
	if d.CapabilitiesDoc.CirculatingFan != nil {
		fan := *d.CapabilitiesDoc.CirculatingFan
		cp.CapabilitiesDoc.CirculatingFan = &fan
	}
	if d.CapabilitiesDoc.HumidityControl != nil {
		hc := *d.CapabilitiesDoc.HumidityControl
		if hc.Humidification != nil {
			h := *hc.Humidification
			hc.Humidification = &h
		}
		if hc.Dehumidification != nil {
			h := *hc.Dehumidification
			hc.Dehumidification = &h
		}
		cp.CapabilitiesDoc.HumidityControl = &hc
	}

	cp.Capabilities = cloneSet(d.Capabilities)

	return &cp
}

func cloneSet(s capability.Set) capability.Set {
	cp := s

	cp.OperatingModes = append([]string(nil), s.OperatingModes...)
	cp.FanModes = append([]string(nil), s.FanModes...)

	cp.Toggles = make(map[string]bool, len(s.Toggles))
	for k, v := range s.Toggles {
		cp.Toggles[k] = v
	}

	if s.Humidification != nil {
		h := *s.Humidification
		cp.Humidification = &h
	}
	if s.Dehumidification != nil {
		h := *s.Dehumidification
		cp.Dehumidification = &h
	}

	return cp
}
