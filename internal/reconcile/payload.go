package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/ablyth/sensi-core/internal/capability"
	"github.com/ablyth/sensi-core/internal/device"
)

// flexBool decodes the vendor's boolean spellings: JSON booleans, plus the
// tri-state strings "yes"/"no", "on"/"off", and "true".
type flexBool bool

func (b *flexBool) UnmarshalJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		*b = flexBool(capability.Flag(t).Bool())
	default:
		return fmt.Errorf("cannot decode %T as boolean", v)
	}
	return nil
}

// deviceUpdate is one element of a "state" event payload. Registration and
// State are optional sub-documents.
type deviceUpdate struct {
	ICDID        string               `json:"icd_id"`
	Registration *device.Registration `json:"registration"`
	State        *statePayload        `json:"state"`
}

// statePayload mirrors the wire state sub-document with every field
// optional. A nil pointer is the explicit "was not sent" marker; the merge
// never touches the stored value for an absent field.
type statePayload struct {
	Status               *string  `json:"status"`
	OperatingMode        *string  `json:"operating_mode"`
	CurrentOperatingMode *string  `json:"current_operating_mode"`
	FanMode              *string  `json:"fan_mode"`
	DisplayTemp          *float64 `json:"display_temp"`
	Humidity             *int     `json:"humidity"`
	DisplayScale         *string  `json:"display_scale"`

	CurrentHeatTemp *int `json:"current_heat_temp"`
	CurrentCoolTemp *int `json:"current_cool_temp"`
	HeatMaxTemp     *int `json:"heat_max_temp"`
	CoolMinTemp     *int `json:"cool_min_temp"`

	BatteryVoltage        *float64 `json:"battery_voltage"`
	PowerStatus           *string  `json:"power_status"`
	WifiConnectionQuality *int     `json:"wifi_connection_quality"`

	TempOffset     *int    `json:"temp_offset"`
	HumidityOffset *int    `json:"humidity_offset"`
	HoldMode       *string `json:"hold_mode"`

	DisplayHumidity     *flexBool `json:"display_humidity"`
	ContinuousBacklight *flexBool `json:"continuous_backlight"`
	DisplayTime         *flexBool `json:"display_time"`
	KeypadLockout       *flexBool `json:"keypad_lockout"`
	CompressorLockout   *flexBool `json:"compressor_lockout"`
	EarlyStart          *flexBool `json:"early_start"`

	CirculatingFan  *circulatingFanPayload  `json:"circulating_fan"`
	DemandStatus    *demandStatusPayload    `json:"demand_status"`
	RelayStatus     *relayStatusPayload     `json:"relay_status"`
	HumidityControl *humidityControlPayload `json:"humidity_control"`
	OtherErrors     *errorBitfieldPayload   `json:"other_error_bitfield"`
}

type circulatingFanPayload struct {
	Enabled   *flexBool `json:"enabled"`
	DutyCycle *int      `json:"duty_cycle"`
}

type demandStatusPayload struct {
	Heat             *int    `json:"heat"`
	Cool             *int    `json:"cool"`
	Fan              *int    `json:"fan"`
	Aux              *int    `json:"aux"`
	Humidification   *int    `json:"humidification"`
	Dehumidification *int    `json:"dehumidification"`
	Last             *string `json:"last"`
	LastStart        *int64  `json:"last_start"`
}

type relayStatusPayload struct {
	W  *flexBool `json:"w"`
	W2 *flexBool `json:"w2"`
	G  *flexBool `json:"g"`
	Y  *flexBool `json:"y"`
	Y2 *flexBool `json:"y2"`
	OB *flexBool `json:"o_b"`
}

type humiditySettingPayload struct {
	TargetPercent *int      `json:"target_percent"`
	Enabled       *flexBool `json:"enabled"`
	Mode          *string   `json:"mode"`
}

type humidityControlPayload struct {
	Humidification   *humiditySettingPayload `json:"humidification"`
	Dehumidification *humiditySettingPayload `json:"dehumidification"`
	Status           *string                 `json:"status"`
}

type errorBitfieldPayload struct {
	BadTemperatureSensor *flexBool `json:"bad_temperature_sensor"`
	BadHumiditySensor    *flexBool `json:"bad_humidity_sensor"`
	StuckKey             *flexBool `json:"stuck_key"`
	HighVoltage          *flexBool `json:"high_voltage"`
	E5Alert              *flexBool `json:"e5_alert"`
}

// capabilitiesUpdate is a "capabilities" event payload: the device
// identifier alongside the flattened capability document.
type capabilitiesUpdate struct {
	ICDID string `json:"icd_id"`
	capability.Document
}

// infoUpdate is an "info" event payload.
type infoUpdate struct {
	ICDID string `json:"icd_id"`
	device.Info
}
