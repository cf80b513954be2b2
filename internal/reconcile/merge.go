package reconcile

import (
	"fmt"

	"github.com/ablyth/sensi-core/internal/capability"
	"github.com/ablyth/sensi-core/internal/device"
)

// validateState rejects payloads carrying values outside the device's
// declared capability bounds. Rejection covers the whole payload: a single
// bad value means nothing is applied.
func validateState(p *statePayload, caps capability.Set) error {
	if p.CirculatingFan != nil && p.CirculatingFan.DutyCycle != nil && caps.CirculatingFan.Capable {
		if err := checkRange("circulating_fan.duty_cycle", *p.CirculatingFan.DutyCycle,
			caps.CirculatingFan.MinDutyCycle, caps.CirculatingFan.MaxDutyCycle,
			caps.CirculatingFan.Step); err != nil {
			return err
		}
	}

	if hc := p.HumidityControl; hc != nil {
		if hc.Humidification != nil && hc.Humidification.TargetPercent != nil && caps.Humidification != nil {
			r := caps.Humidification
			if err := checkRange("humidity_control.humidification.target_percent",
				*hc.Humidification.TargetPercent, r.Min, r.Max, r.Step); err != nil {
				return err
			}
		}
		if hc.Dehumidification != nil && hc.Dehumidification.TargetPercent != nil && caps.Dehumidification != nil {
			r := caps.Dehumidification
			if err := checkRange("humidity_control.dehumidification.target_percent",
				*hc.Dehumidification.TargetPercent, r.Min, r.Max, r.Step); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkRange(path string, value, min, max, step int) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrOutOfRange, path, value, min, max)
	}
	if step > 0 && (value-min)%step != 0 {
		return fmt.Errorf("%w: %s=%d not on step %d from %d", ErrOutOfRange, path, value, step, min)
	}
	return nil
}

// mergeState folds a payload into the stored state, field by field.
// Present fields overwrite, absent fields are untouched, and a path is
// reported only when the stored value actually changed, so re-applying the
// same payload yields an empty set.
func mergeState(st *device.State, p *statePayload) []string {
	var changed []string

	setString(&st.Status, p.Status, "status", &changed)
	setString(&st.CurrentOperatingMode, p.CurrentOperatingMode, "current_operating_mode", &changed)
	setString(&st.DisplayScale, p.DisplayScale, "display_scale", &changed)
	setString(&st.PowerStatus, p.PowerStatus, "power_status", &changed)
	setString(&st.HoldMode, p.HoldMode, "hold_mode", &changed)

	if p.OperatingMode != nil {
		if mode := device.ParseOperatingMode(*p.OperatingMode); mode != st.OperatingMode {
			st.OperatingMode = mode
			changed = append(changed, "operating_mode")
		}
	}
	if p.FanMode != nil {
		if mode := device.ParseFanMode(*p.FanMode); mode != st.FanMode {
			st.FanMode = mode
			changed = append(changed, "fan_mode")
		}
	}

	setFloat(&st.DisplayTemp, p.DisplayTemp, "display_temp", &changed)
	setFloat(&st.BatteryVoltage, p.BatteryVoltage, "battery_voltage", &changed)

	setInt(&st.Humidity, p.Humidity, "humidity", &changed)
	setInt(&st.CurrentHeatTemp, p.CurrentHeatTemp, "current_heat_temp", &changed)
	setInt(&st.CurrentCoolTemp, p.CurrentCoolTemp, "current_cool_temp", &changed)
	setInt(&st.HeatMaxTemp, p.HeatMaxTemp, "heat_max_temp", &changed)
	setInt(&st.CoolMinTemp, p.CoolMinTemp, "cool_min_temp", &changed)
	setInt(&st.WifiConnectionQuality, p.WifiConnectionQuality, "wifi_connection_quality", &changed)
	setInt(&st.TempOffset, p.TempOffset, "temp_offset", &changed)
	setInt(&st.HumidityOffset, p.HumidityOffset, "humidity_offset", &changed)

	setBool(&st.DisplayHumidity, p.DisplayHumidity, "display_humidity", &changed)
	setBool(&st.ContinuousBacklight, p.ContinuousBacklight, "continuous_backlight", &changed)
	setBool(&st.DisplayTime, p.DisplayTime, "display_time", &changed)
	setBool(&st.KeypadLockout, p.KeypadLockout, "keypad_lockout", &changed)
	setBool(&st.CompressorLockout, p.CompressorLockout, "compressor_lockout", &changed)
	setBool(&st.EarlyStart, p.EarlyStart, "early_start", &changed)

	if fan := p.CirculatingFan; fan != nil {
		setBool(&st.CirculatingFan.Enabled, fan.Enabled, "circulating_fan.enabled", &changed)
		setInt(&st.CirculatingFan.DutyCycle, fan.DutyCycle, "circulating_fan.duty_cycle", &changed)
	}

	if ds := p.DemandStatus; ds != nil {
		before := st.DemandStatus
		setIntQuiet(&st.DemandStatus.Heat, ds.Heat)
		setIntQuiet(&st.DemandStatus.Cool, ds.Cool)
		setIntQuiet(&st.DemandStatus.Fan, ds.Fan)
		setIntQuiet(&st.DemandStatus.Aux, ds.Aux)
		setIntQuiet(&st.DemandStatus.Humidification, ds.Humidification)
		setIntQuiet(&st.DemandStatus.Dehumidification, ds.Dehumidification)
		if ds.Last != nil {
			st.DemandStatus.Last = *ds.Last
		}
		if ds.LastStart != nil {
			st.DemandStatus.LastStart = *ds.LastStart
		}
		if st.DemandStatus != before {
			changed = append(changed, "demand_status")
		}
	}

	if rs := p.RelayStatus; rs != nil {
		before := st.RelayStatus
		setBoolQuiet(&st.RelayStatus.W, rs.W)
		setBoolQuiet(&st.RelayStatus.W2, rs.W2)
		setBoolQuiet(&st.RelayStatus.G, rs.G)
		setBoolQuiet(&st.RelayStatus.Y, rs.Y)
		setBoolQuiet(&st.RelayStatus.Y2, rs.Y2)
		setBoolQuiet(&st.RelayStatus.OB, rs.OB)
		if st.RelayStatus != before {
			changed = append(changed, "relay_status")
		}
	}

	if hc := p.HumidityControl; hc != nil {
		changed = mergeHumiditySetting(&st.HumidityControl.Humidification,
			hc.Humidification, "humidity_control.humidification", changed)
		changed = mergeHumiditySetting(&st.HumidityControl.Dehumidification,
			hc.Dehumidification, "humidity_control.dehumidification", changed)
		if hc.Status != nil {
			if status := device.HumidityStatus(*hc.Status); status != st.HumidityControl.Status {
				st.HumidityControl.Status = status
				changed = append(changed, "humidity_control.status")
			}
		}
	}

	if eb := p.OtherErrors; eb != nil {
		before := st.OtherErrors
		setBoolQuiet(&st.OtherErrors.BadTemperatureSensor, eb.BadTemperatureSensor)
		setBoolQuiet(&st.OtherErrors.BadHumiditySensor, eb.BadHumiditySensor)
		setBoolQuiet(&st.OtherErrors.StuckKey, eb.StuckKey)
		setBoolQuiet(&st.OtherErrors.HighVoltage, eb.HighVoltage)
		setBoolQuiet(&st.OtherErrors.E5Alert, eb.E5Alert)
		if st.OtherErrors != before {
			changed = append(changed, "other_error_bitfield")
		}
	}

	return changed
}

func mergeHumiditySetting(dst *device.HumiditySetting, p *humiditySettingPayload, prefix string, changed []string) []string {
	if p == nil {
		return changed
	}

	if p.TargetPercent != nil && *p.TargetPercent != dst.TargetPercent {
		dst.TargetPercent = *p.TargetPercent
		changed = append(changed, prefix+".target_percent")
	}
	if p.Enabled != nil && bool(*p.Enabled) != dst.Enabled {
		dst.Enabled = bool(*p.Enabled)
		changed = append(changed, prefix+".enabled")
	}
	if p.Mode != nil && *p.Mode != dst.Mode {
		dst.Mode = *p.Mode
		changed = append(changed, prefix+".mode")
	}
	return changed
}

func setString(dst *string, src *string, path string, changed *[]string) {
	if src != nil && *src != *dst {
		*dst = *src
		*changed = append(*changed, path)
	}
}

func setInt(dst *int, src *int, path string, changed *[]string) {
	if src != nil && *src != *dst {
		*dst = *src
		*changed = append(*changed, path)
	}
}

func setFloat(dst *float64, src *float64, path string, changed *[]string) {
	if src != nil && *src != *dst {
		*dst = *src
		*changed = append(*changed, path)
	}
}

func setBool(dst *bool, src *flexBool, path string, changed *[]string) {
	if src != nil && bool(*src) != *dst {
		*dst = bool(*src)
		*changed = append(*changed, path)
	}
}

func setIntQuiet(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBoolQuiet(dst *bool, src *flexBool) {
	if src != nil {
		*dst = bool(*src)
	}
}
