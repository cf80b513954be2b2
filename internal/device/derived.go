package device

import "github.com/ablyth/sensi-core/internal/capability"

// Derived holds attributes computed from State and Capabilities on every
// snapshot. These are never stored, so they cannot diverge from the fields
// they are derived from.
type Derived struct {
	// HVACAction is the effective activity: what the equipment is doing
	// right now, as opposed to the configured operating mode.
	HVACAction HVACAction `json:"hvac_action"`

	// EffectiveFanMode folds circulating fan state into the fan mode:
	// "auto" with an enabled circulating fan presents as "circulate".
	EffectiveFanMode string `json:"effective_fan_mode"`

	// TargetTemperature is the setpoint currently being pursued; nil when
	// the system is off.
	TargetTemperature *int `json:"target_temperature,omitempty"`

	TemperatureUnit TemperatureUnit `json:"temperature_unit"`

	// HumidityStatus is the active humidity-control activity.
	HumidityStatus HumidityStatus `json:"humidity_status"`

	// FanDutyPercent is the current fan demand, clamped to 0-100.
	FanDutyPercent int `json:"fan_duty_percent"`

	// CirculationActive reports whether duty-cycle circulation is both
	// supported and enabled.
	CirculationActive bool `json:"circulation_active"`

	// Online mirrors the advisory vendor connectivity flag.
	Online bool `json:"online"`
}

// EffectiveFanCirculate is the derived fan mode presented when the fan is
// in auto with an enabled circulating fan. It is never a wire value.
const EffectiveFanCirculate = "circulate"

// computeDerived recomputes all derived attributes for a snapshot.
func computeDerived(state State, caps capability.Set) Derived {
	d := Derived{
		HVACAction:      deriveHVACAction(state),
		TemperatureUnit: deriveUnit(state.DisplayScale),
		HumidityStatus:  deriveHumidityStatus(state),
		FanDutyPercent:  clampPercent(state.DemandStatus.Fan),
		Online:          state.Status == "online",
	}

	d.CirculationActive = caps.CirculatingFan.Capable && state.CirculatingFan.Enabled

	d.EffectiveFanMode = string(state.FanMode)
	if state.FanMode == FanAuto && d.CirculationActive {
		d.EffectiveFanMode = EffectiveFanCirculate
	}

	d.TargetTemperature = deriveTarget(state, d.HVACAction)

	return d
}

// deriveHVACAction computes the effective activity from the operating mode
// and demand status. Forced aux is treated as heating.
func deriveHVACAction(state State) HVACAction {
	switch state.OperatingMode {
	case ModeOff:
		return ActionOff
	case ModeAux:
		return ActionHeating
	}

	if state.DemandStatus.Heat > 0 {
		return ActionHeating
	}
	if state.DemandStatus.Cool > 0 {
		return ActionCooling
	}
	return ActionIdle
}

// deriveTarget picks the setpoint being pursued. When idle, the last
// demanded direction decides which setpoint is shown.
func deriveTarget(state State, action HVACAction) *int {
	switch action {
	case ActionOff:
		return nil
	case ActionHeating:
		t := state.CurrentHeatTemp
		return &t
	case ActionCooling:
		t := state.CurrentCoolTemp
		return &t
	}

	if state.DemandStatus.Last == "heat" {
		t := state.CurrentHeatTemp
		return &t
	}
	t := state.CurrentCoolTemp
	return &t
}

func deriveHumidityStatus(state State) HumidityStatus {
	if s := state.HumidityControl.Status; s != "" && s != HumidityNone {
		return s
	}

	if state.HumidityControl.Humidification.Enabled && state.DemandStatus.Humidification > 0 {
		return HumidityHumidifying
	}
	if state.HumidityControl.Dehumidification.Enabled && state.DemandStatus.Dehumidification > 0 {
		return HumidityDehumidifying
	}
	return HumidityNone
}

func deriveUnit(scale string) TemperatureUnit {
	if scale == "c" {
		return UnitCelsius
	}
	return UnitFahrenheit
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
