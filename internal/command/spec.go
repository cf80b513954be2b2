package command

import (
	"fmt"

	"github.com/ablyth/sensi-core/internal/device"
)

// HumidityDirection selects which humidity control a target applies to.
type HumidityDirection string

// Humidity control directions.
const (
	Humidify   HumidityDirection = "humidification"
	Dehumidify HumidityDirection = "dehumidification"
)

// Spec is one host intent. Each implementation compiles into the wire
// emits, the optimistic state mutation, and the rollback for that write.
type Spec interface {
	// describe names the command for logging.
	describe() string
}

// SetTemperature writes a single setpoint for the given mode.
type SetTemperature struct {
	Mode  device.OperatingMode // ModeHeat or ModeCool
	Value int
}

func (s SetTemperature) describe() string {
	return fmt.Sprintf("set_temperature %s=%d", s.Mode, s.Value)
}

// SetTemperatureRange writes both setpoints for auto mode. The write is
// composite: both succeed or both roll back.
type SetTemperatureRange struct {
	Heat int
	Cool int
}

func (s SetTemperatureRange) describe() string {
	return fmt.Sprintf("set_temperature_range heat=%d cool=%d", s.Heat, s.Cool)
}

// SetOperatingMode changes the operating mode.
type SetOperatingMode struct {
	Mode device.OperatingMode
}

func (s SetOperatingMode) describe() string {
	return fmt.Sprintf("set_operating_mode %s", s.Mode)
}

// SetFanMode changes the fan mode.
type SetFanMode struct {
	Mode device.FanMode
}

func (s SetFanMode) describe() string {
	return fmt.Sprintf("set_fan_mode %s", s.Mode)
}

// SetCirculatingFan enables or disables duty-cycle circulation.
type SetCirculatingFan struct {
	Enabled   bool
	DutyCycle int
}

func (s SetCirculatingFan) describe() string {
	return fmt.Sprintf("set_circulating_fan enabled=%t duty=%d", s.Enabled, s.DutyCycle)
}

// SetHeatMaxTemp writes the upper heat setpoint limit.
type SetHeatMaxTemp struct {
	Value int
}

func (s SetHeatMaxTemp) describe() string {
	return fmt.Sprintf("set_heat_max_temp %d", s.Value)
}

// SetCoolMinTemp writes the lower cool setpoint limit.
type SetCoolMinTemp struct {
	Value int
}

func (s SetCoolMinTemp) describe() string {
	return fmt.Sprintf("set_cool_min_temp %d", s.Value)
}

// SetHumidity writes a humidity control target.
type SetHumidity struct {
	Direction HumidityDirection
	Target    int
}

func (s SetHumidity) describe() string {
	return fmt.Sprintf("set_%s %d", s.Direction, s.Target)
}

// SetToggle writes a named boolean setting. Name must be one of the
// capability toggle names (continuous_backlight, display_humidity, ...).
type SetToggle struct {
	Name  string
	Value bool
}

func (s SetToggle) describe() string {
	return fmt.Sprintf("set_%s %t", s.Name, s.Value)
}

// emit is one wire write: a socket.io event with its payload.
type emit struct {
	event   string
	payload map[string]any
}

// plan is a compiled command: the emits to send, the field paths the
// write covers, the optimistic mutation, and the per-field rollback.
// restore copies only the plan's own fields from the prior state, so a
// rollback cannot clobber unrelated server updates that arrived since.
type plan struct {
	emits   []emit
	paths   []string
	mutate  func(*device.State)
	restore func(st *device.State, prior device.State)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// compile builds the plan for a validated spec against the device
// snapshot it was validated with.
func compile(deviceID string, spec Spec, snap device.Snapshot) plan {
	switch s := spec.(type) {
	case SetTemperature:
		p := plan{
			emits: []emit{{
				event: "set_temperature",
				payload: map[string]any{
					"icd_id":      deviceID,
					"target_temp": s.Value,
					"mode":        string(s.Mode),
					"scale":       snap.State.DisplayScale,
				},
			}},
		}
		if s.Mode == device.ModeHeat {
			p.paths = []string{"current_heat_temp"}
			p.mutate = func(st *device.State) { st.CurrentHeatTemp = s.Value }
			p.restore = func(st *device.State, prior device.State) {
				st.CurrentHeatTemp = prior.CurrentHeatTemp
			}
		} else {
			p.paths = []string{"current_cool_temp"}
			p.mutate = func(st *device.State) { st.CurrentCoolTemp = s.Value }
			p.restore = func(st *device.State, prior device.State) {
				st.CurrentCoolTemp = prior.CurrentCoolTemp
			}
		}
		return p

	case SetTemperatureRange:
		return plan{
			emits: []emit{
				{
					event: "set_temperature",
					payload: map[string]any{
						"icd_id":      deviceID,
						"target_temp": s.Heat,
						"mode":        string(device.ModeHeat),
						"scale":       snap.State.DisplayScale,
					},
				},
				{
					event: "set_temperature",
					payload: map[string]any{
						"icd_id":      deviceID,
						"target_temp": s.Cool,
						"mode":        string(device.ModeCool),
						"scale":       snap.State.DisplayScale,
					},
				},
			},
			paths: []string{"current_heat_temp", "current_cool_temp"},
			mutate: func(st *device.State) {
				st.CurrentHeatTemp = s.Heat
				st.CurrentCoolTemp = s.Cool
			},
			restore: func(st *device.State, prior device.State) {
				st.CurrentHeatTemp = prior.CurrentHeatTemp
				st.CurrentCoolTemp = prior.CurrentCoolTemp
			},
		}

	case SetOperatingMode:
		return plan{
			emits: []emit{{
				event:   "set_operating_mode",
				payload: map[string]any{"icd_id": deviceID, "value": string(s.Mode)},
			}},
			paths:  []string{"operating_mode"},
			mutate: func(st *device.State) { st.OperatingMode = s.Mode },
			restore: func(st *device.State, prior device.State) {
				st.OperatingMode = prior.OperatingMode
			},
		}

	case SetFanMode:
		return plan{
			emits: []emit{{
				event:   "set_fan_mode",
				payload: map[string]any{"icd_id": deviceID, "value": string(s.Mode)},
			}},
			paths:  []string{"fan_mode"},
			mutate: func(st *device.State) { st.FanMode = s.Mode },
			restore: func(st *device.State, prior device.State) {
				st.FanMode = prior.FanMode
			},
		}

	case SetCirculatingFan:
		return plan{
			emits: []emit{{
				event: "set_circulating_fan",
				payload: map[string]any{
					"icd_id": deviceID,
					"value": map[string]any{
						"enabled":    onOff(s.Enabled),
						"duty_cycle": s.DutyCycle,
					},
				},
			}},
			paths: []string{"circulating_fan.enabled", "circulating_fan.duty_cycle"},
			mutate: func(st *device.State) {
				st.CirculatingFan.Enabled = s.Enabled
				st.CirculatingFan.DutyCycle = s.DutyCycle
			},
			restore: func(st *device.State, prior device.State) {
				st.CirculatingFan = prior.CirculatingFan
			},
		}

	case SetHeatMaxTemp:
		return plan{
			emits: []emit{{
				event:   "set_heat_max_temp",
				payload: map[string]any{"icd_id": deviceID, "value": s.Value},
			}},
			paths:  []string{"heat_max_temp"},
			mutate: func(st *device.State) { st.HeatMaxTemp = s.Value },
			restore: func(st *device.State, prior device.State) {
				st.HeatMaxTemp = prior.HeatMaxTemp
			},
		}

	case SetCoolMinTemp:
		return plan{
			emits: []emit{{
				event:   "set_cool_min_temp",
				payload: map[string]any{"icd_id": deviceID, "value": s.Value},
			}},
			paths:  []string{"cool_min_temp"},
			mutate: func(st *device.State) { st.CoolMinTemp = s.Value },
			restore: func(st *device.State, prior device.State) {
				st.CoolMinTemp = prior.CoolMinTemp
			},
		}

	case SetHumidity:
		path := "humidity_control." + string(s.Direction) + ".target_percent"
		return plan{
			emits: []emit{{
				event:   "set_" + string(s.Direction),
				payload: map[string]any{"icd_id": deviceID, "value": s.Target},
			}},
			paths: []string{path},
			mutate: func(st *device.State) {
				setting(st, s.Direction).TargetPercent = s.Target
			},
			restore: func(st *device.State, prior device.State) {
				if s.Direction == Humidify {
					st.HumidityControl.Humidification.TargetPercent = prior.HumidityControl.Humidification.TargetPercent
				} else {
					st.HumidityControl.Dehumidification.TargetPercent = prior.HumidityControl.Dehumidification.TargetPercent
				}
			},
		}

	case SetToggle:
		return plan{
			emits: []emit{{
				event:   "set_" + s.Name,
				payload: map[string]any{"icd_id": deviceID, "value": onOff(s.Value)},
			}},
			paths:  []string{s.Name},
			mutate: func(st *device.State) { setToggleField(st, s.Name, s.Value) },
			restore: func(st *device.State, prior device.State) {
				setToggleField(st, s.Name, toggleField(prior, s.Name))
			},
		}
	}

	// validate rejects unknown spec types before compile runs.
	panic(fmt.Sprintf("command: uncompilable spec %T", spec))
}

func setting(st *device.State, dir HumidityDirection) *device.HumiditySetting {
	if dir == Humidify {
		return &st.HumidityControl.Humidification
	}
	return &st.HumidityControl.Dehumidification
}
