package command

import (
	"fmt"

	"github.com/ablyth/sensi-core/internal/capability"
	"github.com/ablyth/sensi-core/internal/device"
)

// validate runs the rejection chain for a spec against the device
// snapshot: writable per capability set, value in bounds and on the step
// grid, structurally permitted in the current operating mode. The device
// itself has already been resolved by the caller.
func validate(spec Spec, snap device.Snapshot) error {
	switch s := spec.(type) {
	case SetTemperature:
		return validateSetTemperature(s, snap)
	case SetTemperatureRange:
		return validateSetTemperatureRange(s, snap)
	case SetOperatingMode:
		if !snap.Capabilities.SupportsOperatingMode(string(s.Mode)) {
			return fmt.Errorf("%w: operating mode %q", ErrUnsupported, s.Mode)
		}
	case SetFanMode:
		if !snap.Capabilities.SupportsFanMode(string(s.Mode)) {
			return fmt.Errorf("%w: fan mode %q", ErrUnsupported, s.Mode)
		}
	case SetCirculatingFan:
		return validateSetCirculatingFan(s, snap.Capabilities)
	case SetHeatMaxTemp:
		if s.Value <= snap.State.CoolMinTemp {
			return fmt.Errorf("%w: heat limit %d not above cool limit %d",
				ErrOutOfRange, s.Value, snap.State.CoolMinTemp)
		}
	case SetCoolMinTemp:
		if snap.State.HeatMaxTemp > 0 && s.Value >= snap.State.HeatMaxTemp {
			return fmt.Errorf("%w: cool limit %d not below heat limit %d",
				ErrOutOfRange, s.Value, snap.State.HeatMaxTemp)
		}
	case SetHumidity:
		return validateSetHumidity(s, snap.Capabilities)
	case SetToggle:
		if !knownToggle(s.Name) {
			return fmt.Errorf("%w: unknown setting %q", ErrValidation, s.Name)
		}
		if !snap.Capabilities.SupportsToggle(s.Name) {
			return fmt.Errorf("%w: setting %q", ErrUnsupported, s.Name)
		}
	default:
		return fmt.Errorf("%w: unknown command type %T", ErrValidation, spec)
	}
	return nil
}

func validateSetTemperature(s SetTemperature, snap device.Snapshot) error {
	if s.Mode != device.ModeHeat && s.Mode != device.ModeCool {
		return fmt.Errorf("%w: setpoint mode must be heat or cool, got %q", ErrValidation, s.Mode)
	}

	if err := checkSetpointBounds(s.Mode, s.Value, snap.State); err != nil {
		return err
	}

	// A setpoint write must match the direction the thermostat is
	// actually in. Auto accepts both; aux behaves as heat.
	switch snap.State.OperatingMode {
	case device.ModeAuto:
		return nil
	case device.ModeHeat, device.ModeAux:
		if s.Mode != device.ModeHeat {
			return fmt.Errorf("%w: cool setpoint while heating", ErrWrongMode)
		}
	case device.ModeCool:
		if s.Mode != device.ModeCool {
			return fmt.Errorf("%w: heat setpoint while cooling", ErrWrongMode)
		}
	default:
		return fmt.Errorf("%w: no setpoint in mode %q", ErrWrongMode, snap.State.OperatingMode)
	}
	return nil
}

func validateSetTemperatureRange(s SetTemperatureRange, snap device.Snapshot) error {
	if snap.State.OperatingMode != device.ModeAuto {
		return fmt.Errorf("%w: dual setpoints require auto mode", ErrWrongMode)
	}
	if s.Heat >= s.Cool {
		return fmt.Errorf("%w: heat setpoint %d not below cool setpoint %d",
			ErrOutOfRange, s.Heat, s.Cool)
	}
	if err := checkSetpointBounds(device.ModeHeat, s.Heat, snap.State); err != nil {
		return err
	}
	return checkSetpointBounds(device.ModeCool, s.Cool, snap.State)
}

// checkSetpointBounds enforces the device's configured setpoint limits.
// Limits of zero mean the device has not reported them yet; nothing is
// enforced in that case.
func checkSetpointBounds(mode device.OperatingMode, value int, st device.State) error {
	if mode == device.ModeHeat && st.HeatMaxTemp > 0 && value > st.HeatMaxTemp {
		return fmt.Errorf("%w: heat setpoint %d above limit %d",
			ErrOutOfRange, value, st.HeatMaxTemp)
	}
	if mode == device.ModeCool && st.CoolMinTemp > 0 && value < st.CoolMinTemp {
		return fmt.Errorf("%w: cool setpoint %d below limit %d",
			ErrOutOfRange, value, st.CoolMinTemp)
	}
	return nil
}

func validateSetCirculatingFan(s SetCirculatingFan, caps capability.Set) error {
	fan := caps.CirculatingFan
	if !fan.Capable {
		return fmt.Errorf("%w: circulating fan", ErrUnsupported)
	}
	if s.DutyCycle < fan.MinDutyCycle || s.DutyCycle > fan.MaxDutyCycle {
		return fmt.Errorf("%w: duty cycle %d outside [%d, %d]",
			ErrOutOfRange, s.DutyCycle, fan.MinDutyCycle, fan.MaxDutyCycle)
	}
	if fan.Step > 0 && (s.DutyCycle-fan.MinDutyCycle)%fan.Step != 0 {
		return fmt.Errorf("%w: duty cycle %d not on step %d from %d",
			ErrOutOfRange, s.DutyCycle, fan.Step, fan.MinDutyCycle)
	}
	return nil
}

func validateSetHumidity(s SetHumidity, caps capability.Set) error {
	var r *capability.HumidityRange
	switch s.Direction {
	case Humidify:
		r = caps.Humidification
	case Dehumidify:
		r = caps.Dehumidification
	default:
		return fmt.Errorf("%w: unknown humidity direction %q", ErrValidation, s.Direction)
	}

	if r == nil {
		return fmt.Errorf("%w: %s control", ErrUnsupported, s.Direction)
	}
	if s.Target < r.Min || s.Target > r.Max {
		return fmt.Errorf("%w: %s target %d outside [%d, %d]",
			ErrOutOfRange, s.Direction, s.Target, r.Min, r.Max)
	}
	if r.Step > 0 && (s.Target-r.Min)%r.Step != 0 {
		return fmt.Errorf("%w: %s target %d not on step %d",
			ErrOutOfRange, s.Direction, s.Target, r.Step)
	}
	return nil
}

func knownToggle(name string) bool {
	switch name {
	case capability.ToggleContinuousBacklight,
		capability.ToggleDisplayHumidity,
		capability.ToggleDisplayTime,
		capability.ToggleKeypadLockout,
		capability.ToggleCompressorLockout,
		capability.ToggleEarlyStart:
		return true
	}
	return false
}

// toggleField reads the state field backing a toggle name.
func toggleField(st device.State, name string) bool {
	switch name {
	case capability.ToggleContinuousBacklight:
		return st.ContinuousBacklight
	case capability.ToggleDisplayHumidity:
		return st.DisplayHumidity
	case capability.ToggleDisplayTime:
		return st.DisplayTime
	case capability.ToggleKeypadLockout:
		return st.KeypadLockout
	case capability.ToggleCompressorLockout:
		return st.CompressorLockout
	case capability.ToggleEarlyStart:
		return st.EarlyStart
	}
	return false
}

// setToggleField writes the state field backing a toggle name.
func setToggleField(st *device.State, name string, value bool) {
	switch name {
	case capability.ToggleContinuousBacklight:
		st.ContinuousBacklight = value
	case capability.ToggleDisplayHumidity:
		st.DisplayHumidity = value
	case capability.ToggleDisplayTime:
		st.DisplayTime = value
	case capability.ToggleKeypadLockout:
		st.KeypadLockout = value
	case capability.ToggleCompressorLockout:
		st.CompressorLockout = value
	case capability.ToggleEarlyStart:
		st.EarlyStart = value
	}
}
