package capability

import (
	"encoding/json"
	"testing"
)

func TestFlag_Bool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes", true},
		{"on", true},
		{"true", true},
		{"YES", true},
		{"no", false},
		{"off", false},
		{"false", false},
		{"", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Flag(tt.input).Bool(); got != tt.want {
				t.Errorf("Flag(%q).Bool() = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve_FullDocument(t *testing.T) {
	raw := `{
		"display_humidity": "yes",
		"continuous_backlight": "yes",
		"degrees_fc": "yes",
		"display_time": "no",
		"keypad_lockout": "yes",
		"compressor_lockout": "yes",
		"early_start": "no",
		"operating_mode_settings": {"off": "yes", "heat": "yes", "cool": "yes", "auto": "yes", "aux": "no"},
		"fan_mode_settings": {"auto": "yes", "on": "yes"},
		"circulating_fan": {"capable": "yes", "min_duty_cycle": 10, "max_duty_cycle": 100, "step": 5},
		"humidity_control": {
			"humidification": {"min": 5, "max": 50, "step": 5},
			"dehumidification": {"min": 40, "max": 95, "step": 5}
		}
	}`

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}

	set := Resolve(doc)

	wantModes := []string{"off", "heat", "cool", "auto"}
	if len(set.OperatingModes) != len(wantModes) {
		t.Fatalf("OperatingModes = %v, want %v", set.OperatingModes, wantModes)
	}
	for i, m := range wantModes {
		if set.OperatingModes[i] != m {
			t.Errorf("OperatingModes[%d] = %q, want %q", i, set.OperatingModes[i], m)
		}
	}

	if !set.SupportsOperatingMode("heat") {
		t.Error("expected heat mode to be supported")
	}
	if set.SupportsOperatingMode("aux") {
		t.Error("expected aux mode to be unsupported")
	}

	if !set.SupportsFanMode("auto") || !set.SupportsFanMode("on") {
		t.Errorf("FanModes = %v, want auto and on", set.FanModes)
	}

	if !set.CirculatingFan.Capable {
		t.Fatal("expected circulating fan to be capable")
	}
	if set.CirculatingFan.MinDutyCycle != 10 || set.CirculatingFan.MaxDutyCycle != 100 || set.CirculatingFan.Step != 5 {
		t.Errorf("CirculatingFan = %+v, want min=10 max=100 step=5", set.CirculatingFan)
	}

	if set.Humidification == nil || set.Humidification.Min != 5 || set.Humidification.Max != 50 {
		t.Errorf("Humidification = %+v, want min=5 max=50", set.Humidification)
	}
	if set.Dehumidification == nil || set.Dehumidification.Min != 40 || set.Dehumidification.Max != 95 {
		t.Errorf("Dehumidification = %+v, want min=40 max=95", set.Dehumidification)
	}

	if !set.SupportsToggle(ToggleContinuousBacklight) {
		t.Error("expected continuous_backlight toggle to be supported")
	}
	if set.SupportsToggle(ToggleDisplayTime) {
		t.Error("expected display_time toggle to be unsupported")
	}
}

func TestResolve_EmptyDocument(t *testing.T) {
	set := Resolve(Document{})

	if len(set.OperatingModes) != 0 {
		t.Errorf("OperatingModes = %v, want empty", set.OperatingModes)
	}
	if len(set.FanModes) != 0 {
		t.Errorf("FanModes = %v, want empty", set.FanModes)
	}
	if set.CirculatingFan.Capable {
		t.Error("expected circulating fan to be incapable")
	}
	if set.Humidification != nil || set.Dehumidification != nil {
		t.Error("expected nil humidity ranges")
	}
	if set.SupportsToggle(ToggleKeypadLockout) {
		t.Error("expected no toggles supported")
	}
}

func TestResolve_FanNotCapable(t *testing.T) {
	doc := Document{
		CirculatingFan: &CirculatingFanDocument{
			Capable:      "no",
			MinDutyCycle: 10,
			MaxDutyCycle: 100,
			Step:         5,
		},
	}

	set := Resolve(doc)
	if set.CirculatingFan.Capable {
		t.Error("expected circulating fan to be incapable when capable=no")
	}
	if set.CirculatingFan.MaxDutyCycle != 0 {
		t.Error("expected zero bounds for incapable fan")
	}
}

func TestResolve_HumidityDefaultStep(t *testing.T) {
	doc := Document{
		HumidityControl: &HumidityControlDocument{
			Humidification: &HumidityRangeDocument{Min: 5, Max: 50},
		},
	}

	set := Resolve(doc)
	if set.Humidification == nil {
		t.Fatal("expected humidification range")
	}
	if set.Humidification.Step != DefaultHumidityStep {
		t.Errorf("Step = %d, want default %d", set.Humidification.Step, DefaultHumidityStep)
	}
	if set.Dehumidification != nil {
		t.Error("expected nil dehumidification when absent")
	}
}
