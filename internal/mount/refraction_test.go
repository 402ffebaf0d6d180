package mount

import (
	"testing"

	"mount_modeling/internal/models"
)

type noWeather struct{}

func (noWeather) Weather() (Weather, bool) { return Weather{}, false }

func TestRefractionCommands(t *testing.T) {
	good := StaticWeather{TemperatureC: 10, PressureHPa: 950}
	tracking := models.MountStatus{Status: 0}
	stopped := models.MountStatus{Status: 7}

	cases := []struct {
		name   string
		policy RefractionPolicy
		source WeatherSource
		status models.MountStatus
		want   int
	}{
		{"auto", RefractionPolicy{Auto: true}, good, tracking, 2},
		{"disabled", RefractionPolicy{}, good, stopped, 0},
		{"not_tracking_while_tracking", RefractionPolicy{WhenNotTracking: true}, good, tracking, 0},
		{"not_tracking_while_stopped", RefractionPolicy{WhenNotTracking: true}, good, stopped, 2},
		{"no_source", RefractionPolicy{Auto: true}, nil, tracking, 0},
		{"no_reading", RefractionPolicy{Auto: true}, noWeather{}, tracking, 0},
		{"pressure_low_edge", RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: 10, PressureHPa: 900}, tracking, 0},
		{"pressure_high_edge", RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: 10, PressureHPa: 1100}, tracking, 0},
		{"temperature_low_edge", RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: -30, PressureHPa: 950}, tracking, 0},
		{"temperature_high_edge", RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: 35, PressureHPa: 950}, tracking, 0},
		{"inside_edges", RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: -29.9, PressureHPa: 1099.9}, tracking, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefractionCommands(tc.policy, tc.source, tc.status)
			if len(got) != tc.want {
				t.Fatalf("got %d commands, want %d", len(got), tc.want)
			}
		})
	}
}

func TestRefractionCommandsOrder(t *testing.T) {
	cmds := RefractionCommands(RefractionPolicy{Auto: true}, StaticWeather{TemperatureC: -5, PressureHPa: 1013}, models.MountStatus{})
	if len(cmds) != 2 || cmds[0].Text != ":SRPRS1013.0#" || cmds[1].Text != ":SRTMP-005.0#" {
		t.Fatalf("unexpected commands %v", cmds)
	}
}
