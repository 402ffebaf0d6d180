package mount

import "mount_modeling/internal/models"

// Plausible weather ranges, exclusive. Readings outside are never sent.
const (
	minPressureHPa     = 900.0
	maxPressureHPa     = 1100.0
	minTemperatureC    = -30.0
	maxTemperatureC    = 35.0
	trackingStatusCode = 0
)

// Weather is one environment reading.
type Weather struct {
	TemperatureC float64
	PressureHPa  float64
}

// WeatherSource provides the current reading; ok is false when none is available.
type WeatherSource interface {
	Weather() (w Weather, ok bool)
}

// StaticWeather always reports the configured values.
type StaticWeather Weather

func (s StaticWeather) Weather() (Weather, bool) { return Weather(s), true }

// RefractionPolicy selects when refraction corrections are pushed.
type RefractionPolicy struct {
	// Auto pushes on every medium status cycle.
	Auto bool
	// WhenNotTracking pushes only while the mount is not tracking.
	WhenNotTracking bool
}

// RefractionCommands returns the pressure and temperature commands for this
// cycle, or nil when the policy does not apply or the reading is implausible.
func RefractionCommands(policy RefractionPolicy, source WeatherSource, st models.MountStatus) []Command {
	due := policy.Auto || (policy.WhenNotTracking && st.Status != trackingStatusCode)
	if !due || source == nil {
		return nil
	}
	w, ok := source.Weather()
	if !ok {
		return nil
	}
	if !(w.PressureHPa > minPressureHPa && w.PressureHPa < maxPressureHPa) {
		return nil
	}
	if !(w.TemperatureC > minTemperatureC && w.TemperatureC < maxTemperatureC) {
		return nil
	}
	return []Command{
		SetRefractionPressure(w.PressureHPa),
		SetRefractionTemperature(w.TemperatureC),
	}
}
