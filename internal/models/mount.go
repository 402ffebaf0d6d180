package models

import "time"

// Pier sides as reported by the mount.
const (
	PierEast = "E"
	PierWest = "W"
)

// MountStatus is the telemetry snapshot of the mount.
// RA values are hours in [0,24), declinations degrees in [-90,90].
type MountStatus struct {
	Connected bool `json:"connected"`
	Slewing   bool `json:"slewing"`
	// Status is the mount's numeric state code (0 = tracking).
	Status int `json:"status"`

	ProductName    string `json:"product_name,omitempty"`
	FirmwareNumber string `json:"firmware_number,omitempty"`
	FirmwareDate   string `json:"firmware_date,omitempty"`
	FirmwareTime   string `json:"firmware_time,omitempty"`

	SiteLatitude  float64 `json:"site_latitude"`  // degrees, north positive
	SiteLongitude float64 `json:"site_longitude"` // degrees, east positive
	SiteElevation float64 `json:"site_elevation"` // meters

	RaJ2000           float64 `json:"ra_j2000"`
	DecJ2000          float64 `json:"dec_j2000"`
	RaJNow            float64 `json:"ra_jnow"`
	DecJNow           float64 `json:"dec_jnow"`
	Azimuth           float64 `json:"azimuth"`
	Altitude          float64 `json:"altitude"`
	Pierside          string  `json:"pierside,omitempty"`
	LocalSiderealTime float64 `json:"local_sidereal_time"` // hours
	JulianDate        float64 `json:"julian_date"`

	SlewRate              int     `json:"slew_rate"`
	TimeToFlip            int     `json:"time_to_flip"`           // minutes
	MeridianLimitTrack    int     `json:"meridian_limit_track"`   // degrees
	MeridianLimitSlew     int     `json:"meridian_limit_slew"`    // degrees
	TimeToMeridian        int     `json:"time_to_meridian"`       // minutes
	RefractionTemperature float64 `json:"refraction_temperature"` // °C
	RefractionPressure    float64 `json:"refraction_pressure"`    // hPa

	// AlignmentStars is the star count last reported by the mount itself.
	AlignmentStars int `json:"alignment_stars"`

	UpdatedAt time.Time `json:"updated_at"`
}
