package models

import "math"

// AlignmentPoint is one star of the mount's pointing model.
type AlignmentPoint struct {
	Index       int     `json:"index"`       // 1-based, as numbered by the mount
	HourAngle   float64 `json:"hour_angle"`  // hours
	Declination float64 `json:"declination"` // degrees
	RMSError    float64 `json:"rms_error"`   // arcsec
	ErrorAngle  float64 `json:"error_angle"` // degrees, 0 = north, 90 = east
}

// ErrorRA is the RA component of the point's error in arcsec.
func (p AlignmentPoint) ErrorRA() float64 {
	return p.RMSError * math.Sin(p.ErrorAngle*math.Pi/180)
}

// ErrorDec is the Dec component of the point's error in arcsec.
func (p AlignmentPoint) ErrorDec() float64 {
	return p.RMSError * math.Cos(p.ErrorAngle*math.Pi/180)
}

// AlignmentModel is a consistent read of the alignment store.
type AlignmentModel struct {
	Points        []AlignmentPoint `json:"points"`
	Names         []string         `json:"names"`
	ReportedCount int              `json:"reported_count"`
	Consistent    bool             `json:"consistent"`
}
