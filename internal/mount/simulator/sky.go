package simulator

import (
	"math"
	"time"

	"mount_modeling/internal/coords"

	"github.com/joshuaferrara/go-satellite"
)

const deg = math.Pi / 180

// julianDate returns the Julian date of t including the sub-second part.
func julianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	return jd + float64(t.Nanosecond())/1e9/86400
}

// localSiderealTime returns the local sidereal time in hours for a site at
// longitude (degrees, east positive).
func localSiderealTime(jd, longitude float64) float64 {
	gmst := satellite.ThetaG_JD(jd) / deg / 15
	return coords.NormalizeHours(gmst + longitude/15)
}

// altAzToEquatorial converts horizon coordinates (azimuth from north through
// east) to RA hours / Dec degrees.
func altAzToEquatorial(az, alt, lat, lst float64) (ra, dec float64) {
	sinDec := math.Sin(alt*deg)*math.Sin(lat*deg) + math.Cos(alt*deg)*math.Cos(lat*deg)*math.Cos(az*deg)
	sinDec = math.Max(-1, math.Min(1, sinDec))
	d := math.Asin(sinDec)

	y := -math.Sin(az*deg) * math.Cos(alt*deg)
	x := math.Sin(alt*deg)*math.Cos(lat*deg) - math.Cos(alt*deg)*math.Sin(lat*deg)*math.Cos(az*deg)
	ha := math.Atan2(y, x) / deg / 15

	return coords.NormalizeHours(lst - ha), d / deg
}

// equatorialToAltAz is the inverse of altAzToEquatorial.
func equatorialToAltAz(ra, dec, lat, lst float64) (az, alt float64) {
	ha := (lst - ra) * 15 * deg
	sinAlt := math.Sin(dec*deg)*math.Sin(lat*deg) + math.Cos(dec*deg)*math.Cos(lat*deg)*math.Cos(ha)
	sinAlt = math.Max(-1, math.Min(1, sinAlt))
	alt = math.Asin(sinAlt) / deg

	y := -math.Sin(ha) * math.Cos(dec*deg)
	x := math.Sin(dec*deg)*math.Cos(lat*deg) - math.Cos(dec*deg)*math.Sin(lat*deg)*math.Cos(ha)
	az = math.Mod(math.Atan2(y, x)/deg+360, 360)
	return az, alt
}

// hourAngle returns lst-ra folded into [-12,12).
func hourAngle(ra, lst float64) float64 {
	ha := coords.NormalizeHours(lst - ra)
	if ha >= 12 {
		ha -= 24
	}
	return ha
}
