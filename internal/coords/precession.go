package coords

import "math"

// JulianDateJ2000 is the Julian date of the J2000.0 epoch.
const JulianDateJ2000 = 2451545.0

const arcsecToRad = math.Pi / (180 * 3600)

// precessionAngles returns zeta, z and theta (radians) for the epoch jd,
// IAU 1976 series measured from J2000.
func precessionAngles(jd float64) (zeta, z, theta float64) {
	t := (jd - JulianDateJ2000) / 36525
	t2, t3 := t*t, t*t*t
	zeta = (2306.2181*t + 0.30188*t2 + 0.017998*t3) * arcsecToRad
	z = (2306.2181*t + 1.09468*t2 + 0.018203*t3) * arcsecToRad
	theta = (2004.3109*t - 0.42665*t2 - 0.041833*t3) * arcsecToRad
	return zeta, z, theta
}

// Precess moves a J2000 position (RA hours, Dec degrees) to the epoch of jd.
func Precess(raHours, decDeg, jd float64) (float64, float64) {
	zeta, z, theta := precessionAngles(jd)
	ra0 := raHours * 15 * math.Pi / 180
	dec0 := decDeg * math.Pi / 180

	a := math.Cos(dec0) * math.Sin(ra0+zeta)
	b := math.Cos(theta)*math.Cos(dec0)*math.Cos(ra0+zeta) - math.Sin(theta)*math.Sin(dec0)
	c := math.Sin(theta)*math.Cos(dec0)*math.Cos(ra0+zeta) + math.Cos(theta)*math.Sin(dec0)

	ra := math.Atan2(a, b) + z
	dec := math.Asin(math.Max(-1, math.Min(1, c)))
	return NormalizeHours(ra * 180 / math.Pi / 15), ClampDeclination(dec * 180 / math.Pi)
}

// PrecessToJ2000 is the inverse of Precess.
func PrecessToJ2000(raHours, decDeg, jd float64) (float64, float64) {
	zeta, z, theta := precessionAngles(jd)
	ra := raHours*15*math.Pi/180 - z
	dec := decDeg * math.Pi / 180

	b := math.Cos(dec) * math.Cos(ra)
	a := math.Cos(dec) * math.Sin(ra)
	c := math.Sin(dec)

	x := math.Cos(theta)*b + math.Sin(theta)*c
	zc := -math.Sin(theta)*b + math.Cos(theta)*c

	ra0 := math.Atan2(a, x) - zeta
	dec0 := math.Asin(math.Max(-1, math.Min(1, zc)))
	return NormalizeHours(ra0 * 180 / math.Pi / 15), ClampDeclination(dec0 * 180 / math.Pi)
}

// PointingError returns the RA and Dec differences in arcseconds between the
// nominal and solved positions. The RA term is scaled by cos(dec) so both
// components are true sky distances.
func PointingError(raHours, decDeg, solvedRAHours, solvedDecDeg float64) (raArcsec, decArcsec float64) {
	dRA := solvedRAHours - raHours
	// shortest way around the 0h/24h seam
	switch {
	case dRA > 12:
		dRA -= 24
	case dRA < -12:
		dRA += 24
	}
	raArcsec = dRA * 15 * 3600 * math.Cos(decDeg*math.Pi/180)
	decArcsec = (solvedDecDeg - decDeg) * 3600
	return raArcsec, decArcsec
}
