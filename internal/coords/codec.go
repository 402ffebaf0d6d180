// Package coords converts between the mount's fixed-format angle strings
// and numeric hours/degrees, and moves equatorial coordinates between
// the J2000 and of-date epochs.
package coords

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned (wrapped) whenever a wire string cannot be decoded.
// Callers treat it as "value unavailable", never as zero.
var ErrInvalidFormat = errors.New("invalid coordinate format")

const (
	fieldSeparator  = ":"
	degreeSeparator = "*"
	expectedFields  = 3
)

// ParseHourAngle decodes "HH:MM:SS.SS" into decimal hours.
func ParseHourAngle(s string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(s), fieldSeparator)
	if len(fields) != expectedFields {
		return 0, fmt.Errorf("%w: %q: want %d fields, got %d", ErrInvalidFormat, s, expectedFields, len(fields))
	}
	v, err := sexagesimal(fields)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	return v, nil
}

// ParseSignedDegrees decodes "±dd*mm:ss.s" into decimal degrees.
// The colon-only spelling "±dd:mm:ss.s" and a missing sign (positive) are accepted too.
func ParseSignedDegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidFormat)
	}
	if n := strings.Count(s, degreeSeparator); n > 1 {
		return 0, fmt.Errorf("%w: %q: %d degree separators", ErrInvalidFormat, s, n)
	}

	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	// the degree separator is only legal right after the degrees field
	if i := strings.Index(s, degreeSeparator); i >= 0 && strings.Contains(s[:i], fieldSeparator) {
		return 0, fmt.Errorf("%w: %q: misplaced degree separator", ErrInvalidFormat, s)
	}

	fields := strings.Split(strings.Replace(s, degreeSeparator, fieldSeparator, 1), fieldSeparator)
	if len(fields) != expectedFields {
		return 0, fmt.Errorf("%w: %q: want %d fields, got %d", ErrInvalidFormat, s, expectedFields, len(fields))
	}
	v, err := sexagesimal(fields)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	return sign * v, nil
}

// sexagesimal folds three unsigned numeric fields into one value.
func sexagesimal(fields []string) (float64, error) {
	var parts [expectedFields]float64
	for i, f := range fields {
		if f == "" || f[0] == '+' || f[0] == '-' {
			return 0, fmt.Errorf("field %d %q is not an unsigned number", i+1, f)
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("field %d %q is not numeric", i+1, f)
		}
		parts[i] = v
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, nil
}

// FormatHourAngle renders hours as "HH:MM:SS.SS", normalized into [0,24).
func FormatHourAngle(hours float64) string {
	hundredths := int64(math.Round(NormalizeHours(hours) * 3600 * 100))
	hundredths %= 24 * 3600 * 100
	h := hundredths / (3600 * 100)
	m := hundredths % (3600 * 100) / (60 * 100)
	sec := float64(hundredths%(60*100)) / 100
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, sec)
}

// FormatSignedDegrees renders degrees as "±dd*mm:ss.s".
func FormatSignedDegrees(deg float64) string {
	return formatDMS(deg, 2)
}

// FormatLongitude renders degrees as "±ddd*mm:ss.s".
func FormatLongitude(deg float64) string {
	return formatDMS(deg, 3)
}

func formatDMS(deg float64, width int) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
		deg = -deg
	}
	tenths := int64(math.Round(deg * 3600 * 10))
	d := tenths / (3600 * 10)
	m := tenths % (3600 * 10) / (60 * 10)
	sec := float64(tenths%(60*10)) / 10
	if d == 0 && m == 0 && tenths%(60*10) == 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%0*d*%02d:%04.1f", sign, width, d, m, sec)
}

// NormalizeHours maps any hour value into [0,24).
func NormalizeHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// ClampDeclination limits a declination to [-90,90].
func ClampDeclination(d float64) float64 {
	return math.Max(-90, math.Min(90, d))
}
