package simulator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mount_modeling/internal/coords"
)

const (
	firmwareNumber = "2.15.1"
	firmwareDate   = "Mar 01 2024"
	firmwareTime   = "10:00:00"
	productName    = "10micron GM1000HPS"
	maxTimeToFlip  = 999
)

// Reply answers one command line, which may chain several ":xx#" requests.
func (s *Simulator) Reply(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, text)
	s.advance(s.now())

	var b strings.Builder
	for _, seg := range strings.Split(text, "#") {
		if seg == "" {
			continue
		}
		if seg[0] != ':' {
			s.log.Debugw("simulator_bad_segment", "segment", seg)
			continue
		}
		b.WriteString(s.answer(seg[1:]))
	}
	return b.String()
}

// answer handles one request without its leading ':' and trailing '#'.
func (s *Simulator) answer(req string) string {
	switch req {
	case "GMs":
		return fmt.Sprintf("%02d#", defaultSlewRate)
	case "Gmte":
		return fmt.Sprintf("%03d#", s.timeToFlip())
	case "Glmt":
		return fmt.Sprintf("%03d#", defaultLimitTrack)
	case "Glms":
		return fmt.Sprintf("%03d#", defaultLimitSlew)
	case "GRTMP":
		return fmt.Sprintf("%+05.1f#", s.temperature)
	case "GRPRS":
		return fmt.Sprintf("%06.1f#", s.pressure)
	case "U2":
		return ""
	case "GS":
		return coords.FormatHourAngle(s.lst()) + "#"
	case "Ginfo":
		return s.info()
	case "GVN":
		return firmwareNumber + "#"
	case "GVD":
		return firmwareDate + "#"
	case "GVT":
		return firmwareTime + "#"
	case "GVP":
		return productName + "#"
	case "Gt":
		return coords.FormatSignedDegrees(s.cfg.Latitude) + "#"
	case "Gg":
		return coords.FormatLongitude(s.cfg.Longitude) + "#"
	case "Gev":
		return fmt.Sprintf("%+07.1f#", s.cfg.Elevation)
	case "getalst":
		return fmt.Sprintf("%d#", len(s.stars))
	case "modelcnt":
		return fmt.Sprintf("%d#", len(s.models))
	case "delalig":
		s.stars = nil
		return "V#"
	case "newalig":
		s.session = nil
		s.attempts = 0
		s.sessionOpen = true
		return "V#"
	case "endalig":
		return s.endAlignment()
	case "MA":
		return s.startSlew()
	case "AP":
		s.tracking = true
		return ""
	case "RT9":
		s.tracking = false
		return ""
	case "PO":
		s.parked = false
		return ""
	}

	switch {
	case strings.HasPrefix(req, "getalp"):
		return s.starInfo(strings.TrimPrefix(req, "getalp"))
	case strings.HasPrefix(req, "modelnam"):
		n, err := strconv.Atoi(strings.TrimPrefix(req, "modelnam"))
		if err != nil || n < 1 || n > len(s.models) {
			return "#"
		}
		return s.models[n-1].name + "#"
	case strings.HasPrefix(req, "delalst"):
		n, err := strconv.Atoi(strings.TrimPrefix(req, "delalst"))
		if err != nil || n < 1 || n > len(s.stars) {
			return "0#"
		}
		s.stars = append(s.stars[:n-1:n-1], s.stars[n:]...)
		return "1#"
	case strings.HasPrefix(req, "modelsv0"):
		s.saveModel(strings.TrimPrefix(req, "modelsv0"))
		return "1#"
	case strings.HasPrefix(req, "modelld0"):
		return s.loadModel(strings.TrimPrefix(req, "modelld0"))
	case strings.HasPrefix(req, "newalpt"):
		return s.addPoint(strings.TrimPrefix(req, "newalpt"))
	case strings.HasPrefix(req, "Sz"):
		v, ok := parseTarget(strings.TrimPrefix(req, "Sz"))
		if !ok || v < 0 || v >= 360 {
			return "0"
		}
		s.targetAz = v
		return "1"
	case strings.HasPrefix(req, "Sa"):
		v, ok := parseTarget(strings.TrimPrefix(req, "Sa"))
		if !ok || v < -90 || v > 90 {
			return "0"
		}
		s.targetAlt = v
		return "1"
	case strings.HasPrefix(req, "SRPRS"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(req, "SRPRS"), 64)
		if err != nil {
			return "0"
		}
		s.pressure = v
		return "1"
	case strings.HasPrefix(req, "SRTMP"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(req, "SRTMP"), 64)
		if err != nil {
			return "0"
		}
		s.temperature = v
		return "1"
	}
	s.log.Debugw("simulator_unknown_command", "request", req)
	return ""
}

func (s *Simulator) lst() float64 {
	return localSiderealTime(julianDate(s.now()), s.cfg.Longitude)
}

func (s *Simulator) statusCode() int {
	switch {
	case s.slewing:
		return codeSlewing
	case s.parked:
		return codeParked
	case s.tracking:
		return codeTracking
	default:
		return codeNotTracking
	}
}

func (s *Simulator) pierside() string {
	if hourAngle(s.ra, s.lst()) < 0 {
		return "W"
	}
	return "E"
}

func (s *Simulator) info() string {
	slewing := 0
	if s.slewing {
		slewing = 1
	}
	return fmt.Sprintf("%.5f,%+.4f,%s,%.4f,%.4f,%.8f,%d,%d#",
		s.ra, s.dec, s.pierside(), s.az, s.alt, julianDate(s.now()), s.statusCode(), slewing)
}

// timeToFlip is the minutes left until the tracking meridian limit.
func (s *Simulator) timeToFlip() int {
	ha := hourAngle(s.ra, s.lst())
	minutes := (float64(defaultLimitTrack)/15 - ha) * 60
	return int(math.Max(0, math.Min(maxTimeToFlip, minutes)))
}

func (s *Simulator) startSlew() string {
	if s.targetAlt < 0 {
		return "1"
	}
	s.parked = false
	s.slewing = true
	s.slewEnd = s.now().Add(s.cfg.SlewDuration)
	if s.cfg.SlewDuration == 0 {
		s.advance(s.now())
	}
	return "0"
}

// parseTarget decodes "ddd*mm" or "+dd*mm" into degrees.
func parseTarget(v string) (float64, bool) {
	sign := 1.0
	if strings.HasPrefix(v, "-") {
		sign = -1
	}
	v = strings.TrimLeft(v, "+-")
	d, m, ok := strings.Cut(v, "*")
	if !ok {
		return 0, false
	}
	dv, err1 := strconv.Atoi(d)
	mv, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || mv < 0 || mv >= 60 {
		return 0, false
	}
	return sign * (float64(dv) + float64(mv)/60), true
}

func (s *Simulator) starInfo(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.stars) {
		return "E#"
	}
	st := s.stars[n-1]
	return fmt.Sprintf("%s,%s,%06.1f,%03d#",
		coords.FormatHourAngle(st.ha),
		coords.FormatSignedDegrees(st.dec),
		math.Min(st.rms, 9999.9),
		int(math.Round(st.angle))%360,
	)
}

// addPoint accepts "ra,dec,pier,solvedRa,solvedDec,lst".
func (s *Simulator) addPoint(arg string) string {
	if !s.sessionOpen {
		return "E#"
	}
	f := strings.Split(arg, ",")
	if len(f) != 6 {
		return "E#"
	}
	ra, err1 := coords.ParseHourAngle(f[0])
	dec, err2 := coords.ParseSignedDegrees(f[1])
	sra, err3 := coords.ParseHourAngle(f[3])
	sdec, err4 := coords.ParseSignedDegrees(f[4])
	lst, err5 := coords.ParseHourAngle(f[5])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return "E#"
	}
	if f[2] != "E" && f[2] != "W" {
		return "E#"
	}
	s.attempts++
	if s.cfg.RejectPoint != nil && s.cfg.RejectPoint(s.attempts) {
		return "E#"
	}
	n := len(s.session) + 1

	dRA, dDec := coords.PointingError(ra, dec, sra, sdec)
	angle := math.Mod(math.Atan2(dRA, dDec)/deg+360, 360)
	s.session = append(s.session, star{
		ha:    hourAngle(ra, lst),
		dec:   dec,
		rms:   math.Hypot(dRA, dDec),
		angle: angle,
	})
	return fmt.Sprintf("%03d#", n)
}

func (s *Simulator) endAlignment() string {
	if !s.sessionOpen {
		return "E#"
	}
	s.sessionOpen = false
	if len(s.session) < s.cfg.MinModelStars {
		s.session = nil
		return "E#"
	}
	s.stars = s.session
	s.session = nil
	return "V#"
}

func (s *Simulator) saveModel(name string) {
	stars := append([]star(nil), s.stars...)
	for i := range s.models {
		if s.models[i].name == name {
			s.models[i].stars = stars
			return
		}
	}
	s.models = append(s.models, savedModel{name: name, stars: stars})
}

func (s *Simulator) loadModel(name string) string {
	for _, m := range s.models {
		if m.name == name {
			s.stars = append([]star(nil), m.stars...)
			return "1#"
		}
	}
	return "0#"
}
