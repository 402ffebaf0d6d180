package mount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mount_modeling/internal/coords"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/observability"
)

// ErrShortFrame is returned when a reply holds fewer fields than required.
var ErrShortFrame = errors.New("status frame has too few fields")

// StatusStore owns the MountStatus record. Only the link writes to it; every
// write applies the decoded fields of one reply under a single lock so
// readers never see half a frame.
type StatusStore struct {
	mu      sync.RWMutex
	st      models.MountStatus
	log     *logger.Logger
	metrics *observability.Collector
	now     func() time.Time
}

func NewStatusStore(log *logger.Logger, metrics *observability.Collector) *StatusStore {
	return &StatusStore{
		log:     log.Named("status"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Snapshot returns a copy of the current record.
func (s *StatusStore) Snapshot() models.MountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *StatusStore) update(fn func(st *models.MountStatus)) {
	s.mu.Lock()
	fn(&s.st)
	s.st.UpdatedAt = s.now().UTC()
	s.mu.Unlock()
}

func (s *StatusStore) setConnected(up bool) {
	s.update(func(st *models.MountStatus) {
		st.Connected = up
		if !up {
			st.Slewing = false
		}
	})
}

func (s *StatusStore) setAlignmentStars(n int) {
	s.update(func(st *models.MountStatus) { st.AlignmentStars = n })
}

// field is one decoded telemetry value; ok is false when the wire field was
// empty or undecodable, in which case the previous value is kept.
type field[T any] struct {
	v  T
	ok bool
}

func (f field[T]) apply(dst *T) {
	if f.ok {
		*dst = f.v
	}
}

// decoder decodes the fields of one frame independently and remembers which failed.
type decoder struct {
	store *StatusStore
	errs  []error
}

func decode[T any](d *decoder, name, raw string, parse func(string) (T, error)) field[T] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return field[T]{}
	}
	v, err := parse(raw)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("%s %q: %w", name, raw, err))
		d.store.metrics.IncParseFailure(name)
		d.store.log.Warnw("status_field_parse_failed", "field", name, "raw", raw, "err", err)
		return field[T]{}
	}
	return field[T]{v: v, ok: true}
}

func (d *decoder) err() error { return errors.Join(d.errs...) }

// parseWholeNumber accepts "045" as well as "45.0" and truncates.
func parseWholeNumber(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseString(s string) (string, error) { return s, nil }

func parseSlewFlag(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, errors.New("not a flag")
}

func parsePierside(s string) (string, error) {
	switch strings.ToUpper(s) {
	case models.PierEast:
		return models.PierEast, nil
	case models.PierWest:
		return models.PierWest, nil
	}
	return "", errors.New("unknown pier side")
}

// splitFields strips the trailing terminator and splits on '#'.
func splitFields(reply string) []string {
	return strings.Split(strings.TrimSuffix(reply, "#"), "#")
}

// ApplyMedium decodes the 28-byte combined status reply
// [SlewRate, TimeToFlip, MeridianLimitTrack, MeridianLimitSlew, RefractionTemperature, RefractionPressure].
// Empty fields keep their previous value, bad fields are logged and kept too.
func (s *StatusStore) ApplyMedium(frame string) error {
	fields := splitFields(frame)
	if len(fields) < 4 {
		s.log.Warnw("status_medium_short_frame", "fields", len(fields), "frame", frame)
		return fmt.Errorf("%w: medium %q", ErrShortFrame, frame)
	}
	for len(fields) < 6 {
		fields = append(fields, "")
	}

	d := &decoder{store: s}
	slewRate := decode(d, "SlewRate", fields[0], parseWholeNumber)
	timeToFlip := decode(d, "TimeToFlip", fields[1], parseWholeNumber)
	limitTrack := decode(d, "MeridianLimitTrack", fields[2], parseWholeNumber)
	limitSlew := decode(d, "MeridianLimitSlew", fields[3], parseWholeNumber)
	temperature := decode(d, "RefractionTemperature", fields[4], parseFloat)
	pressure := decode(d, "RefractionPressure", fields[5], parseFloat)

	s.update(func(st *models.MountStatus) {
		slewRate.apply(&st.SlewRate)
		timeToFlip.apply(&st.TimeToFlip)
		limitTrack.apply(&st.MeridianLimitTrack)
		limitSlew.apply(&st.MeridianLimitSlew)
		temperature.apply(&st.RefractionTemperature)
		pressure.apply(&st.RefractionPressure)
		st.TimeToMeridian = int(float64(st.TimeToFlip) - float64(st.MeridianLimitTrack)/360*24*60)
	})
	return d.err()
}

// ApplyFast decodes "LST#ra,dec,pier,az,alt,jd,status,slewing#" where RA is
// decimal hours of date and Dec decimal degrees of date. J2000 coordinates are
// derived by precession.
func (s *StatusStore) ApplyFast(reply string) error {
	parts := splitFields(reply)
	if len(parts) < 2 {
		s.log.Warnw("status_fast_short_frame", "reply", reply)
		return fmt.Errorf("%w: fast %q", ErrShortFrame, reply)
	}
	info := strings.Split(parts[1], ",")
	if len(info) < 8 {
		s.log.Warnw("status_fast_short_frame", "reply", reply)
		return fmt.Errorf("%w: fast info %q", ErrShortFrame, parts[1])
	}

	d := &decoder{store: s}
	lst := decode(d, "LocalSiderealTime", parts[0], coords.ParseHourAngle)
	ra := decode(d, "RaJNow", info[0], parseFloat)
	dec := decode(d, "DecJNow", info[1], parseFloat)
	pier := decode(d, "Pierside", info[2], parsePierside)
	az := decode(d, "Azimuth", info[3], parseFloat)
	alt := decode(d, "Altitude", info[4], parseFloat)
	jd := decode(d, "JulianDate", info[5], parseFloat)
	code := decode(d, "Status", info[6], parseWholeNumber)
	slewing := decode(d, "Slewing", info[7], parseSlewFlag)

	s.update(func(st *models.MountStatus) {
		lst.apply(&st.LocalSiderealTime)
		if ra.ok {
			st.RaJNow = coords.NormalizeHours(ra.v)
		}
		if dec.ok {
			st.DecJNow = coords.ClampDeclination(dec.v)
		}
		pier.apply(&st.Pierside)
		az.apply(&st.Azimuth)
		alt.apply(&st.Altitude)
		jd.apply(&st.JulianDate)
		code.apply(&st.Status)
		slewing.apply(&st.Slewing)
		if (ra.ok || dec.ok) && st.JulianDate > 0 {
			st.RaJ2000, st.DecJ2000 = coords.PrecessToJ2000(st.RaJNow, st.DecJNow, st.JulianDate)
		}
	})
	return d.err()
}

// ApplyFirmware decodes the four-field firmware reply (number, date, time, product).
func (s *StatusStore) ApplyFirmware(reply string) error {
	fields := splitFields(reply)
	if len(fields) < 4 {
		return fmt.Errorf("%w: firmware %q", ErrShortFrame, reply)
	}
	d := &decoder{store: s}
	number := decode(d, "FirmwareNumber", fields[0], parseString)
	date := decode(d, "FirmwareDate", fields[1], parseString)
	tod := decode(d, "FirmwareTime", fields[2], parseString)
	product := decode(d, "ProductName", fields[3], parseString)

	s.update(func(st *models.MountStatus) {
		number.apply(&st.FirmwareNumber)
		date.apply(&st.FirmwareDate)
		tod.apply(&st.FirmwareTime)
		product.apply(&st.ProductName)
	})
	return d.err()
}

// ApplySite decodes latitude, longitude and elevation.
func (s *StatusStore) ApplySite(reply string) error {
	fields := splitFields(reply)
	if len(fields) < 3 {
		return fmt.Errorf("%w: site %q", ErrShortFrame, reply)
	}
	d := &decoder{store: s}
	lat := decode(d, "SiteLatitude", fields[0], coords.ParseSignedDegrees)
	lon := decode(d, "SiteLongitude", fields[1], coords.ParseSignedDegrees)
	elev := decode(d, "SiteElevation", fields[2], parseFloat)

	s.update(func(st *models.MountStatus) {
		lat.apply(&st.SiteLatitude)
		lon.apply(&st.SiteLongitude)
		elev.apply(&st.SiteElevation)
	})
	return d.err()
}
