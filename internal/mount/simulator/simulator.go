// Package simulator is a TCP stand-in for the mount. It speaks the subset of
// the protocol the link and the orchestrator use, keeps a moving sky
// position and an alignment model, and is used for dry runs and tests.
package simulator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"mount_modeling/internal/logger"
)

// ----------- Simulation constants -----------
const (
	DefaultSlewDuration  = 2 * time.Second
	DefaultTick          = 250 * time.Millisecond
	DefaultMinModelStars = 3

	defaultLatitude    = 48.1
	defaultLongitude   = 11.6
	defaultElevation   = 520.0
	defaultTemperature = 10.0
	defaultPressure    = 950.0
	defaultSlewRate    = 10
	defaultLimitTrack  = 3
	defaultLimitSlew   = 3
)

// Mount status codes reported in Ginfo.
const (
	codeTracking    = 0
	codeParked      = 5
	codeSlewing     = 6
	codeNotTracking = 7
)

// Config describes the simulated site and timing.
type Config struct {
	Address       string // listen address, "127.0.0.1:0" when empty
	Latitude      float64
	Longitude     float64 // east positive
	Elevation     float64
	SlewDuration  time.Duration
	Tick          time.Duration
	MinModelStars int
	// RejectPoint, when set, is asked for every newalpt attempt (1-based
	// within the session) and makes the mount answer 'E' when it returns true.
	RejectPoint func(n int) bool
	Logger      *logger.Logger
}

type star struct {
	ha, dec    float64 // hour angle hours, declination degrees
	rms, angle float64 // arcsec, degrees
}

type savedModel struct {
	name  string
	stars []star
}

// Simulator is a fake mount.
type Simulator struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu          sync.Mutex
	parked      bool
	tracking    bool
	slewing     bool
	slewEnd     time.Time
	targetAz    float64
	targetAlt   float64
	az, alt     float64
	ra, dec     float64 // of date
	temperature float64
	pressure    float64
	stars       []star
	session     []star
	sessionOpen bool
	attempts    int
	models      []savedModel
	received    []string

	ln    net.Listener
	conns sync.WaitGroup
}

// New returns a simulator parked at the celestial pole region of the site.
func New(cfg Config) *Simulator {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.Latitude == 0 && cfg.Longitude == 0 {
		cfg.Latitude, cfg.Longitude = defaultLatitude, defaultLongitude
	}
	if cfg.Elevation == 0 {
		cfg.Elevation = defaultElevation
	}
	if cfg.SlewDuration < 0 {
		cfg.SlewDuration = 0
	} else if cfg.SlewDuration == 0 {
		cfg.SlewDuration = DefaultSlewDuration
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.MinModelStars <= 0 {
		cfg.MinModelStars = DefaultMinModelStars
	}
	s := &Simulator{
		cfg:         cfg,
		log:         cfg.Logger.Named("simulator"),
		now:         time.Now,
		parked:      true,
		az:          0,
		alt:         cfg.Latitude,
		temperature: defaultTemperature,
		pressure:    defaultPressure,
	}
	s.advance(s.now())
	return s
}

// Start listens on the configured address and serves connections and the
// state loop until ctx is cancelled. It returns the bound address.
func (s *Simulator) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return "", err
	}
	s.ln = ln
	go s.Run(ctx, s.cfg.Tick)
	go s.acceptLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	s.log.Infow("simulator_listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Run ticks at the given interval until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.mu.Lock()
			s.advance(now)
			s.mu.Unlock()
		}
	}
}

// advance moves the simulated mount to time now. Caller holds mu (or owns s).
func (s *Simulator) advance(now time.Time) {
	lst := localSiderealTime(julianDate(now), s.cfg.Longitude)
	if s.slewing && !now.Before(s.slewEnd) {
		s.slewing = false
		s.az, s.alt = s.targetAz, s.targetAlt
		s.ra, s.dec = altAzToEquatorial(s.az, s.alt, s.cfg.Latitude, lst)
		return
	}
	if s.slewing {
		return
	}
	if s.tracking && !s.parked {
		s.az, s.alt = equatorialToAltAz(s.ra, s.dec, s.cfg.Latitude, lst)
	} else {
		s.ra, s.dec = altAzToEquatorial(s.az, s.alt, s.cfg.Latitude, lst)
	}
}

func (s *Simulator) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnw("simulator_accept_failed", "err", err)
			continue
		}
		s.conns.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *Simulator) serve(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()
	defer func() { _ = conn.Close() }()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}
		reply := s.Reply(cmd)
		if reply == "" {
			continue
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// Commands returns every command text received so far, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Stars is the number of stars in the active model.
func (s *Simulator) Stars() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stars)
}

// Tracking reports whether sidereal tracking is on.
func (s *Simulator) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}
