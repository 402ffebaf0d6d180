// Package mount drives the telescope mount over its ASCII TCP protocol.
//
// A Link owns the connection. Every command goes through one FIFO queue and
// at most one command is on the wire at a time; periodic status polling uses
// the same queue, so housekeeping and orchestrator commands never interleave
// on the socket.
package mount

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mount_modeling/internal/alignment"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/models"
	"mount_modeling/internal/observability"
)

// State of the connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

var (
	ErrNotConnected = errors.New("mount not connected")
	ErrReplyTimeout = errors.New("mount reply timeout")
	ErrQueueCleared = errors.New("mount command queue cleared")
	ErrLinkStopped  = errors.New("mount link stopped")
)

const (
	defaultConnectTimeout    = 2 * time.Second
	defaultReplyTimeout      = 5 * time.Second
	defaultCommandInterval   = 200 * time.Millisecond
	defaultReconnectInterval = 3 * time.Second
	defaultMediumInterval    = 3 * time.Second
	defaultFastInterval      = 1 * time.Second
	defaultAlignmentInterval = 10 * time.Second

	readChunk = 1024
)

// Options configures a Link. Zero durations take defaults; a negative poll
// interval disables that poll.
type Options struct {
	Address           string
	ConnectTimeout    time.Duration
	ReplyTimeout      time.Duration
	CommandInterval   time.Duration
	ReconnectInterval time.Duration
	MediumInterval    time.Duration
	FastInterval      time.Duration
	AlignmentInterval time.Duration

	Refraction RefractionPolicy
	Weather    WeatherSource

	Logger  *logger.Logger
	Metrics *observability.Collector

	// OnConnectionChange is called from the link goroutine; it must not block.
	OnConnectionChange func(connected bool)
}

func (o *Options) applyDefaults() {
	setDefault(&o.ConnectTimeout, defaultConnectTimeout)
	setDefault(&o.ReplyTimeout, defaultReplyTimeout)
	setDefault(&o.CommandInterval, defaultCommandInterval)
	setDefault(&o.ReconnectInterval, defaultReconnectInterval)
	setDefault(&o.MediumInterval, defaultMediumInterval)
	setDefault(&o.FastInterval, defaultFastInterval)
	setDefault(&o.AlignmentInterval, defaultAlignmentInterval)
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

type result struct {
	reply string
	err   error
}

// pending is a queued command. done is nil for fire-and-forget commands.
type pending struct {
	cmd       Command
	done      chan result
	abandoned atomic.Bool
}

type readEvent struct {
	conn net.Conn
	data []byte
	err  error
}

// Link is the mount connection driver.
type Link struct {
	opts    Options
	log     *logger.Logger
	metrics *observability.Collector
	status  *StatusStore
	align   *alignment.Store

	state   atomic.Int32
	stopped chan struct{}

	mu    sync.Mutex
	queue []*pending

	// owned by the Run goroutine
	conn        net.Conn
	connDone    chan struct{}
	buf         FrameBuffer
	inflight    *pending
	deadline    time.Time
	reads       chan readEvent
	lastDialErr string
}

// NewLink builds a link writing telemetry into status and the alignment mirror into align.
func NewLink(opts Options, status *StatusStore, align *alignment.Store) *Link {
	opts.applyDefaults()
	if status == nil {
		status = NewStatusStore(opts.Logger, opts.Metrics)
	}
	if align == nil {
		align = alignment.NewStore()
	}
	return &Link{
		opts:    opts,
		log:     opts.Logger.Named("mount"),
		metrics: opts.Metrics,
		status:  status,
		align:   align,
		stopped: make(chan struct{}),
		reads:   make(chan readEvent, 16),
	}
}

// State returns the current connection state.
func (l *Link) State() State { return State(l.state.Load()) }

func (l *Link) setState(s State) { l.state.Store(int32(s)) }

// Status returns a snapshot of the mount telemetry.
func (l *Link) Status() models.MountStatus { return l.status.Snapshot() }

// Alignment returns the in-memory mirror of the mount's alignment model.
func (l *Link) Alignment() *alignment.Store { return l.align }

// Pending is the number of queued commands not yet on the wire.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Enqueue appends a fire-and-forget command. If the link does not get it on
// the wire before the next reconnect attempt, it is dropped with a warning.
func (l *Link) Enqueue(cmd Command) {
	l.push(&pending{cmd: cmd})
}

// Send queues cmd and waits for its reply.
func (l *Link) Send(ctx context.Context, cmd Command) (string, error) {
	p := &pending{cmd: cmd, done: make(chan result, 1)}
	l.push(p)
	select {
	case r := <-p.done:
		return r.reply, r.err
	case <-ctx.Done():
		p.abandoned.Store(true)
		return "", ctx.Err()
	case <-l.stopped:
		return "", ErrLinkStopped
	}
}

func (l *Link) push(p *pending) {
	l.mu.Lock()
	l.queue = append(l.queue, p)
	n := len(l.queue)
	l.mu.Unlock()
	l.metrics.SetQueueDepth(n)
}

// pop returns the oldest command still wanted by its caller.
func (l *Link) pop() *pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) > 0 {
		p := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		if !p.abandoned.Load() {
			l.metrics.SetQueueDepth(len(l.queue))
			return p
		}
	}
	l.metrics.SetQueueDepth(0)
	return nil
}

// clearQueue fails every queued command with reason and returns how many were dropped.
func (l *Link) clearQueue(reason error) int {
	l.mu.Lock()
	dropped := l.queue
	l.queue = nil
	l.mu.Unlock()
	l.metrics.SetQueueDepth(0)

	for _, p := range dropped {
		l.log.Warnw("mount_command_dropped", "command", p.cmd.Text, "reason", reason)
		l.finish(p, "", reason)
	}
	l.metrics.AddCommands(observability.CommandDropped, len(dropped))
	return len(dropped)
}

func (l *Link) finish(p *pending, reply string, err error) {
	if p.done != nil {
		p.done <- result{reply: reply, err: err}
	}
}

// Run drives the connection until ctx is cancelled: reconnect attempts on a
// fixed interval while disconnected, one queued command per command tick,
// and the status polls on their own tickers.
func (l *Link) Run(ctx context.Context) {
	defer close(l.stopped)

	commandTicker := time.NewTicker(l.opts.CommandInterval)
	reconnectTicker := time.NewTicker(l.opts.ReconnectInterval)
	defer func() {
		commandTicker.Stop()
		reconnectTicker.Stop()
	}()

	polls := l.startPolls(ctx)
	defer polls.Wait()

	l.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			l.dropConnection(ErrLinkStopped)
			l.clearQueue(ErrLinkStopped)
			l.log.Infow("mount_link_stopped")
			return
		case <-reconnectTicker.C:
			if l.State() == Disconnected {
				l.connect(ctx)
			}
		case <-commandTicker.C:
			l.sendNext()
		case ev := <-l.reads:
			l.handleRead(ev)
		}
	}
}

func (l *Link) connect(ctx context.Context) {
	l.setState(Connecting)
	// a fresh session must not replay commands meant for the old one
	l.clearQueue(ErrQueueCleared)
	l.metrics.IncReconnect()

	dialCtx, cancel := context.WithTimeout(ctx, l.opts.ConnectTimeout)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", l.opts.Address)
	cancel()
	if err != nil {
		l.setState(Disconnected)
		if msg := err.Error(); msg != l.lastDialErr {
			l.lastDialErr = msg
			l.log.Warnw("mount_connect_failed", "addr", l.opts.Address, "err", err)
		}
		return
	}
	l.lastDialErr = ""

	l.conn = conn
	l.connDone = make(chan struct{})
	l.buf.Reset()
	l.inflight = nil
	go l.readLoop(conn, l.connDone)

	l.setState(Connected)
	l.status.setConnected(true)
	l.metrics.SetConnected(true)
	l.log.Infow("mount_connected", "addr", l.opts.Address)
	l.notify(true)

	go l.queryIdentity(ctx)
}

func (l *Link) notify(connected bool) {
	if l.opts.OnConnectionChange != nil {
		l.opts.OnConnectionChange(connected)
	}
}

func (l *Link) readLoop(conn net.Conn, done <-chan struct{}) {
	chunk := make([]byte, readChunk)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			data := append([]byte(nil), chunk[:n]...)
			select {
			case l.reads <- readEvent{conn: conn, data: data}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case l.reads <- readEvent{conn: conn, err: err}:
			case <-done:
			}
			return
		}
	}
}

func (l *Link) handleRead(ev readEvent) {
	if ev.conn != l.conn {
		return // from a connection already replaced
	}
	if ev.err != nil {
		l.dropConnection(fmt.Errorf("read: %w", ev.err))
		return
	}
	l.buf.Feed(ev.data)
	l.completeInflight()
}

func (l *Link) completeInflight() {
	if l.inflight == nil {
		return
	}
	reply, ok := l.buf.Next(l.inflight.cmd.Reply)
	if !ok {
		return
	}
	p := l.inflight
	l.inflight = nil
	l.finish(p, reply, nil)
}

// sendNext puts one queued command on the wire if nothing is outstanding.
func (l *Link) sendNext() {
	if l.State() != Connected {
		return
	}
	now := time.Now()
	if l.inflight != nil {
		if now.After(l.deadline) {
			p := l.inflight
			l.inflight = nil
			l.metrics.IncCommand(observability.CommandTimeout)
			l.finish(p, "", fmt.Errorf("%w: %s", ErrReplyTimeout, p.cmd.Text))
			// the stream position is unknown now, start over
			l.dropConnection(fmt.Errorf("%w: %s", ErrReplyTimeout, p.cmd.Text))
		}
		return
	}

	p := l.pop()
	if p == nil {
		return
	}
	_ = l.conn.SetWriteDeadline(now.Add(l.opts.ReplyTimeout))
	if _, err := l.conn.Write([]byte(p.cmd.Text + "\r")); err != nil {
		l.finish(p, "", fmt.Errorf("%w: write %s: %v", ErrNotConnected, p.cmd.Text, err))
		l.dropConnection(fmt.Errorf("write: %w", err))
		return
	}
	l.metrics.IncCommand(observability.CommandSent)
	l.log.Debugw("mount_command_sent", "command", p.cmd.Text)

	if p.cmd.Reply.Kind == ReplyNone {
		l.finish(p, "", nil)
		return
	}
	l.inflight = p
	l.deadline = now.Add(l.opts.ReplyTimeout)
	l.completeInflight()
}

// dropConnection closes the socket, fails everything pending and reports the
// disconnect. The reconnect ticker takes it from here.
func (l *Link) dropConnection(reason error) {
	if l.conn == nil {
		l.setState(Disconnected)
		return
	}
	close(l.connDone)
	_ = l.conn.Close()
	l.conn = nil
	l.buf.Reset()

	if l.inflight != nil {
		l.finish(l.inflight, "", fmt.Errorf("%w: %v", ErrNotConnected, reason))
		l.inflight = nil
	}
	dropped := l.clearQueue(ErrNotConnected)

	l.setState(Disconnected)
	l.status.setConnected(false)
	l.metrics.SetConnected(false)
	l.log.Warnw("mount_disconnected", "reason", reason, "dropped", dropped)
	l.notify(false)
}
