package mount

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"mount_modeling/internal/mount/simulator"
)

func fastOptions(addr string) Options {
	return Options{
		Address:           addr,
		ConnectTimeout:    200 * time.Millisecond,
		ReplyTimeout:      500 * time.Millisecond,
		CommandInterval:   5 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
		MediumInterval:    -1,
		FastInterval:      -1,
		AlignmentInterval: -1,
	}
}

func startSimulator(t *testing.T, cfg simulator.Config) (*simulator.Simulator, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if cfg.SlewDuration == 0 {
		cfg.SlewDuration = -1
	}
	sim := simulator.New(cfg)
	addr, err := sim.Start(ctx)
	if err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	return sim, addr
}

func runLink(t *testing.T, opts Options) *Link {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLink(opts, nil, nil)
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sendCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLink_SendReceivesFramedReply(t *testing.T) {
	_, addr := startSimulator(t, simulator.Config{})
	l := runLink(t, fastOptions(addr))
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	reply, err := l.Send(sendCtx(t), StatusMedium())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(reply) != MediumFrameLen {
		t.Fatalf("medium reply %q has %d bytes", reply, len(reply))
	}
	if err := l.status.ApplyMedium(reply); err != nil {
		t.Fatalf("apply medium: %v", err)
	}
	if !l.Status().Connected {
		t.Fatal("status should report connected")
	}
}

func TestLink_IdentityQueriedOnConnect(t *testing.T) {
	_, addr := startSimulator(t, simulator.Config{})
	l := runLink(t, fastOptions(addr))
	waitFor(t, "firmware", func() bool { return l.Status().ProductName != "" })
	waitFor(t, "site", func() bool { return l.Status().SiteLatitude != 0 })
}

func TestLink_CommandsGoOutInOrder(t *testing.T) {
	sim, addr := startSimulator(t, simulator.Config{})
	l := runLink(t, fastOptions(addr))
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	l.Enqueue(Unpark())
	l.Enqueue(TrackingOff())
	l.Enqueue(TrackingOn())
	if _, err := l.Send(sendCtx(t), StarCount()); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := []string{":PO#", ":RT9#", ":AP#", ":getalst#"}
	next := 0
	for _, c := range sim.Commands() {
		if next < len(want) && c == want[next] {
			next++
		}
	}
	if next != len(want) {
		t.Fatalf("commands out of order: %v", sim.Commands())
	}
	if !sim.Tracking() {
		t.Fatal("tracking should be on after the last command")
	}
}

func TestLink_ReconnectAttemptClearsQueue(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	l := runLink(t, fastOptions(addr))
	_, err = l.Send(sendCtx(t), StarCount())
	if !errors.Is(err, ErrQueueCleared) {
		t.Fatalf("expected ErrQueueCleared, got %v", err)
	}
	if l.Pending() != 0 {
		t.Fatalf("queue not empty: %d", l.Pending())
	}
	if l.State() == Connected {
		t.Fatal("link cannot be connected")
	}
}

func TestLink_ReplyTimeoutDropsConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	var accepted atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			// swallow everything, answer nothing
			go func() {
				buf := make([]byte, 256)
				for {
					if _, err := conn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	var downs atomic.Int32
	opts := fastOptions(ln.Addr().String())
	opts.ReplyTimeout = 50 * time.Millisecond
	opts.OnConnectionChange = func(up bool) {
		if !up {
			downs.Add(1)
		}
	}
	l := runLink(t, opts)
	waitFor(t, "connection", func() bool { return l.State() == Connected })

	_, err = l.Send(sendCtx(t), StarCount())
	if !errors.Is(err, ErrReplyTimeout) && !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrQueueCleared) {
		t.Fatalf("expected a timeout or drop, got %v", err)
	}
	waitFor(t, "disconnect", func() bool { return downs.Load() > 0 })
	waitFor(t, "reconnect", func() bool { return accepted.Load() > 1 })
}

func TestLink_PeerCloseReportsDisconnect(t *testing.T) {
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()
	sim := simulator.New(simulator.Config{SlewDuration: -1})
	addr, err := sim.Start(simCtx)
	if err != nil {
		t.Fatalf("start simulator: %v", err)
	}

	var ups, downs atomic.Int32
	opts := fastOptions(addr)
	opts.OnConnectionChange = func(up bool) {
		if up {
			ups.Add(1)
		} else {
			downs.Add(1)
		}
	}
	l := runLink(t, opts)
	waitFor(t, "connection", func() bool { return ups.Load() == 1 })

	stopSim()
	waitFor(t, "disconnect", func() bool { return downs.Load() == 1 })
	if l.Status().Connected {
		t.Fatal("status should report disconnected")
	}
	if _, err := l.Send(sendCtx(t), StarCount()); err == nil {
		t.Fatal("send without a mount must fail")
	}
}

func TestLink_SendHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	opts := fastOptions(addr)
	opts.ReconnectInterval = time.Hour
	l := runLink(t, opts)
	// let the first dial fail so the queue is not cleared under us
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Send(ctx, StarCount()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLink_RefreshAlignmentMirrorsMount(t *testing.T) {
	_, addr := startSimulator(t, simulator.Config{})
	l := runLink(t, fastOptions(addr))
	waitFor(t, "connection", func() bool { return l.State() == Connected })
	ctx := sendCtx(t)

	if _, err := l.Send(ctx, NewAlignment()); err != nil {
		t.Fatalf("newalig: %v", err)
	}
	for i := 0; i < 3; i++ {
		ra := float64(2 + 3*i)
		cmd := AddAlignmentPoint(ra, 20, "W", ra+0.001, 20.01, ra+1)
		reply, err := l.Send(ctx, cmd)
		if err != nil {
			t.Fatalf("newalpt: %v", err)
		}
		if n, err := ParseAddPointReply(reply); err != nil || n != i+1 {
			t.Fatalf("point %d: n=%d err=%v", i, n, err)
		}
	}
	reply, err := l.Send(ctx, EndAlignment())
	if err != nil {
		t.Fatalf("endalig: %v", err)
	}
	if err := CheckEndAlignment(reply); err != nil {
		t.Fatalf("end alignment: %v", err)
	}
	if _, err := l.Send(ctx, SaveModel(ModelBase)); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := l.RefreshAlignment(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	store := l.Alignment()
	if store.Len() != 3 || !store.CheckConsistency(3) {
		t.Fatalf("store has %d points", store.Len())
	}
	if l.Status().AlignmentStars != 3 {
		t.Fatalf("status stars %d", l.Status().AlignmentStars)
	}
	names := store.Names()
	if len(names) != 1 || names[0] != ModelBase {
		t.Fatalf("names %v", names)
	}
}

func TestLink_RefreshStatusSeesSlewBeforeNextPoll(t *testing.T) {
	_, addr := startSimulator(t, simulator.Config{SlewDuration: 300 * time.Millisecond, Tick: 10 * time.Millisecond})
	l := runLink(t, fastOptions(addr))
	waitFor(t, "connection", func() bool { return l.State() == Connected })
	ctx := sendCtx(t)

	reply, err := l.Send(ctx, SlewAltAz(120, 50))
	if err != nil {
		t.Fatalf("slew: %v", err)
	}
	if err := CheckSlewReply(reply); err != nil {
		t.Fatalf("slew rejected: %v", err)
	}
	if l.Status().Slewing {
		t.Fatal("cached status should not know about the slew without a poll")
	}

	st, err := l.RefreshStatus(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !st.Slewing || !l.Status().Slewing {
		t.Fatalf("refreshed status should report the slew in progress: %+v", st)
	}

	waitFor(t, "slew end", func() bool {
		st, err := l.RefreshStatus(ctx)
		return err == nil && !st.Slewing
	})
	if alt := l.Status().Altitude; alt < 49.5 || alt > 50.5 {
		t.Fatalf("altitude after slew = %v; want about 50", alt)
	}
}
