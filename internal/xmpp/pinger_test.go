package xmpp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/mediamatic/ikdisplay/internal/logging"
)

type pingFabric struct {
	Loopback

	mu     sync.Mutex
	errs   []error
	pinged chan struct{}
}

func newPingFabric(errs ...error) *pingFabric {
	return &pingFabric{errs: errs, pinged: make(chan struct{}, 16)}
}

func (f *pingFabric) Ping(ctx context.Context, peer JID) error {
	f.mu.Lock()
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()
	f.pinged <- struct{}{}
	return err
}

func (f *pingFabric) waitPing(t *testing.T) {
	t.Helper()
	select {
	case <-f.pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ping")
	}
}

func newTestPinger(fabric Fabric, clk *testclock.Clock, restart func()) *Pinger {
	logger := logging.NewLogger()
	peer := MustParseJID("pubsub.example.org")
	return NewPinger(fabric, peer, clk, logger, restart)
}

func TestPingerSuccessResetsCount(t *testing.T) {
	fabric := newPingFabric(context.DeadlineExceeded, nil, context.DeadlineExceeded)
	clk := testclock.NewClock(time.Time{})

	restarted := make(chan struct{}, 1)
	p := newTestPinger(fabric, clk, func() { restarted <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(pingInterval, 5*time.Second, 1); err != nil {
			t.Fatalf("advance: %v", err)
		}
		fabric.waitPing(t)
	}

	select {
	case <-restarted:
		t.Fatal("restart triggered although a success intervened")
	default:
	}
}

func TestPingerTimeoutThreshold(t *testing.T) {
	fabric := newPingFabric(context.DeadlineExceeded, context.DeadlineExceeded)
	clk := testclock.NewClock(time.Time{})

	restarted := make(chan struct{}, 1)
	p := newTestPinger(fabric, clk, func() { restarted <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(pingInterval, 5*time.Second, 1); err != nil {
			t.Fatalf("advance: %v", err)
		}
		fabric.waitPing(t)
	}

	// The second miss schedules a restart one second out.
	if err := clk.WaitAdvance(pingRestartDelay, 5*time.Second, 2); err != nil {
		t.Fatalf("advance restart delay: %v", err)
	}
	select {
	case <-restarted:
	case <-time.After(5 * time.Second):
		t.Fatal("restart not triggered after two timeouts")
	}
}

func TestPingerRemoteServerNotFound(t *testing.T) {
	fabric := newPingFabric(&StanzaError{Type: "cancel", Condition: ConditionRemoteServerMissing})
	clk := testclock.NewClock(time.Time{})

	restarted := make(chan struct{}, 1)
	p := newTestPinger(fabric, clk, func() { restarted <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	if err := clk.WaitAdvance(pingInterval, 5*time.Second, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	fabric.waitPing(t)

	if err := clk.WaitAdvance(pingRestartDelay, 5*time.Second, 2); err != nil {
		t.Fatalf("advance restart delay: %v", err)
	}
	select {
	case <-restarted:
	case <-time.After(5 * time.Second):
		t.Fatal("restart not triggered on remote-server-not-found")
	}
}
