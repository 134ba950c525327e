package xmpp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/mediamatic/ikdisplay/internal/logging"
)

const (
	pingInterval     = 30 * time.Second
	pingTimeout      = 30 * time.Second
	pingRestartDelay = 1 * time.Second
	// Consecutive timeouts before the stream is declared dead.
	pingReconnectCount = 2
)

// Pinger periodically pings a peer over the fabric and asks for a
// stream restart when the peer goes silent or reports that it cannot be
// found anymore.
type Pinger struct {
	fabric  Fabric
	peer    JID
	clock   clock.Clock
	logger  logging.Logger
	restart func()

	mu           sync.Mutex
	timeoutCount int
	stopped      chan struct{}
	stopOnce     sync.Once
}

// NewPinger creates a pinger. restart is invoked (at most once per
// trigger) when the connection should be torn down and reestablished.
func NewPinger(fabric Fabric, peer JID, clk clock.Clock, logger logging.Logger, restart func()) *Pinger {
	return &Pinger{
		fabric:  fabric,
		peer:    peer,
		clock:   clk,
		logger:  logger,
		restart: restart,
		stopped: make(chan struct{}),
	}
}

// Run pings until Stop is called or ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	timer := p.clock.NewTimer(pingInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case <-timer.Chan():
			p.ping(ctx)
			timer.Reset(pingInterval)
		}
	}
}

// Stop terminates the ping loop.
func (p *Pinger) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

func (p *Pinger) ping(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := p.fabric.Ping(reqCtx, p.peer)
	cancel()

	if err == nil {
		p.mu.Lock()
		p.timeoutCount = 0
		p.mu.Unlock()
		return
	}

	var stanzaErr *StanzaError
	if errors.As(err, &stanzaErr) && stanzaErr.Condition == ConditionRemoteServerMissing {
		p.logger.WithFields(logging.Fields{
			"peer": p.peer.String(),
		}).Warn("Peer not found, restarting stream")
		p.scheduleRestart()
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		p.mu.Lock()
		p.timeoutCount++
		count := p.timeoutCount
		p.mu.Unlock()

		p.logger.WithFields(logging.Fields{
			"peer":  p.peer.String(),
			"count": count,
		}).Warn("Ping timed out")
		if count >= pingReconnectCount {
			p.scheduleRestart()
		}
		return
	}

	p.logger.WithFields(logging.Fields{
		"peer":  p.peer.String(),
		"error": err.Error(),
	}).Debug("Ping failed")
}

func (p *Pinger) scheduleRestart() {
	p.mu.Lock()
	p.timeoutCount = 0
	p.mu.Unlock()
	p.clock.AfterFunc(pingRestartDelay, p.restart)
}
