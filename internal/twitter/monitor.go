package twitter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/mediamatic/ikdisplay/internal/logging"
)

// Back-off schedules per failure class. Connect failures retry fast,
// HTTP rejections retry slowly, a cleanly closed stream reconnects
// after a fixed pause.
const (
	connectDelayMin = 250 * time.Millisecond
	connectDelayMax = 16 * time.Second
	httpDelayMin    = 10 * time.Second
	httpDelayMax    = 240 * time.Second
	reconnectDelay  = 5 * time.Second
)

var (
	ErrAlreadyConnected = errors.New("stream already connected")
	ErrNoFilters        = errors.New("no stream filters or delegate set")
)

// Args are the streaming filter predicates, in the comma-joined form
// the filter endpoint takes.
type Args struct {
	Track  string
	Follow string
}

func (a Args) Empty() bool {
	return a.Track == "" && a.Follow == ""
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(e.code)
}

type connectError struct {
	err error
}

func (e *connectError) Error() string { return "stream connect: " + e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

// Monitor maintains a long-lived connection to the filtered streaming
// endpoint and hands each decoded status to the delegate. On failure it
// reconnects with a back-off that depends on the failure class; an
// unclassifiable failure stops the monitor.
type Monitor struct {
	client    *http.Client
	streamURL string
	username  string
	password  string
	clock     clock.Clock
	logger    logging.Logger

	mu       sync.Mutex
	args     Args
	delegate func(*Status)
	cancel   context.CancelFunc
}

// NewMonitor creates a monitor for the given streaming endpoint.
// Credentials may be empty for endpoints without basic auth.
func NewMonitor(streamURL, username, password string, clk clock.Clock, logger logging.Logger) *Monitor {
	return &Monitor{
		client:    &http.Client{},
		streamURL: streamURL,
		username:  username,
		password:  password,
		clock:     clk,
		logger:    logger,
	}
}

// SetArgs replaces the filter predicates. Takes effect on the next
// (re)connect.
func (m *Monitor) SetArgs(args Args) {
	m.mu.Lock()
	m.args = args
	m.mu.Unlock()
}

// SetDelegate replaces the status callback. A nil delegate keeps the
// monitor from reconnecting.
func (m *Monitor) SetDelegate(fn func(*Status)) {
	m.mu.Lock()
	m.delegate = fn
	m.mu.Unlock()
}

// Connect starts streaming. With force set an existing stream is torn
// down first; without it an active stream is an error.
func (m *Monitor) Connect(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		if !force {
			return ErrAlreadyConnected
		}
		m.cancel()
		m.cancel = nil
	}
	if m.delegate == nil || m.args.Empty() {
		return ErrNoFilters
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
	return nil
}

// Disconnect tears down the stream and stops reconnecting.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) run(ctx context.Context) {
	var connectDelay, httpDelay time.Duration
	for {
		err := m.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		active := m.delegate != nil && !m.args.Empty()
		m.mu.Unlock()
		if !active {
			return
		}

		var wait time.Duration
		var httpErr *httpStatusError
		var connErr *connectError
		switch {
		case err == nil:
			connectDelay, httpDelay = 0, 0
			wait = reconnectDelay
			m.logger.Debug("Stream closed, reconnecting")
		case errors.As(err, &httpErr):
			if httpDelay == 0 {
				httpDelay = httpDelayMin
			} else {
				httpDelay *= 2
				if httpDelay > httpDelayMax {
					httpDelay = httpDelayMax
				}
			}
			wait = httpDelay
			m.logger.WithError(err).WithFields(logging.Fields{
				"delay": wait.String(),
			}).Warn("Stream rejected, backing off")
		case errors.As(err, &connErr):
			if connectDelay == 0 {
				connectDelay = connectDelayMin
			} else {
				connectDelay *= 2
				if connectDelay > connectDelayMax {
					connectDelay = connectDelayMax
				}
			}
			wait = connectDelay
			m.logger.WithError(err).WithFields(logging.Fields{
				"delay": wait.String(),
			}).Warn("Stream connect failed, backing off")
		default:
			m.logger.WithError(err).Error("Stream failed, giving up")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(wait):
		}
	}
}

// stream runs one connection until it closes. A nil return means the
// stream ended cleanly; a read that breaks mid-stream reports a
// connect-class error.
func (m *Monitor) stream(ctx context.Context) error {
	m.mu.Lock()
	args := m.args
	delegate := m.delegate
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.streamURL, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	if args.Track != "" {
		q.Set("track", args.Track)
	}
	if args.Follow != "" {
		q.Set("follow", args.Follow)
	}
	req.URL.RawQuery = q.Encode()
	if m.username != "" {
		req.SetBasicAuth(m.username, m.password)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &connectError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &httpStatusError{code: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			// keep-alive newline
			continue
		}
		var st Status
		if err := json.Unmarshal(line, &st); err != nil {
			m.logger.WithError(err).Debug("Skipping undecodable stream entry")
			continue
		}
		if st.User == nil {
			// deletion notices and rate limit markers
			continue
		}
		if delegate != nil {
			delegate(&st)
		}
	}
	if err := scanner.Err(); err != nil {
		return &connectError{err: err}
	}
	return nil
}
