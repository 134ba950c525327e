package twitter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/source"
	"github.com/mediamatic/ikdisplay/internal/store"
)

// MonitorControl is what the dispatcher drives on the stream monitor.
type MonitorControl interface {
	SetArgs(Args)
	SetDelegate(func(*Status))
	Connect(force bool) error
	Disconnect()
}

// SourceLoader yields the enabled stream sources, hydrated.
type SourceLoader interface {
	LoadEnabledTwitterSources(ctx context.Context) ([]*source.Source, error)
}

// Sink receives the notifications a matched status produced, routed by
// the source's feed.
type Sink interface {
	ProcessNotifications(feed *store.Feed, notifications []models.Notification)
}

// Enricher resolves an image for a status before it is formatted.
type Enricher interface {
	AugmentStatusWithImage(ctx context.Context, st *Status) error
}

// StoreLoader adapts the registry to SourceLoader.
type StoreLoader struct {
	Store *store.Store
}

func (l StoreLoader) LoadEnabledTwitterSources(ctx context.Context) ([]*source.Source, error) {
	rows, err := l.Store.ListEnabledTwitterSources(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]*source.Source, 0, len(rows))
	for i := range rows {
		src, err := source.Load(ctx, l.Store, &rows[i])
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Dispatcher ties the stream monitor to the source registry: it
// combines the filters of all enabled stream sources into one monitor
// filter set, and fans each inbound status out to the sources that
// match it.
type Dispatcher struct {
	monitor  MonitorControl
	loader   SourceLoader
	sink     Sink
	enricher Enricher
	logger   logging.Logger

	mu      sync.Mutex
	sources []*source.Source
	args    Args
	started bool
}

// NewDispatcher creates a dispatcher. The enricher may be nil.
func NewDispatcher(monitor MonitorControl, loader SourceLoader, sink Sink, enricher Enricher, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		monitor:  monitor,
		loader:   loader,
		sink:     sink,
		enricher: enricher,
		logger:   logger,
	}
}

// CollectFilters folds the sources' terms and user ids into one filter
// set. Quotes around phrase terms are stripped for the track predicate;
// the phrase still applies when matching inbound statuses. The
// predicates are sorted, so an unchanged union compares equal no matter
// which sources contributed it.
func CollectFilters(sources []*source.Source) Args {
	var track, follow []string
	seenTrack := make(map[string]bool)
	seenFollow := make(map[string]bool)
	for _, src := range sources {
		if !src.Enabled || src.Kind != source.KindTwitter {
			continue
		}
		for _, term := range src.Terms {
			term = strings.Trim(term, `"`)
			if term == "" || seenTrack[term] {
				continue
			}
			seenTrack[term] = true
			track = append(track, term)
		}
		for _, userID := range src.UserIDs {
			if userID == "" || seenFollow[userID] {
				continue
			}
			seenFollow[userID] = true
			follow = append(follow, userID)
		}
	}
	sort.Strings(track)
	sort.Strings(follow)
	return Args{
		Track:  strings.Join(track, ","),
		Follow: strings.Join(follow, ","),
	}
}

// RefreshFilters reloads the enabled sources and reconfigures the
// monitor. The stream is only reconnected when the combined filter set
// actually changed; without any filters the stream is torn down.
func (d *Dispatcher) RefreshFilters(ctx context.Context) error {
	sources, err := d.loader.LoadEnabledTwitterSources(ctx)
	if err != nil {
		return err
	}
	args := CollectFilters(sources)

	d.mu.Lock()
	changed := args != d.args || !d.started
	d.sources = sources
	d.args = args
	d.started = true
	d.mu.Unlock()

	d.monitor.SetArgs(args)
	if args.Empty() {
		d.monitor.SetDelegate(nil)
		d.monitor.Disconnect()
		return nil
	}
	d.monitor.SetDelegate(d.OnEntry)

	if !changed {
		return nil
	}
	d.logger.WithFields(logging.Fields{
		"track":  args.Track,
		"follow": args.Follow,
	}).Info("Stream filters changed, reconnecting")
	return d.monitor.Connect(true)
}

// OnEntry handles one inbound status: resolve its image best-effort,
// then notify every matching source's feed.
func (d *Dispatcher) OnEntry(st *Status) {
	if d.enricher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := d.enricher.AugmentStatusWithImage(ctx, st); err != nil {
			d.logger.WithError(err).Debug("Could not resolve status image")
		}
		cancel()
	}

	d.mu.Lock()
	sources := d.sources
	d.mu.Unlock()

	for _, src := range sources {
		if !src.Enabled || !Matches(st, src.Terms, src.UserIDs) {
			continue
		}
		n := NotificationFor(src, st)
		d.sink.ProcessNotifications(src.Feed, []models.Notification{n})
	}
}
