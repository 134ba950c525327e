package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

// Aggregator consumes the notifications a feed produced.
type Aggregator interface {
	ProcessNotifications(feed *store.Feed, notifications []models.Notification)
}

// Logging writes every notification to the log. It is the default
// destination for feeds without an explicit aggregator.
type Logging struct {
	Logger logging.Logger
}

func (a *Logging) ProcessNotifications(feed *store.Feed, notifications []models.Notification) {
	for _, n := range notifications {
		a.Logger.WithFields(logging.Fields{
			"feed":     feed.Handle,
			"title":    n[models.KeyTitle],
			"subtitle": n[models.KeySubtitle],
		}).Info("Notification")
	}
}

// Publisher is the slice of the subscription dispatcher the pub-sub
// aggregator needs.
type Publisher interface {
	PublishNotifications(ctx context.Context, service xmpp.JID, node string, notifications []models.Notification) error
}

// PubSub republishes notifications to the feed's node on the
// configured publish-subscribe service.
type PubSub struct {
	Publisher Publisher
	Service   xmpp.JID
	Logger    logging.Logger
}

func (a *PubSub) ProcessNotifications(feed *store.Feed, notifications []models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Publisher.PublishNotifications(ctx, a.Service, feed.Handle, notifications); err != nil {
		a.Logger.WithError(err).WithFields(logging.Fields{
			"feed": feed.Handle,
		}).Error("Failed to publish notifications")
	}
}

// Notifier is the slice of the live page hub the aggregator needs.
type Notifier interface {
	Notify(feed string, notifications []models.Notification)
}

// LivePage pushes notifications to the connected live pages.
type LivePage struct {
	Hub Notifier
}

func (a *LivePage) ProcessNotifications(feed *store.Feed, notifications []models.Notification) {
	a.Hub.Notify(feed.Handle, notifications)
}

// Registry routes a feed's notifications to the aggregator its record
// names. Unknown names fall back to the default aggregator.
type Registry struct {
	logger logging.Logger

	mu        sync.RWMutex
	byName    map[string]Aggregator
	fallback  Aggregator
	processed *prometheus.CounterVec
}

// NewRegistry creates a registry with the given default destination.
func NewRegistry(fallback Aggregator, logger logging.Logger) *Registry {
	return &Registry{
		logger:   logger,
		byName:   make(map[string]Aggregator),
		fallback: fallback,
	}
}

// SetMetrics attaches the processed-notifications counter.
func (r *Registry) SetMetrics(processed *prometheus.CounterVec) {
	r.mu.Lock()
	r.processed = processed
	r.mu.Unlock()
}

// Register binds an aggregator name, as used in feed records.
func (r *Registry) Register(name string, agg Aggregator) {
	r.mu.Lock()
	r.byName[name] = agg
	r.mu.Unlock()
}

func (r *Registry) resolve(name string) Aggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if agg, ok := r.byName[name]; ok {
		return agg
	}
	return r.fallback
}

func (r *Registry) ProcessNotifications(feed *store.Feed, notifications []models.Notification) {
	if feed == nil || len(notifications) == 0 {
		return
	}
	agg := r.resolve(feed.Aggregator)
	if agg == nil {
		r.logger.WithFields(logging.Fields{
			"feed":       feed.Handle,
			"aggregator": feed.Aggregator,
		}).Warn("No aggregator for feed, dropping notifications")
		return
	}

	r.mu.RLock()
	processed := r.processed
	r.mu.RUnlock()
	if processed != nil {
		name := feed.Aggregator
		if name == "" {
			name = "logging"
		}
		processed.WithLabelValues(feed.Handle, name).Add(float64(len(notifications)))
	}

	agg.ProcessNotifications(feed, notifications)
}
