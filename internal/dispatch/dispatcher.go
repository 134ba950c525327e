package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

const (
	delayMin       = 250 * time.Millisecond
	delayMax       = 16 * time.Second
	requestTimeout = 30 * time.Second
)

// Goal of a node's subscription, derived from its observer count.
const (
	goalSubscribed   = "subscribed"
	goalUnsubscribed = "unsubscribed"
)

// Observer receives the item events of the node it is powered onto.
type Observer interface {
	HandleItems(event xmpp.ItemsEvent)
}

// SubscriptionStore is the slice of the registry the dispatcher needs
// to persist subscription state.
type SubscriptionStore interface {
	EnsureSubscription(ctx context.Context, service, node string) (*store.Subscription, error)
	SetSubscriptionState(ctx context.Context, id int64, state string) error
	ListSubscriptions(ctx context.Context) ([]store.Subscription, error)
}

type nodeKey struct {
	service string
	node    string
}

// nodeState is the in-memory side of one subscription. The pending bit
// serializes all requests for the node: while it is set no new request
// of any kind may be issued. gen counts disconnects; a completion
// carrying an older generation was answered by a session that is gone.
type nodeState struct {
	service xmpp.JID
	node    string
	subID   int64

	observers map[int64]Observer
	state     string
	pending   bool
	abandoned bool
	gen       uint64
	delay     time.Duration
	retry     clock.Timer
}

func (ns *nodeState) goal() string {
	if len(ns.observers) > 0 {
		return goalSubscribed
	}
	return goalUnsubscribed
}

// Dispatcher multiplexes many logical subscriptions over a single
// session, drives each (service, node) toward its goal state with
// back-off, and routes inbound item events to the observers powered
// onto the matching subscription.
type Dispatcher struct {
	fabric  xmpp.Fabric
	session xmpp.JID
	store   SubscriptionStore
	clock   clock.Clock
	logger  logging.Logger

	mu        sync.Mutex
	nodes     map[nodeKey]*nodeState
	connected bool
	requests  *prometheus.CounterVec
}

// New creates a dispatcher for the given session address.
func New(fabric xmpp.Fabric, session xmpp.JID, st SubscriptionStore, clk clock.Clock, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		fabric:  fabric,
		session: session,
		store:   st,
		clock:   clk,
		logger:  logger,
		nodes:   make(map[nodeKey]*nodeState),
	}
}

// SetMetrics attaches the subscription-requests counter, labeled by
// operation and outcome.
func (d *Dispatcher) SetMetrics(requests *prometheus.CounterVec) {
	d.mu.Lock()
	d.requests = requests
	d.mu.Unlock()
}

func (d *Dispatcher) countRequest(subscribe bool, outcome string) {
	if d.requests == nil {
		return
	}
	operation := "unsubscribe"
	if subscribe {
		operation = "subscribe"
	}
	d.requests.WithLabelValues(operation, outcome).Inc()
}

func (d *Dispatcher) key(service xmpp.JID, node string) nodeKey {
	return nodeKey{service: service.Bare(), node: node}
}

// AddObserver powers the observer onto the subscription for
// (service, node), creating the persistent record when needed, and
// initiates a subscribe when the session is up.
func (d *Dispatcher) AddObserver(ctx context.Context, service xmpp.JID, node string, observerID int64, o Observer) error {
	sub, err := d.store.EnsureSubscription(ctx, service.Bare(), node)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.key(service, node)
	ns, ok := d.nodes[key]
	if !ok {
		ns = &nodeState{
			service:   service.BareJID(),
			node:      node,
			subID:     sub.ID,
			observers: make(map[int64]Observer),
			state:     sub.State,
			delay:     delayMin,
		}
		d.nodes[key] = ns
	}
	ns.observers[observerID] = o
	ns.abandoned = false
	d.evaluate(ns)
	return nil
}

// RemoveObserver de-powers the observer; when no observers remain the
// dispatcher initiates an unsubscribe.
func (d *Dispatcher) RemoveObserver(service xmpp.JID, node string, observerID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ns, ok := d.nodes[d.key(service, node)]
	if !ok {
		return
	}
	delete(ns.observers, observerID)
	ns.abandoned = false
	d.evaluate(ns)
}

// HandleConnected re-drives the whole persistent subscription set
// toward its goals. Rows without in-memory observers that the peer
// still considers subscribed are driven to unsubscribed.
func (d *Dispatcher) HandleConnected() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	subs, err := d.store.ListSubscriptions(ctx)
	cancel()
	if err != nil {
		d.logger.WithError(err).Error("Failed to list subscriptions on connect")
		subs = nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true

	for _, sub := range subs {
		service, err := xmpp.ParseJID(sub.Service)
		if err != nil {
			continue
		}
		key := d.key(service, sub.Node)
		if _, ok := d.nodes[key]; !ok {
			if sub.State != store.StateSubscribed && sub.State != store.StatePending {
				continue
			}
			d.nodes[key] = &nodeState{
				service:   service,
				node:      sub.Node,
				subID:     sub.ID,
				observers: make(map[int64]Observer),
				state:     sub.State,
				delay:     delayMin,
			}
		}
	}

	for _, ns := range d.nodes {
		ns.abandoned = false
		ns.delay = delayMin
		d.evaluate(ns)
	}
}

// HandleDisconnected suspends outbound requests and discards in-flight
// state; the peer forgot us.
func (d *Dispatcher) HandleDisconnected() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	for _, ns := range d.nodes {
		ns.pending = false
		ns.gen++
		if ns.retry != nil {
			ns.retry.Stop()
			ns.retry = nil
		}
	}
}

// evaluate drives one node toward its goal. Caller holds d.mu.
func (d *Dispatcher) evaluate(ns *nodeState) {
	if !d.connected || ns.pending || ns.abandoned {
		return
	}

	switch ns.goal() {
	case goalSubscribed:
		if ns.state != store.StateSubscribed {
			d.request(ns, true)
		}
	case goalUnsubscribed:
		if ns.state == store.StateSubscribed || ns.state == store.StatePending {
			d.request(ns, false)
		}
	}
}

// request issues a subscribe or unsubscribe. Caller holds d.mu.
func (d *Dispatcher) request(ns *nodeState, subscribe bool) {
	ns.pending = true
	gen := ns.gen

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var err error
		if subscribe {
			err = d.fabric.Subscribe(ctx, ns.service, ns.node, d.session)
		} else {
			err = d.fabric.Unsubscribe(ctx, ns.service, ns.node, d.session)
		}
		d.complete(ns, gen, subscribe, err)
	}()
}

func (d *Dispatcher) complete(ns *nodeState, gen uint64, subscribe bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A disconnect happened after this request went out. Its outcome
	// describes a forgotten session and must not touch the node, which
	// may have a fresh request in flight.
	if gen != ns.gen {
		return
	}

	ns.pending = false
	if !d.connected {
		return
	}

	var stanzaErr *xmpp.StanzaError
	isStanza := errors.As(err, &stanzaErr)

	// A peer rejecting an unsubscribe with unexpected-request tells us
	// we were not subscribed, which is the state we wanted.
	if err == nil || (!subscribe && isStanza && stanzaErr.Condition == xmpp.ConditionUnexpectedRequest) {
		d.countRequest(subscribe, "ok")
		if subscribe {
			ns.state = store.StateSubscribed
		} else {
			ns.state = store.StateUnsubscribed
		}
		ns.delay = delayMin
		d.persistState(ns)
		d.evaluate(ns)
		return
	}

	if isStanza && stanzaErr.IsTemporary() {
		d.countRequest(subscribe, "retry")
		d.logger.WithFields(logging.Fields{
			"service": ns.service.Full(),
			"node":    ns.node,
			"delay":   ns.delay.String(),
		}).Warn("Temporary failure, backing off")

		delay := ns.delay
		ns.delay *= 2
		if ns.delay > delayMax {
			ns.delay = delayMax
		}
		ns.retry = d.clock.AfterFunc(delay, func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.evaluate(ns)
		})
		return
	}

	d.logger.WithFields(logging.Fields{
		"service":   ns.service.Full(),
		"node":      ns.node,
		"subscribe": subscribe,
		"error":     errString(err),
	}).Error("Request failed permanently, abandoning goal")
	d.countRequest(subscribe, "abandoned")
	ns.abandoned = true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (d *Dispatcher) persistState(ns *nodeState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.SetSubscriptionState(ctx, ns.subID, ns.state); err != nil {
		d.logger.WithError(err).WithFields(logging.Fields{
			"service": ns.service.Full(),
			"node":    ns.node,
		}).Error("Failed to persist subscription state")
	}
}

// HandleItems routes an inbound item batch to the observers of the
// matching subscription. Events addressed elsewhere are dropped; events
// from unknown nodes trigger a cleanup unsubscribe.
func (d *Dispatcher) HandleItems(event xmpp.ItemsEvent) {
	if !event.Recipient.EqualFull(d.session) {
		d.logger.WithFields(logging.Fields{
			"recipient": event.Recipient.Full(),
		}).Debug("Dropping event for other recipient")
		return
	}

	d.mu.Lock()
	ns, ok := d.nodes[d.key(event.Sender, event.Node)]
	var observers []Observer
	if ok {
		observers = make([]Observer, 0, len(ns.observers))
		for _, o := range ns.observers {
			observers = append(observers, o)
		}
	}
	d.mu.Unlock()

	if !ok {
		d.logger.WithFields(logging.Fields{
			"service": event.Sender.Full(),
			"node":    event.Node,
		}).Info("Event from unknown node, unsubscribing")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := d.fabric.Unsubscribe(ctx, event.Sender, event.Node, d.session); err != nil {
				d.logger.WithError(err).Debug("Cleanup unsubscribe failed")
			}
		}()
		return
	}

	for _, o := range observers {
		d.dispatchTo(o, event)
	}
}

// dispatchTo shields the fan-out from a misbehaving observer.
func (d *Dispatcher) dispatchTo(o Observer, event xmpp.ItemsEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logging.Fields{
				"node":  event.Node,
				"panic": r,
			}).Error("Observer panicked during dispatch")
		}
	}()
	o.HandleItems(event)
}

// PublishNotifications publishes the notifications as one request. When
// the node does not exist yet it is created and the publish retried
// once.
func (d *Dispatcher) PublishNotifications(ctx context.Context, service xmpp.JID, node string, notifications []models.Notification) error {
	items := make([]xmpp.Item, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, xmpp.Item{
			ID:      uuid.NewString(),
			Payload: xmpp.NotificationElement(n),
		})
	}

	err := d.fabric.Publish(ctx, service, node, items)
	var stanzaErr *xmpp.StanzaError
	if errors.As(err, &stanzaErr) && stanzaErr.Condition == xmpp.ConditionItemNotFound {
		if err := d.fabric.CreateNode(ctx, service, node); err != nil {
			return err
		}
		return d.fabric.Publish(ctx, service, node, items)
	}
	return err
}
