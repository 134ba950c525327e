package xmpp

import (
	"context"
	"sync"
)

type loopNode struct {
	subscribers map[string]JID
	items       []Item
}

// Loopback is an in-memory fabric. Publishes are delivered directly to
// the subscribed sessions' handlers, which makes the whole pipeline
// runnable without a wire connection.
type Loopback struct {
	mu          sync.Mutex
	nodes       map[[2]string]*loopNode
	handlers    map[string]ItemsHandler
	msgHandlers map[string]MessageHandler

	// RetainItems bounds the per-node item history.
	RetainItems int
}

// NewLoopback creates an empty loopback fabric.
func NewLoopback() *Loopback {
	return &Loopback{
		nodes:       make(map[[2]string]*loopNode),
		handlers:    make(map[string]ItemsHandler),
		msgHandlers: make(map[string]MessageHandler),
		RetainItems: 20,
	}
}

// Attach registers the handler receiving items addressed to session.
func (l *Loopback) Attach(session JID, handler ItemsHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[session.Bare()] = handler
}

// AttachMessages registers the handler receiving the room's messages.
func (l *Loopback) AttachMessages(room JID, handler MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgHandlers[room.Bare()] = handler
}

// Message injects one room message into the fabric.
func (l *Loopback) Message(msg GroupChatMessage) {
	l.mu.Lock()
	handler, ok := l.msgHandlers[msg.Room.Bare()]
	l.mu.Unlock()
	if ok {
		handler.HandleMessage(msg)
	}
}

func (l *Loopback) key(service JID, node string) [2]string {
	return [2]string{service.Bare(), node}
}

func (l *Loopback) Subscribe(ctx context.Context, service JID, node string, subscriber JID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[l.key(service, node)]
	if !ok {
		n = &loopNode{subscribers: make(map[string]JID)}
		l.nodes[l.key(service, node)] = n
	}
	n.subscribers[subscriber.Bare()] = subscriber
	return nil
}

func (l *Loopback) Unsubscribe(ctx context.Context, service JID, node string, subscriber JID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[l.key(service, node)]
	if !ok {
		return &StanzaError{Type: "cancel", Condition: ConditionUnexpectedRequest}
	}
	if _, ok := n.subscribers[subscriber.Bare()]; !ok {
		return &StanzaError{Type: "cancel", Condition: ConditionUnexpectedRequest}
	}
	delete(n.subscribers, subscriber.Bare())
	return nil
}

func (l *Loopback) Publish(ctx context.Context, service JID, node string, items []Item) error {
	l.mu.Lock()
	n, ok := l.nodes[l.key(service, node)]
	if !ok {
		l.mu.Unlock()
		return &StanzaError{Type: "cancel", Condition: ConditionItemNotFound}
	}
	n.items = append(n.items, items...)
	if len(n.items) > l.RetainItems {
		n.items = n.items[len(n.items)-l.RetainItems:]
	}

	type delivery struct {
		handler   ItemsHandler
		recipient JID
	}
	var deliveries []delivery
	for _, sub := range n.subscribers {
		if handler, ok := l.handlers[sub.Bare()]; ok {
			deliveries = append(deliveries, delivery{handler, sub})
		}
	}
	l.mu.Unlock()

	for _, d := range deliveries {
		d.handler.HandleItems(ItemsEvent{
			Sender:    service,
			Recipient: d.recipient,
			Node:      node,
			Items:     items,
		})
	}
	return nil
}

func (l *Loopback) CreateNode(ctx context.Context, service JID, node string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.nodes[l.key(service, node)]; !ok {
		l.nodes[l.key(service, node)] = &loopNode{subscribers: make(map[string]JID)}
	}
	return nil
}

func (l *Loopback) Items(ctx context.Context, service JID, node string, maxItems int) ([]Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[l.key(service, node)]
	if !ok {
		return nil, &StanzaError{Type: "cancel", Condition: ConditionItemNotFound}
	}
	items := n.items
	if maxItems > 0 && len(items) > maxItems {
		items = items[len(items)-maxItems:]
	}
	return append([]Item(nil), items...), nil
}

func (l *Loopback) Ping(ctx context.Context, peer JID) error {
	return nil
}
