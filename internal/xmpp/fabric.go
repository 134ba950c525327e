package xmpp

import (
	"context"
	"fmt"
)

// Stanza error conditions the pipeline reacts to.
const (
	ConditionItemNotFound        = "item-not-found"
	ConditionUnexpectedRequest   = "unexpected-request"
	ConditionRemoteServerMissing = "remote-server-not-found"
	ConditionConnectionTimeout   = "connection-timeout"
)

// StanzaError is the error shape reported by the messaging fabric. Type
// follows the wire taxonomy ("wait", "cancel", "modify", "auth");
// Condition carries the machine-readable cause.
type StanzaError struct {
	Type      string
	Condition string
	Text      string
}

func (e *StanzaError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("stanza error %s/%s: %s", e.Type, e.Condition, e.Text)
	}
	return fmt.Sprintf("stanza error %s/%s", e.Type, e.Condition)
}

// IsTemporary reports whether the peer asked us to retry later.
func (e *StanzaError) IsTemporary() bool {
	return e.Type == "wait"
}

// Item is a single published payload on a node.
type Item struct {
	ID      string
	Payload *Element
}

// ItemsEvent is an inbound batch of items for a node, addressed to a
// particular session.
type ItemsEvent struct {
	Sender    JID
	Recipient JID
	Node      string
	Items     []Item
}

// ItemsHandler receives inbound item events from the fabric.
type ItemsHandler interface {
	HandleItems(event ItemsEvent)
}

// ConnectionHandler receives session lifecycle callbacks.
type ConnectionHandler interface {
	HandleConnected()
	HandleDisconnected()
}

// Fabric is the messaging session the dispatcher drives. The production
// implementation wraps an XMPP wire client; tests and standalone runs
// use Loopback.
type Fabric interface {
	// Subscribe asks the service to deliver items on node to subscriber.
	Subscribe(ctx context.Context, service JID, node string, subscriber JID) error
	// Unsubscribe withdraws an earlier subscription.
	Unsubscribe(ctx context.Context, service JID, node string, subscriber JID) error
	// Publish sends items to a node in a single request.
	Publish(ctx context.Context, service JID, node string, items []Item) error
	// CreateNode creates a node on the service.
	CreateNode(ctx context.Context, service JID, node string) error
	// Items fetches up to maxItems persisted items from a node.
	Items(ctx context.Context, service JID, node string, maxItems int) ([]Item, error)
	// Ping performs a request/response ping against peer.
	Ping(ctx context.Context, peer JID) error
}
