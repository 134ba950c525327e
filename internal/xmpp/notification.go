package xmpp

import (
	"sort"

	"github.com/mediamatic/ikdisplay/internal/models"
)

// NSNotification is the namespace of notification payloads on the wire.
const NSNotification = "http://mediamatic.nl/ns/ikdisplay/2009/notification"

// NotificationElement serializes a notification into its wire payload,
// one child element per key. Keys are emitted in sorted order so the
// output is deterministic.
func NotificationElement(n models.Notification) *Element {
	root := NewElement(NSNotification, "notification")
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		root.AddText(NSNotification, k, n[k])
	}
	return root
}

// NotificationFromElement rebuilds a notification from its wire payload.
// Every child element becomes a key, preserving keys exactly.
func NotificationFromElement(el *Element) models.Notification {
	if el == nil {
		return nil
	}
	n := make(models.Notification, len(el.Children))
	for _, child := range el.Children {
		n[child.Name] = child.Value
	}
	return n
}
