package xmpp

import (
	"github.com/mediamatic/ikdisplay/internal/models"
)

// GroupChatMessage is a message received in a chat room. Delayed marks
// history replayed by the room on join.
type GroupChatMessage struct {
	Room    JID
	Nick    string
	Body    string
	Delayed bool
}

// MessageHandler receives the room messages a fabric delivers.
type MessageHandler interface {
	HandleMessage(msg GroupChatMessage)
}

// GroupChat turns room traffic into notifications. History replays and
// empty bodies are dropped.
type GroupChat struct {
	notify func(models.Notification)
}

// NewGroupChat creates a handler pushing notifications into notify.
func NewGroupChat(notify func(models.Notification)) *GroupChat {
	return &GroupChat{notify: notify}
}

// HandleMessage processes one inbound room message.
func (g *GroupChat) HandleMessage(msg GroupChatMessage) {
	if msg.Delayed || msg.Body == "" {
		return
	}
	g.notify(models.Notification{
		models.KeyTitle:    msg.Nick,
		models.KeySubtitle: msg.Body,
	})
}
