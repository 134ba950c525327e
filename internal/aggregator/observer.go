package aggregator

import (
	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/source"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

// FeedObserver powers one source onto the subscription dispatcher: it
// formats every inbound item batch with the source and hands the
// result to the feed's aggregator.
type FeedObserver struct {
	Source *source.Source
	Sink   Aggregator
	Logger logging.Logger
}

func (o *FeedObserver) HandleItems(event xmpp.ItemsEvent) {
	notifications := o.Source.FormatItems(event, o.Logger)
	if len(notifications) == 0 {
		return
	}
	o.Sink.ProcessNotifications(o.Source.Feed, notifications)
}
