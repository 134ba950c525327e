package store

import "database/sql"

// Subscription states as confirmed by the pub/sub peer. The empty
// string means the peer never confirmed anything yet.
const (
	StateNone         = ""
	StateSubscribed   = "subscribed"
	StatePending      = "pending"
	StateUnsubscribed = "unsubscribed"
)

// Feed is a named notification stream. Its handle doubles as the node
// identifier the republisher publishes on.
type Feed struct {
	ID         int64  `json:"id"`
	Handle     string `json:"handle"`
	Title      string `json:"title"`
	Language   string `json:"language"`
	Aggregator string `json:"aggregator"`
}

// Thing is a referenced object on an anyMeta-style site, identified by
// its URI.
type Thing struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Site is a community site events originate from.
type Site struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Subscription is the durable intent to receive events from a node,
// uniquely keyed by (service, node).
type Subscription struct {
	ID      int64  `json:"id"`
	Service string `json:"service"`
	Node    string `json:"node"`
	State   string `json:"state"`
}

// Source is one stored source row. Reference columns are nullable; which
// ones are meaningful depends on Kind.
type Source struct {
	ID             int64         `json:"id"`
	Kind           string        `json:"kind"`
	FeedID         int64         `json:"feed_id"`
	Enabled        bool          `json:"enabled"`
	Via            string        `json:"via"`
	SubscriptionID sql.NullInt64 `json:"-"`

	QuestionID sql.NullInt64 `json:"-"`
	EventID    sql.NullInt64 `json:"-"`
	CreatorID  sql.NullInt64 `json:"-"`
	RaceID     sql.NullInt64 `json:"-"`
	AgentID    sql.NullInt64 `json:"-"`
	UserID     sql.NullInt64 `json:"-"`
	SiteID     sql.NullInt64 `json:"-"`

	Service        string   `json:"service"`
	NodeIdentifier string   `json:"node_identifier"`
	Template       string   `json:"template"`
	Terms          []string `json:"terms"`
	UserIDs        []string `json:"user_ids"`
}
