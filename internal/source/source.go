package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

// ErrNoNode means the source's node address is undefined because its
// references are unset. Such a source must not be subscribed.
var ErrNoNode = errors.New("source has no node address")

// Source is a hydrated source row: its kind, its feed, and its resolved
// references. It knows the node it wants to listen on and how to turn a
// payload into a notification.
type Source struct {
	ID      int64
	Kind    Kind
	Feed    *store.Feed
	Enabled bool
	Via     string

	// Vote family and activity references. Which of these are set
	// depends on Kind.
	Question *store.Thing
	Event    *store.Thing
	Creator  *store.Thing
	Race     *store.Thing
	Agent    *store.Thing
	User     *store.Thing
	Site     *store.Site

	// Literal node coordinates for the simple and commits kinds.
	Service        string
	NodeIdentifier string

	// Vote subtitle template override, "%s" receives the answer.
	Template string

	// Twitter filter arguments.
	Terms   []string
	UserIDs []string
}

// Load hydrates a stored source row, resolving its feed and references.
func Load(ctx context.Context, st *store.Store, rec *store.Source) (*Source, error) {
	kind, err := ParseKind(rec.Kind)
	if err != nil {
		return nil, err
	}

	feed, err := st.GetFeed(ctx, rec.FeedID)
	if err != nil {
		return nil, fmt.Errorf("load source %d: %w", rec.ID, err)
	}

	src := &Source{
		ID:             rec.ID,
		Kind:           kind,
		Feed:           feed,
		Enabled:        rec.Enabled,
		Via:            rec.Via,
		Service:        rec.Service,
		NodeIdentifier: rec.NodeIdentifier,
		Template:       rec.Template,
		Terms:          rec.Terms,
		UserIDs:        rec.UserIDs,
	}

	thing := func(ref sql.NullInt64) (*store.Thing, error) {
		if !ref.Valid {
			return nil, nil
		}
		t, err := st.GetThing(ctx, ref.Int64)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load source %d: %w", rec.ID, err)
		}
		return t, nil
	}

	if src.Question, err = thing(rec.QuestionID); err != nil {
		return nil, err
	}
	if src.Event, err = thing(rec.EventID); err != nil {
		return nil, err
	}
	if src.Creator, err = thing(rec.CreatorID); err != nil {
		return nil, err
	}
	if src.Race, err = thing(rec.RaceID); err != nil {
		return nil, err
	}
	if src.Agent, err = thing(rec.AgentID); err != nil {
		return nil, err
	}
	if src.User, err = thing(rec.UserID); err != nil {
		return nil, err
	}

	if rec.SiteID.Valid {
		site, err := st.GetSite(ctx, rec.SiteID.Int64)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load source %d: %w", rec.ID, err)
		}
		src.Site = site
	}

	return src, nil
}

// NodeAddress derives the (service, node) the source listens on.
// Returns ErrNoNode when the references needed to derive it are unset,
// and a descriptive error when a reference URI is malformed.
func (s *Source) NodeAddress() (xmpp.JID, string, error) {
	switch s.Kind {
	case KindVote, KindPresence, KindIkMic:
		return thingNode(s.Question, "vote/%d")
	case KindStatus:
		return siteNode(s.Site, "status")
	case KindRegDesk:
		return thingNode(s.Event, "regdesk/by_event/%d")
	case KindRace:
		return thingNode(s.Race, "race/%d")
	case KindIkCam:
		if s.Creator != nil {
			return thingNode(s.Creator, "ikcam/%d")
		}
		if s.Event != nil {
			return thingNode(s.Event, "ikcam/by_event/%d")
		}
		return xmpp.JID{}, "", ErrNoNode
	case KindActivity, KindCheckins:
		return siteNode(s.Site, "activity")
	case KindWoW:
		if s.Agent == nil {
			return xmpp.JID{}, "", ErrNoNode
		}
		service, err := xmpp.PubSubHostOf(s.Agent.URI)
		if err != nil {
			return xmpp.JID{}, "", err
		}
		return service, "activity", nil
	case KindCommits, KindSimple:
		if s.Service == "" || s.NodeIdentifier == "" {
			return xmpp.JID{}, "", ErrNoNode
		}
		service, err := xmpp.ParseJID(s.Service)
		if err != nil {
			return xmpp.JID{}, "", err
		}
		return service, s.NodeIdentifier, nil
	default:
		// Twitter sources feed off the stream monitor.
		return xmpp.JID{}, "", ErrNoNode
	}
}

func thingNode(t *store.Thing, nodeFormat string) (xmpp.JID, string, error) {
	if t == nil {
		return xmpp.JID{}, "", ErrNoNode
	}
	service, err := xmpp.PubSubHostOf(t.URI)
	if err != nil {
		return xmpp.JID{}, "", err
	}
	id, err := xmpp.ThingID(t.URI)
	if err != nil {
		return xmpp.JID{}, "", err
	}
	return service, fmt.Sprintf(nodeFormat, id), nil
}

func siteNode(site *store.Site, node string) (xmpp.JID, string, error) {
	if site == nil {
		return xmpp.JID{}, "", ErrNoNode
	}
	service, err := xmpp.PubSubHostOf(site.URI)
	if err != nil {
		return xmpp.JID{}, "", err
	}
	return service, node, nil
}

func (s *Source) language() Language {
	if s.Feed != nil {
		return ParseLanguage(s.Feed.Language)
	}
	return LangEN
}

func (s *Source) texts() *catalog {
	return textsFor(s.Kind, s.language())
}

// FormatItems turns an inbound item batch into notifications, in item
// order. Payloads the formatter rejects are dropped with a log line.
func (s *Source) FormatItems(event xmpp.ItemsEvent, logger logging.Logger) []models.Notification {
	var notifications []models.Notification
	for _, item := range event.Items {
		if item.Payload == nil {
			continue
		}
		n := s.FormatPayload(item.Payload)
		if n == nil {
			logger.WithFields(logging.Fields{
				"kind": string(s.Kind),
				"node": event.Node,
			}).Debug("Formatter dropped payload")
			continue
		}
		s.AddMeta(n)
		notifications = append(notifications, n)
	}
	return notifications
}

// FormatPayload maps one payload element to a notification, or nil when
// the payload should be dropped.
func (s *Source) FormatPayload(payload *xmpp.Element) models.Notification {
	switch s.Kind {
	case KindVote, KindPresence, KindIkMic:
		return s.formatVote(payload)
	case KindStatus:
		return s.formatStatus(payload)
	case KindRegDesk:
		return s.formatRegDesk(payload)
	case KindRace:
		return s.formatRace(payload)
	case KindIkCam:
		return s.formatIkCam(payload)
	case KindActivity, KindWoW, KindCommits, KindCheckins:
		return s.formatActivity(payload)
	case KindSimple:
		return s.formatSimple(payload)
	default:
		return nil
	}
}

// AddMeta renders the "via" attribution into the meta field. The
// source's own override wins over the formatter's choice, which wins
// over the kind literal.
func (s *Source) AddMeta(n models.Notification) {
	via := s.Via
	if via == "" {
		via = n[models.KeyVia]
	}
	if via == "" {
		via = s.texts().via
	}
	if via != "" {
		n[models.KeyMeta] = "via " + via
	}
}

func (s *Source) formatVote(payload *xmpp.Element) models.Notification {
	texts := s.texts()
	person := payload.Child("person")

	title := personName(person)
	if title == "" {
		title = texts.alien
	}

	answer := voteAnswer(payload)
	template := s.Template
	if template == "" {
		template = texts.voted
	}
	subtitle := fmt.Sprintf(template, answer)

	switch s.Kind {
	case KindPresence:
		if personName(person) != "" {
			subtitle = texts.present
		} else {
			subtitle = texts.alienPresent
		}
	case KindIkMic:
		subtitle = texts.interrupt[rand.Intn(len(texts.interrupt))]
	}

	return models.Notification{
		models.KeyTitle:    title,
		models.KeySubtitle: subtitle,
		models.KeyIcon:     person.ChildText("image"),
	}
}

// personName prepends the person's prefix (an honorific) when present.
func personName(person *xmpp.Element) string {
	title := person.ChildText("title")
	if title == "" {
		return ""
	}
	if prefix := person.ChildText("prefix"); prefix != "" {
		return prefix + " " + title
	}
	return title
}

// voteAnswer resolves the answer_id_ref against the question's answers.
func voteAnswer(payload *xmpp.Element) string {
	answerID := payload.Child("vote").ChildText("answer_id_ref")
	answers := payload.Child("question").Child("answers")
	if answers == nil {
		return ""
	}
	for _, item := range answers.Children {
		if item.Name != "item" || item.Space != "" {
			continue
		}
		if item.ChildText("answer_id") == answerID {
			return item.ChildText("title")
		}
	}
	return ""
}

func (s *Source) formatStatus(payload *xmpp.Element) models.Notification {
	text := payload.ChildText("status")
	if text == "" || text == "is" {
		return nil
	}

	n := models.Notification{
		models.KeyTitle:    payload.Child("person").ChildText("title"),
		models.KeySubtitle: text,
		models.KeyIcon:     payload.Child("person").ChildText("image"),
	}
	if s.Site != nil {
		n[models.KeyVia] = s.Site.Title
	}
	return n
}

func (s *Source) formatRegDesk(payload *xmpp.Element) models.Notification {
	person := payload.Child("person")
	if person == nil {
		return nil
	}
	texts := s.texts()
	subtitle := texts.regdesk[rand.Intn(len(texts.regdesk))]

	return models.Notification{
		models.KeyTitle:    person.ChildText("title"),
		models.KeySubtitle: subtitle,
		models.KeyIcon:     person.ChildText("image"),
	}
}

func (s *Source) formatRace(payload *xmpp.Element) models.Notification {
	subtitle := fmt.Sprintf(s.texts().raceFinish,
		payload.ChildText("event"), payload.ChildText("time"))

	return models.Notification{
		models.KeyTitle:    payload.Child("person").ChildText("title"),
		models.KeySubtitle: subtitle,
		models.KeyIcon:     payload.Child("person").ChildText("image"),
	}
}

func (s *Source) formatSimple(payload *xmpp.Element) models.Notification {
	elementMap := map[string]string{
		"title":    models.KeyTitle,
		"subtitle": models.KeySubtitle,
		"image":    models.KeyIcon,
	}

	n := models.Notification{}
	for _, child := range payload.Children {
		if key, ok := elementMap[child.Name]; ok {
			n[key] = child.Text()
		}
	}
	if !n.Valid() {
		return nil
	}
	return n
}
