package source

import (
	"fmt"
	"strings"

	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

// Supported verbs per kind, ordered most specific first. Verbs deriving
// from other verbs appear in the payload alongside their superverbs, so
// the first match must be the most specific one.
var supportedVerbs = map[Kind][]string{
	KindActivity: {
		nsAnymetaActivity + "status-update",
		nsActivitySchema + "post",
		nsActivitySchema + "like",
		nsActivitySchema + "tag",
		nsActivitySchema + "share",
		nsActivitySchema + "make-friend",
		nsActivitySchema + "update",
		nsAnymetaActivity + "iktag",
		nsAnymetaActivity + "facebook-connect",
	},
	KindWoW: {
		nsActivitySchema + "post",
		nsActivitySchema + "like",
	},
	KindCommits: {
		verbCommit,
	},
	KindCheckins: {
		nsActivitySchema + "checkin",
	},
}

// Verbs for which activities performed by an agent (an automated actor)
// are still rendered.
var agentVerbs = map[Kind]map[string]bool{
	KindActivity: {
		nsActivitySchema + "like":              true,
		nsAnymetaActivity + "iktag":            true,
		nsAnymetaActivity + "facebook-connect": true,
	},
	KindWoW: {
		nsActivitySchema + "post": true,
		nsActivitySchema + "like": true,
	},
	KindCheckins: {
		nsActivitySchema + "checkin": true,
	},
}

func payloadVerbs(payload *xmpp.Element) map[string]bool {
	verbs := make(map[string]bool)
	for _, el := range payload.ChildrenNamed(nsActivitySpec, "verb") {
		verbs[el.Text()] = true
	}
	return verbs
}

// figureLink finds an atom link with rel="figure" under el.
func figureLink(el *xmpp.Element) string {
	if el == nil {
		return ""
	}
	for _, link := range el.ChildrenNamed(nsAtom, "link") {
		if link.Attr("rel", "alternate") == "figure" {
			return link.Attr("href", "")
		}
	}
	return ""
}

func (s *Source) formatActivity(payload *xmpp.Element) models.Notification {
	verbs := payloadVerbs(payload)

	if s.Kind == KindWoW {
		agent := payload.Child("agent")
		if agent == nil || s.Agent == nil || agent.ChildText("id") != s.Agent.URI {
			return nil
		}
	}

	var matched, template string
	found := false
	for _, verb := range supportedVerbs[s.Kind] {
		if verbs[verb] {
			matched = verb
			template, found = s.texts().activityVerbs[verb], true
			break
		}
	}
	if !found || template == "" {
		return nil
	}

	if payload.Child("agent") != nil && !agentVerbs[s.Kind][matched] {
		return nil
	}

	author := payload.Child("author")
	actorTitle := author.Child("name").Text()

	icon := figureLink(author)
	if icon != "" {
		icon += "?width=80&height=80&filter=crop"
	}

	object := payload.Child("object")
	picture := ""
	for _, el := range object.ChildrenNamed(nsActivitySpec, "object-type") {
		if el.Text() == typeAttachment {
			if href := figureLink(object); href != "" {
				picture = href + "?width=480"
			}
			break
		}
	}

	subtitle, ok := fillTemplate(template,
		object.ChildText("title"),
		payload.Child("target").ChildText("title"))
	if !ok {
		return nil
	}

	if s.Kind == KindCommits {
		if msg := object.ChildText("message"); msg != "" {
			firstLine := msg
			if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
				firstLine = firstLine[:i]
			}
			subtitle += ": " + strings.TrimSpace(firstLine)
		}
	}

	n := models.Notification{
		models.KeyTitle:    actorTitle,
		models.KeySubtitle: subtitle,
	}
	if via := s.activityVia(); via != "" {
		n[models.KeyVia] = via
	}
	if icon != "" {
		n[models.KeyIcon] = icon
	}
	if picture != "" {
		n[models.KeyPicture] = picture
	}
	return n
}

// activityVia is the formatter-level attribution for activity kinds;
// the generic kind literal still applies afterwards.
func (s *Source) activityVia() string {
	switch s.Kind {
	case KindActivity, KindCheckins:
		if s.Site != nil {
			return s.Site.Title
		}
	case KindWoW:
		return s.Via
	}
	return ""
}

const ikCamIcon = "http://docs.mediamatic.nl/images/ikcam-80x80.png"

func (s *Source) formatIkCam(payload *xmpp.Element) models.Notification {
	verbs := payloadVerbs(payload)
	if !verbs[verbIkCam] {
		return nil
	}

	// Pictures taken by another installation or at another event are
	// not ours.
	if agent := payload.Child("agent"); agent != nil && s.Creator != nil &&
		agent.ChildText("id") != s.Creator.URI {
		return nil
	}
	target := payload.Child("target")
	if target != nil && s.Event != nil && target.ChildText("id") != s.Event.URI {
		return nil
	}

	var names []string
	for _, author := range payload.ChildrenNamed(nsAtom, "author") {
		for _, name := range author.ChildrenNamed(nsAtom, "name") {
			names = append(names, name.Text())
		}
	}
	if len(names) == 0 {
		return nil
	}

	texts := s.texts()
	subtitle := texts.ikCamSingular
	if len(names) > 1 {
		subtitle = texts.ikCamPlural
	}
	if target != nil {
		subtitle += fmt.Sprintf(texts.ikCamEvent, target.ChildText("title"))
	}

	n := models.Notification{
		models.KeyTitle:    implodeNames(names, s.language()),
		models.KeySubtitle: subtitle,
		models.KeyIcon:     ikCamIcon,
	}
	if href := figureLink(payload.Child("object")); href != "" {
		n[models.KeyPicture] = href + "?width=480"
	}
	return n
}
