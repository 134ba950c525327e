package source

import "strings"

// Namespaces of the activity stream payloads.
const (
	nsActivitySpec    = "http://activitystrea.ms/spec/1.0/"
	nsActivitySchema  = "http://activitystrea.ms/schema/1.0/"
	nsAnymetaActivity = "http://mediamatic.nl/ns/anymeta/2010/activitystreams/"
	nsAtom            = "http://www.w3.org/2005/Atom"

	typeAttachment = "http://mediamatic.nl/ns/anymeta/2008/kind/attachment"

	verbCommit = "http://mediamatic.nl/ns/schema/2010/verb/commit"
	verbIkCam  = nsAnymetaActivity + "ikcam"
)

// Language of a feed's display texts.
type Language string

const (
	LangEN Language = "en"
	LangNL Language = "nl"
)

// ParseLanguage falls back to English for anything unknown.
func ParseLanguage(s string) Language {
	if Language(s) == LangNL {
		return LangNL
	}
	return LangEN
}

// catalog holds the localized display texts for one source kind. A
// verb template that is present but empty means "drop this verb".
type catalog struct {
	via           string
	alien         string
	voted         string
	present       string
	alienPresent  string
	interrupt     []string
	regdesk       []string
	raceFinish    string
	ikCamSingular string
	ikCamPlural   string
	ikCamEvent    string
	lastSeparator string
	activityVerbs map[string]string
}

var catalogs = map[Kind]map[Language]*catalog{}

func baseCatalog(lang Language) *catalog {
	switch lang {
	case LangNL:
		return &catalog{
			alien:         "Een illegale alien",
			lastSeparator: " en ",
		}
	default:
		return &catalog{
			alien:         "An illegal alien",
			lastSeparator: " and ",
		}
	}
}

func activityVerbTemplates(lang Language) map[string]string {
	if lang == LangNL {
		return map[string]string{
			nsActivitySchema + "post":              "plaatste {object}",
			nsActivitySchema + "like":              "is geïntresseerd in {object}",
			nsActivitySchema + "tag":               "wees {object} aan in {target}",
			nsActivitySchema + "share":             "deelde {object} op {target}",
			nsActivitySchema + "make-friend":       "werd vrienden met {object}",
			nsActivitySchema + "update":            "paste {object} aan",
			nsActivitySchema + "rsvp-yes":          "komt naar {object}",
			nsActivitySchema + "checkin":           "was bij {object}",
			nsAnymetaActivity + "link-to":          "linkte naar {object} vanaf {target}",
			nsAnymetaActivity + "status-update":    "",
			nsAnymetaActivity + "iktag":            "koppelde een ikTag",
			nsAnymetaActivity + "facebook-connect": "koppelde aan Facebook",
			verbCommit:                             "committe {object} op {target}",
		}
	}
	return map[string]string{
		nsActivitySchema + "post":              "posted {object}",
		nsActivitySchema + "like":              "liked {object}",
		nsActivitySchema + "tag":               "tagged {object} in {target}",
		nsActivitySchema + "share":             "shared {object} on {target}",
		nsActivitySchema + "make-friend":       "friended {object}",
		nsActivitySchema + "update":            "updated {object}",
		nsActivitySchema + "rsvp-yes":          "will attend {object}",
		nsActivitySchema + "checkin":           "was at {object}",
		nsAnymetaActivity + "link-to":          "linked to {object} from {target}",
		nsAnymetaActivity + "status-update":    "",
		nsAnymetaActivity + "iktag":            "linked an ikTag",
		nsAnymetaActivity + "facebook-connect": "connected to Facebook",
		verbCommit:                             "committed {object} on {target}",
	}
}

func init() {
	overlays := map[Kind]func(lang Language, c *catalog){
		KindVote: func(lang Language, c *catalog) {
			c.via = "ikPoll"
			if lang == LangNL {
				c.voted = "stemde op %s"
			} else {
				c.voted = "voted for %s"
			}
		},
		KindPresence: func(lang Language, c *catalog) {
			c.via = "ikPoll"
			if lang == LangNL {
				c.voted = "stemde op %s"
				c.present = "is bij de ingang gesignaleerd"
				c.alienPresent = "is bij de ingang tegengehouden"
			} else {
				c.voted = "voted for %s"
				c.present = "was at the entrance"
				c.alienPresent = "has been detained at the entrance"
			}
		},
		KindIkMic: func(lang Language, c *catalog) {
			c.via = "ikMic"
			if lang == LangNL {
				c.voted = "stemde op %s"
				c.interrupt = []string{
					"wil iets zeggen",
					"heeft een opmerking",
					"interrumpeert",
					"onderbreekt de discussie",
				}
			} else {
				c.voted = "voted for %s"
				c.interrupt = []string{
					"has something to say",
					"has a remark",
					"is speaking",
				}
			}
		},
		KindStatus: func(lang Language, c *catalog) {},
		KindTwitter: func(lang Language, c *catalog) {
			c.via = "Twitter"
		},
		KindRegDesk: func(lang Language, c *catalog) {
			if lang == LangNL {
				c.via = "Registratiebalie"
				c.regdesk = []string{
					"is binnen",
					"is er nu ook",
					"is net binnengekomen",
					"is gearriveerd",
				}
			} else {
				c.via = "Registration Desk"
				c.regdesk = []string{
					"just arrived",
					"showed up at the entrance",
					"received a badge",
					"has entered the building",
				}
			}
		},
		KindRace: func(lang Language, c *catalog) {
			c.via = "Alleycat"
			if lang == LangNL {
				c.raceFinish = "finishte de %s in %s."
			} else {
				c.raceFinish = "finished the %s in %s."
			}
		},
		KindIkCam: func(lang Language, c *catalog) {
			c.via = "ikCam"
			c.activityVerbs = activityVerbTemplates(lang)
			if lang == LangNL {
				c.ikCamSingular = "ging op de foto"
				c.ikCamPlural = "gingen op de foto"
				c.ikCamEvent = " bij %s"
			} else {
				c.ikCamSingular = "took a self-portrait"
				c.ikCamPlural = "took a group portrait"
				c.ikCamEvent = " at %s"
			}
		},
		KindActivity: func(lang Language, c *catalog) {
			c.activityVerbs = activityVerbTemplates(lang)
		},
		KindWoW: func(lang Language, c *catalog) {
			c.activityVerbs = activityVerbTemplates(lang)
		},
		KindCommits: func(lang Language, c *catalog) {
			c.via = "Subversion"
			c.activityVerbs = activityVerbTemplates(lang)
		},
		KindCheckins: func(lang Language, c *catalog) {
			c.activityVerbs = activityVerbTemplates(lang)
		},
		KindSimple: func(lang Language, c *catalog) {},
	}

	for kind, overlay := range overlays {
		catalogs[kind] = map[Language]*catalog{}
		for _, lang := range []Language{LangEN, LangNL} {
			c := baseCatalog(lang)
			overlay(lang, c)
			catalogs[kind][lang] = c
		}
	}
}

func textsFor(kind Kind, lang Language) *catalog {
	if byLang, ok := catalogs[kind]; ok {
		if c, ok := byLang[lang]; ok {
			return c
		}
	}
	return baseCatalog(LangEN)
}

// fillTemplate substitutes {object} and {target} placeholders. It
// reports false when the template references a value that is absent;
// such a text would read as nonsense and is dropped by the caller.
func fillTemplate(template, object, target string) (string, bool) {
	if strings.Contains(template, "{object}") && object == "" {
		return "", false
	}
	if strings.Contains(template, "{target}") && target == "" {
		return "", false
	}
	return strings.NewReplacer(
		"{object}", object,
		"{target}", target,
	).Replace(template), true
}

// implodeNames joins names with a localized final separator, as in
// "a, b and c".
func implodeNames(names []string, lang Language) string {
	sep := textsFor(KindIkCam, lang).lastSeparator
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + sep + names[1]
	}
	out := names[0]
	for _, name := range names[1 : len(names)-1] {
		out += ", " + name
	}
	return out + sep + names[len(names)-1]
}
