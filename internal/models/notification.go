package models

// Notification is a small display record, an open string map. The
// recognized keys below are what the live page and republisher render;
// unknown keys survive round-trips untouched.
type Notification map[string]string

// Keys with defined display semantics.
const (
	KeyTitle    = "title"
	KeySubtitle = "subtitle"
	KeyIcon     = "icon"
	KeyPicture  = "picture"
	KeyMeta     = "meta"
	KeyVia      = "via"
	KeyHTML     = "html"
	KeyLink     = "link"
	KeyURI      = "uri"
)

// Valid reports whether the notification carries at least a title or a
// subtitle. Formatters must not emit anything weaker.
func (n Notification) Valid() bool {
	return n[KeyTitle] != "" || n[KeySubtitle] != ""
}

// Clone returns a shallow copy.
func (n Notification) Clone() Notification {
	out := make(Notification, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}
