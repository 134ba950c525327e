package xmpp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// JID is an XMPP-style routing address with a mandatory domain and
// optional local and resource parts.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID parses "local@domain/resource" where the local and resource
// parts are optional.
func ParseJID(s string) (JID, error) {
	var jid JID

	if i := strings.Index(s, "/"); i >= 0 {
		jid.Resource = s[i+1:]
		s = s[:i]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		jid.Local = s[:i]
		s = s[i+1:]
	}
	if s == "" {
		return JID{}, fmt.Errorf("jid has empty domain")
	}
	jid.Domain = s

	return jid, nil
}

// MustParseJID is like ParseJID but panics on error. For use in tests
// and static configuration.
func MustParseJID(s string) JID {
	jid, err := ParseJID(s)
	if err != nil {
		panic(err)
	}
	return jid
}

func (j JID) String() string {
	return j.Full()
}

// Bare returns the local@domain form.
func (j JID) Bare() string {
	if j.Local == "" {
		return j.Domain
	}
	return j.Local + "@" + j.Domain
}

// Full returns the local@domain/resource form.
func (j JID) Full() string {
	if j.Resource == "" {
		return j.Bare()
	}
	return j.Bare() + "/" + j.Resource
}

// BareJID returns a copy with the resource stripped.
func (j JID) BareJID() JID {
	return JID{Local: j.Local, Domain: j.Domain}
}

// Equal compares the bare forms of two addresses.
func (j JID) Equal(other JID) bool {
	return j.Local == other.Local && j.Domain == other.Domain
}

// EqualFull compares all three parts.
func (j JID) EqualFull(other JID) bool {
	return j.Equal(other) && j.Resource == other.Resource
}

// IsZero reports whether the address is unset.
func (j JID) IsZero() bool {
	return j.Domain == ""
}

// PubSubHostOf derives the publish-subscribe service address for a site
// or thing URI. A leading "www." is stripped, and unless the host ends
// in ".local" or contains ".test.", "pubsub." is prepended.
func PubSubHostOf(uri string) (JID, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return JID{}, fmt.Errorf("parse uri %q: %w", uri, err)
	}
	host := u.Hostname()
	if host == "" {
		return JID{}, fmt.Errorf("uri %q has no host", uri)
	}

	host = strings.TrimPrefix(host, "www.")
	if strings.HasSuffix(host, ".local") || strings.Contains(host, ".test.") {
		return JID{Domain: host}, nil
	}
	if strings.HasPrefix(host, "pubsub.") {
		return JID{Domain: host}, nil
	}
	return JID{Domain: "pubsub." + host}, nil
}

// ThingID extracts the trailing integer segment of a thing URI of the
// form http://host/id/N.
func ThingID(uri string) (int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return 0, fmt.Errorf("parse uri %q: %w", uri, err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 || path[:i] != "/id" {
		return 0, fmt.Errorf("uri %q does not name a thing id", uri)
	}
	id, err := strconv.ParseInt(path[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("uri %q does not name a thing id", uri)
	}
	return id, nil
}
