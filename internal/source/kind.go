package source

import "fmt"

// Kind tags a source variant. The kind selects the node the source
// listens on and the formatter applied to its payloads.
type Kind string

const (
	KindVote     Kind = "vote"
	KindPresence Kind = "presence"
	KindIkMic    Kind = "ikmic"
	KindStatus   Kind = "status"
	KindIkCam    Kind = "ikcam"
	KindRegDesk  Kind = "regdesk"
	KindRace     Kind = "race"
	KindTwitter  Kind = "twitter"
	KindActivity Kind = "activity"
	KindWoW      Kind = "wow"
	KindCommits  Kind = "commits"
	KindCheckins Kind = "checkins"
	KindSimple   Kind = "simple"
)

var allKinds = []Kind{
	KindVote, KindPresence, KindIkMic, KindStatus, KindIkCam,
	KindRegDesk, KindRace, KindTwitter, KindActivity, KindWoW,
	KindCommits, KindCheckins, KindSimple,
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	for _, kind := range allKinds {
		if Kind(s) == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Kinds returns all known kinds.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}
