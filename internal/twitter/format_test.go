package twitter

import (
	"testing"

	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/source"
	"github.com/mediamatic/ikdisplay/internal/store"
)

func twitterSource(terms, userIDs []string) *source.Source {
	return &source.Source{
		Kind:    source.KindTwitter,
		Feed:    &store.Feed{ID: 1, Handle: "mediamatic", Language: "en"},
		Enabled: true,
		Terms:   terms,
		UserIDs: userIDs,
	}
}

func sampleStatus() *Status {
	return &Status{
		ID:   1366295180115222529,
		Text: "Reticulating splines",
		User: &User{
			ID:              594949,
			ScreenName:      "ralphm",
			ProfileImageURL: "http://example.org/ralphm.png",
		},
	}
}

func TestMatchesEmptyFilters(t *testing.T) {
	if !Matches(sampleStatus(), nil, nil) {
		t.Error("a source without filters must match everything")
	}
}

func TestMatchesTerm(t *testing.T) {
	st := sampleStatus()
	if !Matches(st, []string{"SPLINES"}, nil) {
		t.Error("term matching must be case insensitive")
	}
	if Matches(st, []string{"frobnicate"}, nil) {
		t.Error("unrelated term must not match")
	}
}

func TestMatchesTermWordOrder(t *testing.T) {
	st := sampleStatus()
	st.Text = "Python and Twisted rock"
	if !Matches(st, []string{"twisted python"}, nil) {
		t.Error("term words must match in any order")
	}
}

func TestMatchesQuotedPhrase(t *testing.T) {
	st := sampleStatus()
	st.Text = "Python and Twisted rock"
	if Matches(st, []string{`"twisted python"`}, nil) {
		t.Error("quoted term must only match the literal phrase")
	}
	st.Text = "I do like Twisted Python a lot"
	if !Matches(st, []string{`"twisted python"`}, nil) {
		t.Error("quoted term must match the literal phrase")
	}
}

func TestMatchesUserID(t *testing.T) {
	st := sampleStatus()
	if !Matches(st, nil, []string{"594949"}) {
		t.Error("status from a followed user must match")
	}
	if Matches(st, nil, []string{"12345"}) {
		t.Error("status from another user must not match")
	}
}

func TestMatchesScreenNames(t *testing.T) {
	st := sampleStatus()
	st.InReplyToScreenName = "frobnicator"
	if !Matches(st, []string{"frobnicator"}, nil) {
		t.Error("reply screen name must be matched against")
	}
	if !Matches(st, []string{"ralphm"}, nil) {
		t.Error("author screen name must be matched against")
	}
}

func TestMatchesExpandedURL(t *testing.T) {
	st := sampleStatus()
	st.Entities = &Entities{
		URLs: []URLEntity{{
			URL:         "http://t.co/abc",
			ExpandedURL: "http://www.mediamatic.net/page/1234",
		}},
	}
	if !Matches(st, []string{"mediamatic.net"}, nil) {
		t.Error("expanded URLs must be matched against")
	}
}

func TestMatchesMediaURL(t *testing.T) {
	st := sampleStatus()
	st.Entities = &Entities{
		Media: []MediaEntity{{
			URL:         "http://t.co/photo1",
			ExpandedURL: "http://www.mediamatic.net/page/1234/photo/1",
		}},
	}
	if !Matches(st, []string{"mediamatic.net"}, nil) {
		t.Error("expanded media URLs must be matched against")
	}
}

func TestNotificationBasic(t *testing.T) {
	src := twitterSource([]string{"splines"}, nil)

	n := NotificationFor(src, sampleStatus())
	if n[models.KeyTitle] != "ralphm" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
	if n[models.KeySubtitle] != "Reticulating splines" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
	if n[models.KeyIcon] != "http://example.org/ralphm.png" {
		t.Errorf("icon = %q", n[models.KeyIcon])
	}
	if n[models.KeyURI] != "https://twitter.com/ralphm/statuses/1366295180115222529" {
		t.Errorf("uri = %q", n[models.KeyURI])
	}
	if n[models.KeyMeta] != "via Twitter" {
		t.Errorf("meta = %q", n[models.KeyMeta])
	}
	if _, ok := n[models.KeyHTML]; ok {
		t.Error("status without URLs must not carry an html variant")
	}
}

func TestNotificationURLRewrite(t *testing.T) {
	st := sampleStatus()
	// The runes before the URL include a multi-byte character, so the
	// entity indices only line up when counted in runes.
	st.Text = "Prachtig plaatje ván http://t.co/8J0lJpGm mooi zo"
	st.Entities = &Entities{
		URLs: []URLEntity{{
			URL:         "http://t.co/8J0lJpGm",
			ExpandedURL: "http://www.mediamatic.net/page/163392/nl",
			DisplayURL:  "mediamatic.net/page/163392/nl",
			Indices:     [2]int{21, 41},
		}},
	}

	n := NotificationFor(twitterSource(nil, nil), st)
	if got, want := n[models.KeySubtitle], "Prachtig plaatje ván mediamatic.net/page/163392/nl mooi zo"; got != want {
		t.Errorf("subtitle = %q, want %q", got, want)
	}
	wantHTML := "Prachtig plaatje ván <a href=\"http://t.co/8J0lJpGm\">mediamatic.net/page/163392/nl</a> mooi zo"
	if got := n[models.KeyHTML]; got != wantHTML {
		t.Errorf("html = %q, want %q", got, wantHTML)
	}
}

func TestNotificationMediaRewrite(t *testing.T) {
	st := sampleStatus()
	st.Text = "Look at this http://t.co/photo1 wow"
	st.Entities = &Entities{
		Media: []MediaEntity{{
			MediaURL:    "http://pbs.twimg.com/media/abc.jpg",
			URL:         "http://t.co/photo1",
			ExpandedURL: "http://twitter.com/ralphm/status/1/photo/1",
			DisplayURL:  "pic.twitter.com/photo1",
			Indices:     [2]int{13, 31},
		}},
	}

	n := NotificationFor(twitterSource(nil, nil), st)
	if got, want := n[models.KeySubtitle], "Look at this pic.twitter.com/photo1 wow"; got != want {
		t.Errorf("subtitle = %q, want %q", got, want)
	}
	wantHTML := "Look at this <a href=\"http://t.co/photo1\">pic.twitter.com/photo1</a> wow"
	if got := n[models.KeyHTML]; got != wantHTML {
		t.Errorf("html = %q, want %q", got, wantHTML)
	}
}

func TestNotificationMultipleURLs(t *testing.T) {
	st := sampleStatus()
	st.Text = "a http://t.co/one b http://t.co/two c"
	st.Entities = &Entities{
		URLs: []URLEntity{
			{URL: "http://t.co/one", DisplayURL: "one.example.org", Indices: [2]int{2, 17}},
			{URL: "http://t.co/two", DisplayURL: "two.example.org", Indices: [2]int{20, 35}},
		},
	}

	n := NotificationFor(twitterSource(nil, nil), st)
	if got, want := n[models.KeySubtitle], "a one.example.org b two.example.org c"; got != want {
		t.Errorf("subtitle = %q, want %q", got, want)
	}
}

func TestNotificationPicture(t *testing.T) {
	st := sampleStatus()
	st.ImageURL = "http://example.org/photo.jpg"

	n := NotificationFor(twitterSource(nil, nil), st)
	if n[models.KeyPicture] != "http://example.org/photo.jpg" {
		t.Errorf("picture = %q", n[models.KeyPicture])
	}
}
