package source

import (
	"strings"
	"testing"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

func testLogger() logging.Logger {
	return logging.NewLogger()
}

func parsePayload(t *testing.T, s string) *xmpp.Element {
	t.Helper()
	el, err := xmpp.ParseElementString(s)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return el
}

func englishFeed() *store.Feed {
	return &store.Feed{ID: 1, Handle: "mediamatic", Language: "en"}
}

const votePayload = `
<rsp>
  <vote>
    <id>173603</id>
    <user_id_ref>124445</user_id_ref>
    <answer_id_ref>160252</answer_id_ref>
    <question_id_ref>160225</question_id_ref>
  </vote>
  <person>
    <title>Fred Pook</title>
    <image>http://fast.mediamatic.nl/f/sjnh/image/411/124445-480-480-crop.jpg</image>
    <works_for/>
  </person>
  <question>
    <title>Publieks-poll voor de DOEN pitch</title>
    <id>160225</id>
    <answers>
      <item>
        <answer_id>160252</answer_id>
        <title>Shadow Search Platform</title>
        <count>1</count>
      </item>
    </answers>
    <total_votes>3</total_votes>
  </question>
</rsp>`

func TestVoteFormat(t *testing.T) {
	src := &Source{
		Kind:     KindVote,
		Feed:     englishFeed(),
		Question: &store.Thing{URI: "http://www.mediamatic.net/id/160225"},
	}

	n := src.FormatPayload(parsePayload(t, votePayload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	if n[models.KeyTitle] != "Fred Pook" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
	if n[models.KeySubtitle] != "voted for Shadow Search Platform" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
	if n[models.KeyIcon] != "http://fast.mediamatic.nl/f/sjnh/image/411/124445-480-480-crop.jpg" {
		t.Errorf("icon = %q", n[models.KeyIcon])
	}

	src.AddMeta(n)
	if n[models.KeyMeta] != "via ikPoll" {
		t.Errorf("meta = %q", n[models.KeyMeta])
	}
}

func TestVoteFormatAlien(t *testing.T) {
	payload := strings.Replace(votePayload, "<title>Fred Pook</title>", "<title></title>", 1)
	src := &Source{Kind: KindVote, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	if n[models.KeyTitle] != "An illegal alien" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
}

func TestVoteFormatPrefix(t *testing.T) {
	payload := strings.Replace(votePayload,
		"<title>Fred Pook</title>",
		"<prefix>Dhr.</prefix><title>Fred Pook</title>", 1)
	src := &Source{Kind: KindVote, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n[models.KeyTitle] != "Dhr. Fred Pook" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
}

func TestVoteFormatTemplateOverride(t *testing.T) {
	src := &Source{Kind: KindVote, Feed: englishFeed(), Template: "picked %s"}

	n := src.FormatPayload(parsePayload(t, votePayload))
	if n[models.KeySubtitle] != "picked Shadow Search Platform" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
}

func TestPresenceFormat(t *testing.T) {
	src := &Source{Kind: KindPresence, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, votePayload))
	if n[models.KeySubtitle] != "was at the entrance" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}

	alien := strings.Replace(votePayload, "<title>Fred Pook</title>", "<title></title>", 1)
	n = src.FormatPayload(parsePayload(t, alien))
	if n[models.KeySubtitle] != "has been detained at the entrance" {
		t.Errorf("alien subtitle = %q", n[models.KeySubtitle])
	}
}

func TestIkMicFormat(t *testing.T) {
	src := &Source{Kind: KindIkMic, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, votePayload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	lines := textsFor(KindIkMic, LangEN).interrupt
	found := false
	for _, line := range lines {
		if n[models.KeySubtitle] == line {
			found = true
		}
	}
	if !found {
		t.Errorf("subtitle %q not an interrupt line", n[models.KeySubtitle])
	}
}

const statusPayload = `
<rsp>
  <status>roze koeken ftw</status>
  <person>
    <title>Arjan Scherpenisse</title>
    <image>http://fast.mediamatic.nl/f/sjnh/image/530/27597-480-480-crop.jpg</image>
    <uri>http://www.mediamatic.net/id/22661</uri>
  </person>
</rsp>`

func TestStatusFormat(t *testing.T) {
	src := &Source{
		Kind: KindStatus,
		Feed: englishFeed(),
		Site: &store.Site{Title: "Mediamatic", URI: "http://www.mediamatic.net/"},
	}

	n := src.FormatPayload(parsePayload(t, statusPayload))
	if n[models.KeyTitle] != "Arjan Scherpenisse" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
	if n[models.KeySubtitle] != "roze koeken ftw" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}

	src.AddMeta(n)
	if n[models.KeyMeta] != "via Mediamatic" {
		t.Errorf("meta = %q", n[models.KeyMeta])
	}
}

func TestStatusFormatDrops(t *testing.T) {
	src := &Source{Kind: KindStatus, Feed: englishFeed()}

	for _, status := range []string{"", "is", "  is  "} {
		payload := strings.Replace(statusPayload,
			"<status>roze koeken ftw</status>", "<status>"+status+"</status>", 1)
		if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
			t.Errorf("status %q should be dropped, got %v", status, n)
		}
	}
}

func TestRegDeskFormat(t *testing.T) {
	src := &Source{Kind: KindRegDesk, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, statusPayload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	lines := textsFor(KindRegDesk, LangEN).regdesk
	found := false
	for _, line := range lines {
		if n[models.KeySubtitle] == line {
			found = true
		}
	}
	if !found {
		t.Errorf("subtitle %q not an arrival line", n[models.KeySubtitle])
	}

	if n := src.FormatPayload(parsePayload(t, "<rsp><other/></rsp>")); n != nil {
		t.Errorf("payload without person should be dropped, got %v", n)
	}
}

func TestRaceFormat(t *testing.T) {
	payload := `
<rsp>
  <person>
    <title>Joan</title>
    <image>http://example.org/joan.jpg</image>
  </person>
  <event>Westerpark Alleycat</event>
  <time>17:20</time>
</rsp>`
	src := &Source{Kind: KindRace, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n[models.KeySubtitle] != "finished the Westerpark Alleycat in 17:20." {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
}

func TestSimpleFormat(t *testing.T) {
	payload := `
<entry>
  <title>Hello</title>
  <subtitle>World</subtitle>
  <image>http://example.org/x.png</image>
  <noise>dropped</noise>
</entry>`
	src := &Source{Kind: KindSimple, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n[models.KeyTitle] != "Hello" || n[models.KeySubtitle] != "World" {
		t.Fatalf("unexpected notification: %v", n)
	}
	if n[models.KeyIcon] != "http://example.org/x.png" {
		t.Errorf("icon = %q", n[models.KeyIcon])
	}
	if _, ok := n["noise"]; ok {
		t.Error("unknown elements must not leak into the notification")
	}
}

const activityPayload = `
<entry xmlns="http://www.w3.org/2005/Atom">
  <verb xmlns="http://activitystrea.ms/spec/1.0/">http://activitystrea.ms/schema/1.0/tag</verb>
  <author>
    <name>Ralph Meijer</name>
    <link rel="figure" href="http://example.org/ralph.jpg"/>
  </author>
  <object>
    <title>Birgit Meijer</title>
  </object>
  <target>
    <title>Test artikel</title>
  </target>
</entry>`

func TestActivityTagFormat(t *testing.T) {
	src := &Source{
		Kind: KindActivity,
		Feed: englishFeed(),
		Site: &store.Site{Title: "Mediamatic", URI: "http://www.mediamatic.net/"},
	}

	n := src.FormatPayload(parsePayload(t, activityPayload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	if n[models.KeyTitle] != "Ralph Meijer" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
	if n[models.KeySubtitle] != "tagged Birgit Meijer in Test artikel" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
	if n[models.KeyIcon] != "http://example.org/ralph.jpg?width=80&height=80&filter=crop" {
		t.Errorf("icon = %q", n[models.KeyIcon])
	}
}

func TestActivityMissingTargetDropped(t *testing.T) {
	payload := strings.Replace(activityPayload,
		"<title>Test artikel</title>", "", 1)
	src := &Source{Kind: KindActivity, Feed: englishFeed()}

	// The tag template references the target title; without one the
	// text would read "tagged Birgit Meijer in ".
	if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
		t.Errorf("activity without its target title should be dropped, got %v", n)
	}
}

func TestActivityStatusUpdateDropped(t *testing.T) {
	payload := strings.Replace(activityPayload,
		"http://activitystrea.ms/schema/1.0/tag",
		"http://mediamatic.nl/ns/anymeta/2010/activitystreams/status-update", 1)
	src := &Source{Kind: KindActivity, Feed: englishFeed()}

	if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
		t.Errorf("status-update verb should be dropped, got %v", n)
	}
}

func TestActivityUnknownVerbDropped(t *testing.T) {
	payload := strings.Replace(activityPayload,
		"http://activitystrea.ms/schema/1.0/tag",
		"http://activitystrea.ms/schema/1.0/play", 1)
	src := &Source{Kind: KindActivity, Feed: englishFeed()}

	if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
		t.Errorf("unknown verb should be dropped, got %v", n)
	}
}

func TestActivityAgentDropped(t *testing.T) {
	payload := strings.Replace(activityPayload, "</entry>",
		`<agent><id>http://example.org/id/99</id></agent></entry>`, 1)
	src := &Source{Kind: KindActivity, Feed: englishFeed()}

	// tag is not an agent verb, so an agent-driven tag is dropped.
	if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
		t.Errorf("agent activity should be dropped, got %v", n)
	}
}

func TestActivityAttachmentPicture(t *testing.T) {
	payload := `
<entry xmlns="http://www.w3.org/2005/Atom">
  <verb xmlns="http://activitystrea.ms/spec/1.0/">http://activitystrea.ms/schema/1.0/post</verb>
  <author><name>Ralph Meijer</name></author>
  <object>
    <title>Foto</title>
    <object-type xmlns="http://activitystrea.ms/spec/1.0/">http://mediamatic.nl/ns/anymeta/2008/kind/attachment</object-type>
    <link rel="figure" href="http://example.org/foto.jpg"/>
  </object>
</entry>`
	src := &Source{Kind: KindActivity, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	if n[models.KeyPicture] != "http://example.org/foto.jpg?width=480" {
		t.Errorf("picture = %q", n[models.KeyPicture])
	}
}

func TestCommitsFormat(t *testing.T) {
	payload := `
<entry xmlns="http://www.w3.org/2005/Atom">
  <verb xmlns="http://activitystrea.ms/spec/1.0/">http://mediamatic.nl/ns/schema/2010/verb/commit</verb>
  <author><name>Arjan</name></author>
  <object>
    <title>r12345</title>
    <message>Fix the flux capacitor
Longer explanation here.</message>
  </object>
  <target>
    <title>anymeta</title>
  </target>
</entry>`
	src := &Source{Kind: KindCommits, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, payload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	want := "committed r12345 on anymeta: Fix the flux capacitor"
	if n[models.KeySubtitle] != want {
		t.Errorf("subtitle = %q, want %q", n[models.KeySubtitle], want)
	}
}

func TestWoWFormatAgentFilter(t *testing.T) {
	payload := `
<entry xmlns="http://www.w3.org/2005/Atom">
  <verb xmlns="http://activitystrea.ms/spec/1.0/">http://activitystrea.ms/schema/1.0/post</verb>
  <author><name>Wall</name></author>
  <object><title>een berichtje</title></object>
  <agent><id>http://example.org/id/42</id></agent>
</entry>`
	src := &Source{
		Kind:  KindWoW,
		Feed:  englishFeed(),
		Agent: &store.Thing{URI: "http://example.org/id/42"},
	}

	if n := src.FormatPayload(parsePayload(t, payload)); n == nil {
		t.Fatal("matching agent should format")
	}

	src.Agent = &store.Thing{URI: "http://example.org/id/43"}
	if n := src.FormatPayload(parsePayload(t, payload)); n != nil {
		t.Errorf("mismatching agent should be dropped, got %v", n)
	}
}

const ikCamPayload = `
<entry xmlns="http://www.w3.org/2005/Atom">
  <verb xmlns="http://activitystrea.ms/spec/1.0/">http://mediamatic.nl/ns/anymeta/2010/activitystreams/ikcam</verb>
  <author><name>Arjan</name></author>
  <author><name>Fred</name></author>
  <author><name>Birgit</name></author>
  <object>
    <link rel="figure" href="http://example.org/groepsfoto.jpg"/>
  </object>
  <target>
    <id>http://example.org/id/2</id>
    <title>Noord exhibition</title>
  </target>
</entry>`

func TestIkCamFormat(t *testing.T) {
	src := &Source{Kind: KindIkCam, Feed: englishFeed()}

	n := src.FormatPayload(parsePayload(t, ikCamPayload))
	if n == nil {
		t.Fatal("expected a notification")
	}
	if n[models.KeyTitle] != "Arjan, Fred and Birgit" {
		t.Errorf("title = %q", n[models.KeyTitle])
	}
	if n[models.KeySubtitle] != "took a group portrait at Noord exhibition" {
		t.Errorf("subtitle = %q", n[models.KeySubtitle])
	}
	if n[models.KeyPicture] != "http://example.org/groepsfoto.jpg?width=480" {
		t.Errorf("picture = %q", n[models.KeyPicture])
	}
}

func TestIkCamEventFilter(t *testing.T) {
	src := &Source{
		Kind:  KindIkCam,
		Feed:  englishFeed(),
		Event: &store.Thing{URI: "http://example.org/id/3"},
	}
	if n := src.FormatPayload(parsePayload(t, ikCamPayload)); n != nil {
		t.Errorf("picture from another event should be dropped, got %v", n)
	}
}

func TestNodeAddresses(t *testing.T) {
	question := &store.Thing{URI: "http://www.mediamatic.net/id/160225"}
	site := &store.Site{URI: "http://www.mediamatic.net/"}

	cases := []struct {
		name    string
		src     *Source
		service string
		node    string
	}{
		{"vote", &Source{Kind: KindVote, Question: question}, "pubsub.mediamatic.net", "vote/160225"},
		{"status", &Source{Kind: KindStatus, Site: site}, "pubsub.mediamatic.net", "status"},
		{"regdesk", &Source{Kind: KindRegDesk, Event: question}, "pubsub.mediamatic.net", "regdesk/by_event/160225"},
		{"race", &Source{Kind: KindRace, Race: question}, "pubsub.mediamatic.net", "race/160225"},
		{"ikcam creator", &Source{Kind: KindIkCam, Creator: &store.Thing{URI: "http://example.org/id/1"}}, "pubsub.example.org", "ikcam/1"},
		{"ikcam event", &Source{Kind: KindIkCam, Event: &store.Thing{URI: "http://example.org/id/2"}}, "pubsub.example.org", "ikcam/by_event/2"},
		{"activity", &Source{Kind: KindActivity, Site: site}, "pubsub.mediamatic.net", "activity"},
		{"wow", &Source{Kind: KindWoW, Agent: question}, "pubsub.mediamatic.net", "activity"},
		{"checkins", &Source{Kind: KindCheckins, Site: site}, "pubsub.mediamatic.net", "activity"},
		{"simple", &Source{Kind: KindSimple, Service: "pubsub.example.org", NodeIdentifier: "news"}, "pubsub.example.org", "news"},
	}
	for _, c := range cases {
		service, node, err := c.src.NodeAddress()
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if service.Full() != c.service || node != c.node {
			t.Errorf("%s: got (%s, %s), want (%s, %s)", c.name, service.Full(), node, c.service, c.node)
		}
	}
}

func TestNodeAddressUndefined(t *testing.T) {
	for _, src := range []*Source{
		{Kind: KindVote},
		{Kind: KindStatus},
		{Kind: KindIkCam},
		{Kind: KindTwitter},
		{Kind: KindSimple},
	} {
		if _, _, err := src.NodeAddress(); err == nil {
			t.Errorf("%s: expected an error for unset references", src.Kind)
		}
	}
}

func TestImplodeNames(t *testing.T) {
	if got := implodeNames([]string{"a"}, LangEN); got != "a" {
		t.Errorf("single = %q", got)
	}
	if got := implodeNames([]string{"a", "b"}, LangEN); got != "a and b" {
		t.Errorf("pair = %q", got)
	}
	if got := implodeNames([]string{"a", "b", "c"}, LangNL); got != "a, b en c" {
		t.Errorf("dutch triple = %q", got)
	}
}

func TestFormatItemsOrderAndDrops(t *testing.T) {
	src := &Source{
		Kind: KindStatus,
		Feed: englishFeed(),
		Site: &store.Site{Title: "Mediamatic"},
	}

	good := parsePayload(t, statusPayload)
	bad := parsePayload(t, strings.Replace(statusPayload,
		"<status>roze koeken ftw</status>", "<status>is</status>", 1))
	second := parsePayload(t, strings.Replace(statusPayload,
		"<status>roze koeken ftw</status>", "<status>tweede</status>", 1))

	event := xmpp.ItemsEvent{
		Node: "status",
		Items: []xmpp.Item{
			{ID: "1", Payload: good},
			{ID: "2", Payload: bad},
			{ID: "3", Payload: second},
		},
	}

	notifications := src.FormatItems(event, testLogger())
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}
	if notifications[0][models.KeySubtitle] != "roze koeken ftw" ||
		notifications[1][models.KeySubtitle] != "tweede" {
		t.Errorf("order not preserved: %v", notifications)
	}
	for _, n := range notifications {
		if !n.Valid() {
			t.Errorf("invalid notification emitted: %v", n)
		}
		if n[models.KeyMeta] != "via Mediamatic" {
			t.Errorf("meta = %q", n[models.KeyMeta])
		}
	}
}
