package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/twitter"
)

func testEmbedder() *Embedder {
	return New("", nil, logging.NewLogger())
}

func resolveImage(t *testing.T, e *Embedder, pageURL string) string {
	t.Helper()
	img, err := e.ImageLinkFor(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("resolve %s: %v", pageURL, err)
	}
	return img
}

func TestImageLinkDirect(t *testing.T) {
	e := testEmbedder()
	for _, pageURL := range []string{
		"http://example.org/photo.jpg",
		"http://example.org/photo.JPEG",
		"http://example.org/photo.png",
		"http://example.org/photo.gif",
	} {
		if got := resolveImage(t, e, pageURL); got != pageURL {
			t.Errorf("image for %s = %q, want identity", pageURL, got)
		}
	}
}

func TestImageLinkTwitpic(t *testing.T) {
	e := testEmbedder()
	got := resolveImage(t, e, "http://twitpic.com/3cwe5j")
	if got != "http://twitpic.com/show/large/3cwe5j" {
		t.Errorf("image = %q", got)
	}
}

func TestImageLinkImgur(t *testing.T) {
	e := testEmbedder()
	if got := resolveImage(t, e, "http://i.imgur.com/H7TyK"); got != "http://i.imgur.com/H7TyK.jpg" {
		t.Errorf("image = %q", got)
	}
}

func TestImageLinkInstagram(t *testing.T) {
	e := testEmbedder()
	got := resolveImage(t, e, "http://instagr.am/p/BLah2/")
	if got != "http://instagr.am/p/BLah2/media/?size=l" {
		t.Errorf("image = %q", got)
	}
}

func TestImageLinkUnsupported(t *testing.T) {
	e := testEmbedder()
	if got := resolveImage(t, e, "http://example.org/article"); got != "" {
		t.Errorf("unsupported host must resolve to nothing, got %q", got)
	}
}

func TestImageLinkOEmbedPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"photo","url":"http://farm1.example.org/123_b.jpg"}`)
	}))
	defer srv.Close()

	e := testEmbedder()
	got, err := e.oEmbed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("oembed: %v", err)
	}
	if got != "http://farm1.example.org/123_b.jpg" {
		t.Errorf("image = %q", got)
	}
}

func TestImageLinkOEmbedNonPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"link","url":"http://example.org/"}`)
	}))
	defer srv.Close()

	e := testEmbedder()
	got, err := e.oEmbed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("oembed: %v", err)
	}
	if got != "" {
		t.Errorf("non-photo resource must resolve to nothing, got %q", got)
	}
}

func TestImageLinkCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	e := New("", client, logging.NewLogger())

	pageURL := "http://twitpic.com/3cwe5j"
	want := "http://twitpic.com/show/large/3cwe5j"
	if got := resolveImage(t, e, pageURL); got != want {
		t.Fatalf("image = %q", got)
	}

	cached, err := client.Get(context.Background(), cachePrefix+pageURL).Result()
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if cached != want {
		t.Errorf("cached = %q", cached)
	}

	mr.Set(cachePrefix+pageURL, "http://example.org/override.jpg")
	if got := resolveImage(t, e, pageURL); got != "http://example.org/override.jpg" {
		t.Errorf("cache hit must win, got %q", got)
	}
}

func TestAugmentStatusPrefersMedia(t *testing.T) {
	st := &twitter.Status{
		Entities: &twitter.Entities{
			Media: []twitter.MediaEntity{{MediaURL: "http://pbs.example.org/media.jpg"}},
			URLs:  []twitter.URLEntity{{URL: "http://twitpic.com/3cwe5j"}},
		},
	}

	if err := testEmbedder().AugmentStatusWithImage(context.Background(), st); err != nil {
		t.Fatalf("augment: %v", err)
	}
	if st.ImageURL != "http://pbs.example.org/media.jpg" {
		t.Errorf("image = %q", st.ImageURL)
	}
}

func TestAugmentStatusResolvesURLs(t *testing.T) {
	st := &twitter.Status{
		Entities: &twitter.Entities{
			URLs: []twitter.URLEntity{
				{URL: "http://example.org/article"},
				{URL: "http://t.co/abc", ExpandedURL: "http://twitpic.com/3cwe5j"},
			},
		},
	}

	if err := testEmbedder().AugmentStatusWithImage(context.Background(), st); err != nil {
		t.Fatalf("augment: %v", err)
	}
	if st.ImageURL != "http://twitpic.com/show/large/3cwe5j" {
		t.Errorf("image = %q", st.ImageURL)
	}
}

func TestAugmentStatusSchemelessURL(t *testing.T) {
	st := &twitter.Status{
		Entities: &twitter.Entities{
			URLs: []twitter.URLEntity{{URL: "twitpic.com/3cwe5j"}},
		},
	}

	if err := testEmbedder().AugmentStatusWithImage(context.Background(), st); err != nil {
		t.Fatalf("augment: %v", err)
	}
	if st.ImageURL != "http://twitpic.com/show/large/3cwe5j" {
		t.Errorf("image = %q", st.ImageURL)
	}
}

func TestAugmentStatusWithoutEntities(t *testing.T) {
	st := &twitter.Status{Text: "plain"}
	if err := testEmbedder().AugmentStatusWithImage(context.Background(), st); err != nil {
		t.Fatalf("augment: %v", err)
	}
	if st.ImageURL != "" {
		t.Errorf("image = %q", st.ImageURL)
	}
}
