package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/twitter"
)

const (
	cacheTTL        = 24 * time.Hour
	cachePrefix     = "embed:image:"
	oEmbedTypePhoto = "photo"
)

// Embedder resolves a page URL to a direct image URL. Well-known photo
// hosts get their URL rewritten or their oEmbed endpoint asked; the
// rest goes through the embed.ly aggregation service when a key is
// configured. Resolved links are cached in Redis when a client is set.
type Embedder struct {
	client     *http.Client
	executor   failsafe.Executor[*http.Response]
	cache      goredis.UniversalClient
	embedlyKey string
	logger     logging.Logger

	rules []rule
}

type rule struct {
	re      *regexp.Regexp
	resolve func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error)
}

// New creates an embedder. The cache client and the embed.ly key may
// both be empty.
func New(embedlyKey string, cache goredis.UniversalClient, logger logging.Logger) *Embedder {
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		Build()

	e := &Embedder{
		client:     &http.Client{Timeout: 15 * time.Second},
		executor:   failsafe.With(retry),
		cache:      cache,
		embedlyKey: embedlyKey,
		logger:     logger,
	}
	e.rules = []rule{
		{
			re: regexp.MustCompile(`(?i)\.(?:jpe?g|png|gif)$`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return pageURL, nil
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.)?twitpic\.com/(\w+)`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return "http://twitpic.com/show/large/" + groups[1], nil
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.|i\.)?imgur\.com/(\w+)$`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return pageURL + ".jpg", nil
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.)?(?:instagr\.am|instagram\.com)/p/[\w-]+`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return strings.TrimRight(pageURL, "/") + "/media/?size=l", nil
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.)?mobypicture\.com/`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return e.oEmbed(ctx, "http://api.mobypicture.com/oEmbed?url="+
					url.QueryEscape(pageURL)+"&format=json")
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.)?(?:flickr\.com/photos/|flic\.kr/p/)`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return e.oEmbed(ctx, "http://www.flickr.com/services/oembed/?url="+
					url.QueryEscape(pageURL)+"&format=json")
			},
		},
		{
			re: regexp.MustCompile(`^https?://(?:www\.)?(?:yfrog\.com|twitgoo\.com|plixi\.com)/`),
			resolve: func(ctx context.Context, e *Embedder, pageURL string, groups []string) (string, error) {
				return e.embedly(ctx, pageURL)
			},
		},
	}
	return e
}

// ImageLinkFor resolves a page URL to a direct image URL. An empty
// result without error means the host is not supported.
func (e *Embedder) ImageLinkFor(ctx context.Context, pageURL string) (string, error) {
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, cachePrefix+pageURL).Result()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, goredis.Nil) {
			e.logger.WithError(err).Debug("Image cache lookup failed")
		}
	}

	img, err := e.resolve(ctx, pageURL)
	if err != nil {
		return "", err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, cachePrefix+pageURL, img, cacheTTL).Err(); err != nil {
			e.logger.WithError(err).Debug("Image cache store failed")
		}
	}
	return img, nil
}

func (e *Embedder) resolve(ctx context.Context, pageURL string) (string, error) {
	for _, r := range e.rules {
		if groups := r.re.FindStringSubmatch(pageURL); groups != nil {
			return r.resolve(ctx, e, pageURL, groups)
		}
	}
	return "", nil
}

// oEmbed asks an oEmbed endpoint and returns the photo URL, or empty
// when the resource is not a photo.
func (e *Embedder) oEmbed(ctx context.Context, endpoint string) (string, error) {
	resp, err := e.get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("oembed request failed with status %d", resp.StatusCode)
	}

	var doc struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode oembed response: %w", err)
	}
	if doc.Type != oEmbedTypePhoto {
		return "", nil
	}
	return doc.URL, nil
}

func (e *Embedder) embedly(ctx context.Context, pageURL string) (string, error) {
	endpoint := "http://api.embed.ly/1/oembed?"
	if e.embedlyKey != "" {
		endpoint += "key=" + url.QueryEscape(e.embedlyKey) + "&"
	}
	endpoint += "url=" + url.QueryEscape(pageURL)
	return e.oEmbed(ctx, endpoint)
}

func (e *Embedder) get(ctx context.Context, endpoint string) (*http.Response, error) {
	return e.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		return e.client.Do(req)
	})
}

// AugmentStatusWithImage fills in the status image. Attached media wins
// outright; otherwise every linked page is resolved concurrently and
// the first resolvable one, in entity order, is used. Resolution
// failures leave the status without an image.
func (e *Embedder) AugmentStatusWithImage(ctx context.Context, st *twitter.Status) error {
	if st.Entities == nil {
		return nil
	}
	if len(st.Entities.Media) > 0 && st.Entities.Media[0].MediaURL != "" {
		st.ImageURL = st.Entities.Media[0].MediaURL
		return nil
	}

	urls := st.Entities.URLs
	if len(urls) == 0 {
		return nil
	}

	results := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		target := u.ExpandedURL
		if target == "" {
			target = u.URL
		}
		if target == "" {
			continue
		}
		if !strings.Contains(target, "://") {
			target = "http://" + target
		}
		i, target := i, target
		g.Go(func() error {
			img, err := e.ImageLinkFor(gctx, target)
			if err != nil {
				e.logger.WithError(err).WithFields(logging.Fields{
					"url": target,
				}).Debug("Image resolution failed")
				return nil
			}
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, img := range results {
		if img != "" {
			st.ImageURL = img
			return nil
		}
	}
	return nil
}
