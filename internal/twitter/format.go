package twitter

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/source"
)

// Matches reports whether the status passes the source's filter. A
// source without terms and user ids accepts everything. A term matches
// when all of its words occur in the gathered status text, in any
// order; a term surrounded by double quotes must occur as a literal
// phrase.
func Matches(st *Status, terms, userIDs []string) bool {
	if len(terms) == 0 && len(userIDs) == 0 {
		return true
	}

	text := st.matchText()
	for _, term := range terms {
		if termMatches(term, text) {
			return true
		}
	}

	if st.User != nil {
		id := strconv.FormatInt(st.User.ID, 10)
		for _, userID := range userIDs {
			if userID == id {
				return true
			}
		}
	}
	return false
}

func termMatches(term, text string) bool {
	if len(term) >= 2 && strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) {
		phrase := term[1 : len(term)-1]
		return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
	}

	words := strings.Fields(term)
	if len(words) == 0 {
		return false
	}
	for _, perm := range permutations(words) {
		quoted := make([]string, len(perm))
		for i, word := range perm {
			quoted[i] = regexp.QuoteMeta(word)
		}
		re, err := regexp.Compile("(?is)" + strings.Join(quoted, ".*"))
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func permutations(words []string) [][]string {
	var out [][]string
	var walk func(k int)
	walk = func(k int) {
		if k == len(words) {
			perm := make([]string, len(words))
			copy(perm, words)
			out = append(out, perm)
			return
		}
		for i := k; i < len(words); i++ {
			words[k], words[i] = words[i], words[k]
			walk(k + 1)
			words[k], words[i] = words[i], words[k]
		}
	}
	walk(0)
	return out
}

// NotificationFor renders a matched status for the given source.
func NotificationFor(src *source.Source, st *Status) models.Notification {
	n := models.Notification{}
	if st.User != nil {
		n[models.KeyTitle] = st.User.ScreenName
		n[models.KeyIcon] = st.User.ProfileImageURL
		n[models.KeyURI] = fmt.Sprintf("https://twitter.com/%s/statuses/%d",
			st.User.ScreenName, st.ID)
	}

	plain, anchored := rewriteURLs(st)
	n[models.KeySubtitle] = plain
	if anchored != "" {
		n[models.KeyHTML] = anchored
	}
	if st.ImageURL != "" {
		n[models.KeyPicture] = st.ImageURL
	}

	src.AddMeta(n)
	return n
}

// rewriteURLs replaces each URL and media entity in the status text
// with its display form, and returns the anchored variant alongside.
// Anchors point at the wrapped link as delivered in the status. Entity
// indices count runes; rewriting runs back to front so earlier indices
// stay valid.
func rewriteURLs(st *Status) (string, string) {
	if st.Entities == nil {
		return st.Text, ""
	}

	urls := append([]URLEntity(nil), st.Entities.URLs...)
	for _, m := range st.Entities.Media {
		urls = append(urls, URLEntity{
			URL:         m.URL,
			ExpandedURL: m.ExpandedURL,
			DisplayURL:  m.DisplayURL,
			Indices:     m.Indices,
		})
	}
	if len(urls) == 0 {
		return st.Text, ""
	}
	sort.Slice(urls, func(i, j int) bool {
		return urls[i].Indices[0] > urls[j].Indices[0]
	})

	plain := []rune(st.Text)
	anchored := []rune(st.Text)
	for _, u := range urls {
		start, end := u.Indices[0], u.Indices[1]
		if start < 0 || end < start || end > len(plain) {
			continue
		}
		href := u.URL
		if href == "" {
			href = u.ExpandedURL
		}
		display := u.DisplayURL
		if display == "" {
			display = u.ExpandedURL
		}
		if display == "" {
			display = href
		}
		anchor := "<a href=\"" + html.EscapeString(href) + "\">" +
			html.EscapeString(display) + "</a>"
		plain = splice(plain, start, end, []rune(display))
		anchored = splice(anchored, start, end, []rune(anchor))
	}
	return string(plain), string(anchored)
}

func splice(runes []rune, start, end int, repl []rune) []rune {
	out := make([]rune, 0, len(runes)-(end-start)+len(repl))
	out = append(out, runes[:start]...)
	out = append(out, repl...)
	out = append(out, runes[end:]...)
	return out
}
