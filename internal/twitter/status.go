package twitter

import "strings"

// User is the author of a status, as far as the display cares.
type User struct {
	ID              int64  `json:"id"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// URLEntity is a shortened URL in a status, with its rune offsets into
// the status text.
type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
	Indices     [2]int `json:"indices"`
}

// MediaEntity is an attached photo or video. Like a URL entity it
// carries the wrapped link and its rune offsets into the status text.
type MediaEntity struct {
	MediaURL    string `json:"media_url"`
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
	Indices     [2]int `json:"indices"`
}

// Entities groups the linkable parts of a status.
type Entities struct {
	URLs  []URLEntity   `json:"urls"`
	Media []MediaEntity `json:"media"`
}

// Status is one entry from the streaming API. ImageURL is not on the
// wire; it is filled in by image resolution before formatting.
type Status struct {
	ID                  int64     `json:"id"`
	Text                string    `json:"text"`
	InReplyToScreenName string    `json:"in_reply_to_screen_name"`
	User                *User     `json:"user"`
	Entities            *Entities `json:"entities"`

	ImageURL string `json:"-"`
}

// matchText gathers everything a filter term can match against: the
// status text, the screen names involved, and the expanded URLs of
// both link and media entities.
func (st *Status) matchText() string {
	parts := []string{st.Text}
	if st.InReplyToScreenName != "" {
		parts = append(parts, st.InReplyToScreenName)
	}
	if st.User != nil {
		parts = append(parts, st.User.ScreenName)
	}
	if st.Entities != nil {
		for _, u := range st.Entities.URLs {
			if u.ExpandedURL != "" {
				parts = append(parts, u.ExpandedURL)
			}
		}
		for _, m := range st.Entities.Media {
			if m.ExpandedURL != "" {
				parts = append(parts, m.ExpandedURL)
			}
		}
	}
	return strings.Join(parts, " ")
}
