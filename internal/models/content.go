package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ContentKind tags which fields of a Content are present
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentLink  ContentKind = "link"
	ContentMixed ContentKind = "mixed"
)

// MaxContentText matches the Telegram message length limit
const MaxContentText = 4096

// Content is the advertiser-supplied creative. It is opaque to the engine
// beyond the presence checks done in NewContent.
type Content struct {
	Kind ContentKind
	Text string
	Link string
}

type contentJSON struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
	Link string `json:"link,omitempty"`
}

// NewContent validates text and link and derives the kind
func NewContent(text, link string) (Content, error) {
	text = strings.TrimSpace(text)
	link = strings.TrimSpace(link)

	if text == "" && link == "" {
		return Content{}, Validationf("content requires text or link")
	}
	if utf8.RuneCountInString(text) > MaxContentText {
		return Content{}, Validationf("content text exceeds %d characters", MaxContentText)
	}
	if link != "" {
		u, err := url.Parse(link)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Content{}, Validationf("content link must be an absolute http(s) URL")
		}
	}

	c := Content{Text: text, Link: link}
	switch {
	case text != "" && link != "":
		c.Kind = ContentMixed
	case text != "":
		c.Kind = ContentText
	default:
		c.Kind = ContentLink
	}
	return c, nil
}

// MarshalJSON implements json.Marshaler
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{Type: string(c.Kind), Text: c.Text, Link: c.Link})
}

// UnmarshalJSON decodes and validates content. An explicit type must agree with the fields.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw contentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Validationf("content must be an object with text and/or link")
	}

	parsed, err := NewContent(raw.Text, raw.Link)
	if err != nil {
		return err
	}
	if raw.Type != "" && ContentKind(raw.Type) != parsed.Kind {
		return Validationf("content type %q does not match fields (%s)", raw.Type, parsed.Kind)
	}

	*c = parsed
	return nil
}

// Value stores content as JSONB
func (c Content) Value() (driver.Value, error) {
	return json.Marshal(contentJSON{Type: string(c.Kind), Text: c.Text, Link: c.Link})
}

// Scan reads content written by Value
func (c *Content) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*c = Content{}
		return nil
	default:
		return fmt.Errorf("unsupported content type %T", src)
	}
	return c.UnmarshalJSON(data)
}

// RenderPost builds the publication text: creative text, the ERID marker, then the link.
func RenderPost(c Content, erid *string) string {
	parts := make([]string, 0, 3)
	if c.Text != "" {
		parts = append(parts, c.Text)
	}
	if erid != nil && *erid != "" {
		parts = append(parts, "ERID: "+*erid)
	}
	if c.Link != "" {
		parts = append(parts, c.Link)
	}
	out := strings.Join(parts, "\n\n")
	if utf8.RuneCountInString(out) > MaxContentText {
		r := []rune(out)
		out = string(r[:MaxContentText])
	}
	return out
}
