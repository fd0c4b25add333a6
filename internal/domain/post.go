package domain

import (
	"fmt"
	"time"
)

type Post struct {
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Cover    string   `json:"cover,omitempty"`
	Date     string   `json:"date"`
	Tags     []string `json:"tags,omitempty"`
}

// Card is the listing view of a Post.
type Card struct {
	Href     string   `json:"href"`
	Image    string   `json:"image"`
	Fallback string   `json:"fallback"`
	Alt      string   `json:"alt"`
	Date     string   `json:"date"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Tags     []string `json:"tags"`
}

var postDateLayouts = []string{time.RFC3339, "2006-01-02"}

// NewCard builds the card for p. The image is the post cover, or the
// slug's cover.svg with cover.png as fallback.
func NewCard(p Post) Card {
	image := p.Cover
	if image == "" {
		image = fmt.Sprintf("/posts/%s/cover.svg", p.Slug)
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Card{
		Href:     fmt.Sprintf("/posts/%s/", p.Slug),
		Image:    image,
		Fallback: fmt.Sprintf("/posts/%s/cover.png", p.Slug),
		Alt:      p.Title,
		Date:     displayDate(p.Date),
		Title:    p.Title,
		Subtitle: p.Subtitle,
		Tags:     tags,
	}
}

func displayDate(raw string) string {
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return raw
}
