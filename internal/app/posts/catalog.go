// Package posts pages and searches the post listing.
package posts

import (
	"strings"

	"github.com/dkeye/whep-player/internal/domain"
)

const DefaultPageSize = 9

// PageState is the paging position of one reader.
type PageState struct {
	Next int `json:"next"`
}

// Catalog is an immutable list of posts.
type Catalog struct {
	posts []domain.Post
	size  int
}

func NewCatalog(posts []domain.Post, pageSize int) *Catalog {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Catalog{posts: posts, size: pageSize}
}

func (c *Catalog) Len() int { return len(c.posts) }

func (c *Catalog) PageSize() int { return c.size }

// Page returns posts [n*size, (n+1)*size), clipped to the catalog.
func (c *Catalog) Page(n int) []domain.Post {
	if n < 0 {
		return nil
	}
	start := n * c.size
	if start >= len(c.posts) {
		return nil
	}
	end := min(start+c.size, len(c.posts))
	return c.posts[start:end]
}

// NextPage returns the page at st.Next and the state advanced past it.
func (c *Catalog) NextPage(st PageState) ([]domain.Post, PageState) {
	return c.Page(st.Next), PageState{Next: st.Next + 1}
}

// Search returns every post whose title, subtitle or space-joined tags
// contain q, case-insensitively. An empty query resets to the first page.
func (c *Catalog) Search(q string, st PageState) ([]domain.Post, PageState) {
	query := strings.ToLower(strings.TrimSpace(q))
	if query == "" {
		return c.NextPage(PageState{})
	}
	var out []domain.Post
	for _, p := range c.posts {
		if matches(p, query) {
			out = append(out, p)
		}
	}
	return out, st
}

func matches(p domain.Post, query string) bool {
	return strings.Contains(strings.ToLower(p.Title), query) ||
		strings.Contains(strings.ToLower(p.Subtitle), query) ||
		strings.Contains(strings.ToLower(strings.Join(p.Tags, " ")), query)
}

// Cards renders posts as listing cards.
func Cards(posts []domain.Post) []domain.Card {
	out := make([]domain.Card, 0, len(posts))
	for _, p := range posts {
		out = append(out, domain.NewCard(p))
	}
	return out
}
