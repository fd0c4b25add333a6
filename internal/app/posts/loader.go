package posts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dkeye/whep-player/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var ErrNotArray = errors.New("posts source is not a JSON array")

// maxSourceSize bounds how much of a posts source is read.
const maxSourceSize = 8 << 20

// Decode parses a JSON array of posts.
func Decode(data []byte) ([]domain.Post, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var out []domain.Post
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decoding posts: %w", err)
	}
	return out, nil
}

// Load reads posts from a file path or an http(s) URL.
func Load(ctx context.Context, client *http.Client, source string) ([]domain.Post, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetch(ctx, client, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("reading posts from %s: %w", source, err)
	}
	posts, err := Decode(data)
	if err != nil {
		log.Error().Str("module", "app.posts").Str("source", source).Err(err).Msg("posts source rejected")
		return nil, err
	}
	log.Info().Str("module", "app.posts").Str("source", source).Int("count", len(posts)).Msg("posts loaded")
	return posts, nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
}
