package posts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePosts = `[
  {"slug": "one", "title": "One", "subtitle": "first", "date": "2024-01-02", "tags": ["go"]},
  {"slug": "two", "title": "Two", "cover": "/c.png", "date": "2024-02-03"}
]`

func TestDecode(t *testing.T) {
	posts, err := Decode([]byte(samplePosts))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "one", posts[0].Slug)
	assert.Equal(t, []string{"go"}, posts[0].Tags)
	assert.Equal(t, "/c.png", posts[1].Cover)
}

func TestDecode_NotArray(t *testing.T) {
	_, err := Decode([]byte(`{"slug": "one"}`))
	assert.ErrorIs(t, err, ErrNotArray)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrNotArray)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePosts), 0o644))

	posts, err := Load(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePosts))
	}))
	defer srv.Close()

	posts, err := Load(context.Background(), srv.Client(), srv.URL+"/posts.json")
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	_, err = Load(context.Background(), srv.Client(), srv.URL+"/missing.json")
	assert.ErrorContains(t, err, "404")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), nil, filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
