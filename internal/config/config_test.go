package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Autoplay)
	assert.False(t, cfg.Retry.Enabled)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Backoff)
	assert.Equal(t, 150*time.Millisecond, cfg.PlayGrace)
	assert.Equal(t, 10*time.Second, cfg.ICEGatherTimeout)
	assert.Equal(t, []string{"video", "audio"}, cfg.RequiredKinds)
	assert.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, 9, cfg.Posts.PageSize)
	assert.Equal(t, "autoplay", cfg.Unmute)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("port: 9000\nendpoint: http://file/whep\nretry:\n  enabled: true\n  backoff: 500ms\nposts:\n  page_size: 3\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("WHEP_MUTED", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("endpoint", "", "")
	flags.Int("retry-max-attempts", 10, "")
	require.NoError(t, flags.Parse([]string{"--endpoint=http://flag/whep", "--retry-max-attempts=4"}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "http://flag/whep", cfg.Endpoint)
	assert.True(t, cfg.Muted)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Backoff)
	assert.Equal(t, 3, cfg.Posts.PageSize)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("WHEP_RETRY_MAX_ATTEMPTS", "0")

	_, err := Load(nil)
	assert.ErrorContains(t, err, "retry.max_attempts")
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "retry.max_attempts", flagKey("retry-max-attempts"))
	assert.Equal(t, "posts.page_size", flagKey("posts-page-size"))
	assert.Equal(t, "play_grace", flagKey("play-grace"))
	assert.Equal(t, "endpoint", flagKey("endpoint"))
	assert.Equal(t, "endpoint", flagKey("url"))
	assert.Equal(t, "retry.enabled", flagKey("retry"))
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
