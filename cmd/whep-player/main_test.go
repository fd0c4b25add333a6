package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/whep-player/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()

	play, _, err := root.Find([]string{"play"})
	require.NoError(t, err)
	assert.NotNil(t, play.Flags().Lookup("url"))
	assert.NotNil(t, play.Flags().Lookup("retry-max-attempts"))

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("posts-source"))
}

func TestPlay_MissingURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("WHEP_ENDPOINT", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"play"})
	root.SetIn(strings.NewReader(""))
	root.SetOut(&out)

	err := root.ExecuteContext(context.Background())

	assert.ErrorIs(t, err, core.ErrMissingEndpoint)
	assert.Contains(t, out.String(), "video 0 packets")
}

func TestWaitForEnd_ReturnsOnFailure(t *testing.T) {
	updates := make(chan core.Status, 2)
	updates <- core.Status{Phase: core.PhasePlaying}
	updates <- core.Status{Phase: core.PhaseFailed, Message: "Connection failed"}

	err := waitForEnd(context.Background(), "sid", updates)

	require.ErrorIs(t, err, errStreamFailed)
	assert.Contains(t, err.Error(), "Connection failed")
}

func TestWaitForEnd_Interrupted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.NoError(t, waitForEnd(ctx, "sid", make(chan core.Status)))
}

func TestWaitForEnd_ClosedUpdates(t *testing.T) {
	updates := make(chan core.Status)
	close(updates)

	assert.NoError(t, waitForEnd(context.Background(), "sid", updates))
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
