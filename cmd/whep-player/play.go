package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dkeye/whep-player/internal/adapters/sink"
	"github.com/dkeye/whep-player/internal/app/orch"
	"github.com/dkeye/whep-player/internal/app/status"
	"github.com/dkeye/whep-player/internal/app/whep"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errStreamFailed = errors.New("stream failed")

func newPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one WHEP stream until interrupted",
		Long: "Play negotiates with the WHEP endpoint and drains the received stream.\n" +
			"Press Enter to deliver a user interaction (tap / unmute click).",
		RunE: runPlay,
	}
	f := cmd.Flags()
	f.String("url", "", "WHEP endpoint URL")
	f.Bool("autoplay", true, "start playback as soon as the stream is composed")
	f.Bool("muted", false, "start muted")
	f.Bool("retry", false, "retry while the endpoint answers 409")
	f.Int("retry-max-attempts", whep.DefaultMaxAttempts, "maximum negotiation attempts")
	f.Duration("retry-backoff", whep.DefaultBackoff, "delay between attempts")
	f.Bool("stereo", false, "request stereo opus")
	f.Bool("mobile", false, "behave as a mobile client")
	f.String("unmute", "autoplay", "unmute strategy: autoplay, button or tap")
	f.Bool("require-gesture", false, "refuse unmuted playback until the first interaction")
	return cmd
}

func runPlay(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := orch.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	connector, err := newConnector(cfg)
	if err != nil {
		return err
	}

	sid := core.SessionID(uuid.NewString())
	out := sink.NewRTPSink(sid)
	out.RequireGesture, _ = cmd.Flags().GetBool("require-gesture")
	hub := status.NewHub()
	updates, unsubscribe := hub.Subscribe(sid)
	defer unsubscribe()

	sess := whep.NewSession(sid, opts, whep.Deps{
		Connect:  connector.Connect,
		Exchange: newExchange(cfg),
		Sink:     out,
		Status:   hub,
	})
	defer func() {
		sess.Teardown()
		printStats(cmd.OutOrStdout(), sess, out.Stats())
	}()

	go readInteractions(ctx, cmd.InOrStdin(), sess)

	if err := sess.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	return waitForEnd(ctx, sid, updates)
}

// waitForEnd blocks until ctx is done or the session reports a failure.
func waitForEnd(ctx context.Context, sid core.SessionID, updates <-chan core.Status) error {
	logger := log.With().Str("module", "cmd").Str("sid", string(sid)).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("interrupted, detaching")
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if st.Phase == core.PhaseFailed {
				logger.Error().Str("reason", st.Message).Msg("stream failed, detaching")
				return fmt.Errorf("%w: %s", errStreamFailed, st.Message)
			}
		}
	}
}

// readInteractions turns every input line into a user interaction.
func readInteractions(ctx context.Context, in io.Reader, sess *whep.Session) {
	if in == nil {
		in = os.Stdin
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := sess.Interact(ctx); err != nil {
			return
		}
	}
}

func printStats(w io.Writer, sess *whep.Session, st sink.Stats) {
	_, _ = fmt.Fprintf(w, "session %s: video %d packets (%d bytes), audio %d packets (%d bytes), %d audio packets dropped while muted\n",
		sess.ID(), st.VideoPackets, st.VideoBytes, st.AudioPackets, st.AudioBytes, st.AudioDropped)
}
