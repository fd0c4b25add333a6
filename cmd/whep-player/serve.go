package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	router "github.com/dkeye/whep-player/internal/adapters/http"
	"github.com/dkeye/whep-player/internal/adapters/sink"
	"github.com/dkeye/whep-player/internal/app"
	"github.com/dkeye/whep-player/internal/app/orch"
	"github.com/dkeye/whep-player/internal/app/posts"
	"github.com/dkeye/whep-player/internal/app/status"
	"github.com/dkeye/whep-player/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the player control API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.Int("port", 8080, "HTTP port")
	f.String("mode", "release", "gin mode: release, debug or test")
	f.String("posts-source", "./posts.json", "posts JSON file or URL")
	f.Int("posts-page-size", posts.DefaultPageSize, "posts per page")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defaults, err := orch.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	connector, err := newConnector(cfg)
	if err != nil {
		return err
	}

	postList, err := posts.Load(ctx, &http.Client{Timeout: cfg.HTTPTimeout}, cfg.Posts.Source)
	if err != nil {
		log.Warn().Err(err).Str("module", "cmd").Msg("posts unavailable, serving an empty listing")
	}
	catalog := posts.NewCatalog(postList, cfg.Posts.PageSize)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Status:   status.NewHub(),
		Policy:   app.NewAttachRateLimiter(cfg.AttachLimit, cfg.AttachInterval),
		Connect:  connector.Connect,
		Exchange: newExchange(cfg),
		NewSink:  func(sid core.SessionID) core.PlaybackSink { return sink.NewRTPSink(sid) },
		Defaults: defaults,
	}

	r := router.SetupRouter(ctx, cfg, o, catalog)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("whep-player server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := o.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("players did not stop in time")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
