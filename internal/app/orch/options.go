package orch

import (
	"strings"

	"github.com/dkeye/whep-player/internal/app/whep"
	"github.com/dkeye/whep-player/internal/config"
	"github.com/dkeye/whep-player/internal/core"
)

// AttachRequest carries the attributes of one player. Unset fields fall
// back to the configured defaults.
type AttachRequest struct {
	URL      string `json:"url"`
	Autoplay *bool  `json:"autoplay,omitempty"`
	Muted    *bool  `json:"muted,omitempty"`
	Retry    *bool  `json:"retry,omitempty"`
	Stereo   *bool  `json:"stereo,omitempty"`
	Mobile   *bool  `json:"mobile,omitempty"`
	Unmute   string `json:"unmute,omitempty"`
}

// Options overlays r on defaults.
func (r AttachRequest) Options(defaults whep.Options) (whep.Options, error) {
	opts := defaults
	if url := strings.TrimSpace(r.URL); url != "" {
		opts.Endpoint = url
	}
	if r.Autoplay != nil {
		opts.Autoplay = *r.Autoplay
	}
	if r.Muted != nil {
		opts.Muted = *r.Muted
	}
	if r.Retry != nil {
		opts.Retry.Enabled = *r.Retry
	}
	if r.Stereo != nil {
		opts.Stereo = *r.Stereo
	}
	if r.Mobile != nil {
		opts.Mobile = *r.Mobile
	}
	if r.Unmute != "" {
		strategy, err := core.ParseUnmuteStrategy(r.Unmute)
		if err != nil {
			return whep.Options{}, &core.ConfigError{Field: "unmute", Err: err}
		}
		opts.Unmute = strategy
	}
	return opts, nil
}

// OptionsFromConfig builds the default player options.
func OptionsFromConfig(cfg *config.Config) (whep.Options, error) {
	strategy, err := core.ParseUnmuteStrategy(cfg.Unmute)
	if err != nil {
		return whep.Options{}, &core.ConfigError{Field: "unmute", Err: err}
	}
	kinds, err := core.ParseTrackKinds(cfg.RequiredKinds)
	if err != nil {
		return whep.Options{}, &core.ConfigError{Field: "required_kinds", Err: err}
	}
	return whep.Options{
		Endpoint: cfg.Endpoint,
		Autoplay: cfg.Autoplay,
		Muted:    cfg.Muted,
		Stereo:   cfg.Stereo,
		Mobile:   cfg.Mobile,
		Unmute:   strategy,
		Retry: whep.RetryPolicy{
			Enabled:     cfg.Retry.Enabled,
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
		},
		RequiredKinds: kinds,
		PlayGrace:     cfg.PlayGrace,
	}, nil
}
