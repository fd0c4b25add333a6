package main

import (
	"net/http"

	"github.com/dkeye/whep-player/internal/adapters/rtc"
	"github.com/dkeye/whep-player/internal/app/whep"
	"github.com/dkeye/whep-player/internal/config"
	"github.com/spf13/cobra"
)

// loadConfig reads the config with cmd's flags bound over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	setLogLevel(cfg.LogLevel)
	return cfg, nil
}

func newConnector(cfg *config.Config) (*rtc.Connector, error) {
	return rtc.NewConnector(rtc.Config{
		ICEServers:      cfg.ICEServers,
		GatherTimeout:   cfg.ICEGatherTimeout,
		IncludeLoopback: cfg.ICELoopback,
	})
}

func newExchange(cfg *config.Config) *whep.Exchange {
	return whep.NewExchange(&http.Client{Timeout: cfg.HTTPTimeout}, whep.RealClock())
}
