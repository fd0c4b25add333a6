package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Retry struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type Posts struct {
	// Source is a path or http(s) URL of the posts JSON array.
	Source   string `mapstructure:"source"`
	PageSize int    `mapstructure:"page_size"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	Endpoint      string        `mapstructure:"endpoint"`
	Autoplay      bool          `mapstructure:"autoplay"`
	Muted         bool          `mapstructure:"muted"`
	Stereo        bool          `mapstructure:"stereo"`
	Mobile        bool          `mapstructure:"mobile"`
	Unmute        string        `mapstructure:"unmute"`
	RequiredKinds []string      `mapstructure:"required_kinds"`
	Retry         Retry         `mapstructure:"retry"`
	PlayGrace     time.Duration `mapstructure:"play_grace"`

	ICEServers       []string      `mapstructure:"ice_servers"`
	ICEGatherTimeout time.Duration `mapstructure:"ice_gather_timeout"`
	ICELoopback      bool          `mapstructure:"ice_loopback"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`

	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	AttachLimit    int           `mapstructure:"attach_limit"`
	AttachInterval time.Duration `mapstructure:"attach_interval"`

	Posts Posts `mapstructure:"posts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "whep-player-dev-secret")

	v.SetDefault("autoplay", true)
	v.SetDefault("muted", false)
	v.SetDefault("stereo", false)
	v.SetDefault("mobile", false)
	v.SetDefault("unmute", "autoplay")
	v.SetDefault("required_kinds", []string{"video", "audio"})
	v.SetDefault("retry.enabled", false)
	v.SetDefault("retry.max_attempts", 10)
	v.SetDefault("retry.backoff", "2s")
	v.SetDefault("play_grace", "150ms")

	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("ice_gather_timeout", "10s")
	v.SetDefault("ice_loopback", false)
	v.SetDefault("http_timeout", "15s")

	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("attach_limit", 5)
	v.SetDefault("attach_interval", "1m")

	v.SetDefault("posts.source", "./posts.json")
	v.SetDefault("posts.page_size", 9)
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults, then
// WHEP_* environment variables, then any changed flag in flags.
// Flag names use dashes where keys use underscores or dots.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("WHEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(flagKey(f.Name), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Fprintf(os.Stderr, "✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "🧩 Mode: %s | Port: %d | Retry: %t\n", cfg.Mode, cfg.Port, cfg.Retry.Enabled)
	return &cfg, nil
}

// flagAliases name flags whose config key differs from the flag name.
var flagAliases = map[string]string{
	"url":   "endpoint",
	"retry": "retry.enabled",
}

// flagKey maps a flag name to its config key: retry-max-attempts becomes
// retry.max_attempts, play-grace becomes play_grace.
func flagKey(name string) string {
	if key, ok := flagAliases[name]; ok {
		return key
	}
	for _, group := range []string{"retry", "posts"} {
		if rest, ok := strings.CutPrefix(name, group+"-"); ok {
			return group + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return strings.ReplaceAll(name, "-", "_")
}

func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must not be negative, got %s", c.Retry.Backoff)
	}
	if c.Posts.PageSize < 1 {
		return fmt.Errorf("posts.page_size must be at least 1, got %d", c.Posts.PageSize)
	}
	if c.AttachLimit < 1 {
		return fmt.Errorf("attach_limit must be at least 1, got %d", c.AttachLimit)
	}
	return nil
}
