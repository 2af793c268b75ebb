package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	LogLevel string `mapstructure:"log_level"`

	WS        WSConfig        `mapstructure:"ws"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Persist   PersistConfig   `mapstructure:"persist"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

// PingPeriod must stay below PongWait so the peer has time to answer.
func (w WSConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

type RoomsConfig struct {
	InboxSize     int           `mapstructure:"inbox_size"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Backpressure  string        `mapstructure:"backpressure"`
}

// RateLimitConfig bounds response submissions per viewer in a room. Zero disables it.
type RateLimitConfig struct {
	Responses int           `mapstructure:"responses"`
	Interval  time.Duration `mapstructure:"interval"`
}

type PersistConfig struct {
	Drivers      []string `mapstructure:"drivers"`
	SQLitePath   string   `mapstructure:"sqlite_path"`
	RedisAddr    string   `mapstructure:"redis_addr"`
	RedisChannel string   `mapstructure:"redis_channel"`
	QueueSize    int      `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.send_buffer", 64)

	v.SetDefault("rooms.inbox_size", 64)
	v.SetDefault("rooms.idle_ttl", "30m")
	v.SetDefault("rooms.sweep_interval", "1m")
	v.SetDefault("rooms.backpressure", "drop")

	v.SetDefault("rate_limit.responses", 20)
	v.SetDefault("rate_limit.interval", "1s")

	v.SetDefault("persist.drivers", []string{})
	v.SetDefault("persist.sqlite_path", "data/podium.db")
	v.SetDefault("persist.redis_addr", "localhost:6379")
	v.SetDefault("persist.redis_channel", "podium.responses")
	v.SetDefault("persist.queue_size", 1024)
}

// Load reads config/config.<CONFIG_ENV>.yaml (or the file named by
// PODIUM_CONFIG), then PODIUM_* environment variables, then flags.
// A missing file is not an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("PODIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{"port": "port", "mode": "mode", "log_level": "log-level"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	fileName := os.Getenv("PODIUM_CONFIG")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if flags != nil {
			if f := flags.Lookup("config-env"); f != nil && f.Changed {
				env = f.Value.String()
			}
		}
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Strs("persist", cfg.Persist.Drivers).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WS.PongWait <= 0 {
		return fmt.Errorf("ws.pong_wait must be positive")
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	for _, d := range c.Persist.Drivers {
		switch d {
		case "sqlite", "redis":
		default:
			return fmt.Errorf("unknown persist driver %q", d)
		}
	}
	return nil
}
