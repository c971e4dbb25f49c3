package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	LogLevel       string        `mapstructure:"log_level"`
	SignalURL      string        `mapstructure:"signal_url"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	P2P            bool          `mapstructure:"p2p"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	RecordDir      string        `mapstructure:"record_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	DataRateLimit  int           `mapstructure:"data_rate_limit"`
	DataRateWindow time.Duration `mapstructure:"data_rate_window"`
	Publish        Publish       `mapstructure:"publish"`
}

// Publish describes the local stream published on start.
type Publish struct {
	Enabled    bool           `mapstructure:"enabled"`
	Audio      bool           `mapstructure:"audio"`
	Video      bool           `mapstructure:"video"`
	Screen     bool           `mapstructure:"screen"`
	Data       bool           `mapstructure:"data"`
	URL        string         `mapstructure:"url"`
	VideoSize  []int          `mapstructure:"video_size"`
	FrameRate  []float32      `mapstructure:"frame_rate"`
	Attributes map[string]any `mapstructure:"attributes"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev by default.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads the given yaml file on top of the defaults. A missing file
// is not an error. MEDIAFLOW_* environment variables override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("MEDIAFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("signal_url", cfg.SignalURL).
		Bool("p2p", cfg.P2P).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("http_addr", ":8090")
	v.SetDefault("p2p", false)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("record_dir", "./recordings")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("data_rate_limit", 20)
	v.SetDefault("data_rate_window", "1s")

	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.audio", true)
	v.SetDefault("publish.video", true)
	v.SetDefault("publish.screen", false)
	v.SetDefault("publish.data", true)
	v.SetDefault("publish.url", "")
}
