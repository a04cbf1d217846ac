// Package config handles loading and validating the daemon
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the aura daemon.
type Config struct {
	Sampler SamplerConfig `mapstructure:"sampler"`
	Voice   VoiceConfig   `mapstructure:"voice"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Web     WebConfig     `mapstructure:"web"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Control ControlConfig `mapstructure:"control"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Ducking DuckingConfig `mapstructure:"ducking"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SamplerConfig tunes the screen-context loop.
type SamplerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ChangeThreshold float64       `mapstructure:"change_threshold"`
	DownscaleFactor float64       `mapstructure:"downscale_factor"`
	ThresholdBlock  int           `mapstructure:"threshold_block"`
	ThresholdBias   int           `mapstructure:"threshold_bias"`
	OCRLanguage     string        `mapstructure:"ocr_language"`
}

// VoiceConfig tunes the wake-phrase listener.
type VoiceConfig struct {
	Continuous bool          `mapstructure:"continuous"`
	WakePhrase string        `mapstructure:"wake_phrase"`
	SampleRate int           `mapstructure:"sample_rate"`
	ChunkSize  int           `mapstructure:"chunk_size"`
	Window     time.Duration `mapstructure:"window"`
	MaxSilence time.Duration `mapstructure:"max_silence"`
	Backoff    time.Duration `mapstructure:"backoff"`
	ModelPath  string        `mapstructure:"model_path"`
	Language   string        `mapstructure:"language"`
	Chime      bool          `mapstructure:"chime"`
}

// LLMConfig selects model backends and their fallback order.
type LLMConfig struct {
	Backends     []string      `mapstructure:"backends"` // tried in order: "openai", "gemini"
	OpenAIModel  string        `mapstructure:"openai_model"`
	GeminiModel  string        `mapstructure:"gemini_model"`
	OpenAIKey    string        `mapstructure:"openai_key"`
	GeminiKey    string        `mapstructure:"gemini_key"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// WebConfig configures the HTTP API.
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// FetchConfig configures outbound content fetching.
type FetchConfig struct {
	SearchURL string `mapstructure:"search_url"`
}

// TTSConfig enables spoken responses.
type TTSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Language string `mapstructure:"language"`
}

// ControlConfig configures the local control socket.
type ControlConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// ProxyConfig routes backend traffic through SOCKS5 when set.
type ProxyConfig struct {
	Socks string `mapstructure:"socks"`
}

// DuckingConfig lowers other audio streams while listening.
type DuckingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Factor  float64 `mapstructure:"factor"`
	Floor   int     `mapstructure:"floor"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads the configuration from file, environment variables, and
// defaults. If configFile is non-empty it is used directly; otherwise
// the search order is ./aura.yaml, ~/.config/aura/aura.yaml,
// /etc/aura/aura.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("sampler.interval", "5s")
	v.SetDefault("sampler.change_threshold", 100.0)
	v.SetDefault("sampler.downscale_factor", 0.5)
	v.SetDefault("sampler.threshold_block", 11)
	v.SetDefault("sampler.threshold_bias", 2)
	v.SetDefault("sampler.ocr_language", "eng")
	v.SetDefault("voice.continuous", true)
	v.SetDefault("voice.wake_phrase", "hey assistant")
	v.SetDefault("voice.sample_rate", 16000)
	v.SetDefault("voice.chunk_size", 1024)
	v.SetDefault("voice.window", "5s")
	v.SetDefault("voice.max_silence", "5s")
	v.SetDefault("voice.backoff", "1s")
	v.SetDefault("voice.model_path", "models/ggml-base.en.bin")
	v.SetDefault("voice.language", "en")
	v.SetDefault("voice.chime", true)
	v.SetDefault("llm.backends", []string{"openai", "gemini"})
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.openai_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.gemini_key", "${GEMINI_API_KEY}")
	v.SetDefault("llm.query_timeout", "10s")
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", ":8765")
	v.SetDefault("fetch.search_url", "")
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.language", "en")
	v.SetDefault("control.socket_path", "/tmp/aura.sock")
	v.SetDefault("proxy.socks", "")
	v.SetDefault("ducking.enabled", false)
	v.SetDefault("ducking.factor", 0.3)
	v.SetDefault("ducking.floor", 10)
	v.SetDefault("logging.level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("aura")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/aura")
		}
		v.AddConfigPath("/etc/aura")
	}

	// Environment variables: AURA_WEB_ADDR, AURA_VOICE_WAKE_PHRASE, etc.
	v.SetEnvPrefix("AURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.LLM.OpenAIKey = resolveEnvRef(cfg.LLM.OpenAIKey)
	cfg.LLM.GeminiKey = resolveEnvRef(cfg.LLM.GeminiKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be positive")
	}
	if c.Sampler.DownscaleFactor <= 0 || c.Sampler.DownscaleFactor > 1 {
		return fmt.Errorf("sampler.downscale_factor must be in (0, 1]")
	}
	if c.Voice.SampleRate <= 0 || c.Voice.ChunkSize <= 0 {
		return fmt.Errorf("voice.sample_rate and voice.chunk_size must be positive")
	}
	for _, b := range c.LLM.Backends {
		if b != "openai" && b != "gemini" {
			return fmt.Errorf("unknown llm backend %q", b)
		}
	}
	return nil
}

// LoadSecrets loads a dotenv file into the process environment so that
// ${VAR} references and AURA_* overrides resolve. A missing file is
// fine; secrets may come from the real environment.
func LoadSecrets(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" with the env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}
