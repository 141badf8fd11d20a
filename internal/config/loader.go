package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ringguard/ringguard/pkg/types"
)

// Defaults applied by Load for fields left unset.
const (
	DefaultListenAddr    = ":8080"
	DefaultChunkDeadline = 30 * time.Second
	DefaultStageTimeout  = 15 * time.Second
	DefaultReasonTimeout = 20 * time.Second
	DefaultMaxInference  = 8
	DefaultIdleTTL       = 10 * time.Minute
	DefaultMaxHistory    = 64
	DefaultChunkSeconds  = 10
)

// ValidProviderNames lists the known implementations per provider kind.
// Validation warns on unknown names rather than failing, so externally
// registered providers remain usable.
var ValidProviderNames = map[string][]string{
	"transcribe": {"whisper", "whisper-native", "mock"},
	"voiceauth":  {"wav2vec", "mock"},
	"ambience":   {"panns", "spectral", "mock"},
	"diarize":    {"pyannote", "mock"},
	"emotion":    {"wav2vec", "mock"},
	"reason":     {"openai", "anthropic", "ollama", "mistral", "groq", "mock"},
}

// Load reads and parses the YAML configuration file at path, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader parses YAML configuration from r, applies defaults, and
// validates the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Pipeline.ChunkDeadline == 0 {
		c.Pipeline.ChunkDeadline = Duration(DefaultChunkDeadline)
	}
	if c.Pipeline.MaxInference == 0 {
		c.Pipeline.MaxInference = DefaultMaxInference
	}
	st := &c.Pipeline.StageTimeouts
	for _, d := range []*Duration{&st.Transcribe, &st.VoiceAuth, &st.Ambience, &st.Diarize, &st.Emotion} {
		if *d == 0 {
			*d = Duration(DefaultStageTimeout)
		}
	}
	if c.Judge.ReasonTimeout == 0 {
		c.Judge.ReasonTimeout = Duration(DefaultReasonTimeout)
	}
	if c.Cache.IdleTTL == 0 {
		c.Cache.IdleTTL = Duration(DefaultIdleTTL)
	}
	if c.Cache.MaxHistory == 0 {
		c.Cache.MaxHistory = DefaultMaxHistory
	}
	if c.Notify.Threshold == "" {
		c.Notify.Threshold = types.RiskMedium.String()
	}
	if c.Watch.ChunkSeconds == 0 {
		c.Watch.ChunkSeconds = DefaultChunkSeconds
	}
}

// Validate checks the configuration for structural errors. All problems are
// reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel))
	}
	if tls := c.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls: both cert_file and key_file are required"))
		}
	}
	if c.Server.MaxChunkBytes < 0 {
		errs = append(errs, errors.New("server.max_chunk_bytes: must not be negative"))
	}

	for kind, entry := range map[string]ProviderEntry{
		"transcribe": c.Providers.Transcribe,
		"voiceauth":  c.Providers.VoiceAuth,
		"ambience":   c.Providers.Ambience,
		"diarize":    c.Providers.Diarize,
		"emotion":    c.Providers.Emotion,
		"reason":     c.Providers.Reason,
	} {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s: name is required", kind))
			continue
		}
		if !knownProvider(kind, entry.Name) {
			slog.Warn("unrecognized provider name, assuming external registration",
				"kind", kind, "name", entry.Name)
		}
	}

	if c.Pipeline.MaxInference < 1 {
		errs = append(errs, errors.New("pipeline.max_inference: must be at least 1"))
	}
	if c.Pipeline.ChunkDeadline < 0 {
		errs = append(errs, errors.New("pipeline.chunk_deadline: must not be negative"))
	}

	if _, err := types.ParseRiskLevel(c.Notify.Threshold); err != nil {
		errs = append(errs, fmt.Errorf("notify.threshold: %w", err))
	}

	if c.Cache.MaxHistory < 1 {
		errs = append(errs, errors.New("cache.max_history: must be at least 1"))
	}

	if c.Watch.ChunkSeconds < 1 {
		errs = append(errs, errors.New("watch.chunk_seconds: must be at least 1"))
	}

	return errors.Join(errs...)
}

func knownProvider(kind, name string) bool {
	for _, n := range ValidProviderNames[kind] {
		if n == name {
			return true
		}
	}
	return false
}

// SlogLevel converts the configured log level to a slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
