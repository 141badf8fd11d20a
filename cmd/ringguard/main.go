// Command ringguard is the scam-analysis server: it ingests call audio
// chunks, fans them out to the analysis providers, judges the accumulated
// evidence, and pushes risk notifications to the call receiver.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ringguard/ringguard/internal/archive"
	archivepg "github.com/ringguard/ringguard/internal/archive/postgres"
	"github.com/ringguard/ringguard/internal/config"
	"github.com/ringguard/ringguard/internal/contextcache"
	"github.com/ringguard/ringguard/internal/engine"
	"github.com/ringguard/ringguard/internal/judge"
	"github.com/ringguard/ringguard/internal/observe"
	"github.com/ringguard/ringguard/internal/pipeline"
	"github.com/ringguard/ringguard/internal/registry"
	"github.com/ringguard/ringguard/internal/resilience"
	"github.com/ringguard/ringguard/internal/server"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
	"github.com/ringguard/ringguard/pkg/provider/ambience/panns"
	"github.com/ringguard/ringguard/pkg/provider/ambience/spectral"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
	"github.com/ringguard/ringguard/pkg/provider/diarize/pyannote"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
	emotionwav2vec "github.com/ringguard/ringguard/pkg/provider/emotion/wav2vec"
	"github.com/ringguard/ringguard/pkg/provider/reason"
	"github.com/ringguard/ringguard/pkg/provider/reason/anyllm"
	reasonopenai "github.com/ringguard/ringguard/pkg/provider/reason/openai"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
	"github.com/ringguard/ringguard/pkg/provider/transcribe/whisper"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
	authwav2vec "github.com/ringguard/ringguard/pkg/provider/voiceauth/wav2vec"
	"github.com/ringguard/ringguard/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ringguard: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ringguard: %v\n", err)
		}
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("ringguard starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so provider construction is already instrumented.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ringguard"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, reasoner, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	orch, err := pipeline.New(providers, pipeline.Config{
		StageTimeouts: pipeline.StageTimeouts{
			Transcribe: cfg.Pipeline.StageTimeouts.Transcribe.Std(),
			VoiceAuth:  cfg.Pipeline.StageTimeouts.VoiceAuth.Std(),
			Ambience:   cfg.Pipeline.StageTimeouts.Ambience.Std(),
			Diarize:    cfg.Pipeline.StageTimeouts.Diarize.Std(),
			Emotion:    cfg.Pipeline.StageTimeouts.Emotion.Std(),
		},
		ChunkDeadline: cfg.Pipeline.ChunkDeadline.Std(),
		MaxInference:  cfg.Pipeline.MaxInference,
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	cache := contextcache.New(contextcache.Config{
		IdleTTL:    cfg.Cache.IdleTTL.Std(),
		MaxHistory: cfg.Cache.MaxHistory,
	})
	go cache.Run(ctx)

	j, err := judge.New(cache, reasoner, judge.Config{
		HighSeverity:   cfg.Judge.HighSeverityKeywords,
		MediumSeverity: cfg.Judge.MediumSeverityKeywords,
		ReasonTimeout:  cfg.Judge.ReasonTimeout.Std(),
	})
	if err != nil {
		slog.Error("failed to build judge", "err", err)
		return 1
	}

	threshold, err := types.ParseRiskLevel(cfg.Notify.Threshold)
	if err != nil {
		slog.Error("invalid notify threshold", "err", err)
		return 1
	}
	notifyReg := registry.New(registry.WithThreshold(threshold))

	var store archive.Store = archive.Noop{}
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		pg, err := archivepg.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect verdict archive", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		slog.Info("verdict archive connected")
	}

	eng, err := engine.New(orch, j, cache, notifyReg, store)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		return 1
	}
	// Flush in-flight archive writes before the store's own Close.
	defer eng.Close()

	srvOpts := []server.Option{}
	if cfg.Server.MaxChunkBytes > 0 {
		srvOpts = append(srvOpts, server.WithMaxChunkBytes(cfg.Server.MaxChunkBytes))
	}
	if tls := cfg.Server.TLS; tls != nil {
		srvOpts = append(srvOpts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	srv, err := server.New(eng, notifyReg, srvOpts...)
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	// Hot-reload log level, judge keyword lists, and the notify threshold on
	// config file changes.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.KeywordsChanged {
			j.SetKeywords(new.Judge.HighSeverityKeywords, new.Judge.MediumSeverityKeywords)
			slog.Info("judge keyword lists updated")
		}
		if d.ThresholdChanged {
			if lvl, err := types.ParseRiskLevel(d.NewThreshold); err == nil {
				notifyReg.SetThreshold(lvl)
				slog.Info("notify threshold updated", "threshold", lvl)
			} else {
				slog.Warn("ignoring invalid notify threshold", "threshold", d.NewThreshold, "err", err)
			}
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx, cfg.Server.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// builtinProviders maps provider kinds to the implementations that ship with
// ringguard. Used for startup logging.
var builtinProviders = map[string][]string{
	"transcribe": {"whisper", "whisper-native"},
	"voiceauth":  {"wav2vec"},
	"ambience":   {"panns", "spectral"},
	"diarize":    {"pyannote"},
	"emotion":    {"wav2vec"},
	"reason":     {"openai", "anthropic", "ollama", "mistral", "groq"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTranscribe("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscribe("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterVoiceAuth("wav2vec", func(entry config.ProviderEntry) (voiceauth.Provider, error) {
		return authwav2vec.New(entry.BaseURL)
	})

	reg.RegisterAmbience("panns", func(entry config.ProviderEntry) (ambience.Provider, error) {
		var opts []panns.Option
		if th := optFloat(entry.Options, "threshold"); th > 0 {
			opts = append(opts, panns.WithThreshold(th))
		}
		return panns.New(entry.BaseURL, opts...)
	})

	// spectral needs no model server; it is the built-in heuristic fallback.
	reg.RegisterAmbience("spectral", func(config.ProviderEntry) (ambience.Provider, error) {
		return spectral.New(), nil
	})

	reg.RegisterDiarize("pyannote", func(entry config.ProviderEntry) (diarize.Provider, error) {
		var opts []pyannote.Option
		if n := optInt(entry.Options, "max_speakers"); n > 0 {
			opts = append(opts, pyannote.WithMaxSpeakers(n))
		}
		return pyannote.New(entry.BaseURL, opts...)
	})

	reg.RegisterEmotion("wav2vec", func(entry config.ProviderEntry) (emotion.Provider, error) {
		return emotionwav2vec.New(entry.BaseURL)
	})

	reg.RegisterReason("openai", func(entry config.ProviderEntry) (reason.Provider, error) {
		var opts []reasonopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, reasonopenai.WithBaseURL(entry.BaseURL))
		}
		return reasonopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterReason("ollama", func(entry config.ProviderEntry) (reason.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "mistral", "groq"} {
		reg.RegisterReason(providerName, func(entry config.ProviderEntry) (reason.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg. The reasoner is
// returned separately because it feeds the judge, not the pipeline, and may
// legitimately be absent.
func buildProviders(cfg *config.Config, reg *config.Registry) (pipeline.Providers, reason.Provider, error) {
	var ps pipeline.Providers

	p, err := reg.CreateTranscribe(cfg.Providers.Transcribe)
	if err != nil {
		return ps, nil, fmt.Errorf("create transcribe provider %q: %w", cfg.Providers.Transcribe.Name, err)
	}
	ps.Transcriber = p
	if fb := cfg.Providers.Transcribe.Fallback; fb != nil {
		secondary, err := reg.CreateTranscribe(*fb)
		if err != nil {
			return ps, nil, fmt.Errorf("create transcribe fallback %q: %w", fb.Name, err)
		}
		group := resilience.NewTranscribeFallback(p, cfg.Providers.Transcribe.Name, resilience.FallbackConfig{})
		group.AddFallback(fb.Name, secondary)
		ps.Transcriber = group
		slog.Info("transcribe fallback wired", "primary", cfg.Providers.Transcribe.Name, "fallback", fb.Name)
	}
	slog.Info("provider created", "kind", "transcribe", "name", cfg.Providers.Transcribe.Name)

	va, err := reg.CreateVoiceAuth(cfg.Providers.VoiceAuth)
	if err != nil {
		return ps, nil, fmt.Errorf("create voiceauth provider %q: %w", cfg.Providers.VoiceAuth.Name, err)
	}
	ps.VoiceAuth = va
	slog.Info("provider created", "kind", "voiceauth", "name", cfg.Providers.VoiceAuth.Name)

	amb, err := reg.CreateAmbience(cfg.Providers.Ambience)
	if err != nil {
		return ps, nil, fmt.Errorf("create ambience provider %q: %w", cfg.Providers.Ambience.Name, err)
	}
	ps.Ambience = amb
	// A model-server primary always gets the in-process spectral classifier
	// as last resort, so background analysis survives the sidecar going down.
	if cfg.Providers.Ambience.Name != "spectral" {
		group := resilience.NewAmbienceFallback(amb, cfg.Providers.Ambience.Name, resilience.FallbackConfig{})
		if fb := cfg.Providers.Ambience.Fallback; fb != nil {
			secondary, err := reg.CreateAmbience(*fb)
			if err != nil {
				return ps, nil, fmt.Errorf("create ambience fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, secondary)
		} else {
			group.AddFallback("spectral", spectral.New())
		}
		ps.Ambience = group
	}
	slog.Info("provider created", "kind", "ambience", "name", cfg.Providers.Ambience.Name)

	di, err := reg.CreateDiarize(cfg.Providers.Diarize)
	if err != nil {
		return ps, nil, fmt.Errorf("create diarize provider %q: %w", cfg.Providers.Diarize.Name, err)
	}
	ps.Diarizer = di
	slog.Info("provider created", "kind", "diarize", "name", cfg.Providers.Diarize.Name)

	em, err := reg.CreateEmotion(cfg.Providers.Emotion)
	if err != nil {
		return ps, nil, fmt.Errorf("create emotion provider %q: %w", cfg.Providers.Emotion.Name, err)
	}
	ps.Emotion = em
	slog.Info("provider created", "kind", "emotion", "name", cfg.Providers.Emotion.Name)

	reasoner, err := reg.CreateReason(cfg.Providers.Reason)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("reason provider not registered, judgements will run without LLM refinement",
			"name", cfg.Providers.Reason.Name)
		return ps, nil, nil
	}
	if err != nil {
		return ps, nil, fmt.Errorf("create reason provider %q: %w", cfg.Providers.Reason.Name, err)
	}
	if fb := cfg.Providers.Reason.Fallback; fb != nil {
		secondary, err := reg.CreateReason(*fb)
		if err != nil {
			return ps, nil, fmt.Errorf("create reason fallback %q: %w", fb.Name, err)
		}
		group := resilience.NewReasonFallback(reasoner, cfg.Providers.Reason.Name, resilience.FallbackConfig{})
		group.AddFallback(fb.Name, secondary)
		reasoner = group
		slog.Info("reason fallback wired", "primary", cfg.Providers.Reason.Name, "fallback", fb.Name)
	}
	slog.Info("provider created", "kind", "reason", "name", cfg.Providers.Reason.Name)
	return ps, reasoner, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        ringguard — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Transcribe", cfg.Providers.Transcribe.Name, cfg.Providers.Transcribe.Model)
	printProvider("VoiceAuth", cfg.Providers.VoiceAuth.Name, cfg.Providers.VoiceAuth.Model)
	printProvider("Ambience", cfg.Providers.Ambience.Name, cfg.Providers.Ambience.Model)
	printProvider("Diarize", cfg.Providers.Diarize.Name, cfg.Providers.Diarize.Model)
	printProvider("Emotion", cfg.Providers.Emotion.Name, cfg.Providers.Emotion.Model)
	printProvider("Reason", cfg.Providers.Reason.Name, cfg.Providers.Reason.Model)
	if cfg.Archive.PostgresDSN != "" {
		fmt.Printf("║  Archive         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Archive         : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Notify threshold: %-19s ║\n", cfg.Notify.Threshold)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
