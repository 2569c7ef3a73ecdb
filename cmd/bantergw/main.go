// Command bantergw runs the NPC banter gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/questline/banter-gateway/internal/config"
	"github.com/questline/banter-gateway/internal/content"
	"github.com/questline/banter-gateway/internal/engine"
	"github.com/questline/banter-gateway/internal/monitoring"
	"github.com/questline/banter-gateway/internal/providers"
	"github.com/questline/banter-gateway/internal/server"
	"github.com/questline/banter-gateway/internal/utils"
)

func main() {
	var (
		configPath string
		debug      bool
		port       int
	)
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.IntVar(&port, "port", 0, "override listen port")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	adapters, err := buildAdapters(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider adapters")
	}
	if len(adapters) == 0 {
		log.Warn().Msg("no providers configured, every reply will come from the content banks")
	}

	metrics := monitoring.NewMetricsCollector()
	tracker := monitoring.NewTracker(monitoring.TrackerConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		DBPath:      cfg.Monitoring.DBPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	}, metrics)
	defer func() { _ = tracker.Close() }()

	router := providers.NewRouter(adapters, cfg.Generation.MaxRetries,
		cfg.Generation.CallTimeout.D(), cfg.Generation.BackoffCeiling.D())
	eng := engine.New(cfg, router, content.NewRegistry(), content.NewPatternSafety(), tracker, metrics)
	srv := server.New(cfg, eng, tracker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete cleanly")
		}
	}
}

// buildAdapters constructs one provider adapter per config entry, in
// file order. The first entry is the primary.
func buildAdapters(ctx context.Context, cfg *config.Config) ([]providers.Adapter, error) {
	client := &http.Client{Timeout: cfg.Generation.CallTimeout.D()}
	out := make([]providers.Adapter, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		log.Info().Str("provider", p.Name).Str("model", p.Model).
			Str("api_key", utils.MaskKey(p.APIKey)).Msg("configuring provider")
		switch p.Name {
		case "anthropic":
			out = append(out, providers.NewAnthropicAdapter(p.Endpoint, p.Model, p.APIKey, client))
		case "openai":
			out = append(out, providers.NewOpenAIAdapter(p.Endpoint, p.Model, p.APIKey, client))
		case "bedrock":
			a, err := providers.NewBedrockAdapter(ctx, p.Region, p.Model, client)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		default:
			log.Warn().Str("provider", p.Name).Msg("unknown provider, skipping")
		}
	}
	return out, nil
}
