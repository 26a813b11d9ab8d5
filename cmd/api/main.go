package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/http/handlers"
	httpapi "github.com/velinussage/pfp-animate/internal/http/httpapi"
	"github.com/velinussage/pfp-animate/internal/infra"
	"github.com/velinussage/pfp-animate/internal/infra/geoip"
	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/planner"
	"github.com/velinussage/pfp-animate/internal/providers/openai"
	"github.com/velinussage/pfp-animate/internal/providers/replicate"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	catalog, err := planner.LoadPresets(cfg.StylePresetsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StylePresetsPath).Msg("failed to load style presets")
	}

	provider := newProvider(cfg, &logger)
	if !provider.HasCredentials() {
		key, _ := cfg.ProviderCredential()
		logger.Warn().Str("provider", provider.Name()).Str("missing", key).Msg("provider credentials not set, generation requests will fail")
	}

	preprocessModel, frameModel := cfg.PreprocessModel, cfg.FrameModel
	if cfg.GatewayProvider == infra.ProviderOpenAI {
		preprocessModel, frameModel = cfg.OpenAIImageModel, cfg.OpenAIImageModel
	}

	fetchClient := &http.Client{Timeout: cfg.ProviderTimeout}
	preprocess := gateway.New(gateway.Options{
		Provider:   provider,
		Model:      preprocessModel,
		HTTPClient: fetchClient,
		Logger:     &logger,
	})
	frames := gateway.New(gateway.Options{
		Provider:   provider,
		Model:      frameModel,
		HTTPClient: fetchClient,
		Logger:     &logger,
	})

	app := handlers.NewApp(handlers.Options{
		Config:     cfg,
		Logger:     &logger,
		Preprocess: preprocess,
		Frames:     frames,
		Planner:    planner.New(catalog, cfg.FrameCostUSD),
		Orchestrator: orchestrator.New(orchestrator.Options{
			Generator:   frames,
			Params:      gateway.FrameParams,
			Concurrency: cfg.GenerateConcurrency,
			Timeout:     cfg.GenerateTimeout,
			MaxAttempts: cfg.FrameMaxAttempts,
			RetryDelay:  cfg.FrameRetryDelay,
			Logger:      &logger,
		}),
	})

	router := httpapi.NewRouter(app, resolver.Lookup())
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("provider", provider.Name()).
			Str("frame_model", frameModel).
			Int("concurrency", cfg.GenerateConcurrency).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Open streams are bounded by the run timeout, so wait at least that long.
	grace := cfg.GenerateTimeout
	if cfg.HTTPIdleTimeout > grace {
		grace = cfg.HTTPIdleTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newProvider(cfg *infra.Config, logger *infra.Logger) gateway.Provider {
	if cfg.GatewayProvider == infra.ProviderOpenAI {
		return openai.NewProvider(openai.Options{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.OpenAIImageModel,
			RequestTimeout: cfg.ProviderTimeout,
			Logger:         logger,
		})
	}
	return replicate.NewClient(replicate.Options{
		APIToken:       cfg.ReplicateAPIToken,
		BaseURL:        cfg.ReplicateBaseURL,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
}
