package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/infra"
	"github.com/velinussage/pfp-animate/internal/middleware"
	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/planner"
)

// ImageGateway is the subset of *gateway.Gateway the handlers use.
type ImageGateway interface {
	Generate(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error)
	Configured() bool
	ProviderName() string
}

// Options wires the handler dependencies.
type Options struct {
	Config       *infra.Config
	Logger       *infra.Logger
	Preprocess   ImageGateway
	Frames       ImageGateway
	Planner      *planner.Planner
	Orchestrator *orchestrator.Orchestrator
}

type App struct {
	Config       *infra.Config
	Logger       *infra.Logger
	Preprocessor ImageGateway
	Frames       ImageGateway
	Planner      *planner.Planner
	Orchestrator *orchestrator.Orchestrator
}

// NewApp builds the handler set. A nil orchestrator is built from the frame
// gateway and the config.
func NewApp(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = &infra.Config{MaxImageBytes: 10 << 20, MaxSourceDimension: 2048, GatewayProvider: infra.ProviderReplicate}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	p := opts.Planner
	if p == nil {
		p = planner.New(nil, cfg.FrameCostUSD)
	}
	orch := opts.Orchestrator
	if orch == nil {
		orch = orchestrator.New(orchestrator.Options{
			Generator:   opts.Frames,
			Params:      gateway.FrameParams,
			Concurrency: cfg.GenerateConcurrency,
			Timeout:     cfg.GenerateTimeout,
			MaxAttempts: cfg.FrameMaxAttempts,
			RetryDelay:  cfg.FrameRetryDelay,
			Logger:      logger,
		})
	}
	return &App{
		Config:       cfg,
		Logger:       logger,
		Preprocessor: opts.Preprocess,
		Frames:       opts.Frames,
		Planner:      p,
		Orchestrator: orch,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}

// fail maps err onto a status code and a localized message. Internal errors
// are logged and never echoed back.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	rid := middleware.RequestIDFromContext(r.Context())

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		a.error(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			fmt.Sprintf("%s (%d bytes)", message(locale, codePayloadTooLarge), maxBytes.Limit))
	case errors.Is(err, domain.ErrPreprocess):
		a.Logger.Error().Err(err).Str("request_id", rid).Msg("preprocess failed")
		if errors.Is(err, context.DeadlineExceeded) {
			a.error(w, http.StatusGatewayTimeout, codeTimeout,
				fmt.Sprintf("%s (%s)", message(locale, codeTimeout), a.Config.ProviderTimeout))
			return
		}
		if gateway.IsTemporary(err) {
			a.error(w, http.StatusTooManyRequests, codeRateLimited, message(locale, codeRateLimited))
			return
		}
		a.error(w, http.StatusBadGateway, codePreprocessFailed, message(locale, codePreprocessFailed)+": "+causeMessage(err))
	case errors.Is(err, domain.ErrInvalidGrid):
		a.error(w, http.StatusBadRequest, codeInvalidGrid, message(locale, codeInvalidGrid)+": "+err.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, codeBadRequest, message(locale, codeBadRequest)+": "+err.Error())
	case errors.Is(err, domain.ErrConfig):
		a.Logger.Error().Err(err).Str("request_id", rid).Msg("service misconfigured")
		a.error(w, http.StatusInternalServerError, codeConfigError, message(locale, codeConfigError)+": "+err.Error())
	default:
		a.Logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		a.error(w, http.StatusInternalServerError, codeInternal, message(locale, codeInternal))
	}
}

// causeMessage returns the provider-facing part of a preprocess error.
func causeMessage(err error) string {
	var pe *domain.PreprocessError
	if errors.As(err, &pe) && pe.Cause != nil {
		return pe.Cause.Error()
	}
	return err.Error()
}

// requireConfigured returns a ConfigError naming the missing credential.
func (a *App) requireConfigured(gw ImageGateway) error {
	if gw != nil && gw.Configured() {
		return nil
	}
	key, _ := a.Config.ProviderCredential()
	return &domain.ConfigError{Key: key}
}

// decodeJSON reads a JSON body bounded by limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "is empty")
		}
		return domain.NewValidationError("body", "invalid JSON payload")
	}
	return nil
}

// bodyLimit allows for base64 expansion of the largest accepted image plus
// the surrounding JSON.
func (a *App) bodyLimit(images int) int64 {
	return int64(images)*(a.Config.MaxImageBytes/3*4+4) + 64<<10
}

// decodeImage validates an uploaded base64 image and bounds its dimensions.
func (a *App) decodeImage(field, encoded string) ([]byte, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, domain.NewValidationError(field, "is required")
	}
	data, err := imaging.DecodeBase64(encoded)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be base64 encoded image data")
	}
	if int64(len(data)) > a.Config.MaxImageBytes {
		return nil, domain.NewValidationError(field, fmt.Sprintf("exceeds %d bytes", a.Config.MaxImageBytes))
	}
	if a.Config.MaxSourceDimension <= 0 {
		if _, err := imaging.Inspect(data); err != nil {
			return nil, domain.NewValidationError(field, "is not a supported image")
		}
		return data, nil
	}
	normalized, _, err := imaging.Normalize(data, a.Config.MaxSourceDimension)
	if err != nil {
		return nil, domain.NewValidationError(field, "is not a supported image")
	}
	return normalized, nil
}
