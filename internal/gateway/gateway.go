// Package gateway resolves a prompt plus reference image into raw image bytes
// through a hosted generative-image provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/infra"
)

const defaultMaxFetchBytes = 32 << 20

// Params are the generation settings sent with every provider call.
type Params struct {
	Resolution        string
	AspectRatio       string
	OutputFormat      string
	SafetyFilterLevel string
}

var (
	// PreprocessParams is used for the one-shot portrait conversion.
	PreprocessParams = Params{Resolution: "2K", AspectRatio: "1:1", OutputFormat: "png", SafetyFilterLevel: "block_only_high"}
	// FrameParams is used for every grid frame.
	FrameParams = Params{Resolution: "1K", AspectRatio: "1:1", OutputFormat: "png", SafetyFilterLevel: "block_only_high"}
)

var (
	allowedResolutions   = []string{"1K", "2K", "4K"}
	allowedAspectRatios  = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	allowedOutputFormats = []string{"png", "jpg", "webp"}
	allowedSafetyLevels  = []string{"block_low_and_above", "block_medium_and_above", "block_only_high"}
)

// Validate checks every field against the documented values.
func (p Params) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"resolution", p.Resolution, allowedResolutions},
		{"aspect_ratio", p.AspectRatio, allowedAspectRatios},
		{"output_format", p.OutputFormat, allowedOutputFormats},
		{"safety_filter_level", p.SafetyFilterLevel, allowedSafetyLevels},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return domain.NewValidationError(c.field, fmt.Sprintf("unsupported value %q", c.value))
		}
	}
	return nil
}

// Submission is what a provider receives for a single generation call.
type Submission struct {
	Model        string
	Prompt       string
	Image        []byte
	ImageMIME    string
	ImageDataURI string
	Params       Params
}

// Provider submits a generation request to a hosted model and returns its
// raw output.
type Provider interface {
	Submit(ctx context.Context, sub Submission) (Output, error)
	HasCredentials() bool
	Name() string
}

// Options configures a Gateway.
type Options struct {
	Provider      Provider
	Model         string
	HTTPClient    *http.Client
	MaxFetchBytes int64
	Logger        *infra.Logger
}

// Gateway performs exactly one provider submission per Generate call and at
// most one fetch to turn the returned location into bytes. It never retries.
type Gateway struct {
	provider      Provider
	model         string
	httpClient    *http.Client
	maxFetchBytes int64
	logger        *infra.Logger
}

// New constructs a Gateway. A nil HTTP client gets a default with a timeout.
func New(opts Options) *Gateway {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	limit := opts.MaxFetchBytes
	if limit <= 0 {
		limit = defaultMaxFetchBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Gateway{
		provider:      opts.Provider,
		model:         strings.TrimSpace(opts.Model),
		httpClient:    client,
		maxFetchBytes: limit,
		logger:        logger,
	}
}

// Configured reports whether the underlying provider has credentials.
func (g *Gateway) Configured() bool {
	return g != nil && g.provider != nil && g.provider.HasCredentials()
}

// ProviderName returns the provider identifier for logs and health output.
func (g *Gateway) ProviderName() string {
	if g == nil || g.provider == nil {
		return ""
	}
	return g.provider.Name()
}

// Model returns the model reference used for submissions.
func (g *Gateway) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate submits prompt and image to the provider and returns the bytes of
// the resulting image.
func (g *Gateway) Generate(ctx context.Context, image []byte, prompt string, params Params) ([]byte, error) {
	if g == nil || g.provider == nil {
		return nil, &GatewayError{Op: "generate", Cause: ErrMissingCredentials}
	}
	if len(image) == 0 {
		return nil, domain.NewValidationError("image", "must not be empty")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.NewValidationError("prompt", "must not be empty")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	mime := imaging.SniffMIME(image)
	start := time.Now()
	out, err := g.provider.Submit(ctx, Submission{
		Model:        g.model,
		Prompt:       prompt,
		Image:        image,
		ImageMIME:    mime,
		ImageDataURI: imaging.DataURI(image, mime),
		Params:       params,
	})
	if err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) {
			return nil, err
		}
		return nil, &GatewayError{Op: "submit", Cause: err}
	}
	g.logger.Debug().
		Str("provider", g.provider.Name()).
		Str("model", g.model).
		Str("output", out.outputKind()).
		Dur("elapsed", time.Since(start)).
		Msg("gateway: provider returned output")

	return g.Resolve(ctx, out)
}

// Resolve turns any recognized Output shape into image bytes.
func (g *Gateway) Resolve(ctx context.Context, out Output) ([]byte, error) {
	if out == nil {
		return nil, &GatewayError{Op: "resolve output", Cause: ErrUnexpectedOutput}
	}
	loc, ok := locate(out)
	if !ok {
		g.logger.Warn().Str("output", out.outputKind()).Msg("gateway: unexpected output shape")
		return nil, &GatewayError{Op: "resolve output", Cause: ErrUnexpectedOutput}
	}
	return g.fetch(ctx, loc)
}

func (g *Gateway) fetch(ctx context.Context, loc string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, &FetchError{URL: loc, Cause: err}
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: loc, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: loc, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxFetchBytes+1))
	if err != nil {
		return nil, &FetchError{URL: loc, Cause: err}
	}
	if int64(len(data)) > g.maxFetchBytes {
		return nil, &FetchError{URL: loc, Cause: fmt.Errorf("body exceeds %d bytes", g.maxFetchBytes)}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: loc, Cause: errors.New("empty body")}
	}
	g.logger.Debug().Int("bytes", len(data)).Msg("gateway: fetched output")
	return data, nil
}
