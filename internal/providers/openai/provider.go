// Package openai adapts the OpenAI image edit endpoint to the gateway
// Provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/infra"
)

// ErrMissingAPIKey indicates that the provider was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// editMaxDimension is the largest square edge the edit endpoint accepts.
const editMaxDimension = 1024

// Options configures the OpenAI provider.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Provider submits image edits through go-openai.
type Provider struct {
	client *goopenai.Client
	apiKey string
	model  string
	logger *infra.Logger
}

// NewProvider builds a Provider. The client is created even without a key so
// that HasCredentials can report the missing configuration at request time.
func NewProvider(opts Options) *Provider {
	apiKey := strings.TrimSpace(opts.APIKey)
	cfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = goopenai.CreateImageModelDallE2
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(cfg),
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
}

// Name identifies the provider in logs.
func (p *Provider) Name() string { return "openai" }

// HasCredentials reports whether an API key is configured.
func (p *Provider) HasCredentials() bool { return p.apiKey != "" }

// Submit uploads the reference image and prompt to the edit endpoint and
// returns the generated image locations as a List.
func (p *Provider) Submit(ctx context.Context, sub gateway.Submission) (gateway.Output, error) {
	if !p.HasCredentials() {
		return nil, &gateway.GatewayError{Op: "create image edit", Cause: ErrMissingAPIKey}
	}

	normalized, _, err := imaging.Normalize(sub.Image, editMaxDimension)
	if err != nil {
		return nil, &gateway.GatewayError{Op: "create image edit", Cause: err}
	}
	file, cleanup, err := spoolImage(normalized)
	if err != nil {
		return nil, &gateway.GatewayError{Op: "create image edit", Cause: err}
	}
	defer cleanup()

	resp, err := p.client.CreateEditImage(ctx, goopenai.ImageEditRequest{
		Image:          file,
		Prompt:         sub.Prompt,
		Model:          p.model,
		N:              1,
		Size:           goopenai.CreateImageSize1024x1024,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, mapError(err)
	}

	out := make(gateway.List, 0, len(resp.Data))
	for _, item := range resp.Data {
		if u := strings.TrimSpace(item.URL); u != "" {
			out = append(out, gateway.URL(u))
		}
	}
	p.logger.Debug().
		Str("model", p.model).
		Int("images", len(out)).
		Msg("openai: image edit completed")
	return out, nil
}

// spoolImage writes data to a temporary PNG file for the multipart upload.
func spoolImage(data []byte) (*os.File, func(), error) {
	f, err := os.CreateTemp("", "avatar-edit-*.png")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return f, cleanup, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &gateway.GatewayError{Op: "create image edit", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Cause: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &gateway.GatewayError{Op: "create image edit", StatusCode: reqErr.HTTPStatusCode, Cause: err}
	}
	return &gateway.GatewayError{Op: "create image edit", Cause: err}
}

var _ gateway.Provider = (*Provider)(nil)
