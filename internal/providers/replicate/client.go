package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

const (
	defaultBaseURL         = "https://api.replicate.com/v1"
	defaultPollInterval    = time.Second
	defaultMaxPollInterval = 8 * time.Second
)

// Options configures the Replicate predictions client.
type Options struct {
	APIToken        string
	BaseURL         string
	HTTPClient      *http.Client
	Logger          *infra.Logger
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// Client creates predictions on Replicate and waits for them to settle.
type Client struct {
	apiToken        string
	baseURL         string
	httpClient      *http.Client
	logger          *infra.Logger
	pollInterval    time.Duration
	maxPollInterval time.Duration
}

type predictionInput struct {
	Prompt            string   `json:"prompt"`
	ImageInput        []string `json:"image_input"`
	Resolution        string   `json:"resolution,omitempty"`
	AspectRatio       string   `json:"aspect_ratio,omitempty"`
	OutputFormat      string   `json:"output_format,omitempty"`
	SafetyFilterLevel string   `json:"safety_filter_level,omitempty"`
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with defaults for anything left unset.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxPoll := opts.MaxPollInterval
	if maxPoll < poll {
		maxPoll = defaultMaxPollInterval
		if maxPoll < poll {
			maxPoll = poll
		}
	}
	return &Client{
		apiToken:        strings.TrimSpace(opts.APIToken),
		baseURL:         baseURL,
		httpClient:      httpClient,
		logger:          logger,
		pollInterval:    poll,
		maxPollInterval: maxPoll,
	}
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "replicate" }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiToken != ""
}

// Submit creates a prediction for sub.Model and blocks until it succeeds,
// fails or ctx is done.
func (c *Client) Submit(ctx context.Context, sub gateway.Submission) (gateway.Output, error) {
	if !c.HasCredentials() {
		return nil, &gateway.GatewayError{Op: "create prediction", Cause: ErrMissingAPIToken}
	}
	endpoint, version, err := c.endpointFor(sub.Model)
	if err != nil {
		return nil, err
	}
	payload := predictionRequest{
		Version: version,
		Input: predictionInput{
			Prompt:            sub.Prompt,
			ImageInput:        []string{sub.ImageDataURI},
			Resolution:        sub.Params.Resolution,
			AspectRatio:       sub.Params.AspectRatio,
			OutputFormat:      sub.Params.OutputFormat,
			SafetyFilterLevel: sub.Params.SafetyFilterLevel,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}

	pred, err := c.do(ctx, http.MethodPost, endpoint, body, "create prediction")
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", sub.Model).
		Str("prediction_id", pred.ID).
		Str("status", pred.Status).
		Msg("replicate: prediction created")

	pred, err = c.wait(ctx, pred)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeOutput(pred.Output), nil
}

// endpointFor maps "owner/name" to the model predictions endpoint and
// "owner/name:version" to the versioned predictions endpoint.
func (c *Client) endpointFor(model string) (string, string, error) {
	model = strings.TrimSpace(model)
	ref, version, hasVersion := strings.Cut(model, ":")
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", &gateway.GatewayError{Op: "create prediction", Message: fmt.Sprintf("invalid model reference %q", model)}
	}
	if hasVersion {
		if version == "" {
			return "", "", &gateway.GatewayError{Op: "create prediction", Message: fmt.Sprintf("invalid model reference %q", model)}
		}
		return c.baseURL + "/predictions", version, nil
	}
	return fmt.Sprintf("%s/models/%s/%s/predictions", c.baseURL, url.PathEscape(owner), url.PathEscape(name)), "", nil
}

func (c *Client) wait(ctx context.Context, pred *prediction) (*prediction, error) {
	interval := c.pollInterval
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, &gateway.GatewayError{Op: "prediction " + pred.Status, Message: predictionError(pred)}
		}
		if pred.URLs.Get == "" {
			return nil, &gateway.GatewayError{Op: "poll prediction", Message: "prediction has no status url"}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		interval *= 2
		if interval > c.maxPollInterval {
			interval = c.maxPollInterval
		}

		next, err := c.do(ctx, http.MethodGet, pred.URLs.Get, nil, "poll prediction")
		if err != nil {
			return nil, err
		}
		if next.URLs.Get == "" {
			next.URLs.Get = pred.URLs.Get
		}
		pred = next
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, op string) (*prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &gateway.GatewayError{Op: op, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &gateway.GatewayError{Op: op, Cause: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil {
			switch {
			case detail.Detail != "":
				msg = detail.Detail
			case detail.Title != "":
				msg = detail.Title
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &gateway.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, &gateway.GatewayError{Op: op, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return &pred, nil
}

func predictionError(pred *prediction) string {
	switch v := pred.Error.(type) {
	case nil:
		return "prediction " + pred.Status
	case string:
		if v == "" {
			return "prediction " + pred.Status
		}
		return v
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

var _ gateway.Provider = (*Client)(nil)
