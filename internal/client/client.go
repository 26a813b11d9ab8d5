// Package client consumes the avatar grid HTTP API: it preprocesses a
// portrait and follows the generation event stream to completion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/imaging"
	"github.com/velinussage/pfp-animate/internal/infra"
	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/sse"
)

// ErrNoTerminalEvent is returned when a stream closes before a complete or
// error event arrives.
var ErrNoTerminalEvent = errors.New("client: stream ended without a terminal event")

// APIError is a non-2xx JSON response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("client: status %d: %s", e.StatusCode, e.Message)
}

// GenerationError carries the message of an error event.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Message }

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *infra.Logger
}

// New returns a Client. The default HTTP client has no overall timeout since
// generation streams can run for minutes; bound calls through ctx instead.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// GenerateRequest describes a grid to generate.
type GenerateRequest struct {
	ImageBase64 string `json:"imageBase64"`
	XSteps      int    `json:"xSteps"`
	YSteps      int    `json:"ySteps"`
	Prefix      string `json:"prefix,omitempty"`
}

// Frame is one generated image placed in the grid.
type Frame struct {
	Index int
	Step  domain.Step
	Image []byte
}

// Result collects the frames of a stream. Frames are sorted by index.
type Result struct {
	Total    int
	Frames   []Frame
	Complete bool
}

// Percent reports how far a progress event is through its run.
func Percent(ev orchestrator.Event) int {
	if ev.Total <= 0 {
		return 0
	}
	return ev.Completed * 100 / ev.Total
}

type preprocessResponse struct {
	Success     bool   `json:"success"`
	ImageBase64 string `json:"imageBase64"`
}

// Preprocess asks the service for the stylized base portrait.
func (c *Client) Preprocess(ctx context.Context, imageBase64 string) (string, error) {
	resp, err := c.post(ctx, "/api/preprocess", map[string]string{"imageBase64": imageBase64}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out preprocessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("client: decode preprocess response: %w", err)
	}
	if !out.Success || out.ImageBase64 == "" {
		return "", errors.New("client: preprocess returned no image")
	}
	return out.ImageBase64, nil
}

// Generate opens a generation stream and follows it to its terminal event.
// onEvent, when set, sees every decoded event in wire order. Records that are
// not valid JSON are skipped. The frames received before a failure are
// returned along with the error.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, onEvent func(orchestrator.Event)) (*Result, error) {
	return c.stream(ctx, "/api/generate/stream", req, onEvent)
}

// AnimateRequest describes a keyframe animation to generate.
type AnimateRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Motion      string `json:"motion,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
}

// Animate generates one frame per keyframe of a motion. It follows the
// stream the same way Generate does.
func (c *Client) Animate(ctx context.Context, req AnimateRequest, onEvent func(orchestrator.Event)) (*Result, error) {
	return c.stream(ctx, "/api/animate/stream", req, onEvent)
}

func (c *Client) stream(ctx context.Context, path string, body any, onEvent func(orchestrator.Event)) (*Result, error) {
	resp, err := c.post(ctx, path, body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &Result{}
	frames := make(map[int]Frame)
	collect := func() {
		result.Frames = make([]Frame, 0, len(frames))
		for _, f := range frames {
			result.Frames = append(result.Frames, f)
		}
		sort.Slice(result.Frames, func(i, j int) bool { return result.Frames[i].Index < result.Frames[j].Index })
	}

	reader := sse.NewReader(resp.Body)
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			collect()
			return result, ErrNoTerminalEvent
		}
		if err != nil {
			collect()
			return result, fmt.Errorf("client: read stream: %w", err)
		}

		var ev orchestrator.Event
		if err := json.Unmarshal(record, &ev); err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(record)).Msg("skipping malformed stream record")
			continue
		}
		if onEvent != nil {
			onEvent(ev)
		}

		switch ev.Type {
		case orchestrator.EventProgress:
			result.Total = ev.Total
			image, err := imaging.DecodeBase64(ev.ImageBase64)
			if err != nil {
				c.logger.Warn().Err(err).Int("index", ev.Index).Msg("skipping frame with undecodable image")
				continue
			}
			frame := Frame{Index: ev.Index, Image: image}
			if ev.Step != nil {
				frame.Step = *ev.Step
			}
			frames[ev.Index] = frame
		case orchestrator.EventComplete:
			result.Complete = true
			collect()
			return result, nil
		case orchestrator.EventError:
			collect()
			return result, &GenerationError{Message: ev.Error}
		default:
			c.logger.Debug().Str("type", string(ev.Type)).Msg("ignoring unknown event type")
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// ExportFrame is one frame submitted for export.
type ExportFrame struct {
	Index       int    `json:"index"`
	ImageBase64 string `json:"imageBase64"`
}

// ExportRequest asks the service to bundle a grid into a zip archive.
type ExportRequest struct {
	Prefix string        `json:"prefix,omitempty"`
	XSteps int           `json:"xSteps"`
	YSteps int           `json:"ySteps"`
	Frames []ExportFrame `json:"frames"`
}

// NewExportRequest builds an export request from the frames of result.
func NewExportRequest(req GenerateRequest, result *Result) ExportRequest {
	out := ExportRequest{Prefix: req.Prefix, XSteps: req.XSteps, YSteps: req.YSteps}
	if result == nil {
		return out
	}
	out.Frames = exportFrames(result)
	return out
}

func exportFrames(result *Result) []ExportFrame {
	frames := make([]ExportFrame, 0, len(result.Frames))
	for _, f := range result.Frames {
		frames = append(frames, ExportFrame{Index: f.Index, ImageBase64: imaging.EncodeBase64(f.Image)})
	}
	return frames
}

// Export returns the zip archive of a finished grid.
func (c *Client) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	return c.download(ctx, "/api/export", req, "application/zip")
}

// GIFRequest asks the service to play the frames of a motion back as a GIF.
type GIFRequest struct {
	Prefix string        `json:"prefix,omitempty"`
	Motion string        `json:"motion,omitempty"`
	Frames []ExportFrame `json:"frames"`
}

// NewGIFRequest builds a GIF request from the frames of an animation result.
func NewGIFRequest(req AnimateRequest, result *Result) GIFRequest {
	out := GIFRequest{Prefix: req.Prefix, Motion: req.Motion}
	if result != nil {
		out.Frames = exportFrames(result)
	}
	return out
}

// ExportGIF returns the animated GIF of a finished animation.
func (c *Client) ExportGIF(ctx context.Context, req GIFRequest) ([]byte, error) {
	return c.download(ctx, "/api/export/gif", req, "image/gif")
}

func (c *Client) download(ctx context.Context, path string, body any, accept string) ([]byte, error) {
	resp, err := c.post(ctx, path, body, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w", path, err)
	}
	return data, nil
}
