package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/velinussage/pfp-animate/internal/orchestrator"
	"github.com/velinussage/pfp-animate/internal/planner"
)

func TestMotions(t *testing.T) {
	app := newTestApp(&stubGateway{}, &stubGateway{})
	rec := httptest.NewRecorder()
	app.Motions(rec, httptest.NewRequest(http.MethodGet, "/api/motions", nil))

	var resp motionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Default != planner.DefaultMotion || len(resp.Motions) != len(planner.Motions()) {
		t.Fatalf("motions = %+v", resp)
	}
}

func TestAnimateStreamEndToEnd(t *testing.T) {
	frame := pngBytes(t, 120)
	frames := &stubGateway{configured: true, out: frame}
	app := newTestApp(&stubGateway{}, frames)

	rec := postJSON(t, app.AnimateStream, "/api/animate/stream", animateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(pngBytes(t, 1)),
		Motion:      "wink",
		Prefix:      "me",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	events := streamEvents(t, rec.Body.String())
	if len(events) != 11 {
		t.Fatalf("events = %d, want 11", len(events))
	}
	for i, ev := range events[:10] {
		if ev.Type != orchestrator.EventProgress || ev.Total != 10 {
			t.Fatalf("event %d = %+v", i, ev)
		}
		if ev.Step == nil || !strings.HasPrefix(ev.Step.Name, "me_wink_") {
			t.Fatalf("event %d step = %+v", i, ev.Step)
		}
	}
	if events[10].Type != orchestrator.EventComplete {
		t.Fatalf("terminal event = %+v", events[10])
	}
	if frames.callCount() != 10 {
		t.Fatalf("gateway calls = %d", frames.callCount())
	}
}

func TestAnimateStreamRejectsUnknownMotion(t *testing.T) {
	frames := &stubGateway{configured: true}
	app := newTestApp(&stubGateway{}, frames)
	rec := postJSON(t, app.AnimateStream, "/api/animate/stream", animateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(pngBytes(t, 1)),
		Motion:      "moonwalk",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != codeBadRequest || !strings.Contains(resp.Error, "motion") {
		t.Fatalf("error = %+v", resp)
	}
	if frames.callCount() != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestExportGIF(t *testing.T) {
	app := newTestApp(&stubGateway{}, &stubGateway{})
	encode := func(shade uint8) string { return base64.StdEncoding.EncodeToString(pngBytes(t, shade)) }

	rec := postJSON(t, app.ExportGIF, "/api/export/gif", gifRequest{
		Prefix: "me",
		Motion: "nod",
		Frames: []exportFrame{
			{Index: 9, ImageBase64: encode(255)},
			{Index: 0, ImageBase64: encode(0)},
			{Index: 5, ImageBase64: encode(153)},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="me-nod.gif"` {
		t.Fatalf("content-disposition = %q", got)
	}
	if got := rec.Header().Get("X-Missing-Frames"); got != "7" {
		t.Fatalf("missing = %q", got)
	}

	anim, err := gif.DecodeAll(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(anim.Image) != 3 {
		t.Fatalf("frames = %d", len(anim.Image))
	}
	// nod plays at 12 fps
	if anim.Delay[0] != 8 {
		t.Fatalf("delay = %d", anim.Delay[0])
	}
	// keyframe order, black first and white last
	first, _, _, _ := anim.Image[0].At(4, 4).RGBA()
	last, _, _, _ := anim.Image[2].At(4, 4).RGBA()
	if first >= last {
		t.Fatalf("frames out of keyframe order: %d >= %d", first, last)
	}
}

func TestExportGIFRejectsBadRequests(t *testing.T) {
	img := base64.StdEncoding.EncodeToString(pngBytes(t, 1))
	tests := []struct {
		name string
		req  gifRequest
	}{
		{"unknown motion", gifRequest{Motion: "moonwalk", Frames: []exportFrame{{Index: 0, ImageBase64: img}}}},
		{"no frames", gifRequest{Motion: "nod"}},
		{"index past last keyframe", gifRequest{Motion: "nod", Frames: []exportFrame{{Index: 10, ImageBase64: img}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&stubGateway{}, &stubGateway{})
			rec := postJSON(t, app.ExportGIF, "/api/export/gif", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
}
