package sse

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/velinussage/pfp-animate/internal/domain"
)

// chunkReader hands out its chunks one Read at a time.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		out = append(out, string(rec))
	}
}

func TestReaderJoinsSplitRecords(t *testing.T) {
	r := NewReader(&chunkReader{chunks: []string{
		`data: {"type":"prog`,
		`ress","completed":1}` + "\n",
		"\n" + `data: {"type":"complete"}`,
		"\n\n",
	}})
	got := readAll(t, r)
	want := []string{`{"type":"progress","completed":1}`, `{"type":"complete"}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("records = %q, want %q", got, want)
	}
}

func TestReaderFieldsAndComments(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"event: message\nid: 7\ndata: first\ndata: second\n\n" +
		"data:nospace\r\n\r\n" +
		"retry: 100\n\n"
	got := readAll(t, NewReader(strings.NewReader(stream)))
	want := []string{"first\nsecond", "nospace"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("records = %q, want %q", got, want)
	}
}

func TestReaderDropsPartialTrailingRecord(t *testing.T) {
	got := readAll(t, NewReader(strings.NewReader("data: one\n\ndata: {\"type\":\"comp")))
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("records = %q", got)
	}
}

func TestWriterSendsRecords(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	if err := w.Send(map[string]string{"type": "complete"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content-type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache-control = %q", got)
	}
	if !rec.Flushed {
		t.Fatalf("expected response to be flushed")
	}
	if body := rec.Body.String(); body != "data: {\"type\":\"complete\"}\n\n" {
		t.Fatalf("body = %q", body)
	}

	records := readAll(t, NewReader(strings.NewReader(rec.Body.String())))
	if len(records) != 1 || records[0] != `{"type":"complete"}` {
		t.Fatalf("round trip = %q", records)
	}
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header        { return b.header }
func (b *brokenWriter) Write([]byte) (int, error)  { return 0, errors.New("broken pipe") }
func (b *brokenWriter) WriteHeader(statusCode int) {}

func TestWriterReportsStreamError(t *testing.T) {
	w := NewWriter(&brokenWriter{header: http.Header{}})
	err := w.Send(map[string]string{"type": "complete"})
	var se *StreamError
	if !errors.As(err, &se) || se.Op != "write" {
		t.Fatalf("expected write StreamError, got %v", err)
	}
	if !errors.Is(err, domain.ErrStream) {
		t.Fatalf("stream errors must match domain.ErrStream")
	}
}
