package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/planner"
)

type generatorFunc func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error)

func (f generatorFunc) Generate(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
	return f(ctx, image, prompt, params)
}

func planJobs(t *testing.T, x, y int) []domain.FrameJob {
	t.Helper()
	jobs, err := planner.New(nil, planner.DefaultFrameCostUSD).Plan(x, y, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return jobs
}

func indexFromPrompt(jobs []domain.FrameJob, prompt string) int {
	for _, j := range jobs {
		if j.Prompt == prompt {
			return j.Index
		}
	}
	return -1
}

func collect(t *testing.T, run *Run) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("run did not close its event stream; got %d events", len(events))
		}
	}
}

// checkStream verifies ordering: progress counts rise by one, exactly one
// terminal event, nothing after it.
func checkStream(t *testing.T, events []Event, total int) Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatalf("no events")
	}
	for i, ev := range events[:len(events)-1] {
		if ev.Type != EventProgress {
			t.Fatalf("event %d is %q before the end of the stream", i, ev.Type)
		}
		if ev.Completed != i+1 || ev.Total != total {
			t.Fatalf("event %d completed=%d total=%d, want %d/%d", i, ev.Completed, ev.Total, i+1, total)
		}
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("stream ended without terminal event: %+v", last)
	}
	return last
}

func TestRunEmitsProgressThenComplete(t *testing.T) {
	jobs := planJobs(t, 3, 3)
	gen := generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		if params != gateway.FrameParams {
			return nil, errors.New("unexpected params")
		}
		return []byte(fmt.Sprintf("frame-%d", indexFromPrompt(jobs, prompt))), nil
	})
	o := New(Options{Generator: gen})

	run := o.Start(context.Background(), []byte("source"), jobs)
	events := collect(t, run)
	if len(events) != 10 {
		t.Fatalf("got %d events, want 10", len(events))
	}
	last := checkStream(t, events, 9)
	if last.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", last)
	}

	seen := make(map[int]bool)
	for _, ev := range events[:9] {
		if seen[ev.Index] {
			t.Fatalf("index %d emitted twice", ev.Index)
		}
		seen[ev.Index] = true
		data, err := base64.StdEncoding.DecodeString(ev.ImageBase64)
		if err != nil || string(data) != fmt.Sprintf("frame-%d", ev.Index) {
			t.Fatalf("payload for index %d = %q (%v)", ev.Index, data, err)
		}
		if ev.Step == nil || ev.Step.Name != jobs[ev.Index].Step.Name {
			t.Fatalf("step for index %d = %+v", ev.Index, ev.Step)
		}
	}

	snap := run.Snapshot()
	if snap.Status != domain.RunStatusCompleted || snap.Completed != 9 || snap.Total != 9 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

type urlProvider struct {
	base string
}

func (p urlProvider) Submit(ctx context.Context, sub gateway.Submission) (gateway.Output, error) {
	return gateway.URL(p.base + "/" + sub.Prompt), nil
}
func (urlProvider) HasCredentials() bool { return true }
func (urlProvider) Name() string         { return "test" }

func TestRunFailsFastOnFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/job-4" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("image"))
	}))
	defer ts.Close()

	jobs := planJobs(t, 3, 3)
	for i := range jobs {
		jobs[i].Prompt = fmt.Sprintf("job-%d", i)
	}
	gw := gateway.New(gateway.Options{Provider: urlProvider{base: ts.URL}})
	o := New(Options{Generator: gw, Concurrency: 1, RetryDelay: time.Millisecond})

	run := o.Start(context.Background(), []byte{0x89, 'P', 'N', 'G'}, jobs)
	events := collect(t, run)
	last := checkStream(t, events, 9)
	if last.Type != EventError {
		t.Fatalf("terminal event = %+v, want error", last)
	}
	if len(events)-1 > 4 {
		t.Fatalf("got %d progress events, want at most 4", len(events)-1)
	}
	if !strings.Contains(last.Error, "frame 4 (avatar_1_1)") || !strings.Contains(last.Error, "status 503") {
		t.Fatalf("error message = %q", last.Error)
	}

	var ferr *FrameError
	if err := run.Err(); !errors.As(err, &ferr) || ferr.Job.Index != 4 {
		t.Fatalf("run error = %v", err)
	}
	var fetchErr *gateway.FetchError
	if !errors.As(run.Err(), &fetchErr) {
		t.Fatalf("run error should wrap the fetch error: %v", run.Err())
	}
	if snap := run.Snapshot(); snap.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
}

func TestRunRetriesRateLimitedFrames(t *testing.T) {
	jobs := planJobs(t, 3, 3)
	var calls sync.Map
	gen := generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		idx := indexFromPrompt(jobs, prompt)
		v, _ := calls.LoadOrStore(idx, new(int32))
		n := atomic.AddInt32(v.(*int32), 1)
		if idx == 2 && n < 3 {
			return nil, &gateway.GatewayError{Op: "create prediction", StatusCode: http.StatusTooManyRequests, Message: "throttled"}
		}
		return []byte("ok"), nil
	})
	o := New(Options{Generator: gen, MaxAttempts: 3, RetryDelay: time.Millisecond})

	events := collect(t, o.Start(context.Background(), []byte("src"), jobs))
	if last := checkStream(t, events, 9); last.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", last)
	}
	v, _ := calls.Load(2)
	if got := atomic.LoadInt32(v.(*int32)); got != 3 {
		t.Fatalf("job 2 attempts = %d, want 3", got)
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	jobs := planJobs(t, 3, 3)
	var calls int32
	gen := generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &gateway.GatewayError{Op: "submit", StatusCode: http.StatusTooManyRequests}
	})
	o := New(Options{Generator: gen, Concurrency: 1, MaxAttempts: 2, RetryDelay: time.Millisecond})

	events := collect(t, o.Start(context.Background(), []byte("src"), jobs))
	if last := checkStream(t, events, 9); last.Type != EventError {
		t.Fatalf("terminal event = %+v, want error", last)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	jobs := planJobs(t, 3, 3)
	var calls int32
	gen := generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &gateway.FetchError{URL: "https://x", StatusCode: http.StatusTooManyRequests}
	})
	o := New(Options{Generator: gen, Concurrency: 1, MaxAttempts: 5, RetryDelay: time.Millisecond})

	events := collect(t, o.Start(context.Background(), []byte("src"), jobs))
	if last := checkStream(t, events, 9); last.Type != EventError {
		t.Fatalf("terminal event = %+v, want error", last)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func blockingGenerator() Generator {
	return generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestRunTimesOut(t *testing.T) {
	o := New(Options{Generator: blockingGenerator(), Timeout: 50 * time.Millisecond})
	run := o.Start(context.Background(), []byte("src"), planJobs(t, 3, 3))

	events := collect(t, run)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != EventError || events[0].Error != "generation timed out after 50ms" {
		t.Fatalf("event = %+v", events[0])
	}
	if snap := run.Snapshot(); snap.Status != domain.RunStatusFailed || snap.Completed != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunCancelledByCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := New(Options{Generator: blockingGenerator()})
	run := o.Start(ctx, []byte("src"), planJobs(t, 3, 3))

	time.AfterFunc(20*time.Millisecond, cancel)
	events := collect(t, run)
	if len(events) != 0 {
		t.Fatalf("cancelled run emitted %d events: %+v", len(events), events)
	}
	if snap := run.Snapshot(); snap.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !errors.Is(run.Err(), context.Canceled) {
		t.Fatalf("run error = %v", run.Err())
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	gen := generatorFunc(func(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return []byte("ok"), nil
	})
	o := New(Options{Generator: gen, Concurrency: 2})

	events := collect(t, o.Start(context.Background(), []byte("src"), planJobs(t, 4, 4)))
	if last := checkStream(t, events, 16); last.Type != EventComplete {
		t.Fatalf("terminal event = %+v", last)
	}
	if p := atomic.LoadInt32(&peak); p < 1 || p > 2 {
		t.Fatalf("peak concurrency = %d, want 1..2", p)
	}
}

func TestRunWithNoJobsCompletes(t *testing.T) {
	o := New(Options{Generator: blockingGenerator()})
	events := collect(t, o.Start(context.Background(), nil, nil))
	if len(events) != 1 || events[0].Type != EventComplete {
		t.Fatalf("events = %+v", events)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	o := New(Options{Concurrency: 50})
	if o.concurrency != MaxConcurrency || o.timeout != DefaultTimeout || o.maxAttempts != DefaultMaxAttempts {
		t.Fatalf("defaults not applied: %+v", o)
	}
	if o.params != gateway.FrameParams {
		t.Fatalf("params = %+v", o.params)
	}
}

func TestEventJSON(t *testing.T) {
	step := domain.Step{Col: 0, Row: 0, DX: -1, DY: 1, Name: "avatar_0_0"}
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "progress at index zero",
			ev:   Event{Type: EventProgress, Completed: 1, Total: 9, Step: &step, Index: 0, ImageBase64: "aGk="},
			want: `{"type":"progress","completed":1,"total":9,"step":{"col":0,"row":0,"dx":-1,"dy":1,"name":"avatar_0_0"},"index":0,"imageBase64":"aGk="}`,
		},
		{name: "complete", ev: Event{Type: EventComplete, Completed: 9}, want: `{"type":"complete"}`},
		{name: "error", ev: Event{Type: EventError, Error: "boom"}, want: `{"type":"error","error":"boom"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s\nwant %s", got, tc.want)
			}
		})
	}
}
