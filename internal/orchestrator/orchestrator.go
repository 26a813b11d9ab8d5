// Package orchestrator drives the frame jobs of a generation run through the
// gateway under a concurrency limit and streams the results as events.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/infra"
)

const (
	DefaultConcurrency = 3
	MaxConcurrency     = 8
	DefaultTimeout     = 120 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 10 * time.Second
)

// Generator produces the image for one frame.
type Generator interface {
	Generate(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error)
}

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	Generator   Generator
	Params      gateway.Params
	Concurrency int
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *infra.Logger
}

// Orchestrator starts generation runs. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	gen         Generator
	params      gateway.Params
	concurrency int
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	logger      *infra.Logger
}

// FrameError reports the job that ended a run.
type FrameError struct {
	Job domain.FrameJob
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d (%s): %v", e.Job.Index, e.Job.Step.Name, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// New builds an Orchestrator from opts.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		gen:         opts.Generator,
		params:      opts.Params,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger,
	}
	if o.params == (gateway.Params{}) {
		o.params = gateway.FrameParams
	}
	if o.concurrency <= 0 {
		o.concurrency = DefaultConcurrency
	}
	if o.concurrency > MaxConcurrency {
		o.concurrency = MaxConcurrency
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxAttempts
	}
	if o.retryDelay < 0 {
		o.retryDelay = 0
	}
	if o.logger == nil {
		o.logger = infra.NopLogger()
	}
	return o
}

// Timeout returns the run-time ceiling applied to every run.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// Start launches a run over jobs and returns immediately. The caller drains
// Run.Events until it is closed; cancelling ctx abandons the run without a
// terminal event.
func (o *Orchestrator) Start(ctx context.Context, image []byte, jobs []domain.FrameJob) *Run {
	run := &Run{
		ID:     uuid.NewString(),
		total:  len(jobs),
		status: domain.RunStatusRunning,
		events: make(chan Event),
	}
	go o.execute(ctx, run, image, jobs)
	return run
}

type frameResult struct {
	job  domain.FrameJob
	data []byte
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, image []byte, jobs []domain.FrameJob) {
	defer close(run.events)

	logger := o.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().
		Int("total", run.total).
		Int("concurrency", o.concurrency).
		Dur("timeout", o.timeout).
		Msg("generation run started")
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Buffered so that workers never block once the emitter has stopped.
	results := make(chan frameResult, len(jobs))
	failures := make(chan error, 1)
	waitErr := make(chan error, 1)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.concurrency)
	go func() {
		for _, job := range jobs {
			if gctx.Err() != nil {
				break
			}
			job := job
			g.Go(func() error {
				data, err := o.generateFrame(gctx, &logger, image, job)
				if err != nil {
					ferr := &FrameError{Job: job, Err: err}
					select {
					case failures <- ferr:
					default:
					}
					return ferr
				}
				results <- frameResult{job: job, data: data}
				return nil
			})
		}
		waitErr <- g.Wait()
		close(results)
	}()

	fail := func(cause error) {
		switch {
		case ctx.Err() != nil:
			run.finish(domain.RunStatusFailed, ctx.Err())
			logger.Warn().Err(ctx.Err()).Int("completed", run.Snapshot().Completed).Msg("generation run abandoned by caller")
			return
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			cause = fmt.Errorf("generation timed out after %s", o.timeout)
		}
		run.finish(domain.RunStatusFailed, cause)
		logger.Error().Err(cause).Int("completed", run.Snapshot().Completed).Dur("elapsed", time.Since(started)).Msg("generation run failed")
		run.emit(ctx, Event{Type: EventError, Error: cause.Error()})
	}

	for {
		select {
		case res, ok := <-results:
			if !ok {
				if err := <-waitErr; err != nil {
					fail(err)
					return
				}
				run.finish(domain.RunStatusCompleted, nil)
				logger.Info().Int("completed", run.total).Dur("elapsed", time.Since(started)).Msg("generation run completed")
				run.emit(ctx, Event{Type: EventComplete})
				return
			}
			step := res.job.Step
			ev := Event{
				Type:        EventProgress,
				Completed:   run.advance(),
				Total:       run.total,
				Step:        &step,
				Index:       res.job.Index,
				ImageBase64: base64.StdEncoding.EncodeToString(res.data),
			}
			if !run.emit(ctx, ev) {
				fail(ctx.Err())
				return
			}
		case err := <-failures:
			fail(err)
			return
		case <-runCtx.Done():
			fail(runCtx.Err())
			return
		}
	}
}

// generateFrame calls the generator, retrying temporary provider errors.
func (o *Orchestrator) generateFrame(ctx context.Context, logger *infra.Logger, image []byte, job domain.FrameJob) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		data, err := o.gen.Generate(ctx, image, job.Prompt, o.params)
		if err == nil {
			logger.Debug().
				Int("index", job.Index).
				Str("step", job.Step.Name).
				Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("frame generated")
			return data, nil
		}
		if attempt >= o.maxAttempts || !gateway.IsTemporary(err) || ctx.Err() != nil {
			return nil, err
		}
		logger.Warn().
			Err(err).
			Int("index", job.Index).
			Int("attempt", attempt).
			Dur("retry_in", o.retryDelay).
			Msg("frame rate limited, retrying")

		timer := time.NewTimer(o.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Run is the state of one generation run.
type Run struct {
	ID     string
	events chan Event

	mu        sync.Mutex
	total     int
	completed int
	status    domain.RunStatus
	err       error
}

// Snapshot is a point-in-time copy of a run's progress.
type Snapshot struct {
	ID        string           `json:"id"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Status    domain.RunStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
}

// Events returns the run's event sequence. It is closed after the terminal
// event, or without one when the caller's context was cancelled.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Snapshot returns the current progress.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{ID: r.ID, Completed: r.completed, Total: r.total, Status: r.status}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// Err returns the cause of a failed run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) advance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed < r.total {
		r.completed++
	}
	return r.completed
}

// finish moves a running run into a terminal state; later calls are ignored.
func (r *Run) finish(status domain.RunStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.status = status
	r.err = err
}

func (r *Run) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
