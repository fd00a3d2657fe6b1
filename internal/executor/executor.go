// Package executor is the transport and timing instrument of the suite. It
// sends literal payloads to the sandbox, measures wall time, and folds
// sandbox errors and timeouts into a "blocked" signal. It never interprets
// payload semantics; that is the classifier's job.
package executor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sandtrap-sec/sandtrap/internal/sandbox"
)

// DefaultTimeout bounds a single payload execution.
const DefaultTimeout = 10 * time.Second

// Execution is the raw result of sending one payload.
type Execution struct {
	Output  string
	Elapsed time.Duration

	// Blocked means the sandbox raised an error or the call timed out.
	// Absence of a completed execution is read as active defense, so a
	// blocked execution is a pass candidate, not a harness failure.
	Blocked     bool
	BlockReason string
}

// Executor drives a sandbox runner with a hard per-payload timeout and an
// optional pacing limit for sequential runs.
type Executor struct {
	runner  sandbox.Runner
	timeout time.Duration
	limiter *rate.Limiter
}

// New creates an executor. timeout <= 0 falls back to DefaultTimeout;
// perSecond <= 0 disables pacing.
func New(runner sandbox.Runner, timeout time.Duration, perSecond float64) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Executor{runner: runner, timeout: timeout}
	if perSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return e
}

// Execute sends one payload and measures it. A sandbox error or timeout
// yields Blocked with the reason; only a context already cancelled before
// dispatch is returned as an error, so suite cancellation is distinguishable
// from sandbox defense.
func (e *Executor) Execute(ctx context.Context, payload, sessionID string) (Execution, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Execution{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return Execution{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.runner.ExecuteCommand(callCtx, payload, sessionID)
	elapsed := time.Since(start)

	if err != nil {
		// Suite cancellation during the call still counts the payload as
		// dispatched; the runner decides whether to keep the partial result.
		if ctx.Err() != nil && callCtx.Err() != context.DeadlineExceeded {
			return Execution{}, ctx.Err()
		}
		return Execution{
			Elapsed:     elapsed,
			Blocked:     true,
			BlockReason: err.Error(),
		}, nil
	}
	if res.Elapsed > 0 {
		elapsed = res.Elapsed
	}
	return Execution{Output: res.Output, Elapsed: elapsed}, nil
}
