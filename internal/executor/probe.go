package executor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultProbeLevels are the concurrency steps used when probing the
// sandbox's own concurrency controls.
var DefaultProbeLevels = []int{1, 5, 10, 20, 100}

// DefaultProbeTimeout bounds one whole probe wave, wall clock.
const DefaultProbeTimeout = 30 * time.Second

// ProbeResult summarizes one concurrency wave. Rejected counts operations
// the sandbox refused; a healthy sandbox rejects the excess past its own
// limits rather than falling over.
type ProbeResult struct {
	Level     int
	Attempted int
	Succeeded int
	Rejected  int
	TimedOut  int
	Elapsed   time.Duration
}

func (r ProbeResult) String() string {
	return fmt.Sprintf("level=%d ok=%d rejected=%d timeout=%d in %s",
		r.Level, r.Succeeded, r.Rejected, r.TimedOut, r.Elapsed.Round(time.Millisecond))
}

// ProbeSessions issues level parallel session create/destroy pairs. Used by
// the race-condition category to verify session bookkeeping holds under
// contention. Every worker runs under the wall-clock timeout; sessions that
// were created are destroyed even when the wave is cancelled.
func (e *Executor) ProbeSessions(ctx context.Context, level int, wall time.Duration) ProbeResult {
	return e.probe(ctx, level, wall, func(ctx context.Context, i int) error {
		sess, err := e.runner.CreateSession(ctx, fmt.Sprintf("probe-%d", i))
		if err != nil {
			return err
		}
		// Destroy outside the wave context so cancellation cannot leak the
		// session.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		return e.runner.DestroySession(cleanupCtx, sess.ID)
	})
}

// ProbePayload issues level parallel executions of the same payload. Used by
// the resource-exhaustion category.
func (e *Executor) ProbePayload(ctx context.Context, payload string, level int, wall time.Duration) ProbeResult {
	return e.probe(ctx, level, wall, func(ctx context.Context, _ int) error {
		_, err := e.runner.ExecuteCommand(ctx, payload, "")
		return err
	})
}

// probe runs op in a pool of exactly level workers, one operation each,
// under a shared wall-clock deadline. Pacing does not apply; the wave is
// deliberately concurrent.
func (e *Executor) probe(ctx context.Context, level int, wall time.Duration, op func(context.Context, int) error) ProbeResult {
	if level < 1 {
		level = 1
	}
	if wall <= 0 {
		wall = DefaultProbeTimeout
	}
	waveCtx, cancel := context.WithTimeout(ctx, wall)
	defer cancel()

	var (
		mu  sync.Mutex
		res = ProbeResult{Level: level, Attempted: level}
		wg  sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < level; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := op(waveCtx, i)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Succeeded++
			case waveCtx.Err() != nil:
				res.TimedOut++
			default:
				res.Rejected++
			}
		}(i)
	}
	wg.Wait()
	res.Elapsed = time.Since(start)
	return res
}
