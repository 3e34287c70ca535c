package profiler

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rzrymiak/graal/engine"
)

// ThreadSample is one thread's captured stack as seen by the profiler:
// filtered, depth-limited and paired with capture timings.
type ThreadSample struct {
	Thread engine.Thread

	// Stack is ordered top-of-stack first, truncated to the configured
	// depth limit. Truncation keeps the deepest frames and drops the ones
	// closest to the root.
	Stack []engine.StackEntry

	// Bias is the time between requesting the sample and the thread pausing
	// at a safepoint; Duration is the time spent walking the paused stack.
	Bias     time.Duration
	Duration time.Duration
}

// SafepointSampler requests consistent stack snapshots of every thread
// executing inside a context. It carries the capture configuration (depth
// limit and entry filter) for one collection session and remembers, sticky
// for the session, whether any thread's stack exceeded the limit.
type SafepointSampler struct {
	limit      int
	filter     engine.EntryFilter
	overflowed atomic.Bool
	logger     zerolog.Logger
}

// NewSafepointSampler returns a sampler that captures at most limit frames
// per thread and reports only entries accepted by filter. A nil filter
// accepts every entry.
func NewSafepointSampler(limit int, filter engine.EntryFilter, logger zerolog.Logger) *SafepointSampler {
	return &SafepointSampler{
		limit:  limit,
		filter: filter,
		logger: logger,
	}
}

// HasOverflowed reports whether any captured stack exceeded the depth limit
// during this session. The flag is sticky: once set it stays set until a new
// sampler is created.
func (s *SafepointSampler) HasOverflowed() bool {
	return s.overflowed.Load()
}

// Sample captures the stacks of all threads executing in tc. Threads that
// exited before they could be paused are omitted by the engine; threads
// whose visible stack is empty contribute nothing. A whole-capture failure
// yields an empty result, never an error: one bad tick must not abort the
// session.
func (s *SafepointSampler) Sample(eng engine.Engine, tc engine.Context) []ThreadSample {
	stacks, err := eng.CaptureStacks(tc, s.filter)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stack capture failed, skipping context for this sample")
		return nil
	}

	out := make([]ThreadSample, 0, len(stacks))
	for _, st := range stacks {
		frames := st.Frames
		if len(frames) == 0 {
			continue
		}
		if len(frames) > s.limit {
			// Keep the top of the stack, drop the frames nearest the root.
			s.overflowed.Store(true)
			frames = frames[:s.limit]
		}
		out = append(out, ThreadSample{
			Thread:   st.Thread,
			Stack:    append([]engine.StackEntry(nil), frames...),
			Bias:     st.Bias,
			Duration: st.Duration,
		})
	}
	return out
}
