package profiler

import (
	"context"
	"time"
)

// samplingTask is one collection session's recurring timer task. It owns the
// session's sampler; the tree forest and statistics it feeds belong to the
// profiler and are only touched under the session lock.
type samplingTask struct {
	profiler *CPUProfiler
	sampler  *SafepointSampler

	cancel context.CancelFunc
}

func newSamplingTask(p *CPUProfiler, sampler *SafepointSampler) *samplingTask {
	return &samplingTask{
		profiler: p,
		sampler:  sampler,
	}
}

// start launches the timer goroutine: one tick after delay, then one every
// period.
func (t *samplingTask) start(delay, period time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx, delay, period)
}

// stop cancels future ticks without waiting for the goroutine to exit. It is
// called under the session lock and a tick in flight may be blocked on that
// same lock in foldSamples; the tick rechecks session state under the lock, so
// a late fold after stop contributes nothing.
func (t *samplingTask) stop() {
	t.cancel()
}

func (t *samplingTask) run(ctx context.Context, delay, period time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		t.tick(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick performs one sampling pass over all live contexts. The context list
// is snapshotted under the session lock, the capture itself runs outside it
// (a safepoint request may block on mutator threads), and the fold back into
// the trees reacquires the lock with a recheck that the context is still
// live.
func (t *samplingTask) tick(now time.Time) {
	p := t.profiler
	if p.samplingGated() {
		return
	}

	for _, tc := range p.trackedContexts() {
		if tc.IsClosed() {
			continue
		}
		samples := t.sampler.Sample(p.engine, tc)
		if len(samples) == 0 {
			continue
		}
		p.foldSamples(tc, samples, now)
	}
}
