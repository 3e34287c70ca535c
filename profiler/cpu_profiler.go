package profiler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rzrymiak/graal/engine"
)

// Defaults and limits for the session configuration.
const (
	DefaultPeriod     = 10 * time.Millisecond
	DefaultDelay      = 0
	DefaultStackLimit = 10000

	// MinPeriod is the smallest accepted sampling period.
	MinPeriod = time.Millisecond
)

// DefaultFilter observes routine entries only, which keeps the overhead of a
// safepoint capture low. Use SetFilter to sample statements as well.
func DefaultFilter(e engine.StackEntry) bool {
	return e.Kind == engine.KindRoot
}

// contextState is the per-context slice of the session: one call tree per
// observed thread plus the context's sample counter.
type contextState struct {
	threads map[engine.Thread]*ProfileNode
	samples int64
}

func newContextState() *contextState {
	return &contextState{threads: make(map[engine.Thread]*ProfileNode)}
}

// ContextData is a read-only snapshot of one context's profiling data. The
// thread trees are deep copies, isolated from the live session.
type ContextData struct {
	Context engine.Context
	Threads map[engine.Thread][]*ProfileNode

	BiasStatistics TimeStatistics
	SampleDuration TimeStatistics

	Samples int64
	Period  time.Duration
}

// CPUProfiler is a process-wide sampling profiler session attached to one
// engine instance. It tracks context and thread lifecycles, drives the
// periodic sampling task while collecting, and serves deep-copied views of
// the gathered call trees.
//
// Configuration can only change while the profiler is neither collecting
// nor closed. Close is terminal: it stops sampling, drops all data and
// rejects every further mutation.
type CPUProfiler struct {
	engine engine.Engine
	logger zerolog.Logger

	mu sync.Mutex

	closed     bool
	collecting bool

	period             time.Duration
	delay              time.Duration
	stackLimit         int
	filter             engine.EntryFilter
	gatherSelfHitTimes bool
	delayUntilUnitInit bool

	// Set once the first non-internal unit initializes. Read on the tick
	// hot path without the session lock.
	unitInitialized atomic.Bool

	contexts map[engine.Context]*contextState
	order    []engine.Context // registration order; order[0] is the primary context

	sampler  *SafepointSampler
	task     *samplingTask
	bias     *durationRecorder
	duration *durationRecorder
}

// New creates a profiler attached to eng and subscribes it to the engine's
// lifecycle notifications. The profiler starts idle; call SetCollecting(true)
// to begin sampling.
func New(eng engine.Engine, logger zerolog.Logger) *CPUProfiler {
	p := &CPUProfiler{
		engine:             eng,
		logger:             logger.With().Str("component", "cpu_profiler").Str("session_id", uuid.NewString()).Logger(),
		period:             DefaultPeriod,
		delay:              DefaultDelay,
		stackLimit:         DefaultStackLimit,
		filter:             DefaultFilter,
		delayUntilUnitInit: true,
		contexts:           make(map[engine.Context]*contextState),
		bias:               newDurationRecorder(),
		duration:           newDurationRecorder(),
	}
	eng.AttachContextListener(lifecycleListener{p})
	return p
}

// lifecycleListener adapts engine callbacks onto the session. Callbacks
// arrive on engine goroutines and contend on the same session lock as the
// sampling tick.
type lifecycleListener struct {
	p *CPUProfiler
}

func (l lifecycleListener) ContextCreated(tc engine.Context) {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.contexts[tc]; ok {
		return
	}
	p.contexts[tc] = newContextState()
	p.order = append(p.order, tc)
	p.logger.Debug().Int("tracked_contexts", len(p.order)).Msg("Context registered")
}

func (l lifecycleListener) ContextClosed(tc engine.Context) {
	// Closed contexts stop being sampled (the tick skips them and the fold
	// rechecks under the lock) but their data stays queryable until
	// ClearData or Close.
	l.p.logger.Debug().Msg("Context closed, retaining collected data")
}

func (l lifecycleListener) UnitInitialized(tc engine.Context, unit engine.UnitInfo) {
	if !unit.Internal {
		l.p.unitInitialized.Store(true)
	}
}

// SetCollecting starts or stops data collection. Starting allocates a fresh
// sampler and fresh statistics and schedules the sampling task; stopping
// cancels future ticks but retains all collected data. No-op if the state
// does not change.
func (p *CPUProfiler) SetCollecting(collecting bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.collecting == collecting {
		return nil
	}
	p.collecting = collecting
	p.resetSamplingLocked()
	return nil
}

// IsCollecting reports whether the profiler is currently collecting.
func (p *CPUProfiler) IsCollecting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collecting
}

func (p *CPUProfiler) resetSamplingLocked() {
	if p.task != nil {
		p.task.stop()
		p.task = nil
		p.logger.Info().Msg("Sampling stopped")
	}
	if !p.collecting || p.closed {
		return
	}

	p.sampler = NewSafepointSampler(p.stackLimit, p.filter, p.logger)
	p.bias = newDurationRecorder()
	p.duration = newDurationRecorder()
	p.task = newSamplingTask(p, p.sampler)
	p.task.start(p.delay, p.period)
	p.logger.Info().
		Dur("period", p.period).
		Dur("delay", p.delay).
		Int("stack_limit", p.stackLimit).
		Bool("gather_self_hit_times", p.gatherSelfHitTimes).
		Msg("Sampling started")
}

// checkConfigLocked rejects configuration changes on closed or collecting
// sessions.
func (p *CPUProfiler) checkConfigLocked() error {
	if p.closed {
		return ErrClosed
	}
	if p.collecting {
		return ErrCollecting
	}
	return nil
}

// SetPeriod sets the time between two samples. The period must be at least
// MinPeriod.
func (p *CPUProfiler) SetPeriod(period time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	if period < MinPeriod {
		return fmt.Errorf("%w: sample period %v is below the minimum %v", ErrInvalidConfig, period, MinPeriod)
	}
	p.period = period
	return nil
}

// Period returns the configured sampling period.
func (p *CPUProfiler) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

// SetDelay sets the time between starting collection and the first sample.
func (p *CPUProfiler) SetDelay(delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	if delay < 0 {
		return fmt.Errorf("%w: delay %v is negative", ErrInvalidConfig, delay)
	}
	p.delay = delay
	return nil
}

// Delay returns the configured initial delay.
func (p *CPUProfiler) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// SetStackLimit sets the maximum number of frames captured per thread.
// Deeper stacks are truncated keeping the top of the stack; whether that
// ever happened is reported by HasStackOverflowed.
func (p *CPUProfiler) SetStackLimit(limit int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	if limit < 1 {
		return fmt.Errorf("%w: stack limit %d must be at least 1", ErrInvalidConfig, limit)
	}
	p.stackLimit = limit
	// The capture configuration changed; TakeSample rebuilds the sampler.
	p.sampler = nil
	return nil
}

// StackLimit returns the configured capture depth limit.
func (p *CPUProfiler) StackLimit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stackLimit
}

// SetFilter sets the predicate deciding which stack entries are observed.
// A nil filter observes everything.
func (p *CPUProfiler) SetFilter(filter engine.EntryFilter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	p.filter = filter
	p.sampler = nil
	return nil
}

// Filter returns the configured entry filter.
func (p *CPUProfiler) Filter() engine.EntryFilter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// SetDelaySamplingUntilUnitInit controls whether sampling waits for the
// first non-internal unit of execution to initialize. Enabled by default to
// keep engine bootstrap noise out of the samples.
func (p *CPUProfiler) SetDelaySamplingUntilUnitInit(delay bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	p.delayUntilUnitInit = delay
	return nil
}

// DelaySamplingUntilUnitInit reports whether the bootstrap gate is enabled.
func (p *CPUProfiler) DelaySamplingUntilUnitInit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delayUntilUnitInit
}

// SetGatherSelfHitTimes controls whether a timestamp is recorded for the
// topmost frame of every sample.
func (p *CPUProfiler) SetGatherSelfHitTimes(gather bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConfigLocked(); err != nil {
		return err
	}
	p.gatherSelfHitTimes = gather
	return nil
}

// IsGatherSelfHitTimes reports whether self-hit timestamps are gathered.
func (p *CPUProfiler) IsGatherSelfHitTimes() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gatherSelfHitTimes
}

// samplingGated reports whether the bootstrap gate currently suppresses
// sampling.
func (p *CPUProfiler) samplingGated() bool {
	p.mu.Lock()
	gate := p.delayUntilUnitInit
	p.mu.Unlock()
	return gate && !p.unitInitialized.Load()
}

// trackedContexts snapshots the registered contexts in registration order.
func (p *CPUProfiler) trackedContexts() []engine.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Context(nil), p.order...)
}

// foldSamples folds one context's thread samples into the session trees.
// The capture happened outside the lock, so the context's liveness is
// rechecked here: a context that closed or was cleared in the meantime
// contributes nothing.
func (p *CPUProfiler) foldSamples(tc engine.Context, samples []ThreadSample, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || tc.IsClosed() {
		return
	}
	state, ok := p.contexts[tc]
	if !ok {
		return
	}
	for _, sample := range samples {
		p.bias.record(sample.Bias)
		p.duration.record(sample.Duration)

		root := state.threads[sample.Thread]
		if root == nil {
			root = NewRootNode()
			state.threads[sample.Thread] = root
		}
		p.foldStackLocked(root, sample.Stack, now)
		state.samples++
	}
}

// foldStackLocked walks one captured stack from the root frame towards the
// top, locating or creating a child per call site and incrementing the hit
// counters along the whole path. The topmost frame alone also receives a
// self hit (and a timestamp when gathering is enabled): a routine that
// appears at several depths of one stack is hit at each depth but gets at
// most one self hit per sample.
func (p *CPUProfiler) foldStackLocked(root *ProfileNode, stack []engine.StackEntry, now time.Time) {
	node := root
	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		child := node.FindChild(entry)
		if child == nil {
			child = newProfileNode(node, entry, NewPayload())
			node.AddChild(entry, child)
		}
		payload := child.payload
		if i == 0 {
			if entry.Compiled {
				payload.selfCompiledHitCount++
			} else {
				payload.selfInterpretedHitCount++
			}
			if p.gatherSelfHitTimes {
				payload.selfHitTimes = append(payload.selfHitTimes, now)
			}
		}
		if entry.Compiled {
			payload.compiledHitCount++
		} else {
			payload.interpretedHitCount++
		}
		node = child
	}
}

// RootNodes merges the per-thread trees of all tracked contexts into one
// synthetic forest and returns its roots. The returned nodes are fresh
// copies, isolated from further sampling.
func (p *CPUProfiler) RootNodes() []*ProfileNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := NewRootNode()
	for _, tc := range p.order {
		for _, root := range p.contexts[tc].threads {
			merged.DeepMergeNodeToChildren(root, MergePayload, NewPayload)
		}
	}
	return merged.Children()
}

// ThreadToNodesMap returns deep copies of the per-thread trees of the
// primary (first tracked) context.
func (p *CPUProfiler) ThreadToNodesMap() map[engine.Thread][]*ProfileNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[engine.Thread][]*ProfileNode)
	if len(p.order) == 0 {
		return out
	}
	for thread, root := range p.contexts[p.order[0]].threads {
		cp := NewRootNode()
		cp.DeepCopyChildrenFrom(root, CopyPayload)
		out[thread] = cp.Children()
	}
	return out
}

// ContextData returns per-context profiling data: deep copies of the
// thread trees plus statistics snapshots, the context's sample count and
// the configured period.
func (p *CPUProfiler) ContextData() map[engine.Context]ContextData {
	p.mu.Lock()
	defer p.mu.Unlock()
	biasStats := p.bias.snapshot()
	durationStats := p.duration.snapshot()
	out := make(map[engine.Context]ContextData, len(p.order))
	for _, tc := range p.order {
		state := p.contexts[tc]
		threads := make(map[engine.Thread][]*ProfileNode, len(state.threads))
		for thread, root := range state.threads {
			cp := NewRootNode()
			cp.DeepCopyChildrenFrom(root, CopyPayload)
			threads[thread] = cp.Children()
		}
		out[tc] = ContextData{
			Context:        tc,
			Threads:        threads,
			BiasStatistics: biasStats,
			SampleDuration: durationStats,
			Samples:        state.samples,
			Period:         p.period,
		}
	}
	return out
}

// TakeSample synchronously samples the primary context's threads, bypassing
// the timer. The returned stacks are ordered top-of-stack first: index 0 is
// the frame that was executing at capture time. Returns an empty map when
// the bootstrap gate is unmet or no context is tracked.
func (p *CPUProfiler) TakeSample() map[engine.Thread][]engine.StackEntry {
	p.mu.Lock()
	if p.sampler == nil {
		p.sampler = NewSafepointSampler(p.stackLimit, p.filter, p.logger)
	}
	sampler := p.sampler
	var primary engine.Context
	if len(p.order) > 0 {
		primary = p.order[0]
	}
	p.mu.Unlock()

	stacks := make(map[engine.Thread][]engine.StackEntry)
	if p.samplingGated() || primary == nil {
		return stacks
	}
	for _, sample := range sampler.Sample(p.engine, primary) {
		stacks[sample.Thread] = sample.Stack
	}
	return stacks
}

// SampleCount returns the total number of thread stacks folded into the
// session across all contexts.
func (p *CPUProfiler) SampleCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sum int64
	for _, state := range p.contexts {
		sum += state.samples
	}
	return sum
}

// HasData reports whether any samples were collected so far.
func (p *CPUProfiler) HasData() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, state := range p.contexts {
		if state.samples > 0 {
			return true
		}
	}
	return false
}

// HasStackOverflowed reports whether the configured stack limit was
// insufficient at any point of the current session.
func (p *CPUProfiler) HasStackOverflowed() bool {
	p.mu.Lock()
	sampler := p.sampler
	p.mu.Unlock()
	return sampler != nil && sampler.HasOverflowed()
}

// BiasStatistics summarizes the time between a sample being requested
// and the threads pausing at a safepoint.
func (p *CPUProfiler) BiasStatistics() TimeStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bias.snapshot()
}

// SampleDuration summarizes the time spent walking stacks once paused.
func (p *CPUProfiler) SampleDuration() TimeStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration.snapshot()
}

// ClearData drops all collected trees, counters and statistics without
// stopping collection. Contexts stay registered.
func (p *CPUProfiler) ClearData() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.clearDataLocked()
	return nil
}

func (p *CPUProfiler) clearDataLocked() {
	for _, state := range p.contexts {
		state.threads = make(map[engine.Thread]*ProfileNode)
		state.samples = 0
	}
	p.bias = newDurationRecorder()
	p.duration = newDurationRecorder()
}

// Close stops sampling, drops all collected data and marks the profiler
// permanently inert. Further mutating calls return ErrClosed; read-only
// accessors keep working. Close is idempotent.
func (p *CPUProfiler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.collecting = false
	p.resetSamplingLocked()
	p.clearDataLocked()
	p.logger.Info().Msg("Profiler closed")
	return nil
}
