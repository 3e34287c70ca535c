// Package enginetest provides an in-memory fake of the engine contracts for
// testing tools without a real execution engine. Tests script per-thread
// stacks on a context and drive lifecycle notifications by hand.
package enginetest

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzrymiak/graal/engine"
)

// Engine is a scriptable engine.Engine implementation.
type Engine struct {
	mu        sync.Mutex
	listeners []engine.ContextListener

	bias     time.Duration
	duration time.Duration

	captureErr error
}

// Context is a fake execution context. It satisfies engine.Context.
type Context struct {
	name   string
	closed atomic.Bool

	mu     sync.Mutex
	stacks map[engine.Thread][]engine.StackEntry
}

// New returns an empty fake engine with zero capture timings.
func New() *Engine {
	return &Engine{}
}

// AttachContextListener implements engine.Engine.
func (e *Engine) AttachContextListener(l engine.ContextListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// SetCaptureTimings sets the bias and duration reported for every captured
// thread stack.
func (e *Engine) SetCaptureTimings(bias, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bias = bias
	e.duration = duration
}

// FailCaptures makes every subsequent CaptureStacks call return err. A nil
// err restores normal behavior.
func (e *Engine) FailCaptures(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captureErr = err
}

// CreateContext registers a new live context and notifies listeners.
func (e *Engine) CreateContext(name string) *Context {
	c := &Context{
		name:   name,
		stacks: make(map[engine.Thread][]engine.StackEntry),
	}
	for _, l := range e.snapshotListeners() {
		l.ContextCreated(c)
	}
	return c
}

// CloseContext marks c closed and notifies listeners.
func (e *Engine) CloseContext(c *Context) {
	c.closed.Store(true)
	for _, l := range e.snapshotListeners() {
		l.ContextClosed(c)
	}
}

// InitializeUnit notifies listeners that a unit finished initializing in c.
func (e *Engine) InitializeUnit(c *Context, name string, internal bool) {
	unit := engine.UnitInfo{Name: name, Internal: internal}
	for _, l := range e.snapshotListeners() {
		l.UnitInitialized(c, unit)
	}
}

func (e *Engine) snapshotListeners() []engine.ContextListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.ContextListener, len(e.listeners))
	copy(out, e.listeners)
	return out
}

// CaptureStacks implements engine.Engine. Stacks are returned in ascending
// thread ID order so tests are deterministic. Threads scripted with an empty
// stack are treated as exited and omitted.
func (e *Engine) CaptureStacks(tc engine.Context, visible engine.EntryFilter) ([]engine.ThreadStack, error) {
	e.mu.Lock()
	bias, duration, captureErr := e.bias, e.duration, e.captureErr
	e.mu.Unlock()
	if captureErr != nil {
		return nil, captureErr
	}

	c, ok := tc.(*Context)
	if !ok {
		return nil, errors.New("enginetest: context not owned by this engine")
	}
	if c.closed.Load() {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]engine.ThreadStack, 0, len(c.stacks))
	for th, frames := range c.stacks {
		var kept []engine.StackEntry
		for _, f := range frames {
			if visible == nil || visible(f) {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, engine.ThreadStack{
			Thread:   th,
			Frames:   kept,
			Bias:     bias,
			Duration: duration,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Thread.ID < out[j].Thread.ID })
	return out, nil
}

// Name returns the context's name.
func (c *Context) Name() string { return c.name }

// IsClosed implements engine.Context.
func (c *Context) IsClosed() bool { return c.closed.Load() }

// SetThreadStack scripts the stack reported for th, ordered top-of-stack
// first. Overwrites any previous stack for the thread.
func (c *Context) SetThreadStack(th engine.Thread, frames []engine.StackEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks[th] = append([]engine.StackEntry(nil), frames...)
}

// ExitThread removes th, simulating a thread that exits between being
// enumerated and being paused.
func (c *Context) ExitThread(th engine.Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stacks, th)
}
