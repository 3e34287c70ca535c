// Package engine defines the contracts between the graal tools and the host
// execution engine. The engine owns contexts, threads and stack capture; the
// tools consume lifecycle notifications and safepoint stack snapshots through
// the interfaces declared here.
package engine

import "time"

// Thread identifies one thread executing guest code inside a context. The
// zero Name is valid; ID is the identity used when threads are map keys.
type Thread struct {
	ID   int64
	Name string
}

// Context is a handle to one isolated execution environment owned by the
// engine. Implementations must be comparable (tools use contexts as map
// keys) and IsClosed must be safe to call from any goroutine.
type Context interface {
	IsClosed() bool
}

// UnitInfo describes a unit of execution (a guest language or library) that
// was initialized inside a context. Internal units are engine bootstrap
// machinery rather than user code.
type UnitInfo struct {
	Name     string
	Internal bool
}

// ContextListener receives engine lifecycle notifications. Callbacks arrive
// on engine goroutines, never on the caller's, and implementations must not
// block for long.
type ContextListener interface {
	// ContextCreated is invoked after a context becomes live.
	ContextCreated(tc Context)
	// ContextClosed is invoked after a context has closed. The handle stays
	// valid for IsClosed queries.
	ContextClosed(tc Context)
	// UnitInitialized is invoked once a unit of execution finished
	// initializing inside tc.
	UnitInitialized(tc Context, unit UnitInfo)
}

// EntryFilter selects which stack entries the engine reports during a
// capture. A nil filter reports every entry.
type EntryFilter func(StackEntry) bool

// ThreadStack is one thread's captured call stack.
//
// Frames are ordered top-of-stack first: Frames[0] is the frame that was
// executing when the thread paused and the last element is the root frame.
// Bias is the time between the capture request and the thread actually
// pausing at a safepoint; Duration is the time spent walking the stack once
// paused.
type ThreadStack struct {
	Thread   Thread
	Frames   []StackEntry
	Bias     time.Duration
	Duration time.Duration
}

// Engine is the capture surface the host engine exposes to the tools.
type Engine interface {
	// AttachContextListener subscribes l to lifecycle notifications. Tools
	// subscribe once at construction.
	AttachContextListener(l ContextListener)

	// CaptureStacks pauses every thread executing in tc at a safepoint and
	// returns their visible stacks. A thread that exits before it could be
	// paused is omitted from the result rather than reported as an error.
	// The returned error covers whole-capture failures only.
	CaptureStacks(tc Context, visible EntryFilter) ([]ThreadStack, error)
}
