// Package profiler implements a sampling call-stack profiler for engines
// built on the contracts in package engine.
//
// A CPUProfiler keeps one call tree per thread per context. A background
// task samples every live context at a fixed period: each thread executing
// guest code is paused at a safepoint, its logical stack is captured and
// folded into the thread's tree, and hit counters are updated along the
// path. The topmost frame of a sample additionally receives a self hit.
//
// All configuration and all reads go through the CPUProfiler session object.
// Read APIs return deep copies that are isolated from the live trees.
package profiler
