package profiler

import "time"

// Payload counts how often a call site was seen on sampled stacks,
// differentiating execution in compiled code from execution in the
// interpreter. Counts labeled "self" cover only samples where the site was
// the topmost frame.
//
// A Payload is owned by exactly one ProfileNode and is guarded by the
// profiler's session lock while the node is part of a live tree.
type Payload struct {
	compiledHitCount    int64
	interpretedHitCount int64

	selfCompiledHitCount    int64
	selfInterpretedHitCount int64

	selfHitTimes []time.Time
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{}
}

// CompiledHitCount returns how often the site was seen executing as
// compiled code, anywhere on a sampled stack.
func (p *Payload) CompiledHitCount() int64 { return p.compiledHitCount }

// InterpretedHitCount returns how often the site was seen executing in the
// interpreter, anywhere on a sampled stack.
func (p *Payload) InterpretedHitCount() int64 { return p.interpretedHitCount }

// SelfCompiledHitCount returns how often the site was the topmost frame,
// executing as compiled code.
func (p *Payload) SelfCompiledHitCount() int64 { return p.selfCompiledHitCount }

// SelfInterpretedHitCount returns how often the site was the topmost frame,
// executing in the interpreter.
func (p *Payload) SelfInterpretedHitCount() int64 { return p.selfInterpretedHitCount }

// HitCount returns the total number of samples the site appeared in.
func (p *Payload) HitCount() int64 {
	return p.compiledHitCount + p.interpretedHitCount
}

// SelfHitCount returns the total number of samples with the site on top.
func (p *Payload) SelfHitCount() int64 {
	return p.selfCompiledHitCount + p.selfInterpretedHitCount
}

// SelfHitTimes returns the timestamps of the samples with the site on top.
// Empty unless self-hit-time gathering was enabled. The returned slice is a
// copy.
func (p *Payload) SelfHitTimes() []time.Time {
	return append([]time.Time(nil), p.selfHitTimes...)
}

// MergePayload adds src's counters and timestamps into dst. The operation
// is commutative and associative over repeated application, which is what
// makes merging per-thread trees into one forest well defined.
func MergePayload(src, dst *Payload) {
	dst.compiledHitCount += src.compiledHitCount
	dst.interpretedHitCount += src.interpretedHitCount
	dst.selfCompiledHitCount += src.selfCompiledHitCount
	dst.selfInterpretedHitCount += src.selfInterpretedHitCount
	dst.selfHitTimes = append(dst.selfHitTimes, src.selfHitTimes...)
}

// CopyPayload returns an independent copy of src.
func CopyPayload(src *Payload) *Payload {
	dst := NewPayload()
	MergePayload(src, dst)
	return dst
}
