package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// EntryKind classifies what a stack entry observed.
type EntryKind uint8

const (
	// KindRoot marks the entry of a routine (function, method, root node).
	KindRoot EntryKind = iota
	// KindStatement marks an individual statement inside a routine.
	KindStatement
)

// String returns a short name for the kind.
func (k EntryKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindStatement:
		return "statement"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SourceSection locates a stack entry in guest source code.
type SourceSection struct {
	Path      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// String renders the section as path:line:col.
func (s SourceSection) String() string {
	if s.Path == "" {
		return "<unavailable>"
	}
	return fmt.Sprintf("%s:%d:%d", s.Path, s.StartLine, s.StartCol)
}

// StackEntry is one observed frame: the identity of the executing routine,
// whether it was running as compiled code, and its source position. Values
// are immutable once captured.
//
// Two entries denote the same call site when Name, Kind and Section match;
// the Compiled flag is an observation about a single sample, not part of the
// call-site identity.
type StackEntry struct {
	Name     string
	Kind     EntryKind
	Section  SourceSection
	Compiled bool
}

// Fingerprint returns a 64-bit hash of the entry's call-site identity. The
// Compiled flag is excluded so interpreted and compiled observations of one
// site collapse onto the same fingerprint.
func (e StackEntry) Fingerprint() uint64 {
	b := make([]byte, 0, len(e.Name)+len(e.Section.Path)+24)
	b = append(b, e.Name...)
	b = append(b, 0, byte(e.Kind), 0)
	b = append(b, e.Section.Path...)
	b = append(b, 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Section.StartLine))
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Section.StartCol))
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Section.EndLine))
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Section.EndCol))
	return xxh3.Hash(b)
}

// SameSite reports whether e and other identify the same call site.
func (e StackEntry) SameSite(other StackEntry) bool {
	return e.Name == other.Name && e.Kind == other.Kind && e.Section == other.Section
}

// String renders the entry for logs.
func (e StackEntry) String() string {
	mode := "interpreted"
	if e.Compiled {
		mode = "compiled"
	}
	return fmt.Sprintf("%s (%s, %s)", e.Name, mode, e.Section)
}
