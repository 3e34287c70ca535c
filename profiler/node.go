package profiler

import (
	"github.com/rzrymiak/graal/engine"
)

// PayloadMergeFunc folds src's data into dst.
type PayloadMergeFunc func(src, dst *Payload)

// PayloadFactory produces a fresh, empty payload.
type PayloadFactory func() *Payload

// PayloadCopyFunc returns an independent copy of src.
type PayloadCopyFunc func(src *Payload) *Payload

// ProfileNode is a node in a per-thread call tree. Children are keyed by
// call-site identity: at most one child exists per distinct site, and a
// node's depth equals the stack depth at capture time.
//
// Root nodes are synthetic merge points: they carry no entry and no payload.
// The parent reference is non-owning and used only for path reconstruction.
type ProfileNode struct {
	parent   *ProfileNode
	entry    *engine.StackEntry
	payload  *Payload
	children map[uint64]*ProfileNode
}

// NewRootNode returns a synthetic root with no entry and no payload.
func NewRootNode() *ProfileNode {
	return &ProfileNode{}
}

func newProfileNode(parent *ProfileNode, entry engine.StackEntry, payload *Payload) *ProfileNode {
	return &ProfileNode{parent: parent, entry: &entry, payload: payload}
}

// Entry returns the stack entry that produced this node. ok is false for
// synthetic roots.
func (n *ProfileNode) Entry() (entry engine.StackEntry, ok bool) {
	if n.entry == nil {
		return engine.StackEntry{}, false
	}
	return *n.entry, true
}

// RootName returns the name of the routine this node observed, or "" for a
// synthetic root.
func (n *ProfileNode) RootName() string {
	if n.entry == nil {
		return ""
	}
	return n.entry.Name
}

// Parent returns the parent node, nil for roots.
func (n *ProfileNode) Parent() *ProfileNode { return n.parent }

// Payload returns the node's payload, nil for synthetic roots.
func (n *ProfileNode) Payload() *Payload { return n.payload }

// Children returns the node's children. The slice is freshly allocated but
// the nodes are not copies.
func (n *ProfileNode) Children() []*ProfileNode {
	out := make([]*ProfileNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// IsRecursive reports whether this node's call site already occurs in one of
// its ancestors.
func (n *ProfileNode) IsRecursive() bool {
	if n.entry == nil {
		return false
	}
	key := n.entry.Fingerprint()
	for p := n.parent; p != nil; p = p.parent {
		if p.entry != nil && p.entry.Fingerprint() == key {
			return true
		}
	}
	return false
}

// FindChild returns the child for entry's call site, or nil.
func (n *ProfileNode) FindChild(entry engine.StackEntry) *ProfileNode {
	return n.children[entry.Fingerprint()]
}

// AddChild inserts child under entry's call site. The caller guarantees no
// child exists for that site yet.
func (n *ProfileNode) AddChild(entry engine.StackEntry, child *ProfileNode) {
	n.putChild(entry.Fingerprint(), child)
}

func (n *ProfileNode) putChild(key uint64, child *ProfileNode) {
	if n.children == nil {
		n.children = make(map[uint64]*ProfileNode)
	}
	n.children[key] = child
}

// DeepMergeNodeToChildren recursively merges source's children into n's
// children. Where both trees have a child for the same call site the
// payloads are combined with merge and the grandchildren are merged
// recursively; call chains only present in source are cloned with payloads
// built from factory plus merge. Two chains that share a prefix end up
// sharing the prefix nodes and diverging below them.
func (n *ProfileNode) DeepMergeNodeToChildren(source *ProfileNode, merge PayloadMergeFunc, factory PayloadFactory) {
	for key, srcChild := range source.children {
		dstChild := n.children[key]
		if dstChild == nil {
			dstChild = newProfileNode(n, *srcChild.entry, factory())
			n.putChild(key, dstChild)
		}
		merge(srcChild.payload, dstChild.payload)
		dstChild.DeepMergeNodeToChildren(srcChild, merge, factory)
	}
}

// DeepCopyChildrenFrom clones source's entire subtree below source as n's
// children. n must have no children for the sites being copied.
func (n *ProfileNode) DeepCopyChildrenFrom(source *ProfileNode, copyFn PayloadCopyFunc) {
	for key, srcChild := range source.children {
		dstChild := newProfileNode(n, *srcChild.entry, copyFn(srcChild.payload))
		n.putChild(key, dstChild)
		dstChild.DeepCopyChildrenFrom(srcChild, copyFn)
	}
}
