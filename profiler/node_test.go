package profiler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rzrymiak/graal/engine"
	"github.com/rzrymiak/graal/engine/enginetest"
)

// entry returns an interpreted root entry with a unique source section per
// name.
func entry(name string) engine.StackEntry {
	return engine.StackEntry{
		Name: name,
		Kind: engine.KindRoot,
		Section: engine.SourceSection{
			Path:      name + ".g",
			StartLine: 1,
			StartCol:  1,
			EndLine:   20,
			EndCol:    1,
		},
	}
}

func compiledEntry(name string) engine.StackEntry {
	e := entry(name)
	e.Compiled = true
	return e
}

// stack builds a captured stack from names ordered top-of-stack first.
func stack(names ...string) []engine.StackEntry {
	out := make([]engine.StackEntry, len(names))
	for i, n := range names {
		out[i] = entry(n)
	}
	return out
}

func newTestProfiler(t *testing.T) (*CPUProfiler, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	p := New(eng, zerolog.Nop())
	t.Cleanup(func() { _ = p.Close() })
	return p, eng
}

func childNamed(t *testing.T, nodes []*ProfileNode, name string) *ProfileNode {
	t.Helper()
	for _, n := range nodes {
		if n.RootName() == name {
			return n
		}
	}
	require.Failf(t, "node not found", "no node named %q among %d nodes", name, len(nodes))
	return nil
}

func TestFindChildAndAddChild(t *testing.T) {
	root := NewRootNode()
	require.Nil(t, root.FindChild(entry("foo")))

	child := newProfileNode(root, entry("foo"), NewPayload())
	root.AddChild(entry("foo"), child)
	require.Same(t, child, root.FindChild(entry("foo")))

	// The compiled flag is not part of the call-site identity.
	require.Same(t, child, root.FindChild(compiledEntry("foo")))
	require.Nil(t, root.FindChild(entry("bar")))
	require.Same(t, root, child.Parent())
}

func TestFoldSharedPrefix(t *testing.T) {
	p, _ := newTestProfiler(t)
	root := NewRootNode()
	now := time.Now()

	// Bottom-to-top [A,B,C] and [A,B,D]: same prefix, diverging on top.
	p.foldStackLocked(root, stack("C", "B", "A"), now)
	p.foldStackLocked(root, stack("D", "B", "A"), now)

	a := childNamed(t, root.Children(), "A")
	require.Len(t, root.Children(), 1)
	require.EqualValues(t, 2, a.Payload().HitCount())
	require.EqualValues(t, 0, a.Payload().SelfHitCount())

	b := childNamed(t, a.Children(), "B")
	require.Len(t, a.Children(), 1)
	require.EqualValues(t, 2, b.Payload().HitCount())
	require.EqualValues(t, 0, b.Payload().SelfHitCount())

	require.Len(t, b.Children(), 2)
	for _, name := range []string{"C", "D"} {
		leaf := childNamed(t, b.Children(), name)
		require.EqualValues(t, 1, leaf.Payload().HitCount())
		require.EqualValues(t, 1, leaf.Payload().SelfHitCount())
		require.Empty(t, leaf.Children())
	}
}

func TestRecursiveStackAccounting(t *testing.T) {
	p, _ := newTestProfiler(t)
	root := NewRootNode()
	now := time.Now()

	// A calling itself: the same site occurs at two depths.
	p.foldStackLocked(root, stack("A", "A"), now)
	p.foldStackLocked(root, stack("A", "A"), now)

	outer := childNamed(t, root.Children(), "A")
	require.EqualValues(t, 2, outer.Payload().HitCount())
	require.EqualValues(t, 0, outer.Payload().SelfHitCount())
	require.False(t, outer.IsRecursive())

	inner := childNamed(t, outer.Children(), "A")
	require.EqualValues(t, 2, inner.Payload().HitCount())
	require.EqualValues(t, 2, inner.Payload().SelfHitCount())
	require.True(t, inner.IsRecursive())
}

func TestFoldSplitsCompiledAndInterpretedHits(t *testing.T) {
	p, _ := newTestProfiler(t)
	root := NewRootNode()
	now := time.Now()

	p.foldStackLocked(root, []engine.StackEntry{compiledEntry("A")}, now)
	p.foldStackLocked(root, []engine.StackEntry{entry("A")}, now)
	p.foldStackLocked(root, []engine.StackEntry{entry("A")}, now)

	a := childNamed(t, root.Children(), "A")
	require.Len(t, root.Children(), 1, "compiled and interpreted observations fold into one node")
	require.EqualValues(t, 1, a.Payload().CompiledHitCount())
	require.EqualValues(t, 2, a.Payload().InterpretedHitCount())
	require.EqualValues(t, 1, a.Payload().SelfCompiledHitCount())
	require.EqualValues(t, 2, a.Payload().SelfInterpretedHitCount())
}

// requirePayloadInvariants walks the whole tree checking the counter and
// timestamp invariants on every node.
func requirePayloadInvariants(t *testing.T, nodes []*ProfileNode, timesGathered bool) {
	t.Helper()
	for _, n := range nodes {
		pl := n.Payload()
		require.Equal(t, pl.CompiledHitCount()+pl.InterpretedHitCount(), pl.HitCount())
		require.Equal(t, pl.SelfCompiledHitCount()+pl.SelfInterpretedHitCount(), pl.SelfHitCount())
		if timesGathered {
			require.Len(t, pl.SelfHitTimes(), int(pl.SelfHitCount()))
		}
		requirePayloadInvariants(t, n.Children(), timesGathered)
	}
}

func TestPayloadInvariants(t *testing.T) {
	p, _ := newTestProfiler(t)
	require.NoError(t, p.SetGatherSelfHitTimes(true))
	root := NewRootNode()
	now := time.Now()

	p.foldStackLocked(root, stack("C", "B", "A"), now)
	p.foldStackLocked(root, []engine.StackEntry{compiledEntry("C"), entry("B"), compiledEntry("A")}, now)
	p.foldStackLocked(root, stack("B", "A"), now)
	p.foldStackLocked(root, stack("A", "A"), now)

	requirePayloadInvariants(t, root.Children(), true)
}

// requireSameShapeScaled checks that got mirrors want's tree shape with every
// counter multiplied by factor.
func requireSameShapeScaled(t *testing.T, want, got []*ProfileNode, factor int64) {
	t.Helper()
	require.Len(t, got, len(want))
	for _, w := range want {
		g := childNamed(t, got, w.RootName())
		require.Equal(t, factor*w.Payload().HitCount(), g.Payload().HitCount())
		require.Equal(t, factor*w.Payload().SelfHitCount(), g.Payload().SelfHitCount())
		require.Equal(t, factor*w.Payload().CompiledHitCount(), g.Payload().CompiledHitCount())
		requireSameShapeScaled(t, w.Children(), g.Children(), factor)
	}
}

func TestDeepMergeCopiesThenAccumulates(t *testing.T) {
	p, _ := newTestProfiler(t)
	src := NewRootNode()
	now := time.Now()
	p.foldStackLocked(src, stack("C", "B", "A"), now)
	p.foldStackLocked(src, stack("D", "B", "A"), now)
	p.foldStackLocked(src, stack("E"), now)

	dst := NewRootNode()
	dst.DeepMergeNodeToChildren(src, MergePayload, NewPayload)
	requireSameShapeScaled(t, src.Children(), dst.Children(), 1)

	// Merging the identical source again keeps the shape and doubles every
	// counter.
	dst.DeepMergeNodeToChildren(src, MergePayload, NewPayload)
	requireSameShapeScaled(t, src.Children(), dst.Children(), 2)
}

func TestDeepMergePartialOverlap(t *testing.T) {
	p, _ := newTestProfiler(t)
	now := time.Now()

	left := NewRootNode()
	p.foldStackLocked(left, stack("C", "B", "A"), now)
	right := NewRootNode()
	p.foldStackLocked(right, stack("D", "B", "A"), now)

	merged := NewRootNode()
	merged.DeepMergeNodeToChildren(left, MergePayload, NewPayload)
	merged.DeepMergeNodeToChildren(right, MergePayload, NewPayload)

	a := childNamed(t, merged.Children(), "A")
	require.Len(t, merged.Children(), 1)
	require.EqualValues(t, 2, a.Payload().HitCount())
	b := childNamed(t, a.Children(), "B")
	require.Len(t, a.Children(), 1)
	require.EqualValues(t, 2, b.Payload().HitCount())
	require.Len(t, b.Children(), 2)
}

func TestDeepCopyIsolation(t *testing.T) {
	p, _ := newTestProfiler(t)
	src := NewRootNode()
	now := time.Now()
	p.foldStackLocked(src, stack("B", "A"), now)

	cp := NewRootNode()
	cp.DeepCopyChildrenFrom(src, CopyPayload)
	requireSameShapeScaled(t, src.Children(), cp.Children(), 1)

	// Further folds into the source must not leak into the copy.
	p.foldStackLocked(src, stack("B", "A"), now)
	p.foldStackLocked(src, stack("C", "A"), now)

	a := childNamed(t, cp.Children(), "A")
	require.EqualValues(t, 1, a.Payload().HitCount())
	require.Len(t, a.Children(), 1)
}
