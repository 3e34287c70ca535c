package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresCompiledFlag(t *testing.T) {
	section := SourceSection{Path: "app.g", StartLine: 3, StartCol: 1, EndLine: 9, EndCol: 2}
	interpreted := StackEntry{Name: "work", Kind: KindRoot, Section: section}
	compiled := interpreted
	compiled.Compiled = true

	require.Equal(t, interpreted.Fingerprint(), compiled.Fingerprint())
	require.True(t, interpreted.SameSite(compiled))
}

func TestFingerprintSeparatesCallSites(t *testing.T) {
	base := StackEntry{Name: "work", Kind: KindRoot, Section: SourceSection{Path: "app.g", StartLine: 3}}

	byName := base
	byName.Name = "work2"
	require.NotEqual(t, base.Fingerprint(), byName.Fingerprint())
	require.False(t, base.SameSite(byName))

	byKind := base
	byKind.Kind = KindStatement
	require.NotEqual(t, base.Fingerprint(), byKind.Fingerprint())

	byLine := base
	byLine.Section.StartLine = 4
	require.NotEqual(t, base.Fingerprint(), byLine.Fingerprint())
}

func TestStringRendering(t *testing.T) {
	e := StackEntry{Name: "work", Kind: KindRoot, Section: SourceSection{Path: "app.g", StartLine: 3, StartCol: 7}}
	require.Equal(t, "work (interpreted, app.g:3:7)", e.String())
	e.Compiled = true
	require.Equal(t, "work (compiled, app.g:3:7)", e.String())
	require.Equal(t, "root", KindRoot.String())
	require.Equal(t, "<unavailable>", SourceSection{}.String())
}
