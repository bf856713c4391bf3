package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRebuildOrKeepReturnsSameReferenceWhenUnchanged(t *testing.T) {
	scan := &Scan{TableAlias: "u", Label: "User"}
	f := &Filter{Input: scan}

	out := f.RebuildOrKeep(f.Children())
	require.Same(t, f, out, "RebuildOrKeep must return the original node when no child changed")
}

func TestRebuildOrKeepReturnsNewNodeWhenChildChanged(t *testing.T) {
	scan := &Scan{TableAlias: "u", Label: "User"}
	other := &Scan{TableAlias: "v", Label: "User"}
	f := &Filter{Input: scan}

	out := f.RebuildOrKeep([]Node{other})
	require.NotSame(t, f, out)
	rebuilt, ok := out.(*Filter)
	require.True(t, ok)
	require.Same(t, other, rebuilt.Input)
}

func TestGraphRelAccumulatesLeftAcrossMultipleHops(t *testing.T) {
	// Regression for spec §4.2: (a)-[r]->(b)-[s]->(c) must keep the
	// left child as the accumulated plan so far, not the bare second hop.
	a := &Scan{TableAlias: "a", Label: "User"}
	b := &Scan{TableAlias: "b", Label: "User"}
	c := &Scan{TableAlias: "c", Label: "User"}

	first := &GraphRel{Left: a, Right: b, LeftAlias: "a", RightAlias: "b", RelAlias: "r"}
	second := &GraphRel{Left: first, Right: c, LeftAlias: "b", RightAlias: "c", RelAlias: "s"}

	inner, ok := second.Left.(*GraphRel)
	require.True(t, ok, "second hop's left child must be the first GraphRel, not a bare scan")
	require.Equal(t, "a", inner.LeftAlias)
	require.Equal(t, "b", inner.RightAlias)
}

func TestGraphJoinsRebuildOrKeep(t *testing.T) {
	scan := &Scan{TableAlias: "u"}
	gj := &GraphJoins{Input: scan, Joins: []JoinEntry{{Kind: JoinInner}}}
	require.Same(t, gj, gj.RebuildOrKeep(gj.Children()))
}

func TestUnionRebuildOrKeep(t *testing.T) {
	a := &Scan{TableAlias: "a"}
	b := &Scan{TableAlias: "b"}
	u := &Union{Inputs: []Node{a, b}, All: true}
	require.Same(t, u, u.RebuildOrKeep(u.Children()))

	c := &Scan{TableAlias: "c"}
	out := u.RebuildOrKeep([]Node{a, c})
	require.NotSame(t, u, out)
}

// TestRebuildOrKeepPreservesUnchangedSubtreeStructure is the spec §8.2
// idempotence law checked structurally: rebuilding a GraphRel with its own
// unchanged children must produce a tree equal in every field to the
// original, not merely the same top-level reference. cmp.Diff over the
// whole subtree catches a rebuild that drops or mutates a nested field
// reflect.DeepEqual would also catch, but with a readable diff on failure —
// the idiom spec §2.4 calls for over struct literals this size.
func TestRebuildOrKeepPreservesUnchangedSubtreeStructure(t *testing.T) {
	a := &Scan{TableAlias: "a", Label: "User"}
	b := &Scan{TableAlias: "b", Label: "User"}
	rel := &GraphRel{Left: a, Right: b, LeftAlias: "a", RightAlias: "b", RelAlias: "r"}

	out := rel.RebuildOrKeep(rel.Children())

	if diff := cmp.Diff(rel, out); diff != "" {
		t.Errorf("RebuildOrKeep with unchanged children produced a structurally different tree (-want +got):\n%s", diff)
	}
}
