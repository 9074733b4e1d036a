package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/tree"
)

func TestConstructorsCollapseTrivialNodes(t *testing.T) {
	if NewChoicePoint(Unexplored, Unexplored) != Unexplored {
		t.Error("choice of two unexplored sides should collapse to Unexplored")
	}
	if NewChoicePoint(Explored, Explored) != Explored {
		t.Error("choice of two explored sides should collapse to Explored")
	}
	if NewCachePoint([]byte{1}, Explored) != Explored {
		t.Error("cache point over an explored continuation should collapse")
	}
	mixed := NewChoicePoint(Explored, Unexplored)
	if _, ok := mixed.(*ChoicePoint); !ok {
		t.Errorf("mixed choice should stay a node, got %s", mixed)
	}
}

func TestSimplifyIsIdempotent(t *testing.T) {
	// Built without the smart constructors, so it carries collapsible
	// nodes.
	raw := &ChoicePoint{
		Left:  &ChoicePoint{Left: Explored, Right: Explored},
		Right: &CachePoint{Bytes: []byte{7}, Inner: &ChoicePoint{Left: Unexplored, Right: Unexplored}},
	}
	once := Simplify(raw)
	want := NewChoicePoint(Explored, NewCachePoint([]byte{7}, Unexplored))
	require.True(t, Equal(once, want), "got %s, want %s", once, want)
	require.True(t, Equal(Simplify(once), once))
}

func TestInvertComplementsCoverage(t *testing.T) {
	if Invert(Explored) != Unexplored || Invert(Unexplored) != Explored {
		t.Error("atoms must swap")
	}

	// A checkpoint and its inverse together cover exactly the whole tree.
	cp := NewChoicePoint(
		NewCachePoint([]byte{1, 2}, NewChoicePoint(Unexplored, Explored)),
		NewChoicePoint(Explored, Unexplored),
	)
	merged, err := Merge(cp, Invert(cp))
	require.NoError(t, err)
	require.Equal(t, Explored, merged)

	// On cache-free shapes inversion is also a structural involution.
	// Cache nodes do not survive it in general: a cache point over an
	// explored continuation canonicalizes to Explored, losing the layer.
	choices := NewChoicePoint(NewChoicePoint(Explored, Unexplored), Unexplored)
	require.True(t, Equal(Invert(Invert(choices)), choices))
	require.True(t, Equal(Invert(NewCachePoint([]byte{3}, Unexplored)), Explored))
}

func TestMergeLaws(t *testing.T) {
	a := NewChoicePoint(Explored, Unexplored)
	b := NewChoicePoint(Unexplored, NewChoicePoint(Explored, Unexplored))
	c := NewChoicePoint(Unexplored, NewChoicePoint(Unexplored, Explored))

	merge := func(x, y Checkpoint) Checkpoint {
		m, err := Merge(x, y)
		require.NoError(t, err)
		return m
	}

	// Identity and domination.
	require.True(t, Equal(merge(a, Unexplored), a))
	require.True(t, Equal(merge(Unexplored, a), a))
	if merge(a, Explored) != Explored {
		t.Error("Explored must dominate")
	}

	// Commutativity and associativity on compatible checkpoints.
	require.True(t, Equal(merge(a, b), merge(b, a)))
	require.True(t, Equal(merge(merge(a, b), c), merge(a, merge(b, c))))

	// Idempotence.
	require.True(t, Equal(merge(b, b), b))

	// a, b and c together cover the whole tree.
	if got := merge(merge(a, b), c); got != Explored {
		t.Errorf("expected full coverage, got %s", got)
	}
}

func TestMergeRejectsMismatchedCacheBytes(t *testing.T) {
	a := NewCachePoint([]byte{1}, NewChoicePoint(Explored, Unexplored))
	b := NewCachePoint([]byte{2}, NewChoicePoint(Unexplored, Explored))
	_, err := Merge(a, b)
	var inconsistent *InconsistentCheckpointsError
	require.ErrorAs(t, err, &inconsistent)
}

func TestMergeRejectsMismatchedShapes(t *testing.T) {
	a := NewCachePoint([]byte{1}, Unexplored)
	b := NewChoicePoint(Explored, Unexplored)
	_, err := Merge(a, b)
	var inconsistent *InconsistentCheckpointsError
	require.ErrorAs(t, err, &inconsistent)
}

func TestContextSpliceRebuildsCheckpoint(t *testing.T) {
	ctx := Context{}.
		Push(&LeftBranchContextStep{RightCheckpoint: Unexplored}).
		Push(CacheContextStep{Bytes: []byte{5}}).
		Push(RightBranchContextStep{})

	got := ctx.Splice(Unexplored)
	want := NewChoicePoint(NewCachePoint([]byte{5}, NewChoicePoint(Explored, Unexplored)), Unexplored)
	require.True(t, Equal(got, want), "got %s, want %s", got, want)

	// An explored hole collapses every inner frame through the smart
	// constructors.
	collapsed := ctx.Splice(Explored)
	require.True(t, Equal(collapsed, NewChoicePoint(Explored, Unexplored)),
		"got %s", collapsed)
}

func TestContextPathAndShallowestLeftBranch(t *testing.T) {
	ctx := Context{}.
		Push(RightBranchContextStep{}).
		Push(CacheContextStep{Bytes: []byte{1}}).
		Push(&LeftBranchContextStep{RightCheckpoint: Unexplored}).
		Push(&LeftBranchContextStep{RightCheckpoint: Unexplored})

	if got := ctx.Path().String(); got != "RC[1]LL" {
		t.Errorf("unexpected path %q", got)
	}
	if got := ctx.ShallowestLeftBranch(); got != 2 {
		t.Errorf("expected index 2, got %d", got)
	}
	if got := (Context{}.Push(RightBranchContextStep{})).ShallowestLeftBranch(); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestCursorSpliceMarksStolenSiblingsUnexplored(t *testing.T) {
	cur := Cursor{}.
		Push(ChoiceCursorStep{Branch: tree.LeftBranch, Other: Unexplored}).
		Push(CacheCursorStep{Bytes: []byte{3}}).
		Push(ChoiceCursorStep{Branch: tree.RightBranch, Other: Explored})

	got := cur.Splice(Explored)
	want := NewChoicePoint(NewCachePoint([]byte{3}, Explored), Unexplored)
	require.True(t, Equal(got, want), "got %s, want %s", got, want)

	if got := cur.Path().String(); got != "LC[1]R" {
		t.Errorf("unexpected cursor path %q", got)
	}
}

func TestPathLiftings(t *testing.T) {
	p := tree.Path{
		tree.ChoiceStep{Branch: tree.RightBranch},
		tree.CacheStep{Bytes: []byte{8}},
		tree.ChoiceStep{Branch: tree.LeftBranch},
	}

	claim := FromInitialPath(p, Explored)
	wantClaim := NewChoicePoint(Unexplored,
		NewCachePoint([]byte{8}, NewChoicePoint(Explored, Unexplored)))
	require.True(t, Equal(claim, wantClaim), "got %s, want %s", claim, wantClaim)

	rest := FromUnexploredPath(p)
	wantRest := NewChoicePoint(Explored,
		NewCachePoint([]byte{8}, NewChoicePoint(Unexplored, Explored)))
	require.True(t, Equal(rest, wantRest), "got %s, want %s", rest, wantRest)

	// The two liftings are complementary: together they cover the tree.
	merged, err := Merge(claim, rest)
	require.NoError(t, err)
	if merged != Explored {
		t.Errorf("expected full coverage, got %s", merged)
	}
}

func TestWorkloadCoverage(t *testing.T) {
	w := Workload{
		Path:       tree.Path{tree.ChoiceStep{Branch: tree.RightBranch}},
		Checkpoint: NewChoicePoint(Explored, Unexplored),
	}
	// Coverage marks what the workload will explore: the inverse of its
	// checkpoint, under the initial path.
	want := NewChoicePoint(Unexplored, NewChoicePoint(Unexplored, Explored))
	require.True(t, Equal(w.Coverage(), want), "got %s, want %s", w.Coverage(), want)
	if w.Depth() != 1 {
		t.Errorf("expected depth 1, got %d", w.Depth())
	}
	if EntireTree().Checkpoint != Unexplored || len(EntireTree().Path) != 0 {
		t.Error("entire-tree workload should be the root with nothing explored")
	}
}
