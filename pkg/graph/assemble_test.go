package graph

import (
	"math"
	"testing"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/event"

	"github.com/stretchr/testify/require"
)

// testFile holds one event with five rows: four matched to target 1 (the
// last of them non-primary with an unknown leaf) and one unmatched row.
func testFile() *event.File {
	one := func(rows ...float64) common.Ragged[float64] {
		return common.NewRagged([][]float64{rows})
	}
	return &event.File{
		ID: "a.json",
		Events: &event.Table{
			NumEvents: 1,
			Assign:    common.NewRagged([][]int{{1, 1, 1, 1, -1}}),
			Primary:   common.NewRagged([][]bool{{true, true, true, false, false}}),
			Leaves:    common.NewRagged([][]int{{30, 10, 20, 99, 98}}),
			MassCode:  common.NewRagged([][]int{{-11, 211, 22, 999, 13}}),
			Features: map[string]common.Ragged[float64]{
				"feat_E":  one(2, 3, 4, 5, 6),
				"feat_px": one(1, 0, 1, 0, 0),
			},
			Discarded: map[string]common.Ragged[float64]{
				"feat_py": one(0, 1, 0, 0, 0),
				"feat_pz": one(0, 0, 0, 0, math.NaN()),
			},
			Global: map[string][]float64{
				"glob_mass_1": {math.NaN()},
				"glob_mass_2": {5.28},
			},
		},
		Truth: map[int]*event.Truth{
			1: {
				Leaves:    common.NewRagged([][]int{{10, 20, 30}}),
				LCA:       common.NewRagged([][]int{{0, 1, 2, 1, 0, 2, 2, 2, 0}}),
				NumLeaves: []int{3},
			},
			2: {
				Leaves:    common.NewRagged([][]int{{}}),
				LCA:       common.NewRagged([][]int{{}}),
				NumLeaves: []int{0},
			},
		},
	}
}

func testContext(t *testing.T, edges []string, dirs map[string]catalog.Directive, subset bool) *catalog.BuildContext {
	t.Helper()
	cat := catalog.Catalog{
		Features:       []string{"feat_E", "feat_px"},
		Discarded:      []string{"feat_py", "feat_pz"},
		EdgeFeatures:   edges,
		GlobalFeatures: []string{"glob_mass"},
	}
	bctx, err := catalog.NewBuildContext(cat, catalog.ModeParticle, subset, dirs, 7, []int{1, 2})
	require.NoError(t, err)
	return bctx
}

func TestAssembleRelationshipMatrix(t *testing.T) {
	a, err := NewAssembler(testContext(t, nil, nil, false))
	require.NoError(t, err)

	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, testFile())
	require.NoError(t, err)

	require.Equal(t, 5, g.NumNodes())
	require.Equal(t, 20, g.NumEdges())

	// rows hold leaves 30, 10, 20, a non-primary row and the unmatched row
	want := [][]int{
		{-1, 2, 2, 0, 0},
		{2, -1, 1, 0, 0},
		{2, 1, -1, 0, 0},
		{0, 0, 0, -1, 0},
		{0, 0, 0, 0, -1},
	}
	for e, pair := range g.EdgeIndex {
		require.NotEqual(t, pair[0], pair[1])
		require.Equal(t, want[pair[0]][pair[1]], g.EdgeY[e], "edge %v", pair)
		require.NotEqual(t, -1, g.EdgeY[e])
	}
	require.Equal(t, [2]int{0, 1}, g.EdgeIndex[0])
	require.Equal(t, [2]int{4, 3}, g.EdgeIndex[19])

	require.Equal(t, []int{MassElectron, MassPion, MassPhoton, MassOther, MassMuon}, g.XY)
	require.Equal(t, 1.0, g.UY)
	require.Equal(t, []float64{0}, g.U)
	require.Equal(t, []float64{2, 1, 3, 0, 4, 1, 5, 0, 6, 0}, g.X.Data)
}

func TestAssembleKeepsUnmatchedRows(t *testing.T) {
	one := func(rows ...float64) common.Ragged[float64] {
		return common.NewRagged([][]float64{rows})
	}
	f := &event.File{
		ID: "b.json",
		Events: &event.Table{
			NumEvents: 1,
			Assign:    common.NewRagged([][]int{{1, -1, 1, 1}}),
			Primary:   common.NewRagged([][]bool{{true, false, true, true}}),
			Leaves:    common.NewRagged([][]int{{20, 77, 30, 10}}),
			MassCode:  common.NewRagged([][]int{{11, 13, 211, 22}}),
			Features: map[string]common.Ragged[float64]{
				"feat_E":  one(1, 2, 3, 4),
				"feat_px": one(0, 0, 0, 0),
			},
			Discarded: map[string]common.Ragged[float64]{
				"feat_py": one(0, 0, 0, 0),
				"feat_pz": one(0, 0, 0, 0),
			},
			Global: map[string][]float64{
				"glob_mass_1": {5.28},
			},
		},
		Truth: map[int]*event.Truth{
			1: {
				Leaves:    common.NewRagged([][]int{{10, 20, 30}}),
				LCA:       common.NewRagged([][]int{{0, 1, 2, 1, 0, 2, 2, 2, 0}}),
				NumLeaves: []int{3},
			},
		},
	}

	a, err := NewAssembler(testContext(t, nil, nil, false))
	require.NoError(t, err)
	g, err := a.Assemble(common.SampleKey{File: "b.json", Event: 0, Target: 1}, 0, f)
	require.NoError(t, err)

	require.Equal(t, 4, g.NumNodes())
	require.Equal(t, 12, g.NumEdges())

	// node 1 is the unmatched row; nodes 0, 2, 3 hold leaves 20, 30, 10
	want := [][]int{
		{-1, 0, 2, 1},
		{0, -1, 0, 0},
		{2, 0, -1, 2},
		{1, 0, 2, -1},
	}
	for e, pair := range g.EdgeIndex {
		require.Equal(t, want[pair[0]][pair[1]], g.EdgeY[e], "edge %v", pair)
	}
	require.Equal(t, []float64{1, 2, 3, 4}, g.X.Column(0))
	require.Equal(t, MassMuon, g.XY[1])
}

func TestAssembleNoEdgeFeatures(t *testing.T) {
	a, err := NewAssembler(testContext(t, nil, nil, false))
	require.NoError(t, err)

	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, testFile())
	require.NoError(t, err)
	require.Equal(t, 20, g.EdgeAttr.Rows)
	require.Equal(t, 0, g.EdgeAttr.Cols)
	require.Empty(t, g.EdgeAttr.Data)
}

func TestAssembleEdgeFeatures(t *testing.T) {
	edges := []string{"edge_costheta", "edge_invM", "edge_diff_E"}
	a, err := NewAssembler(testContext(t, edges, nil, false))
	require.NoError(t, err)

	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, testFile())
	require.NoError(t, err)
	require.Equal(t, 20, g.EdgeAttr.Rows)
	require.Equal(t, 3, g.EdgeAttr.Cols)

	// edge 0 is (0, 1): perpendicular momenta, E = 2 + 3, |p|^2 = 2
	require.InDelta(t, 0, g.EdgeAttr.At(0, 0), 1e-12)
	require.InDelta(t, math.Sqrt(23), g.EdgeAttr.At(0, 1), 1e-12)
	require.Equal(t, -1.0, g.EdgeAttr.At(0, 2))

	// edge 1 is (0, 2): parallel momenta
	require.InDelta(t, 1, g.EdgeAttr.At(1, 0), 1e-12)

	// edge 2 is (0, 3): row 3 has zero momentum so the cosine is undefined
	require.Equal(t, 0.0, g.EdgeAttr.At(2, 0))
	for _, v := range g.EdgeAttr.Data {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestAssembleNormalization(t *testing.T) {
	dirs := map[string]catalog.Directive{
		"feat_E":    {Method: catalog.MethodMinMax, Params: []float64{1, 5}},
		"feat_px":   {Method: catalog.MethodLog},
		"glob_mass": {Method: catalog.MethodStandard},
	}
	a, err := NewAssembler(testContext(t, nil, dirs, false))
	require.NoError(t, err)

	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, testFile())
	require.NoError(t, err)

	require.Equal(t, []float64{0.25, 0.5, 0.75, 1, 1.25}, g.X.Column(0))
	// log(0) is zeroed, log(1) is 0
	require.Equal(t, []float64{0, 0, 0, 0, 0}, g.X.Column(1))
	require.Equal(t, []float64{0}, g.U)
}

func TestAssembleEmptySelection(t *testing.T) {
	a, err := NewAssembler(testContext(t, nil, nil, false))
	require.NoError(t, err)

	// no row is matched to target 2 and no row is unmatched
	f := testFile()
	f.Events.Assign = common.NewRagged([][]int{{1, 1, 1, 1, 1}})
	_, err = a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 2}, 0, f)
	require.ErrorIs(t, err, common.ErrEmptySelection)
}

func TestAssembleSubsetUnmatchedIsReproducible(t *testing.T) {
	a, err := NewAssembler(testContext(t, nil, nil, true))
	require.NoError(t, err)
	key := common.SampleKey{File: "a.json", Event: 0, Target: 1}

	for idx := 0; idx < 8; idx++ {
		first, err := a.Assemble(key, idx, testFile())
		require.NoError(t, err)
		second, err := a.Assemble(key, idx, testFile())
		require.NoError(t, err)
		require.Equal(t, first, second)

		n := first.NumNodes()
		require.Contains(t, []int{4, 5}, n)
		if n == 5 {
			// the unmatched row is non-primary, so all of its edges are 0
			for e, pair := range first.EdgeIndex {
				if pair[0] == 4 || pair[1] == 4 {
					require.Equal(t, 0, first.EdgeY[e])
				}
			}
			require.Equal(t, MassMuon, first.XY[4])
		}
	}
}

func TestAssembleCompositeMode(t *testing.T) {
	f := testFile()
	f.Events.Assign = common.NewRagged([][]int{{1, 2, 3, 2, -1}})
	f.Truth[0] = f.Truth[1]
	f.Events.Global["glob_mass_0"] = []float64{1}

	cat := catalog.Catalog{
		Features:       []string{"feat_E"},
		GlobalFeatures: []string{"glob_mass"},
	}
	bctx, err := catalog.NewBuildContext(cat, catalog.ModeComposite, false, nil, 1, []int{0, 1, 2})
	require.NoError(t, err)
	a, err := NewAssembler(bctx)
	require.NoError(t, err)

	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 0}, 0, f)
	require.NoError(t, err)
	// constituent rows plus the unmatched row
	require.Equal(t, []float64{2, 3, 5, 6}, g.X.Data)
	require.Equal(t, []float64{1}, g.U)
}

func TestAssembleBadTruth(t *testing.T) {
	f := testFile()
	f.Truth[1].LCA = common.NewRagged([][]int{{0, 1, 1, 0}})

	a, err := NewAssembler(testContext(t, nil, nil, false))
	require.NoError(t, err)
	_, err = a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, f)
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestMassClassifier(t *testing.T) {
	tests := []struct {
		pdg  int
		want int
	}{
		{11, MassElectron},
		{-13, MassMuon},
		{211, MassPion},
		{-321, MassKaon},
		{2212, MassProton},
		{22, MassPhoton},
		{111, MassOther},
		{0, MassOther},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DefaultMassClassifier.Class(tt.pdg), "pdg %d", tt.pdg)
	}
}

type constClassifier int

func (c constClassifier) Class(int) int { return int(c) }

func TestWithMassClassifier(t *testing.T) {
	a, err := NewAssembler(testContext(t, nil, nil, false), WithMassClassifier(constClassifier(9)))
	require.NoError(t, err)
	g, err := a.Assemble(common.SampleKey{File: "a.json", Event: 0, Target: 1}, 0, testFile())
	require.NoError(t, err)
	require.Equal(t, []int{9, 9, 9, 9, 9}, g.XY)
}
