// Package graph turns one sample key into a labeled, fully connected decay
// graph.
package graph

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/event"

	"gonum.org/v1/gonum/mat"
)

// Assembler builds decay graphs for one dataset build. It holds no mutable
// state, so graphs can be assembled in any order.
type Assembler struct {
	bctx   *catalog.BuildContext
	edges  []EdgeFunc
	masses MassClassifier
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithMassClassifier replaces DefaultMassClassifier.
func WithMassClassifier(m MassClassifier) Option {
	return func(a *Assembler) {
		a.masses = m
	}
}

// NewAssembler resolves the edge feature functions of the build context.
func NewAssembler(bctx *catalog.BuildContext, opts ...Option) (*Assembler, error) {
	edges, err := EdgeFeatureFuncs(bctx.Catalog.EdgeFeatures, bctx.Catalog.NodeColumns())
	if err != nil {
		return nil, err
	}
	a := &Assembler{
		bctx:   bctx,
		edges:  edges,
		masses: DefaultMassClassifier,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Assemble builds the graph of key. index is the position of key in the
// sample index and seeds the unmatched-row draw of this graph.
func (a *Assembler) Assemble(key common.SampleKey, index int, f *event.File) (*common.DecayGraph, error) {
	if f == nil || f.ID != key.File {
		return nil, fmt.Errorf("%w: file %s not loaded", common.ErrSchemaMismatch, key.File)
	}
	tbl := f.Events
	if key.Event < 0 || key.Event >= tbl.NumEvents {
		return nil, fmt.Errorf("%w: event %d of %s", common.ErrIndexOutOfRange, key.Event, key.File)
	}
	truth, ok := f.Truth[key.Target]
	if !ok {
		return nil, fmt.Errorf("%w: target %d missing in %s", common.ErrSchemaMismatch, key.Target, key.File)
	}

	rows := a.selectRows(key, index, tbl)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s event %d target %d", common.ErrEmptySelection, key.File, key.Event, key.Target)
	}
	n := len(rows)

	cat := a.bctx.Catalog
	x := gather(tbl.Features, cat.Features, key.Event, rows)
	xDis := gather(tbl.Discarded, cat.Discarded, key.Event, rows)
	edgeAttr := ComputeEdgeFeatures(a.edges, concat(x, xDis))

	u := make([]float64, len(cat.GlobalFeatures))
	for j, name := range cat.GlobalFeatures {
		col, ok := tbl.Global[event.GlobalColumn(name, key.Target)]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", common.ErrSchemaMismatch, event.GlobalColumn(name, key.Target))
		}
		u[j] = col[key.Event]
	}

	zeroNaN(x.Data)
	zeroNaN(edgeAttr.Data)
	zeroNaN(u)
	Normalize(a.bctx.Directives, cat.Features, x, cat.EdgeFeatures, edgeAttr, cat.GlobalFeatures, u)
	zeroNonFinite(x.Data)
	zeroNonFinite(edgeAttr.Data)
	zeroNonFinite(u)

	sub, err := relations(truth, key, tbl, rows)
	if err != nil {
		return nil, err
	}

	edgeIndex := make([][2]int, 0, n*(n-1))
	edgeY := make([]int, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			edgeIndex = append(edgeIndex, [2]int{i, j})
			edgeY = append(edgeY, sub[i][j])
		}
	}

	pdg := tbl.MassCode.Row(key.Event)
	xy := make([]int, n)
	for i, r := range rows {
		xy[i] = a.masses.Class(pdg[r])
	}

	return &common.DecayGraph{
		Key:       key,
		X:         x,
		EdgeIndex: edgeIndex,
		EdgeAttr:  edgeAttr,
		U:         u,
		XY:        xy,
		EdgeY:     edgeY,
		UY:        1,
	}, nil
}

// selectRows returns the row indices of the event that become nodes, in
// table order: the rows matched to the target plus the unmatched rows.
func (a *Assembler) selectRows(key common.SampleKey, index int, tbl *event.Table) []int {
	assign := tbl.Assign.Row(key.Event)

	matched := func(code int) bool {
		if a.bctx.Mode == catalog.ModeComposite {
			return code == catalog.CompositeConstituents[0] || code == catalog.CompositeConstituents[1]
		}
		return code == key.Target
	}

	// every unmatched row is a node unless the subset policy thins them out
	unmatched := make([]bool, len(assign))
	for i, code := range assign {
		unmatched[i] = code == event.Unmatched
	}
	if a.bctx.SubsetUnmatched && slices.Contains(assign, event.Unmatched) {
		rng := rand.New(rand.NewPCG(a.bctx.Seed, uint64(index)))
		for i := range assign {
			// one draw per row keeps the stream aligned with the row count
			keep := rng.IntN(2) == 1
			unmatched[i] = unmatched[i] && keep
		}
	}

	var rows []int
	for i, code := range assign {
		if matched(code) || unmatched[i] {
			rows = append(rows, i)
		}
	}
	return rows
}

// relations returns the truth relationship matrix restricted to the
// selected rows. Entries touching a non-primary row are zero and the
// diagonal is -1.
func relations(truth *event.Truth, key common.SampleKey, tbl *event.Table, rows []int) ([][]int, error) {
	leaves := truth.NumLeaves[key.Event]
	flat := truth.LCA.Row(key.Event)
	if leaves <= 0 || len(flat) != leaves*leaves {
		return nil, fmt.Errorf("%w: %s event %d target %d has %d leaves and %d relationship entries",
			common.ErrSchemaMismatch, key.File, key.Event, key.Target, leaves, len(flat))
	}

	data := make([]float64, len(flat))
	for i, v := range flat {
		data[i] = float64(v)
	}
	full := mat.NewDense(leaves, leaves, data)

	truthLeaves := truth.Leaves.Row(key.Event)
	rowLeaves := tbl.Leaves.Row(key.Event)
	primary := tbl.Primary.Row(key.Event)

	locs := make([]int, len(rows))
	for i, r := range rows {
		if p := slices.Index(truthLeaves, rowLeaves[r]); p >= 0 && p < leaves {
			locs[i] = p
		}
	}

	n := len(rows)
	sub := make([][]int, n)
	for i := range sub {
		sub[i] = make([]int, n)
		for j := range sub[i] {
			switch {
			case i == j:
				sub[i][j] = -1
			case !primary[rows[i]] || !primary[rows[j]]:
				sub[i][j] = 0
			default:
				sub[i][j] = int(full.At(locs[i], locs[j]))
			}
		}
	}
	return sub, nil
}

// gather copies the given columns of the selected rows into an N x F tensor.
func gather(cols map[string]common.Ragged[float64], names []string, evt int, rows []int) common.Tensor {
	out := common.NewTensor(len(rows), len(names))
	for j, name := range names {
		values := cols[name].Row(evt)
		for i, r := range rows {
			out.Set(i, j, values[r])
		}
	}
	return out
}

// concat joins two tensors with equal row counts column-wise.
func concat(a, b common.Tensor) common.Tensor {
	out := common.NewTensor(a.Rows, a.Cols+b.Cols)
	for i := 0; i < a.Rows; i++ {
		copy(out.Row(i), a.Row(i))
		copy(out.Row(i)[a.Cols:], b.Row(i))
	}
	return out
}
