package graph

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"

	"gonum.org/v1/gonum/spatial/r3"
)

// EdgeFunc derives one edge feature from the feature rows of the source and
// destination nodes. It must not depend on anything else.
type EdgeFunc func(src, dst []float64) float64

const edgeDiffPrefix = catalog.EdgePrefix + "diff_"

// EdgeFeatureFunc resolves an edge feature name against the node column
// layout (kept features followed by discarded ones).
//
// Supported names:
//   - edge_costheta: cosine of the opening angle of feat_px/py/pz
//   - edge_invM: invariant mass of the pair from feat_E and feat_px/py/pz
//   - edge_diff_<name>: source minus destination value of feat_<name>
func EdgeFeatureFunc(name string, columns []string) (EdgeFunc, error) {
	col := func(feature string) (int, error) {
		i := slices.Index(columns, catalog.FeaturePrefix+feature)
		if i < 0 {
			return 0, fmt.Errorf("%w: edge feature %s needs column %s%s", common.ErrConfiguration, name, catalog.FeaturePrefix, feature)
		}
		return i, nil
	}
	momentum := func() (px, py, pz int, err error) {
		if px, err = col("px"); err != nil {
			return
		}
		if py, err = col("py"); err != nil {
			return
		}
		pz, err = col("pz")
		return
	}

	switch {
	case name == catalog.EdgePrefix+"costheta":
		px, py, pz, err := momentum()
		if err != nil {
			return nil, err
		}
		return func(src, dst []float64) float64 {
			a := r3.Vec{X: src[px], Y: src[py], Z: src[pz]}
			b := r3.Vec{X: dst[px], Y: dst[py], Z: dst[pz]}
			norms := r3.Norm(a) * r3.Norm(b)
			if norms == 0 {
				return math.NaN()
			}
			return r3.Dot(a, b) / norms
		}, nil

	case name == catalog.EdgePrefix+"invM":
		px, py, pz, err := momentum()
		if err != nil {
			return nil, err
		}
		e, err := col("E")
		if err != nil {
			return nil, err
		}
		return func(src, dst []float64) float64 {
			p := r3.Add(
				r3.Vec{X: src[px], Y: src[py], Z: src[pz]},
				r3.Vec{X: dst[px], Y: dst[py], Z: dst[pz]},
			)
			energy := src[e] + dst[e]
			return math.Sqrt(math.Max(energy*energy-r3.Norm2(p), 0))
		}, nil

	case strings.HasPrefix(name, edgeDiffPrefix):
		i, err := col(strings.TrimPrefix(name, edgeDiffPrefix))
		if err != nil {
			return nil, err
		}
		return func(src, dst []float64) float64 {
			return src[i] - dst[i]
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown edge feature %s", common.ErrConfiguration, name)
}

// EdgeFeatureFuncs resolves every declared edge feature.
func EdgeFeatureFuncs(names, columns []string) ([]EdgeFunc, error) {
	fns := make([]EdgeFunc, 0, len(names))
	for _, name := range names {
		fn, err := EdgeFeatureFunc(name, columns)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// ComputeEdgeFeatures evaluates fns for every ordered pair of distinct nodes,
// source-major, matching EdgeIndex. With no functions the result has
// N(N-1) rows and zero columns.
func ComputeEdgeFeatures(fns []EdgeFunc, nodes common.Tensor) common.Tensor {
	n := nodes.Rows
	out := common.NewTensor(n*(n-1), len(fns))
	if len(fns) == 0 {
		return out
	}

	e := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			src, dst := nodes.Row(i), nodes.Row(j)
			for k, fn := range fns {
				out.Set(e, k, fn(src, dst))
			}
			e++
		}
	}
	return out
}
