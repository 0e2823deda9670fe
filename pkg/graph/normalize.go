package graph

import (
	"math"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Normalize applies the directives to the node, edge and global tensors in
// place. Columns without a directive are left untouched.
func Normalize(
	dirs map[string]catalog.Directive,
	nodeNames []string, x common.Tensor,
	edgeNames []string, edges common.Tensor,
	globalNames []string, u []float64,
) {
	if len(dirs) == 0 {
		return
	}
	normalizeTensor(dirs, nodeNames, x)
	normalizeTensor(dirs, edgeNames, edges)
	for j, name := range globalNames {
		d, ok := dirs[name]
		if !ok {
			continue
		}
		col := u[j : j+1]
		applyDirective(d, col)
	}
}

func normalizeTensor(dirs map[string]catalog.Directive, names []string, t common.Tensor) {
	if t.Rows == 0 {
		return
	}
	for j, name := range names {
		d, ok := dirs[name]
		if !ok {
			continue
		}
		col := t.Column(j)
		applyDirective(d, col)
		for i, v := range col {
			t.Set(i, j, v)
		}
	}
}

func applyDirective(d catalog.Directive, col []float64) {
	switch d.Method {
	case catalog.MethodMinMax:
		lo, hi := 0.0, 0.0
		if len(d.Params) == 2 {
			lo, hi = d.Params[0], d.Params[1]
		} else {
			lo, hi = floats.Min(col), floats.Max(col)
		}
		span := hi - lo
		for i, v := range col {
			if span == 0 {
				col[i] = 0
				continue
			}
			col[i] = (v - lo) / span
		}

	case catalog.MethodStandard:
		var mean, std float64
		if len(d.Params) == 2 {
			mean, std = d.Params[0], d.Params[1]
		} else {
			mean, std = stat.MeanStdDev(col, nil)
		}
		for i, v := range col {
			if !(std > 0) {
				col[i] = v - mean
				continue
			}
			col[i] = (v - mean) / std
		}

	case catalog.MethodLog:
		for i, v := range col {
			col[i] = math.Log(v)
		}
	}
}

// zeroNonFinite replaces NaN and +-Inf with zero.
func zeroNonFinite(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = 0
		}
	}
}

// zeroNaN replaces NaN with zero.
func zeroNaN(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = 0
		}
	}
}
