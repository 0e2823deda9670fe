package graph

import (
	"testing"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"

	"github.com/stretchr/testify/require"
)

func TestEdgeFeatureFuncErrors(t *testing.T) {
	columns := []string{"feat_E", "feat_px", "feat_py"}

	tests := []struct {
		name string
	}{
		{"edge_unknown"},
		{"edge_costheta"},
		{"edge_invM"},
		{"edge_diff_charge"},
		{"costheta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EdgeFeatureFunc(tt.name, columns)
			require.ErrorIs(t, err, common.ErrConfiguration)
		})
	}

	_, err := EdgeFeatureFunc("edge_diff_px", columns)
	require.NoError(t, err)
}

func TestComputeEdgeFeaturesOrder(t *testing.T) {
	nodes := common.Tensor{Rows: 3, Cols: 1, Data: []float64{1, 10, 100}}
	fn, err := EdgeFeatureFunc("edge_diff_E", []string{"feat_E"})
	require.NoError(t, err)

	out := ComputeEdgeFeatures([]EdgeFunc{fn}, nodes)
	require.Equal(t, 6, out.Rows)
	require.Equal(t, []float64{-9, -99, 9, -90, 99, 90}, out.Data)
}

func TestComputeEdgeFeaturesSingleNode(t *testing.T) {
	nodes := common.Tensor{Rows: 1, Cols: 1, Data: []float64{1}}
	out := ComputeEdgeFeatures(nil, nodes)
	require.Equal(t, 0, out.Rows)
	require.Equal(t, 0, out.Cols)
}
