// Package catalog decides which columns of an event file become node
// features and freezes that choice for a whole dataset build.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
)

const (
	FeaturePrefix = "feat_"
	EdgePrefix    = "edge_"
	GlobalPrefix  = "glob_"
)

// Catalog is the resolved feature naming for one build. All names carry
// their canonical prefix. Column order of Features and Discarded is the
// column order of every node tensor in the build.
type Catalog struct {
	// Features become columns of the node tensor.
	Features []string
	// Discarded stay in memory for edge features but never reach the node tensor.
	Discarded []string
	// EdgeFeatures are derived per node pair, never read from files.
	EdgeFeatures []string
	// GlobalFeatures are read per event and target as <name>_<target>.
	GlobalFeatures []string
}

// NodeColumns returns Features followed by Discarded, the column layout used
// when deriving edge features.
func (c Catalog) NodeColumns() []string {
	out := make([]string, 0, len(c.Features)+len(c.Discarded))
	out = append(out, c.Features...)
	return append(out, c.Discarded...)
}

// Selection is the user-facing feature selection.
type Selection struct {
	// Allow keeps only these features (names without prefix), in this order.
	Allow []string
	// Deny removes these features (names without prefix).
	Deny []string
	// Edge and Global are declared feature names without prefix.
	Edge   []string
	Global []string
	// Strict turns unknown feature names into a configuration error instead
	// of a logged warning.
	Strict bool
}

// FeatureColumns filters the feat_ columns out of a column listing, keeping
// their order.
func FeatureColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		if strings.HasPrefix(c, FeaturePrefix) {
			out = append(out, c)
		}
	}
	return out
}

// Resolve splits the feat_ columns of the reference file into kept and
// discarded node features.
func Resolve(columns []string, sel Selection) (Catalog, error) {
	if len(sel.Allow) > 0 && len(sel.Deny) > 0 {
		return Catalog{}, fmt.Errorf("%w: feature allow-list and deny-list are mutually exclusive", common.ErrConfiguration)
	}

	available := FeatureColumns(columns)
	if len(available) == 0 {
		return Catalog{}, fmt.Errorf("%w: reference file has no %s columns", common.ErrSchemaMismatch, FeaturePrefix)
	}

	listName, list := "allow", sel.Allow
	if len(sel.Deny) > 0 {
		listName, list = "deny", sel.Deny
	}
	var unknown []string
	for _, name := range list {
		if !slices.Contains(available, FeaturePrefix+name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		if sel.Strict {
			return Catalog{}, fmt.Errorf("%w: %s-list references unknown features %v", common.ErrConfiguration, listName, unknown)
		}
		logger.Warn("Ignoring unknown feature names", "list", listName, "names", unknown)
	}

	var cat Catalog
	switch {
	case len(sel.Allow) > 0:
		for _, name := range sel.Allow {
			col := FeaturePrefix + name
			if slices.Contains(available, col) && !slices.Contains(cat.Features, col) {
				cat.Features = append(cat.Features, col)
			}
		}
		for _, col := range available {
			if !slices.Contains(cat.Features, col) {
				cat.Discarded = append(cat.Discarded, col)
			}
		}
	default:
		for _, col := range available {
			if slices.Contains(sel.Deny, strings.TrimPrefix(col, FeaturePrefix)) {
				cat.Discarded = append(cat.Discarded, col)
			} else {
				cat.Features = append(cat.Features, col)
			}
		}
	}
	if len(cat.Features) == 0 {
		return Catalog{}, fmt.Errorf("%w: feature selection keeps no node features", common.ErrConfiguration)
	}

	cat.EdgeFeatures = prefixed(EdgePrefix, sel.Edge)
	cat.GlobalFeatures = prefixed(GlobalPrefix, sel.Global)

	logger.Info("Input node features", "features", cat.Features)
	logger.Info("Discarded node features", "features", cat.Discarded)
	logger.Info("Input edge features", "features", cat.EdgeFeatures)
	logger.Info("Input global features", "features", cat.GlobalFeatures)

	return cat, nil
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, prefix+strings.TrimPrefix(n, prefix))
	}
	return out
}
