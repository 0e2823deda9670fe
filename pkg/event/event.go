// Package event loads per-file candidate and truth tables for one dataset
// build. Tables live only for the preload and assembly phases.
package event

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
)

// Structural column names.
const (
	ColumnAssign    = "b_index"
	ColumnPrimary   = "primary"
	ColumnLeaves    = "leaves"
	ColumnMassCode  = "mc_pdg"
	columnLCA       = "LCA_"
	columnLCALeaves = "LCA_leaves_"
	columnNumLCA    = "n_LCA_"
)

// Unmatched is the assignment code of rows not matched to any truth particle.
const Unmatched = -1

// LCAColumn returns the flattened relationship matrix column of a target.
func LCAColumn(target int) string { return columnLCA + strconv.Itoa(target) }

// LCALeavesColumn returns the truth-leaf identifier column of a target.
func LCALeavesColumn(target int) string { return columnLCALeaves + strconv.Itoa(target) }

// NumLCAColumn returns the truth-leaf count column of a target.
func NumLCAColumn(target int) string { return columnNumLCA + strconv.Itoa(target) }

// GlobalColumn returns the per-target column of a declared global feature.
func GlobalColumn(feature string, target int) string {
	return feature + "_" + strconv.Itoa(target)
}

// ColumnReader is the only contract with the columnar storage format: it
// yields one value per event for a named column, where row-level columns
// yield a variable-length row per event.
type ColumnReader interface {
	Columns() []string
	NumEvents() int
	Ints(name string) (common.Ragged[int], error)
	Bools(name string) (common.Ragged[bool], error)
	Floats(name string) (common.Ragged[float64], error)
	ScalarInts(name string) ([]int, error)
	ScalarFloats(name string) ([]float64, error)
}

// Opener opens a source file as a ColumnReader.
type Opener func(ctx context.Context, file loader.SourceFile) (ColumnReader, error)

// Table holds the candidate rows of every event of one file.
type Table struct {
	NumEvents int
	Assign    common.Ragged[int]
	Primary   common.Ragged[bool]
	Leaves    common.Ragged[int]
	MassCode  common.Ragged[int]
	Features  map[string]common.Ragged[float64]
	Discarded map[string]common.Ragged[float64]
	// Global is keyed by GlobalColumn(feature, target).
	Global map[string][]float64
}

// Truth holds the truth decay tree of one target for every event of a file.
type Truth struct {
	Leaves    common.Ragged[int]
	LCA       common.Ragged[int]
	NumLeaves []int
}

// File is the loaded content of one source file.
type File struct {
	ID     string
	Events *Table
	Truth  map[int]*Truth
}

// Store is the in-memory data of one build pass, in file order.
type Store struct {
	Files []*File
	byID  map[string]*File
}

// File returns the loaded file with the given ID.
func (s *Store) File(id string) (*File, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// SelectFiles sorts files by ID and keeps the first maxFiles of them when maxFiles > 0.
func SelectFiles(files []loader.SourceFile, maxFiles int) ([]loader.SourceFile, error) {
	selected := slices.Clone(files)
	loader.SortByID(selected)

	if maxFiles > 0 {
		if maxFiles > len(selected) {
			logger.Warn("Requested file count exceeds files available", "n_files", maxFiles, "available", len(selected))
		} else {
			selected = selected[:maxFiles]
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no source files", common.ErrEmptyInput)
	}
	return selected, nil
}

// DiscoverTargets returns the truth target indices declared by n_LCA_<t>
// columns, ascending.
func DiscoverTargets(columns []string) []int {
	var targets []int
	for _, c := range columns {
		if !strings.HasPrefix(c, columnNumLCA) {
			continue
		}
		t, err := strconv.Atoi(strings.TrimPrefix(c, columnNumLCA))
		if err != nil {
			continue
		}
		targets = append(targets, t)
	}
	sort.Ints(targets)
	return targets
}

// Load reads every file into memory. The first file is the schema reference:
// every other file must expose the same feature columns and truth targets.
func Load(ctx context.Context, files []loader.SourceFile, open Opener, bctx *catalog.BuildContext) (*Store, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no source files", common.ErrEmptyInput)
	}

	store := &Store{byID: make(map[string]*File, len(files))}
	var refFeatures []string

	for i, sf := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reader, err := open(ctx, sf)
		if err != nil {
			return nil, err
		}

		columns := reader.Columns()
		features := catalog.FeatureColumns(columns)
		slices.Sort(features)
		targets := DiscoverTargets(columns)
		if i == 0 {
			refFeatures = features
		}
		if !slices.Equal(features, refFeatures) {
			return nil, fmt.Errorf("%w: file %s feature columns differ from %s", common.ErrSchemaMismatch, sf.ID, files[0].ID)
		}
		if !slices.Equal(targets, bctx.Targets) {
			return nil, fmt.Errorf("%w: file %s truth targets %v, want %v", common.ErrSchemaMismatch, sf.ID, targets, bctx.Targets)
		}

		f, err := loadFile(sf.ID, reader, bctx)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", sf.ID, err)
		}
		if _, dup := store.byID[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate file id %s", common.ErrConfiguration, f.ID)
		}
		store.Files = append(store.Files, f)
		store.byID[f.ID] = f

		logger.Debug("Loaded source file", "file", sf.ID, "events", f.Events.NumEvents)
	}

	return store, nil
}

func loadFile(id string, r ColumnReader, bctx *catalog.BuildContext) (*File, error) {
	t := &Table{
		NumEvents: r.NumEvents(),
		Features:  make(map[string]common.Ragged[float64], len(bctx.Catalog.Features)),
		Discarded: make(map[string]common.Ragged[float64], len(bctx.Catalog.Discarded)),
		Global:    make(map[string][]float64),
	}

	var err error
	if t.Assign, err = r.Ints(ColumnAssign); err != nil {
		return nil, err
	}
	if t.Primary, err = r.Bools(ColumnPrimary); err != nil {
		return nil, err
	}
	if t.Leaves, err = r.Ints(ColumnLeaves); err != nil {
		return nil, err
	}
	if t.MassCode, err = r.Ints(ColumnMassCode); err != nil {
		return nil, err
	}
	if err := sameShape(ColumnPrimary, t.Primary.Offsets, t.Assign.Offsets); err != nil {
		return nil, err
	}
	if err := sameShape(ColumnLeaves, t.Leaves.Offsets, t.Assign.Offsets); err != nil {
		return nil, err
	}
	if err := sameShape(ColumnMassCode, t.MassCode.Offsets, t.Assign.Offsets); err != nil {
		return nil, err
	}

	loadFeatures := func(names []string, into map[string]common.Ragged[float64]) error {
		for _, name := range names {
			col, err := r.Floats(name)
			if err != nil {
				return err
			}
			if err := sameShape(name, col.Offsets, t.Assign.Offsets); err != nil {
				return err
			}
			into[name] = col
		}
		return nil
	}
	if err := loadFeatures(bctx.Catalog.Features, t.Features); err != nil {
		return nil, err
	}
	if err := loadFeatures(bctx.Catalog.Discarded, t.Discarded); err != nil {
		return nil, err
	}

	truth := make(map[int]*Truth, len(bctx.Targets))
	for _, target := range bctx.Targets {
		tr := &Truth{}
		if tr.Leaves, err = r.Ints(LCALeavesColumn(target)); err != nil {
			return nil, err
		}
		if tr.LCA, err = r.Ints(LCAColumn(target)); err != nil {
			return nil, err
		}
		if tr.NumLeaves, err = r.ScalarInts(NumLCAColumn(target)); err != nil {
			return nil, err
		}
		truth[target] = tr

		for _, feat := range bctx.Catalog.GlobalFeatures {
			name := GlobalColumn(feat, target)
			values, err := r.ScalarFloats(name)
			if err != nil {
				return nil, err
			}
			t.Global[name] = values
		}
	}

	return &File{ID: id, Events: t, Truth: truth}, nil
}

func sameShape(name string, offsets, want []int) error {
	if !slices.Equal(offsets, want) {
		return fmt.Errorf("%w: column %q row counts differ from %q", common.ErrSchemaMismatch, name, ColumnAssign)
	}
	return nil
}
