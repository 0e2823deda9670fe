// Package dataset builds a persisted set of decay graphs once and serves
// them by index.
//
// A Dataset moves through three states: Unbuilt, Preloaded (catalog, tables
// and sample index in memory) and Built (graphs committed to the cache,
// tables released). Reads are only allowed once Built.
package dataset

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/decaygraph/internal/util"
	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/event"
	"github.com/OFFIS-RIT/decaygraph/pkg/graph"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/sample"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"
)

type State int

const (
	StateUnbuilt State = iota
	StatePreloaded
	StateBuilt
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StatePreloaded:
		return "preloaded"
	case StateBuilt:
		return "built"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Dataset struct {
	cfg         Config
	files       []loader.SourceFile
	open        event.Opener
	cache       store.GraphStore
	fingerprint string
	graphOpts   []graph.Option

	state     State
	bctx      *catalog.BuildContext
	assembler *graph.Assembler
	events    *event.Store
	keys      []common.SampleKey
	manifest  *store.Manifest
}

type Option func(*Dataset)

// WithGraphOptions passes options to the graph assembler.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(d *Dataset) {
		d.graphOpts = append(d.graphOpts, opts...)
	}
}

// New validates cfg, selects the source files and derives the build
// fingerprint. No file is read yet.
func New(cfg Config, files []loader.SourceFile, open event.Opener, cache store.GraphStore, opts ...Option) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if open == nil || cache == nil {
		return nil, fmt.Errorf("%w: dataset needs an opener and a cache", common.ErrConfiguration)
	}
	selected, err := event.SelectFiles(files, cfg.NFiles)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(cfg, selected)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		cfg:         cfg,
		files:       selected,
		open:        open,
		cache:       cache,
		fingerprint: fp,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(d)
	}
	return d, nil
}

func (d *Dataset) State() State {
	return d.state
}

func (d *Dataset) Fingerprint() string {
	return d.fingerprint
}

// Build makes the dataset readable. Without Overwrite an existing committed
// build of the same fingerprint is reused as is.
func (d *Dataset) Build(ctx context.Context) error {
	if d.state == StateBuilt {
		return nil
	}
	if d.state == StateUnbuilt && !d.cfg.Overwrite {
		m, err := d.cache.Current(ctx, d.fingerprint)
		if err != nil {
			return err
		}
		if m != nil {
			logger.Info("Using committed graph build", "fingerprint", d.fingerprint, "build", m.BuildID, "graphs", m.Count)
			d.manifest = m
			d.keys = m.Keys
			d.state = StateBuilt
			return nil
		}
	}
	if d.state == StateUnbuilt {
		if err := d.Preload(ctx); err != nil {
			return err
		}
	}
	return d.AssembleAll(ctx)
}

// Preload resolves the feature catalog, loads every selected file and
// enumerates the sample index.
func (d *Dataset) Preload(ctx context.Context) error {
	if d.state != StateUnbuilt {
		return fmt.Errorf("%w: preload in state %s", common.ErrState, d.state)
	}

	first, err := d.open(ctx, d.files[0])
	if err != nil {
		return err
	}
	columns := first.Columns()
	cat, err := catalog.Resolve(columns, d.cfg.Selection())
	if err != nil {
		return err
	}
	targets := event.DiscoverTargets(columns)
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s declares no truth targets", common.ErrSchemaMismatch, d.files[0].ID)
	}

	known := slices.Concat(cat.Features, cat.EdgeFeatures, cat.GlobalFeatures)
	for name := range d.cfg.Normalize {
		if !slices.Contains(known, name) {
			logger.Warn("Normalization directive for unknown feature ignored", "feature", name)
		}
	}

	bctx, err := catalog.NewBuildContext(cat, d.cfg.Mode, d.cfg.SubsetUnmatched, d.cfg.Normalize, d.cfg.Seed, targets)
	if err != nil {
		return err
	}
	asm, err := graph.NewAssembler(bctx, d.graphOpts...)
	if err != nil {
		return err
	}

	events, err := event.Load(ctx, d.files, d.open, bctx)
	if err != nil {
		return err
	}
	keys, err := sample.Index(events, bctx.Mode)
	if err != nil {
		return err
	}
	keys = sample.Subsample(keys, d.cfg.Samples, d.cfg.Seed)

	d.bctx = bctx
	d.assembler = asm
	d.events = events
	d.keys = keys
	d.state = StatePreloaded

	logger.Info("Preloaded dataset", "files", len(d.files), "samples", len(keys), "mode", bctx.Mode)
	return nil
}

// AssembleAll builds and persists every graph of the sample index, then
// commits the build and releases the in-memory tables. On failure the
// staged graphs are discarded and any earlier committed build stays current.
func (d *Dataset) AssembleAll(ctx context.Context) (err error) {
	if d.state != StatePreloaded {
		return fmt.Errorf("%w: assemble in state %s", common.ErrState, d.state)
	}

	w, err := d.cache.Begin(ctx, d.fingerprint)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if abortErr := w.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			logger.Error("Failed to discard staged graphs", "build", w.BuildID(), "err", abortErr)
		}
	}()

	progress := util.NewBuildProgress("assemble", len(d.keys))
	for i, key := range d.keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := d.events.File(key.File)
		if !ok {
			return fmt.Errorf("%w: file %s not loaded", common.ErrSchemaMismatch, key.File)
		}
		g, err := d.assembler.Assemble(key, i, f)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		payload, err := store.EncodeGraph(g)
		if err != nil {
			return err
		}
		if err := w.Put(ctx, i, payload); err != nil {
			return err
		}
		progress.Step()
	}

	m := store.Manifest{
		Fingerprint: d.fingerprint,
		BuildID:     w.BuildID(),
		Count:       len(d.keys),
		Keys:        d.keys,
	}
	if err := w.Commit(ctx, m); err != nil {
		return err
	}

	d.manifest = &m
	d.events = nil
	d.state = StateBuilt
	return nil
}

// Len returns the number of graphs in the dataset.
func (d *Dataset) Len() (int, error) {
	if d.state != StateBuilt {
		return 0, fmt.Errorf("%w: length in state %s", common.ErrState, d.state)
	}
	return d.manifest.Count, nil
}

// Keys returns the sample index of the dataset.
func (d *Dataset) Keys() ([]common.SampleKey, error) {
	if d.state != StateBuilt {
		return nil, fmt.Errorf("%w: keys in state %s", common.ErrState, d.state)
	}
	return slices.Clone(d.manifest.Keys), nil
}

// Get loads graph i from the committed build.
func (d *Dataset) Get(ctx context.Context, i int) (*common.DecayGraph, error) {
	if d.state != StateBuilt {
		return nil, fmt.Errorf("%w: get in state %s", common.ErrState, d.state)
	}
	if i < 0 || i >= d.manifest.Count {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", common.ErrIndexOutOfRange, i, d.manifest.Count)
	}
	data, err := d.cache.Get(ctx, d.manifest, i)
	if err != nil {
		return nil, err
	}
	return store.DecodeGraph(data)
}
