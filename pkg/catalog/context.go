package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"

	"github.com/tidwall/gjson"
)

// Mode selects what a graph is built around.
type Mode string

const (
	// ModeComposite builds one graph per event from the two top-level
	// constituents (assignment codes 1 and 2) against truth target 0.
	ModeComposite Mode = "composite"
	// ModeParticle builds one graph per truth particle present in an event.
	ModeParticle Mode = "particle"
)

// CompositeTarget is the truth target index holding the whole-event
// relationship matrix.
const CompositeTarget = 0

// CompositeConstituents are the assignment codes of the two top-level
// constituents in composite mode.
var CompositeConstituents = [2]int{1, 2}

// Normalization methods.
const (
	MethodNone     = "none"
	MethodMinMax   = "minmax"
	MethodStandard = "standard"
	MethodLog      = "log"
)

// Directive normalizes one feature column. Params are method constants:
// [min max] for minmax, [mean std] for standard. Without params the
// statistics are computed from the graph's own column.
type Directive struct {
	Method string    `json:"method"`
	Params []float64 `json:"params,omitempty"`
}

// Validate checks the method name and parameter count.
func (d Directive) Validate() error {
	switch d.Method {
	case MethodNone, MethodLog:
		return nil
	case MethodMinMax, MethodStandard:
		if len(d.Params) != 0 && len(d.Params) != 2 {
			return fmt.Errorf("%w: %s takes 0 or 2 parameters, got %d", common.ErrConfiguration, d.Method, len(d.Params))
		}
		if len(d.Params) == 2 && d.Method == MethodStandard && d.Params[1] == 0 {
			return fmt.Errorf("%w: standard normalization with zero std", common.ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown normalization method %q", common.ErrConfiguration, d.Method)
	}
}

// ParseDirectives decodes {"feat_p": ["standard", 1.2, 0.5], "feat_E": "log"}.
func ParseDirectives(raw string) (map[string]Directive, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: normalization directives are not valid JSON", common.ErrConfiguration)
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: normalization directives must be an object", common.ErrConfiguration)
	}

	out := make(map[string]Directive)
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		var d Directive
		switch {
		case value.Type == gjson.String:
			d.Method = value.Str
		case value.IsArray():
			items := value.Array()
			if len(items) == 0 || items[0].Type != gjson.String {
				err = fmt.Errorf("%w: directive for %q must start with a method name", common.ErrConfiguration, key.Str)
				return false
			}
			d.Method = items[0].Str
			for _, p := range items[1:] {
				d.Params = append(d.Params, p.Float())
			}
		default:
			err = fmt.Errorf("%w: directive for %q must be a string or array", common.ErrConfiguration, key.Str)
			return false
		}
		if verr := d.Validate(); verr != nil {
			err = fmt.Errorf("feature %q: %w", key.Str, verr)
			return false
		}
		out[key.Str] = d
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildContext is everything the loader and the assembler need to know
// about one dataset build. It is created once after the catalog has been
// resolved and never modified afterwards.
type BuildContext struct {
	Catalog         Catalog
	Mode            Mode
	SubsetUnmatched bool
	Directives      map[string]Directive
	Seed            uint64
	// Targets are the truth target indices present in every source file.
	Targets []int
}

// NewBuildContext copies its inputs so later mutation by the caller cannot
// leak into a running build.
func NewBuildContext(cat Catalog, mode Mode, subsetUnmatched bool, directives map[string]Directive, seed uint64, targets []int) (*BuildContext, error) {
	if mode != ModeComposite && mode != ModeParticle {
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrConfiguration, mode)
	}
	dirs := make(map[string]Directive, len(directives))
	for k, d := range directives {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("feature %q: %w", k, err)
		}
		dirs[k] = Directive{Method: d.Method, Params: slices.Clone(d.Params)}
	}
	return &BuildContext{
		Catalog: Catalog{
			Features:       slices.Clone(cat.Features),
			Discarded:      slices.Clone(cat.Discarded),
			EdgeFeatures:   slices.Clone(cat.EdgeFeatures),
			GlobalFeatures: slices.Clone(cat.GlobalFeatures),
		},
		Mode:            mode,
		SubsetUnmatched: subsetUnmatched,
		Directives:      dirs,
		Seed:            seed,
		Targets:         slices.Clone(targets),
	}, nil
}
