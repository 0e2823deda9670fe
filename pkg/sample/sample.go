// Package sample enumerates the sample keys of a dataset build. The position
// of a key in the returned index is the cache index of its graph, so the
// enumeration order is part of the cache format.
package sample

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/event"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
)

// subsampleStream separates the subsampling stream from the per-graph
// streams derived from the same seed.
const subsampleStream = 0x5eed5a3b1e

// Index enumerates every eligible key, ordered file, then event, then target.
func Index(store *event.Store, mode catalog.Mode) ([]common.SampleKey, error) {
	var keys []common.SampleKey

	for _, f := range store.Files {
		switch mode {
		case catalog.ModeComposite:
			if _, ok := f.Truth[catalog.CompositeTarget]; !ok {
				return nil, fmt.Errorf("%w: composite mode needs truth target %d in file %s", common.ErrConfiguration, catalog.CompositeTarget, f.ID)
			}
			for evt := 0; evt < f.Events.NumEvents; evt++ {
				keys = append(keys, common.SampleKey{File: f.ID, Event: evt, Target: catalog.CompositeTarget})
			}
		case catalog.ModeParticle:
			targets := make([]int, 0, len(f.Truth))
			for t := range f.Truth {
				if t != catalog.CompositeTarget {
					targets = append(targets, t)
				}
			}
			slices.Sort(targets)
			for evt := 0; evt < f.Events.NumEvents; evt++ {
				for _, t := range targets {
					if f.Truth[t].NumLeaves[evt] > 0 {
						keys = append(keys, common.SampleKey{File: f.ID, Event: evt, Target: t})
					}
				}
			}
		default:
			return nil, fmt.Errorf("%w: unknown mode %q", common.ErrConfiguration, mode)
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no samples available", common.ErrEmptyInput)
	}
	return keys, nil
}

// Subsample draws n keys uniformly without replacement when 0 < n < len(keys).
// A request for at least as many keys as exist keeps the full index and logs
// a warning. The draw depends only on seed.
func Subsample(keys []common.SampleKey, n int, seed uint64) []common.SampleKey {
	if n <= 0 {
		return keys
	}
	if n >= len(keys) {
		logger.Warn("Requested samples exceed samples loaded, keeping all", "samples", n, "available", len(keys))
		return keys
	}

	logger.Info("Selecting random subset of samples", "samples", n, "available", len(keys))
	rng := rand.New(rand.NewPCG(seed, subsampleStream))
	perm := rng.Perm(len(keys))

	out := make([]common.SampleKey, n)
	for i := range out {
		out[i] = keys[perm[i]]
	}
	return out
}
