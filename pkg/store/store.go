// Package store persists the graphs of a dataset build. A build is written
// into a staging area and becomes visible only when its manifest is
// committed, so readers never observe a half-written build.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
)

var (
	// ErrIncompleteBuild is returned by Commit when graphs are missing.
	ErrIncompleteBuild = errors.New("store: incomplete build")
	// ErrClosed is returned when a writer is used after Commit or Abort.
	ErrClosed = errors.New("store: build writer closed")
)

// Manifest describes one committed build.
type Manifest struct {
	Fingerprint string             `json:"fingerprint"`
	BuildID     string             `json:"build_id"`
	Count       int                `json:"count"`
	Keys        []common.SampleKey `json:"keys"`
}

// Validate checks that the manifest is self-consistent.
func (m Manifest) Validate() error {
	if m.Fingerprint == "" || m.BuildID == "" {
		return fmt.Errorf("%w: manifest without fingerprint or build id", common.ErrConfiguration)
	}
	if m.Count != len(m.Keys) {
		return fmt.Errorf("%w: manifest count %d does not match %d keys", common.ErrConfiguration, m.Count, len(m.Keys))
	}
	return nil
}

// GraphStore is a persistent graph cache addressed by build fingerprint.
type GraphStore interface {
	// Current returns the committed manifest of fingerprint, or nil when
	// nothing has been committed yet.
	Current(ctx context.Context, fingerprint string) (*Manifest, error)
	// Begin opens a staging area for a new build of fingerprint.
	Begin(ctx context.Context, fingerprint string) (BuildWriter, error)
	// Get returns the encoded graph at index of a committed build.
	Get(ctx context.Context, m *Manifest, index int) ([]byte, error)
}

// BuildWriter stages one build. Exactly one of Commit and Abort must be
// called.
type BuildWriter interface {
	BuildID() string
	Put(ctx context.Context, index int, payload []byte) error
	// Commit publishes the build. It fails unless every index in
	// [0, m.Count) has been put.
	Commit(ctx context.Context, m Manifest) error
	// Abort discards the staging area. The previously committed build, if
	// any, stays current.
	Abort(ctx context.Context) error
}

// EncodeGraph serializes a graph. Equal graphs encode to equal bytes.
func EncodeGraph(g *common.DecayGraph) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph %v: %w", g.Key, err)
	}
	return data, nil
}

// DecodeGraph parses a graph written by EncodeGraph.
func DecodeGraph(data []byte) (*common.DecayGraph, error) {
	var g common.DecayGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &g, nil
}

// EncodeManifest serializes a manifest.
func EncodeManifest(m Manifest) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeManifest parses a manifest written by EncodeManifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
