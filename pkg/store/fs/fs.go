// Package fs stores graph builds in a local directory tree:
//
//	<root>/<fingerprint>/builds/<buildID>/graph_<i>.json
//	<root>/<fingerprint>/builds/<buildID>/manifest.json
//	<root>/<fingerprint>/current
//
// current holds the build ID of the committed build and is replaced with a
// rename, which is atomic on POSIX filesystems.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"
)

type FSGraphStore struct {
	root string
}

func NewFSGraphStore(root string) (*FSGraphStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: cache directory not set", common.ErrConfiguration)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FSGraphStore{root: root}, nil
}

func (s *FSGraphStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *FSGraphStore) Current(ctx context.Context, fingerprint string) (*store.Manifest, error) {
	id, err := os.ReadFile(s.path(store.CurrentName(fingerprint)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current build of %s: %w", fingerprint, err)
	}

	buildID := strings.TrimSpace(string(id))
	data, err := os.ReadFile(s.path(store.ManifestName(fingerprint, buildID)))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest of build %s: %w", buildID, err)
	}
	return store.DecodeManifest(data)
}

func (s *FSGraphStore) Begin(ctx context.Context, fingerprint string) (store.BuildWriter, error) {
	id, err := store.NewBuildID()
	if err != nil {
		return nil, err
	}
	dir := s.path(store.BuildPrefix(fingerprint, id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &buildWriter{
		store:       s,
		fingerprint: fingerprint,
		id:          id,
		dir:         dir,
		tracker:     store.NewTracker(),
	}, nil
}

func (s *FSGraphStore) Get(ctx context.Context, m *store.Manifest, index int) ([]byte, error) {
	if index < 0 || index >= m.Count {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", common.ErrIndexOutOfRange, index, m.Count)
	}
	name := filepath.Join(s.path(store.BuildPrefix(m.Fingerprint, m.BuildID)), store.GraphName(index))
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %d: %w", index, err)
	}
	return data, nil
}

// currentID returns the build ID current points to, or "" without a
// committed build.
func (s *FSGraphStore) currentID(fingerprint string) string {
	id, err := os.ReadFile(s.path(store.CurrentName(fingerprint)))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(id))
}

// prune removes the build that was current before keep was published.
// Staging directories of builds still in flight are left alone.
func (s *FSGraphStore) prune(fingerprint, replaced, keep string) {
	if replaced == "" || replaced == keep {
		return
	}
	dir := s.path(store.BuildPrefix(fingerprint, replaced))
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Failed to prune build", "fingerprint", fingerprint, "build", replaced, "err", err)
	}
}

type buildWriter struct {
	store       *FSGraphStore
	fingerprint string
	id          string
	dir         string
	tracker     *store.Tracker
	closed      bool
}

func (w *buildWriter) BuildID() string {
	return w.id
}

func (w *buildWriter) Put(ctx context.Context, index int, payload []byte) error {
	if w.closed {
		return store.ErrClosed
	}
	if err := w.tracker.Put(index); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, store.GraphName(index)), payload, 0o644); err != nil {
		return fmt.Errorf("failed to write graph %d: %w", index, err)
	}
	return nil
}

func (w *buildWriter) Commit(ctx context.Context, m store.Manifest) error {
	if w.closed {
		return store.ErrClosed
	}
	m.Fingerprint = w.fingerprint
	m.BuildID = w.id
	if err := m.Validate(); err != nil {
		return err
	}
	if err := w.tracker.Complete(m.Count); err != nil {
		return err
	}

	data, err := store.EncodeManifest(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.store.path(store.ManifestName(w.fingerprint, w.id)), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	replaced := w.store.currentID(w.fingerprint)
	current := w.store.path(store.CurrentName(w.fingerprint))
	tmp := current + ".tmp-" + w.id
	if err := os.WriteFile(tmp, []byte(w.id), 0o644); err != nil {
		return fmt.Errorf("failed to stage current pointer: %w", err)
	}
	if err := os.Rename(tmp, current); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to publish build %s: %w", w.id, err)
	}
	w.closed = true

	w.store.prune(w.fingerprint, replaced, w.id)
	logger.Info("Committed graph build", "fingerprint", w.fingerprint, "build", w.id, "graphs", m.Count)
	return nil
}

func (w *buildWriter) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	logger.Debug("Aborted graph build", "fingerprint", w.fingerprint, "build", w.id)
	return nil
}
