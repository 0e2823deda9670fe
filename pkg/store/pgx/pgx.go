// Package pgx stores graph builds in PostgreSQL. Graph payloads of a build
// are inserted as they are assembled, and the commit swaps the current
// build pointer of the fingerprint inside one transaction.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS decay_graph_builds (
	build_id    TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	manifest    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS decay_graphs (
	build_id TEXT NOT NULL,
	idx      INTEGER NOT NULL,
	payload  BYTEA NOT NULL,
	PRIMARY KEY (build_id, idx)
);
CREATE TABLE IF NOT EXISTS decay_graph_current (
	fingerprint TEXT PRIMARY KEY,
	build_id    TEXT NOT NULL
);
`

// GraphDBStore implements store.GraphStore on a PostgreSQL connection or pool.
type GraphDBStore struct {
	conn pgxIConn
	// guards commits that share one connection
	dbLock sync.Mutex
}

// NewGraphDBStoreWithConnection creates the cache tables when missing.
func NewGraphDBStoreWithConnection(ctx context.Context, conn pgxIConn) (*GraphDBStore, error) {
	if _, err := conn.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create cache tables: %w", err)
	}
	return &GraphDBStore{conn: conn}, nil
}

func (s *GraphDBStore) Current(ctx context.Context, fingerprint string) (*store.Manifest, error) {
	var manifest []byte
	err := s.conn.QueryRow(ctx, `
		SELECT b.manifest
		FROM decay_graph_current c
		JOIN decay_graph_builds b ON b.build_id = c.build_id
		WHERE c.fingerprint = $1`, fingerprint).Scan(&manifest)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current build of %s: %w", fingerprint, err)
	}
	return store.DecodeManifest(manifest)
}

func (s *GraphDBStore) Begin(ctx context.Context, fingerprint string) (store.BuildWriter, error) {
	id, err := store.NewBuildID()
	if err != nil {
		return nil, err
	}
	return &buildWriter{
		store:       s,
		fingerprint: fingerprint,
		id:          id,
		tracker:     store.NewTracker(),
	}, nil
}

func (s *GraphDBStore) Get(ctx context.Context, m *store.Manifest, index int) ([]byte, error) {
	if index < 0 || index >= m.Count {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", common.ErrIndexOutOfRange, index, m.Count)
	}
	var payload []byte
	err := s.conn.QueryRow(ctx,
		`SELECT payload FROM decay_graphs WHERE build_id = $1 AND idx = $2`,
		m.BuildID, index,
	).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %d: %w", index, err)
	}
	return payload, nil
}

type buildWriter struct {
	store       *GraphDBStore
	fingerprint string
	id          string
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
	_, err := w.store.conn.Exec(ctx, `
		INSERT INTO decay_graphs (build_id, idx, payload) VALUES ($1, $2, $3)
		ON CONFLICT (build_id, idx) DO UPDATE SET payload = EXCLUDED.payload`,
		w.id, index, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert graph %d: %w", index, err)
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

	w.store.dbLock.Lock()
	defer w.store.dbLock.Unlock()

	tx, err := w.store.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO decay_graph_builds (build_id, fingerprint, manifest) VALUES ($1, $2, $3)`,
		w.id, w.fingerprint, data,
	); err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO decay_graph_current (fingerprint, build_id) VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO UPDATE SET build_id = EXCLUDED.build_id`,
		w.fingerprint, w.id,
	); err != nil {
		return fmt.Errorf("failed to publish build %s: %w", w.id, err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM decay_graphs WHERE build_id IN (
			SELECT build_id FROM decay_graph_builds WHERE fingerprint = $1 AND build_id <> $2
		)`, w.fingerprint, w.id,
	); err != nil {
		return fmt.Errorf("failed to prune old graphs: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM decay_graph_builds WHERE fingerprint = $1 AND build_id <> $2`,
		w.fingerprint, w.id,
	); err != nil {
		return fmt.Errorf("failed to prune old builds: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit build %s: %w", w.id, err)
	}
	w.closed = true

	logger.Info("Committed graph build", "fingerprint", w.fingerprint, "build", w.id, "graphs", m.Count)
	return nil
}

func (w *buildWriter) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.store.conn.Exec(ctx, `DELETE FROM decay_graphs WHERE build_id = $1`, w.id); err != nil {
		return fmt.Errorf("failed to discard build %s: %w", w.id, err)
	}
	logger.Debug("Aborted graph build", "fingerprint", w.fingerprint, "build", w.id)
	return nil
}
