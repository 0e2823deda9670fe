package pgx

import (
	"context"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeRow struct {
	value []byte
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.value
	return nil
}

// fakeConn records statements. Transactions record into the same log and
// mark their statements with a "tx:" prefix.
type fakeConn struct {
	execs     []execCall
	row       fakeRow
	committed bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	panic("not used")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgxv5.Row {
	return c.row
}

func (c *fakeConn) Begin(ctx context.Context) (pgxv5.Tx, error) {
	return &fakeTx{conn: c}, nil
}

type fakeTx struct {
	pgxv5.Tx
	conn *fakeConn
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.conn.Exec(ctx, "tx:"+sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.conn.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	return nil
}

func TestCurrentWithoutBuild(t *testing.T) {
	conn := &fakeConn{row: fakeRow{err: pgxv5.ErrNoRows}}
	s, err := NewGraphDBStoreWithConnection(context.Background(), conn)
	require.NoError(t, err)
	require.Contains(t, conn.execs[0].sql, "CREATE TABLE IF NOT EXISTS decay_graphs")

	m, err := s.Current(context.Background(), "fp")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestCurrentDecodesManifest(t *testing.T) {
	data, err := store.EncodeManifest(store.Manifest{
		Fingerprint: "fp",
		BuildID:     "b1",
		Count:       1,
		Keys:        []common.SampleKey{{File: "a.json", Event: 3, Target: 1}},
	})
	require.NoError(t, err)

	conn := &fakeConn{row: fakeRow{value: data}}
	s, err := NewGraphDBStoreWithConnection(context.Background(), conn)
	require.NoError(t, err)

	m, err := s.Current(context.Background(), "fp")
	require.NoError(t, err)
	require.Equal(t, "b1", m.BuildID)
	require.Equal(t, 3, m.Keys[0].Event)
}

func TestCommitRunsInOneTransaction(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	s, err := NewGraphDBStoreWithConnection(ctx, conn)
	require.NoError(t, err)

	w, err := s.Begin(ctx, "fp")
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, 0, []byte("g0")))
	require.NoError(t, w.Put(ctx, 1, []byte("g1")))

	err = w.Commit(ctx, store.Manifest{Count: 3, Keys: make([]common.SampleKey, 3)})
	require.ErrorIs(t, err, store.ErrIncompleteBuild)
	require.False(t, conn.committed)

	require.NoError(t, w.Commit(ctx, store.Manifest{Count: 2, Keys: make([]common.SampleKey, 2)}))
	require.True(t, conn.committed)

	var txStatements int
	for _, e := range conn.execs {
		if strings.HasPrefix(e.sql, "tx:") {
			txStatements++
			require.Contains(t, e.args, w.BuildID())
		}
	}
	require.Equal(t, 4, txStatements)
	require.ErrorIs(t, w.Put(ctx, 2, []byte("late")), store.ErrClosed)
}

func TestAbortDeletesStagedGraphs(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	s, err := NewGraphDBStoreWithConnection(ctx, conn)
	require.NoError(t, err)

	w, err := s.Begin(ctx, "fp")
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, 0, []byte("g0")))
	require.NoError(t, w.Abort(ctx))

	last := conn.execs[len(conn.execs)-1]
	require.Contains(t, last.sql, "DELETE FROM decay_graphs")
	require.Equal(t, []any{w.BuildID()}, last.args)
	require.False(t, conn.committed)
}

func TestGetOutOfRange(t *testing.T) {
	s, err := NewGraphDBStoreWithConnection(context.Background(), &fakeConn{})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), &store.Manifest{Count: 1}, 1)
	require.ErrorIs(t, err, common.ErrIndexOutOfRange)
}
