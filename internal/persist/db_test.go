package persist

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/vfs"
)

func str(s string) *string { return &s }

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "atelier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRestore_Empty(t *testing.T) {
	db := openDB(t)
	store, seq, err := db.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, vfs.New().Digest(), store.Digest())
}

func TestRestore_SnapshotPlusLog(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	live := vfs.New()
	sess := edit.NewSession(live)
	sess.OnCommit(db.Sink(slog.Default()))

	_, err := sess.Edit(ctx, api.EditCall{Action: "create", Path: "/src/App.tsx", Content: str("export default 1")})
	require.NoError(t, err)
	big := strings.Repeat("const x = 1;\n", 1000)
	_, err = sess.Edit(ctx, api.EditCall{Action: "create", Path: "/src/big.ts", Content: str(big)})
	require.NoError(t, err)

	_, err = db.SaveSnapshot(ctx, sess.Sequence(), sess.Snapshot())
	require.NoError(t, err)

	_, err = sess.Edit(ctx, api.EditCall{Action: "replace", Path: "/src/App.tsx", OldText: str("1"), NewText: str("2")})
	require.NoError(t, err)
	_, err = sess.Manage(ctx, api.ManageCall{Action: "rename", Path: "/src/big.ts", NewPath: "/big.ts"})
	require.NoError(t, err)

	last, err := db.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Sequence(), last)

	after, err := db.OpsAfter(ctx, 3)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, uint64(4), after[0].Seq)

	store, seq, err := db.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Sequence(), seq)
	assert.Equal(t, live.Digest(), store.Digest())

	content, err := store.ReadFile("/big.ts")
	require.NoError(t, err)
	assert.Equal(t, big, content)
}

func TestSnapshot_LargeContentIsCompressed(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	s := vfs.New()
	require.NoError(t, s.Create("/big.txt", strings.Repeat("a", CompressThreshold+1)))
	require.NoError(t, s.Create("/small.txt", "tiny"))
	_, err := db.SaveSnapshot(ctx, 0, s.Snapshot(0))
	require.NoError(t, err)

	var n int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE compressed = 1`).Scan(&n))
	assert.Equal(t, 1, n)

	var size int
	require.NoError(t, db.db.QueryRow(`SELECT length(content) FROM entries WHERE path = '/big.txt'`).Scan(&size))
	assert.Less(t, size, CompressThreshold)

	got, _, ok, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.Digest(), got.Digest())
}

func TestLatestSnapshot_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	s := vfs.New()
	require.NoError(t, s.Create("/a.txt", "original"))
	_, err := db.SaveSnapshot(ctx, 0, s.Snapshot(0))
	require.NoError(t, err)

	_, err = db.db.Exec(`UPDATE entries SET content = ? WHERE path = '/a.txt'`, []byte("tampered"))
	require.NoError(t, err)

	_, _, _, err = db.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestAppendOp_RejectsDuplicateSeq(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	c := edit.Committed{Seq: 1, Op: edit.CreateDirectory{Path: "/src"}}
	require.NoError(t, db.AppendOp(ctx, c))
	assert.Error(t, db.AppendOp(ctx, c))
}

func TestRestore_GapFails(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	require.NoError(t, db.AppendOp(ctx, edit.Committed{Seq: 1, Op: edit.CreateDirectory{Path: "/src"}}))
	require.NoError(t, db.AppendOp(ctx, edit.Committed{Seq: 3, Op: edit.CreateDirectory{Path: "/lib"}}))

	_, _, err := db.Restore(ctx)
	assert.ErrorIs(t, err, edit.ErrOutOfOrder)
}
