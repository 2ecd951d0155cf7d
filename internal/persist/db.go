// Package persist keeps workspace snapshots and the commit log in SQLite.
//
// A snapshot row records the commit sequence it reflects; restoring loads the
// newest snapshot and replays every logged op after it through a Mirror.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/vfs"
)

// CompressThreshold is the content size above which entries are stored
// zstd-compressed.
const CompressThreshold = 4 << 10

// ErrCorrupt reports a stored snapshot whose contents no longer match the
// digest recorded when it was saved.
var ErrCorrupt = errors.New("persisted snapshot is corrupt")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL,
	digest TEXT NOT NULL,
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_seq ON snapshots(seq);

CREATE TABLE IF NOT EXISTS entries (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	content BLOB,
	compressed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (snapshot_id, ordinal)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS ops (
	seq INTEGER PRIMARY KEY,
	kind TEXT NOT NULL,
	op BLOB NOT NULL,
	created INTEGER NOT NULL
);
`

// DB is a workspace database.
type DB struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps op appends strictly ordered.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and codecs.
func (d *DB) Close() error {
	d.dec.Close()
	_ = d.enc.Close()
	return d.db.Close()
}

// SaveSnapshot stores sn as reflecting commit sequence seq and returns the
// new snapshot id.
func (d *DB) SaveSnapshot(ctx context.Context, seq uint64, sn *vfs.Snapshot) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (seq, digest, created) VALUES (?, ?, ?)`,
		int64(seq), sn.Digest(), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (snapshot_id, ordinal, path, kind, content, compressed) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range sn.Records() {
		content, compressed := d.pack(r.Content)
		flag := 0
		if compressed {
			flag = 1
		}
		if _, err := stmt.ExecContext(ctx, id, i, r.Path, r.Kind, content, flag); err != nil {
			return 0, fmt.Errorf("insert entry %s: %w", r.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *DB) pack(content string) ([]byte, bool) {
	if len(content) <= CompressThreshold {
		return []byte(content), false
	}
	return d.enc.EncodeAll([]byte(content), nil), true
}

func (d *DB) unpack(data []byte, compressed bool) (string, error) {
	if !compressed {
		return string(data), nil
	}
	out, err := d.dec.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(out), nil
}

// LatestSnapshot loads the newest snapshot. ok is false when none exists.
func (d *DB) LatestSnapshot(ctx context.Context) (store *vfs.Store, seq uint64, ok bool, err error) {
	var (
		id     int64
		seqCol int64
		digest string
	)
	err = d.db.QueryRowContext(ctx,
		`SELECT id, seq, digest FROM snapshots ORDER BY seq DESC, id DESC LIMIT 1`).Scan(&id, &seqCol, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT path, kind, content, compressed FROM entries WHERE snapshot_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, 0, false, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []api.Record
	for rows.Next() {
		var (
			r          api.Record
			content    []byte
			compressed bool
		)
		if err := rows.Scan(&r.Path, &r.Kind, &content, &compressed); err != nil {
			return nil, 0, false, err
		}
		if r.Content, err = d.unpack(content, compressed); err != nil {
			return nil, 0, false, fmt.Errorf("entry %s: %w", r.Path, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}

	store, err = vfs.Deserialize(records)
	if err != nil {
		return nil, 0, false, fmt.Errorf("snapshot %d: %w", id, err)
	}
	if got := store.Digest(); got != digest {
		return nil, 0, false, fmt.Errorf("%w: snapshot %d digest %s, stored %s", ErrCorrupt, id, got, digest)
	}
	return store, uint64(seqCol), true, nil
}

// AppendOp logs a committed op.
func (d *DB) AppendOp(ctx context.Context, c edit.Committed) error {
	data, err := edit.Marshal(c)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO ops (seq, kind, op, created) VALUES (?, ?, ?, ?)`,
		int64(c.Seq), string(c.Op.Kind()), data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append op %d: %w", c.Seq, err)
	}
	return nil
}

// OpsAfter returns the logged ops with a sequence greater than seq, in order.
func (d *DB) OpsAfter(ctx context.Context, seq uint64) ([]edit.Committed, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT op FROM ops WHERE seq > ? ORDER BY seq`, int64(seq))
	if err != nil {
		return nil, fmt.Errorf("query ops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []edit.Committed
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		c, err := edit.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSeq returns the highest logged sequence number, or 0.
func (d *DB) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ops`).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq.Int64), nil
}

// Restore rebuilds the workspace: the newest snapshot, or an empty store,
// followed by every logged op after it. It returns the store and the
// sequence of the last op applied.
func (d *DB) Restore(ctx context.Context) (*vfs.Store, uint64, error) {
	store, seq, ok, err := d.LatestSnapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		store = vfs.New()
	}

	ops, err := d.OpsAfter(ctx, seq)
	if err != nil {
		return nil, 0, err
	}
	m := edit.NewMirror(store, seq)
	for _, c := range ops {
		if err := m.Replay(c); err != nil {
			return nil, 0, fmt.Errorf("restore: %w", err)
		}
	}
	return store, m.Sequence(), nil
}

// Sink returns a commit subscriber that logs every op. Append failures are
// logged, not returned, since subscribers cannot fail a commit.
func (d *DB) Sink(logger *slog.Logger) func(edit.Committed) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c edit.Committed) {
		if err := d.AppendOp(context.Background(), c); err != nil {
			logger.Error("persist op failed", "seq", c.Seq, "error", err)
		}
	}
}
