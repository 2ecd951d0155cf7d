package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/mcptools"
	"github.com/agentic-research/atelier/internal/persist"
	"github.com/agentic-research/atelier/internal/vfs"
)

var (
	serveDB            string
	serveMemory        bool
	serveMode          string
	serveTurnIdle      time.Duration
	serveSnapshotEvery int
)

// Version is reported to MCP clients.
var Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the editor, manager and preview tools over MCP stdio",
	Long: `Runs an MCP server on stdin/stdout. Every committed edit is appended to the
workspace database and replayed into a mirror store, which snapshots itself
periodically and on shutdown. With --memory nothing is persisted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := edit.ModeLive
		switch serveMode {
		case "live":
		case "stub":
			mode = edit.ModeStub
		default:
			return fmt.Errorf("--mode must be live or stub, got %q", serveMode)
		}
		ctx := cmd.Context()

		var (
			db    *persist.DB
			store = vfs.New()
			seq   uint64
		)
		if !serveMemory {
			var err error
			path := cfg.DBPath(serveDB)
			if db, err = persist.Open(path); err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if store, seq, err = db.Restore(ctx); err != nil {
				return err
			}
			logger.Info("workspace restored", "db", path, "seq", seq, "entries", store.Len()-1)
		}

		sess := edit.NewSession(store,
			edit.WithLimits(cfg.Limits()),
			edit.WithLogger(logger),
			edit.WithSequence(seq),
		)
		sess.BeginTurn(mode)

		if db != nil {
			sess.OnCommit(db.Sink(logger))
		}
		mirror := startMirror(ctx, edit.NewMirror(store.Clone(), seq), db, serveSnapshotEvery)
		sess.OnCommit(mirror.send)

		s := server.NewMCPServer("atelier", Version, server.WithToolCapabilities(true))
		mcptools.Register(s, sess, newBuilder(), mcptools.NewTurns(mode, serveTurnIdle))

		serveErr := server.ServeStdio(s)

		mirror.stop()
		if err := mirror.finish(ctx, sess); err != nil {
			logger.Error("mirror finish failed", "error", err)
		}
		return serveErr
	},
}

// mirrorWorker folds the commit log into a separate store on its own
// goroutine and snapshots it to the database.
type mirrorWorker struct {
	m     *edit.Mirror
	db    *persist.DB
	every int
	ops   chan edit.Committed
	done  chan struct{}
	err   error
}

func startMirror(ctx context.Context, m *edit.Mirror, db *persist.DB, every int) *mirrorWorker {
	w := &mirrorWorker{m: m, db: db, every: every, ops: make(chan edit.Committed, 256), done: make(chan struct{})}
	go w.run(ctx)
	return w
}

func (w *mirrorWorker) send(c edit.Committed) { w.ops <- c }

func (w *mirrorWorker) stop() {
	close(w.ops)
	<-w.done
}

func (w *mirrorWorker) run(ctx context.Context) {
	defer close(w.done)
	applied := 0
	for c := range w.ops {
		if w.err != nil {
			continue
		}
		if err := w.m.Replay(c); err != nil {
			w.err = err
			logger.Error("mirror diverged", "seq", c.Seq, "error", err)
			continue
		}
		applied++
		if w.db != nil && w.every > 0 && applied%w.every == 0 {
			w.snapshot(ctx)
		}
	}
}

func (w *mirrorWorker) snapshot(ctx context.Context) {
	seq := w.m.Sequence()
	if _, err := w.db.SaveSnapshot(ctx, seq, w.m.Store().Snapshot(seq)); err != nil {
		logger.Error("snapshot failed", "seq", seq, "error", err)
		return
	}
	logger.Debug("snapshot saved", "seq", seq)
}

// finish checks the mirror against the session and writes a final snapshot.
// Must run after stop.
func (w *mirrorWorker) finish(ctx context.Context, sess *edit.Session) error {
	if w.err != nil {
		return w.err
	}
	want := sess.Snapshot()
	if got := w.m.Store().Digest(); got != want.Digest() {
		return fmt.Errorf("mirror digest %s does not match session digest %s", got, want.Digest())
	}
	if w.db != nil {
		w.snapshot(ctx)
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Workspace database (default $ATELIER_DB, config db, or ./atelier.db)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep the workspace in memory only")
	serveCmd.Flags().StringVar(&serveMode, "mode", "live", "Step budget: live or stub")
	serveCmd.Flags().DurationVar(&serveTurnIdle, "turn-idle", 2*time.Minute, "Idle gap after which the next tool call starts a new turn")
	serveCmd.Flags().IntVar(&serveSnapshotEvery, "snapshot-every", 100, "Snapshot the workspace after this many commits (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
