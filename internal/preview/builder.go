package preview

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentic-research/atelier/internal/transform"
	"github.com/agentic-research/atelier/internal/vfs"
)

// Builder runs the transform and assembly for snapshots, guarded by a
// Tracker so that a superseded pass never publishes.
type Builder struct {
	engine    *transform.Engine
	assembler *Assembler
	tracker   *Tracker
	logger    *slog.Logger
}

func NewBuilder(engine *transform.Engine, assembler *Assembler, tracker *Tracker, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{engine: engine, assembler: assembler, tracker: tracker, logger: logger}
}

// Tracker returns the builder's staleness guard.
func (b *Builder) Tracker() *Tracker { return b.tracker }

// Build transforms and assembles sn. It returns ErrStale when a newer
// generation was requested before this one finished, and an
// *AssemblyError when sn has no entry point.
func (b *Builder) Build(ctx context.Context, sn *vfs.Snapshot) (Result, error) {
	pctx, done, err := b.tracker.Begin(ctx, sn.Generation)
	if err != nil {
		return Result{}, err
	}
	defer done()
	if _, err := b.assembler.Entry(sn); err != nil {
		b.logger.Info("preview not assembled", "generation", sn.Generation, "error", err)
		return Result{}, err
	}

	out, err := b.engine.Transform(pctx, sn)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return Result{}, ErrStale
		}
		return Result{}, err
	}
	res, err := b.assembler.Assemble(sn, out)
	if err != nil {
		return Result{}, err
	}
	if err := b.tracker.Publish(sn.Generation, res); err != nil {
		b.logger.Debug("discarding stale artifact", "generation", sn.Generation)
		return Result{}, err
	}
	return res, nil
}
