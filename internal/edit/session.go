package edit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/vfs"
)

// Mode selects the step budget for a conversational turn.
type Mode int

const (
	// ModeLive is a turn backed by a live model: high step budget.
	ModeLive Mode = iota
	// ModeStub is a turn backed by a stub or offline model: low step budget.
	ModeStub
)

func (m Mode) String() string {
	if m == ModeStub {
		return "stub"
	}
	return "live"
}

// Limits caps tool steps per turn. A zero limit means unbounded.
type Limits struct {
	Live int
	Stub int
}

// DefaultLimits are used when no configuration is supplied.
var DefaultLimits = Limits{Live: 25, Stub: 5}

func (l Limits) forMode(m Mode) int {
	if m == ModeStub {
		return l.Stub
	}
	return l.Live
}

// Committed is an op that was applied by the authoritative store, tagged
// with its position in the commit log. Sequence numbers start at 1 and have
// no gaps.
type Committed struct {
	Seq uint64
	Op  Op
}

// Result is what a tool call returns to the orchestration loop.
type Result struct {
	Text      string
	Committed []Committed
}

// Session owns the authoritative store. It is the store's only writer:
// operations are applied strictly one at a time, and each successfully
// applied op is appended to the commit log and handed to every subscriber
// in order. Failed ops are never committed.
type Session struct {
	mu     sync.Mutex
	store  *vfs.Store
	seq    uint64
	limits Limits
	mode   Mode
	steps  int
	sinks  []func(Committed)
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLimits sets the per-turn step budgets.
func WithLimits(l Limits) Option {
	return func(s *Session) { s.limits = l }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSequence resumes the commit log after seq, for sessions restored from
// a persisted snapshot taken at that sequence.
func WithSequence(seq uint64) Option {
	return func(s *Session) { s.seq = seq }
}

// NewSession wraps store. The session must be the store's only writer.
func NewSession(store *vfs.Store, opts ...Option) *Session {
	s := &Session{
		store:  store,
		limits: DefaultLimits,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCommit registers fn to receive every op committed from now on, in
// commit order. fn runs synchronously while the session lock is held and
// must not call back into the session.
func (s *Session) OnCommit(fn func(Committed)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, fn)
}

// BeginTurn resets the step counter for a new conversational turn.
func (s *Session) BeginTurn(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.steps = 0
}

// Sequence returns the sequence number of the last committed op. It doubles
// as the store generation.
func (s *Session) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Snapshot returns an immutable copy of the store tagged with the current
// generation.
func (s *Session) Snapshot() *vfs.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot(s.seq)
}

// Content returns the current text of the file at p without consuming a
// tool step.
func (s *Session) Content(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, err := s.store.ReadFile(p)
	return content, err == nil
}

// Edit validates and executes an editor tool call.
func (s *Session) Edit(ctx context.Context, call api.EditCall) (Result, error) {
	op, err := ParseEditCall(call)
	if err != nil {
		s.logger.Info("editor call rejected", "action", call.Action, "path", call.Path, "error", err)
		return Result{}, err
	}
	return s.Execute(ctx, op)
}

// Manage validates and executes a manager tool call.
func (s *Session) Manage(ctx context.Context, call api.ManageCall) (Result, error) {
	op, err := ParseManageCall(call)
	if err != nil {
		s.logger.Info("manager call rejected", "action", call.Action, "path", call.Path, "error", err)
		return Result{}, err
	}
	return s.Execute(ctx, op)
}

// Execute runs one tool step. A CreateFile issued through the editor
// overwrites an existing file and creates missing parent directories; the
// commit log records exactly which ops that took.
func (s *Session) Execute(ctx context.Context, op Op) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit := s.limits.forMode(s.mode); limit > 0 && s.steps >= limit {
		return Result{}, fmt.Errorf("%w (%d steps, %s mode)", ErrStepLimit, limit, s.mode)
	}
	s.steps++

	if view, ok := op.(ReadFile); ok {
		text, err := s.view(view.Path)
		if err != nil {
			s.logger.Info("view failed", "path", view.Path, "error", err)
			return Result{}, err
		}
		return Result{Text: text}, nil
	}

	plan, err := s.plan(op)
	if err != nil {
		s.logger.Info("edit rejected", "op", Describe(op), "error", err)
		return Result{}, err
	}

	var res Result
	for _, step := range plan {
		if err := Apply(s.store, step); err != nil {
			s.logger.Info("edit rejected", "op", Describe(step), "error", err)
			return res, err
		}
		res.Committed = append(res.Committed, s.commit(step))
	}
	res.Text = summarize(plan)
	return res, nil
}

// commit must be called with s.mu held.
func (s *Session) commit(op Op) Committed {
	s.seq++
	c := Committed{Seq: s.seq, Op: op}
	s.logger.Debug("committed", "seq", c.Seq, "op", Describe(op))
	for _, fn := range s.sinks {
		fn(c)
	}
	return c
}

// plan expands an editor create into the ops that realize it and checks
// everything that could make a later step fail, so a multi-op plan either
// applies completely or not at all. Must be called with s.mu held.
func (s *Session) plan(op Op) ([]Op, error) {
	create, ok := op.(CreateFile)
	if !ok {
		return []Op{op}, nil
	}

	if n, err := s.store.Stat(create.Path); err == nil {
		if n.IsDir() {
			return nil, &vfs.PathError{Op: "create", Path: create.Path, Err: vfs.ErrIsDirectory}
		}
		return []Op{WriteFile(create)}, nil
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return nil, err
	}

	var plan []Op
	var dirs []string
	for dir := vfs.Parent(create.Path); dir != vfs.Root; dir = vfs.Parent(dir) {
		dirs = append(dirs, dir)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		n, err := s.store.Stat(dirs[i])
		switch {
		case errors.Is(err, vfs.ErrNotFound):
			plan = append(plan, CreateDirectory{Path: dirs[i]})
		case err != nil:
			return nil, err
		case !n.IsDir():
			return nil, &vfs.PathError{Op: "create", Path: create.Path, Err: fmt.Errorf("parent %s: %w", dirs[i], vfs.ErrNotDirectory)}
		}
	}
	return append(plan, create), nil
}

// view must be called with s.mu held.
func (s *Session) view(p string) (string, error) {
	e, err := s.store.Read(p)
	if err != nil {
		return "", err
	}
	if e.IsDir() {
		if len(e.Children) == 0 {
			return "(empty directory)", nil
		}
		var b strings.Builder
		for _, name := range e.Children {
			b.WriteString(name)
			if n, err := s.store.Stat(vfs.Join(p, name)); err == nil && n.IsDir() {
				b.WriteByte('/')
			}
			b.WriteByte('\n')
		}
		return b.String(), nil
	}
	return numberLines(e.Content), nil
}

func numberLines(content string) string {
	if content == "" {
		return "(empty file)"
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, line)
	}
	return b.String()
}

func summarize(plan []Op) string {
	last := plan[len(plan)-1]
	var msg string
	switch o := last.(type) {
	case CreateFile:
		msg = "Created " + o.Path
	case WriteFile:
		msg = "Overwrote " + o.Path
	case ReplaceText:
		msg = "Replaced text in " + o.Path
	case DeleteEntry:
		msg = "Deleted " + o.Path
	case RenameEntry:
		msg = fmt.Sprintf("Renamed %s to %s", o.OldPath, o.NewPath)
	case CreateDirectory:
		msg = "Created directory " + o.Path
	}
	if len(plan) > 1 {
		var dirs []string
		for _, op := range plan[:len(plan)-1] {
			if d, ok := op.(CreateDirectory); ok {
				dirs = append(dirs, d.Path)
			}
		}
		msg += " (created " + strings.Join(dirs, ", ") + ")"
	}
	return msg
}
