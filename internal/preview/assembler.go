package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/transform"
	"github.com/agentic-research/atelier/internal/vfs"
)

// ErrNoEntryPoint is matched by an *AssemblyError of kind NoEntryPoint.
var ErrNoEntryPoint = errors.New("no entry point")

// AssemblyKind names an assembly failure.
type AssemblyKind string

const NoEntryPoint AssemblyKind = "NoEntryPoint"

// AssemblyError halts assembly. It is reported to the user, not thrown.
type AssemblyError struct {
	Kind       AssemblyKind
	Candidates []string
}

func (e *AssemblyError) Error() string {
	if e.Kind == NoEntryPoint {
		return fmt.Sprintf("no entry point: create one of %s", strings.Join(e.Candidates, ", "))
	}
	return string(e.Kind)
}

func (e *AssemblyError) Is(target error) bool {
	return target == ErrNoEntryPoint && e.Kind == NoEntryPoint
}

// DefaultEntryCandidates is the entry preference order. Matching is
// case-insensitive.
var DefaultEntryCandidates = []string{
	"/App.tsx", "/App.jsx", "/App.ts", "/App.js",
	"/index.tsx", "/index.jsx", "/index.ts", "/index.js",
	"/main.tsx", "/main.jsx", "/main.ts", "/main.js",
}

// SelectEntry returns the first candidate present in sn. When several files
// differ only in case, the smallest path wins.
func SelectEntry(sn *vfs.Snapshot, candidates []string) (string, error) {
	byFold := map[string]string{}
	for _, n := range sn.Files() {
		key := strings.ToLower(n.Path)
		if cur, ok := byFold[key]; !ok || n.Path < cur {
			byFold[key] = n.Path
		}
	}
	for _, c := range candidates {
		if p, ok := byFold[strings.ToLower(c)]; ok {
			return p, nil
		}
	}
	return "", &AssemblyError{Kind: NoEntryPoint, Candidates: candidates}
}

// Result is an assembled artifact plus the fail-closed verdict. When
// Executable is false the caller renders the diagnostics instead.
type Result struct {
	Artifact   api.Artifact
	Executable bool
}

// Assembler bundles transform output into artifacts.
type Assembler struct {
	candidates []string
	logger     *slog.Logger
}

// NewAssembler uses DefaultEntryCandidates when candidates is empty.
func NewAssembler(candidates []string, logger *slog.Logger) *Assembler {
	if len(candidates) == 0 {
		candidates = DefaultEntryCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{candidates: candidates, logger: logger}
}

// Entry selects the entry point of sn.
func (a *Assembler) Entry(sn *vfs.Snapshot) (string, error) {
	return SelectEntry(sn, a.candidates)
}

// Assemble builds the artifact for sn from its transform output. Any
// diagnostic anywhere in the snapshot makes the result non-executable.
func (a *Assembler) Assemble(sn *vfs.Snapshot, out *transform.Output) (Result, error) {
	entry, err := a.Entry(sn)
	if err != nil {
		return Result{}, err
	}
	u, ok := out.Unit(entry)
	if !ok {
		return Result{}, fmt.Errorf("entry %s missing from transform output", entry)
	}

	art := api.Artifact{
		Generation:          out.Generation,
		EntryRef:            u.Ref,
		EntryPath:           entry,
		ImportMap:           out.ImportMap,
		Stylesheet:          out.Stylesheet,
		ExternalStylesheets: out.ExternalStylesheets,
		Modules:             make([]api.Module, 0, len(out.Units)),
		Diagnostics:         make([]api.Diagnostic, 0, len(out.Diagnostics)),
	}
	for _, unit := range out.Units {
		art.Modules = append(art.Modules, api.Module{Ref: unit.Ref, Path: unit.Path, Code: unit.Code})
	}
	for _, d := range out.Diagnostics {
		art.Diagnostics = append(art.Diagnostics, d.Wire())
	}
	art.Executable = len(art.Diagnostics) == 0

	a.logger.Debug("artifact assembled",
		"generation", art.Generation,
		"entry", entry,
		"modules", len(art.Modules),
		"executable", art.Executable)
	return Result{Artifact: art, Executable: art.Executable}, nil
}

// FormatDiagnostics renders diagnostics for display in place of a preview.
func FormatDiagnostics(ds []api.Diagnostic) string {
	if len(ds) == 0 {
		return ""
	}
	var b strings.Builder
	noun := "problems"
	if len(ds) == 1 {
		noun = "problem"
	}
	fmt.Fprintf(&b, "Preview blocked by %d %s:\n", len(ds), noun)
	for _, d := range ds {
		if d.Line > 0 {
			fmt.Fprintf(&b, "  %s:%d:%d  %s  %s\n", d.Path, d.Line, d.Column, d.Kind, d.Message)
		} else {
			fmt.Fprintf(&b, "  %s  %s  %s\n", d.Path, d.Kind, d.Message)
		}
	}
	return b.String()
}
