package transform

import (
	"fmt"
	"sort"

	"github.com/agentic-research/atelier/api"
)

// DiagnosticKind names a file-local transform failure.
type DiagnosticKind string

const (
	ParseFailure   DiagnosticKind = "ParseFailure"
	ModuleNotFound DiagnosticKind = "ModuleNotFound"
)

// Diagnostic records a failure local to one file. It never aborts a pass.
// Line and Column are 1-based; zero means unknown.
type Diagnostic struct {
	Path    string
	Kind    DiagnosticKind
	Message string
	Line    int
	Column  int
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Path, d.Kind, d.Message)
}

// Wire converts d for the execution host.
func (d Diagnostic) Wire() api.Diagnostic {
	return api.Diagnostic{Path: d.Path, Kind: string(d.Kind), Message: d.Message, Line: d.Line, Column: d.Column}
}

// sortDiagnostics orders diagnostics of one file by source position.
func sortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Line != ds[j].Line {
			return ds[i].Line < ds[j].Line
		}
		return ds[i].Column < ds[j].Column
	})
}
