package transform

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Family classifies a file for the per-file phase.
type Family int

const (
	// FamilyOther files are opaque; they are exposed as text modules.
	FamilyOther Family = iota
	// FamilyScript is plain or type-annotated script.
	FamilyScript
	// FamilyMarkupScript is script with embedded JSX markup.
	FamilyMarkupScript
	// FamilyStylesheet files are aggregated, never executed.
	FamilyStylesheet
	// FamilyData is JSON, exposed as a default export.
	FamilyData
)

func (f Family) String() string {
	switch f {
	case FamilyScript:
		return "script"
	case FamilyMarkupScript:
		return "markup-script"
	case FamilyStylesheet:
		return "stylesheet"
	case FamilyData:
		return "data"
	default:
		return "other"
	}
}

// ScriptExtensions is the probe order used when resolving local specifiers.
var ScriptExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs"}

// FamilyOf classifies p by extension.
func FamilyOf(p string) Family {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs", ".ts", ".mts", ".cts":
		return FamilyScript
	case ".jsx", ".tsx":
		return FamilyMarkupScript
	case ".css":
		return FamilyStylesheet
	case ".json":
		return FamilyData
	default:
		return FamilyOther
	}
}

// grammar returns the tree-sitter language for p and whether the file
// carries type annotations that need erasing.
func grammar(p string) (lang *sitter.Language, typed bool, ok bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs", ".jsx":
		return javascript.GetLanguage(), false, true
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage(), true, true
	case ".tsx":
		return tsx.GetLanguage(), true, true
	case ".css":
		return css.GetLanguage(), false, true
	default:
		return nil, false, false
	}
}
