package api

// Kind values used in snapshot records.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// Record is one entry of a persisted snapshot. A snapshot is an ordered
// sequence of records, exactly as produced by the store's Serialize.
type Record struct {
	// Path is the normalized absolute path of the entry.
	Path string `json:"path"`
	// Kind is KindFile or KindDirectory.
	Kind string `json:"kind"`
	// Content holds the file text. Always empty for directories.
	Content string `json:"content,omitempty"`
}

// EditCall is the editor tool payload sent by the orchestration loop.
type EditCall struct {
	// Action is one of "create", "view", "replace".
	Action  string  `json:"action"`
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
	OldText *string `json:"oldText,omitempty"`
	NewText *string `json:"newText,omitempty"`
}

// ManageCall is the manager tool payload sent by the orchestration loop.
type ManageCall struct {
	// Action is one of "rename", "delete".
	Action  string `json:"action"`
	Path    string `json:"path"`
	NewPath string `json:"newPath,omitempty"`
}

// Diagnostic is the wire form of a transform diagnostic.
type Diagnostic struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`   // 1-based, 0 when unknown
	Column  int    `json:"column,omitempty"` // 1-based, 0 when unknown
}

// ImportMap follows the browser import-map layout: top-level imports for
// bare packages plus per-module scopes for local specifiers.
type ImportMap struct {
	Imports map[string]string            `json:"imports"`
	Scopes  map[string]map[string]string `json:"scopes,omitempty"`
}

// Module is one loadable unit handed to the execution host.
type Module struct {
	Ref  string `json:"ref"`
	Path string `json:"path"`
	Code string `json:"code"`
}

// Artifact is the wire form of a build artifact handed to the execution host.
type Artifact struct {
	Generation          uint64       `json:"generation"`
	EntryRef            string       `json:"entryRef"`
	EntryPath           string       `json:"entryPath"`
	ImportMap           ImportMap    `json:"importMap"`
	Modules             []Module     `json:"modules"`
	Stylesheet          string       `json:"stylesheet"`
	ExternalStylesheets []string     `json:"externalStylesheets,omitempty"`
	Diagnostics         []Diagnostic `json:"diagnostics"`
	Executable          bool         `json:"executable"`
}
