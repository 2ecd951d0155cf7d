package edit

import (
	"fmt"
	"strings"

	"github.com/agentic-research/atelier/internal/vfs"
)

// Kind names an operation in logs and on the wire.
type Kind string

const (
	KindCreateFile      Kind = "create_file"
	KindWriteFile       Kind = "write_file"
	KindReadFile        Kind = "read_file"
	KindReplaceText     Kind = "replace_text"
	KindDeleteEntry     Kind = "delete_entry"
	KindRenameEntry     Kind = "rename_entry"
	KindCreateDirectory Kind = "create_directory"
)

// Op is the closed set of edit operations. Every variant holds only
// primitive fields and is treated as an immutable value.
type Op interface {
	Kind() Kind
	// Mutates reports whether the op changes the store. Only mutating ops
	// are committed and forwarded to mirrors.
	Mutates() bool
	sealed()
}

// CreateFile adds a new file; it fails if the path exists.
type CreateFile struct {
	Path    string
	Content string
}

// WriteFile replaces the content of an existing file. It is what an
// editor overwrite commits.
type WriteFile struct {
	Path    string
	Content string
}

// ReadFile views a file or directory.
type ReadFile struct {
	Path string
}

// ReplaceText substitutes the single occurrence of Old with New.
type ReplaceText struct {
	Path string
	Old  string
	New  string
}

// DeleteEntry removes a file or directory.
type DeleteEntry struct {
	Path      string
	Recursive bool
}

// RenameEntry moves a file or directory.
type RenameEntry struct {
	OldPath string
	NewPath string
}

// CreateDirectory adds an empty directory.
type CreateDirectory struct {
	Path string
}

func (CreateFile) Kind() Kind      { return KindCreateFile }
func (WriteFile) Kind() Kind       { return KindWriteFile }
func (ReadFile) Kind() Kind        { return KindReadFile }
func (ReplaceText) Kind() Kind     { return KindReplaceText }
func (DeleteEntry) Kind() Kind     { return KindDeleteEntry }
func (RenameEntry) Kind() Kind     { return KindRenameEntry }
func (CreateDirectory) Kind() Kind { return KindCreateDirectory }

func (CreateFile) Mutates() bool      { return true }
func (WriteFile) Mutates() bool       { return true }
func (ReadFile) Mutates() bool        { return false }
func (ReplaceText) Mutates() bool     { return true }
func (DeleteEntry) Mutates() bool     { return true }
func (RenameEntry) Mutates() bool     { return true }
func (CreateDirectory) Mutates() bool { return true }

func (CreateFile) sealed()      {}
func (WriteFile) sealed()       {}
func (ReadFile) sealed()        {}
func (ReplaceText) sealed()     {}
func (DeleteEntry) sealed()     {}
func (RenameEntry) sealed()     {}
func (CreateDirectory) sealed() {}

// Describe returns a one-line summary of op for logs.
func Describe(op Op) string {
	switch o := op.(type) {
	case CreateFile:
		return fmt.Sprintf("%s %s (%d bytes)", o.Kind(), o.Path, len(o.Content))
	case WriteFile:
		return fmt.Sprintf("%s %s (%d bytes)", o.Kind(), o.Path, len(o.Content))
	case ReadFile:
		return fmt.Sprintf("%s %s", o.Kind(), o.Path)
	case ReplaceText:
		return fmt.Sprintf("%s %s", o.Kind(), o.Path)
	case DeleteEntry:
		return fmt.Sprintf("%s %s recursive=%v", o.Kind(), o.Path, o.Recursive)
	case RenameEntry:
		return fmt.Sprintf("%s %s -> %s", o.Kind(), o.OldPath, o.NewPath)
	case CreateDirectory:
		return fmt.Sprintf("%s %s", o.Kind(), o.Path)
	default:
		return fmt.Sprintf("unknown op %T", op)
	}
}

// Apply executes a mutating op against s. It is used identically by the
// authoritative session and by mirrors, so replaying the committed log
// reproduces the authoritative tree. Each op maps onto one store call and is
// therefore atomic.
func Apply(s *vfs.Store, op Op) error {
	switch o := op.(type) {
	case CreateFile:
		return s.Create(o.Path, o.Content)
	case WriteFile:
		return s.Update(o.Path, o.Content)
	case ReplaceText:
		return s.Edit(o.Path, func(content string) (string, error) {
			return replaceOnce(o.Path, content, o.Old, o.New)
		})
	case DeleteEntry:
		return s.Delete(o.Path, o.Recursive)
	case RenameEntry:
		return s.Rename(o.OldPath, o.NewPath)
	case CreateDirectory:
		return s.Mkdir(o.Path)
	case ReadFile:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, op)
	}
}

// replaceOnce splices newText over the single occurrence of oldText.
func replaceOnce(path, content, oldText, newText string) (string, error) {
	if oldText == "" {
		return "", fmt.Errorf("replace %s: %w: old text is empty", path, ErrMissingField)
	}
	n := countOverlapping(content, oldText)
	if n != 1 {
		return "", &ReplaceError{Path: path, Count: n}
	}
	start := strings.Index(content, oldText)
	end := start + len(oldText)

	var b strings.Builder
	b.Grow(len(content) - len(oldText) + len(newText))
	b.WriteString(content[:start])
	b.WriteString(newText)
	b.WriteString(content[end:])
	return b.String(), nil
}

// countOverlapping counts every position where sub starts, so "aa" occurs
// twice in "aaa".
func countOverlapping(s, sub string) int {
	n := 0
	for i := strings.Index(s, sub); i >= 0; {
		n++
		next := strings.Index(s[i+1:], sub)
		if next < 0 {
			break
		}
		i += next + 1
	}
	return n
}
