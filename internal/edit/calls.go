package edit

import (
	"fmt"
	"strings"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/vfs"
)

// Editor tool actions.
const (
	ActionCreate  = "create"
	ActionView    = "view"
	ActionReplace = "replace"
)

// Manager tool actions.
const (
	ActionRename = "rename"
	ActionDelete = "delete"
)

// toolPath roots a path given by the agent at the project root and
// normalizes it. Traversal segments are rejected by vfs.Normalize.
func toolPath(field, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return vfs.Normalize(p)
}

// ParseEditCall validates an editor tool call and converts it into an op.
// create becomes CreateFile; the session decides at execution time whether
// it commits as CreateFile or as an overwriting WriteFile.
func ParseEditCall(call api.EditCall) (Op, error) {
	switch call.Action {
	case ActionCreate, ActionView, ActionReplace:
	default:
		return nil, fmt.Errorf("%w: editor action %q (want create, view or replace)", ErrUnknownAction, call.Action)
	}
	p, err := toolPath("path", call.Path)
	if err != nil {
		return nil, err
	}

	switch call.Action {
	case ActionCreate:
		if call.Content == nil {
			return nil, fmt.Errorf("%w: content", ErrMissingField)
		}
		return CreateFile{Path: p, Content: *call.Content}, nil
	case ActionView:
		return ReadFile{Path: p}, nil
	default:
		if call.OldText == nil || *call.OldText == "" {
			return nil, fmt.Errorf("%w: oldText", ErrMissingField)
		}
		if call.NewText == nil {
			return nil, fmt.Errorf("%w: newText", ErrMissingField)
		}
		return ReplaceText{Path: p, Old: *call.OldText, New: *call.NewText}, nil
	}
}

// ParseManageCall validates a manager tool call and converts it into an op.
// Deletes are always recursive.
func ParseManageCall(call api.ManageCall) (Op, error) {
	switch call.Action {
	case ActionRename:
		from, err := toolPath("path", call.Path)
		if err != nil {
			return nil, err
		}
		to, err := toolPath("newPath", call.NewPath)
		if err != nil {
			return nil, err
		}
		return RenameEntry{OldPath: from, NewPath: to}, nil
	case ActionDelete:
		p, err := toolPath("path", call.Path)
		if err != nil {
			return nil, err
		}
		return DeleteEntry{Path: p, Recursive: true}, nil
	default:
		return nil, fmt.Errorf("%w: manager action %q (want rename or delete)", ErrUnknownAction, call.Action)
	}
}
