// Package mcptools exposes the edit session to an agent as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/preview"
	"github.com/agentic-research/atelier/internal/transform"
)

// Tool names.
const (
	EditorTool  = "editor"
	ManagerTool = "manager"
	PreviewTool = "preview"
)

// Register adds the editor and manager tools, and the preview tool when
// builder is non-nil. turns may be nil, in which case the session's turn is
// never reset.
func Register(s *server.MCPServer, sess *edit.Session, builder *preview.Builder, turns *Turns) {
	s.AddTool(editorTool(), EditorHandler(sess, turns))
	s.AddTool(managerTool(), ManagerHandler(sess, turns))
	if builder != nil {
		s.AddTool(previewTool(), PreviewHandler(sess, builder))
	}
}

// --- editor ---

func editorTool() mcp.Tool {
	return mcp.NewTool(EditorTool,
		mcp.WithDescription("View, create or edit project files. create writes the whole file, creating missing directories and overwriting an existing file. view shows a file with line numbers or lists a directory. replace substitutes oldText, which must occur exactly once, with newText."),
		mcp.WithString("action",
			mcp.Description("create, view or replace"),
			mcp.Enum(edit.ActionCreate, edit.ActionView, edit.ActionReplace),
			mcp.Required(),
		),
		mcp.WithString("path",
			mcp.Description("File or directory path relative to the project root, e.g. src/App.tsx"),
			mcp.Required(),
		),
		mcp.WithString("content",
			mcp.Description("Full file content, for create"),
		),
		mcp.WithString("oldText",
			mcp.Description("Exact text to replace, for replace"),
		),
		mcp.WithString("newText",
			mcp.Description("Replacement text, for replace"),
		),
	)
}

// EditorHandler serves the editor tool.
func EditorHandler(sess *edit.Session, turns *Turns) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		turns.touch(sess)
		args := req.GetArguments()
		call := api.EditCall{
			Action:  req.GetString("action", ""),
			Path:    req.GetString("path", ""),
			Content: optional(args, "content"),
			OldText: optional(args, "oldText"),
			NewText: optional(args, "newText"),
		}
		res, err := sess.Edit(ctx, call)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(res.Text + syntaxWarning(ctx, sess, res)), nil
	}
}

// syntaxWarning checks the file an edit just wrote. The edit stands either
// way; the warning lets the agent fix it before previewing.
func syntaxWarning(ctx context.Context, sess *edit.Session, res edit.Result) string {
	if len(res.Committed) == 0 {
		return ""
	}
	var p string
	switch op := res.Committed[len(res.Committed)-1].Op.(type) {
	case edit.CreateFile:
		p = op.Path
	case edit.WriteFile:
		p = op.Path
	case edit.ReplaceText:
		p = op.Path
	default:
		return ""
	}
	content, ok := sess.Content(p)
	if !ok {
		return ""
	}
	d, err := transform.Check(ctx, p, content)
	if err != nil || d == nil {
		return ""
	}
	return "\nWarning: " + d.String()
}

// --- manager ---

func managerTool() mcp.Tool {
	return mcp.NewTool(ManagerTool,
		mcp.WithDescription("Rename or delete project files and directories. Deleting a directory removes everything under it."),
		mcp.WithString("action",
			mcp.Description("rename or delete"),
			mcp.Enum(edit.ActionRename, edit.ActionDelete),
			mcp.Required(),
		),
		mcp.WithString("path",
			mcp.Description("Path of the entry to rename or delete"),
			mcp.Required(),
		),
		mcp.WithString("newPath",
			mcp.Description("Destination path, for rename"),
		),
	)
}

// ManagerHandler serves the manager tool.
func ManagerHandler(sess *edit.Session, turns *Turns) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		turns.touch(sess)
		call := api.ManageCall{
			Action:  req.GetString("action", ""),
			Path:    req.GetString("path", ""),
			NewPath: req.GetString("newPath", ""),
		}
		res, err := sess.Manage(ctx, call)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}

// --- preview ---

func previewTool() mcp.Tool {
	return mcp.NewTool(PreviewTool,
		mcp.WithDescription("Build a preview of the current project and report whether it can run. Lists every parse and import problem when it cannot."),
	)
}

// PreviewHandler builds the session's current snapshot.
func PreviewHandler(sess *edit.Session, builder *preview.Builder) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := builder.Build(ctx, sess.Snapshot())
		if err != nil {
			if errors.Is(err, preview.ErrStale) {
				return toolError(fmt.Errorf("preview superseded by a newer edit; try again"))
			}
			return toolError(err)
		}
		if !res.Executable {
			return mcp.NewToolResultText(preview.FormatDiagnostics(res.Artifact.Diagnostics)), nil
		}
		art := res.Artifact
		var sb strings.Builder
		fmt.Fprintf(&sb, "Preview ready (generation %d).\n", art.Generation)
		fmt.Fprintf(&sb, "Entry: %s\n", art.EntryPath)
		fmt.Fprintf(&sb, "Modules: %d\n", len(art.Modules))
		if n := len(art.ExternalStylesheets); n > 0 {
			fmt.Fprintf(&sb, "External stylesheets: %d\n", n)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// optional returns a pointer to the string argument key, or nil when the
// agent did not send it.
func optional(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
