package mcptools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/preview"
	"github.com/agentic-research/atelier/internal/transform"
	"github.com/agentic-research/atelier/internal/vfs"
)

func call(t *testing.T, h server.ToolHandlerFunc, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
	res, err := h(context.Background(), req)
	require.NoError(t, err, "tool failures are reported in the result, not as errors")
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func newBuilder() *preview.Builder {
	engine := transform.New(transform.Options{})
	return preview.NewBuilder(engine, preview.NewAssembler(nil, nil), preview.NewTracker(), nil)
}

func TestEditor_CreateViewReplace(t *testing.T) {
	store := vfs.New()
	sess := edit.NewSession(store)
	h := EditorHandler(sess, nil)

	text, isErr := call(t, h, EditorTool, map[string]any{
		"action": "create", "path": "src/App.tsx", "content": "export default 1\n",
	})
	require.False(t, isErr, text)
	assert.Equal(t, "Created /src/App.tsx (created /src)", text)

	text, isErr = call(t, h, EditorTool, map[string]any{"action": "view", "path": "src/App.tsx"})
	require.False(t, isErr, text)
	assert.Equal(t, "     1\texport default 1\n", text)

	text, isErr = call(t, h, EditorTool, map[string]any{
		"action": "replace", "path": "/src/App.tsx", "oldText": "1", "newText": "2",
	})
	require.False(t, isErr, text)
	content, err := store.ReadFile("/src/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, "export default 2\n", content)
}

func TestEditor_CreateWithEmptyContent(t *testing.T) {
	store := vfs.New()
	h := EditorHandler(edit.NewSession(store), nil)

	text, isErr := call(t, h, EditorTool, map[string]any{"action": "create", "path": "empty.css", "content": ""})
	require.False(t, isErr, text)
	assert.True(t, store.Exists("/empty.css"))

	text, isErr = call(t, h, EditorTool, map[string]any{"action": "create", "path": "missing.css"})
	assert.True(t, isErr)
	assert.Contains(t, text, "content")
}

func TestEditor_ErrorsAreToolErrors(t *testing.T) {
	store := vfs.New()
	require.NoError(t, store.Create("/f.txt", "a a"))
	h := EditorHandler(edit.NewSession(store), nil)

	text, isErr := call(t, h, EditorTool, map[string]any{"action": "replace", "path": "f.txt", "oldText": "a", "newText": "b"})
	assert.True(t, isErr)
	assert.Contains(t, text, "occurs 2 times")

	text, isErr = call(t, h, EditorTool, map[string]any{"action": "delete", "path": "f.txt"})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown action")
}

func TestManager_RenameAndDelete(t *testing.T) {
	store := vfs.New()
	require.NoError(t, store.Mkdir("/src"))
	require.NoError(t, store.Create("/src/a.ts", "x"))
	h := ManagerHandler(edit.NewSession(store), nil)

	text, isErr := call(t, h, ManagerTool, map[string]any{"action": "rename", "path": "src/a.ts", "newPath": "src/b.ts"})
	require.False(t, isErr, text)
	assert.Equal(t, "Renamed /src/a.ts to /src/b.ts", text)

	text, isErr = call(t, h, ManagerTool, map[string]any{"action": "delete", "path": "src"})
	require.False(t, isErr, text)
	assert.False(t, store.Exists("/src"))

	_, isErr = call(t, h, ManagerTool, map[string]any{"action": "delete", "path": "src"})
	assert.True(t, isErr)
}

func TestPreview(t *testing.T) {
	store := vfs.New()
	sess := edit.NewSession(store)
	editor := EditorHandler(sess, nil)
	pv := PreviewHandler(sess, newBuilder())

	text, isErr := call(t, pv, PreviewTool, nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "no entry point")

	_, isErr = call(t, editor, EditorTool, map[string]any{
		"action": "create", "path": "App.tsx", "content": "import x from './nope';\nexport default () => x;\n",
	})
	require.False(t, isErr)
	text, isErr = call(t, pv, PreviewTool, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Preview blocked by 1 problem")
	assert.Contains(t, text, "./nope")

	_, isErr = call(t, editor, EditorTool, map[string]any{
		"action": "replace", "path": "App.tsx", "oldText": "import x from './nope';\n", "newText": "const x = 1;\n",
	})
	require.False(t, isErr)
	text, isErr = call(t, pv, PreviewTool, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Preview ready (generation 2)")
	assert.Contains(t, text, "Entry: /App.tsx")
}

func TestRegister(t *testing.T) {
	s := server.NewMCPServer("atelier-test", "0.0.0", server.WithToolCapabilities(true))
	assert.NotPanics(t, func() { Register(s, edit.NewSession(vfs.New()), newBuilder(), nil) })
}

func TestTurns_IdleGapStartsNewTurn(t *testing.T) {
	store := vfs.New()
	require.NoError(t, store.Create("/a.txt", "a"))
	sess := edit.NewSession(store, edit.WithLimits(edit.Limits{Live: 1, Stub: 1}))

	clock := time.Unix(0, 0)
	turns := NewTurns(edit.ModeLive, time.Minute)
	turns.now = func() time.Time { return clock }
	h := EditorHandler(sess, turns)
	view := map[string]any{"action": "view", "path": "a.txt"}

	_, isErr := call(t, h, EditorTool, view)
	require.False(t, isErr)

	clock = clock.Add(10 * time.Second)
	text, isErr := call(t, h, EditorTool, view)
	assert.True(t, isErr, "second call in the same turn exceeds the budget")
	assert.Contains(t, text, "step limit")

	clock = clock.Add(2 * time.Minute)
	_, isErr = call(t, h, EditorTool, view)
	assert.False(t, isErr, "an idle gap starts a fresh turn")
}

func TestEditor_SyntaxWarning(t *testing.T) {
	store := vfs.New()
	h := EditorHandler(edit.NewSession(store), nil)

	text, isErr := call(t, h, EditorTool, map[string]any{"action": "create", "path": "App.tsx", "content": "export default () => (<div>;\n"})
	require.False(t, isErr, "a syntax error does not reject the edit")
	assert.Contains(t, text, "Created /App.tsx")
	assert.Contains(t, text, "Warning: /App.tsx:1:")
	assert.Contains(t, text, "ParseFailure")
	assert.True(t, store.Exists("/App.tsx"))

	text, isErr = call(t, h, EditorTool, map[string]any{"action": "replace", "path": "App.tsx", "oldText": "(<div>;", "newText": "<div />;"})
	require.False(t, isErr, text)
	assert.NotContains(t, text, "Warning")

	text, _ = call(t, h, EditorTool, map[string]any{"action": "create", "path": "notes.md", "content": "# {{ not code"})
	assert.NotContains(t, text, "Warning")
}

// callArgs encodes v the way an MCP client would send it.
func callArgs(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestToolArgumentsMatchAPICallShape(t *testing.T) {
	store := vfs.New()
	require.NoError(t, store.Create("/a.ts", "let v = 1;\n"))
	sess := edit.NewSession(store)
	old, repl := "1", "2"

	text, isErr := call(t, EditorHandler(sess, nil), EditorTool, callArgs(t, api.EditCall{
		Action: edit.ActionReplace, Path: "a.ts", OldText: &old, NewText: &repl,
	}))
	require.False(t, isErr, text)
	content, err := store.ReadFile("/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "let v = 2;\n", content)

	text, isErr = call(t, ManagerHandler(sess, nil), ManagerTool, callArgs(t, api.ManageCall{
		Action: edit.ActionRename, Path: "a.ts", NewPath: "b.ts",
	}))
	require.False(t, isErr, text)
	assert.True(t, store.Exists("/b.ts"))

	assert.Contains(t, editorTool().InputSchema.Properties, "oldText")
	assert.Contains(t, editorTool().InputSchema.Properties, "newText")
	assert.Contains(t, managerTool().InputSchema.Properties, "newPath")
}
