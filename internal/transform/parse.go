package transform

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// parse returns the syntax tree of src, or a ParseFailure diagnostic
// pointing at the first ERROR or MISSING node.
func parse(ctx context.Context, p string, lang *sitter.Language, src []byte) (*sitter.Node, *Diagnostic, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, &Diagnostic{Path: p, Kind: ParseFailure, Message: fmt.Sprintf("parser failed: %v", err)}, nil
	}
	root := tree.RootNode()
	if root == nil {
		return nil, &Diagnostic{Path: p, Kind: ParseFailure, Message: "parser returned no tree"}, nil
	}
	if !root.HasError() {
		return root, nil, nil
	}

	d := &Diagnostic{Path: p, Kind: ParseFailure, Message: "syntax error", Line: 1, Column: 1}
	if n := findFirstError(root); n != nil {
		pt := n.StartPoint()
		d.Line, d.Column = int(pt.Row)+1, int(pt.Column)+1
		if n.IsMissing() {
			d.Message = fmt.Sprintf("missing %q", n.Type())
		} else if text := excerpt(n.Content(src)); text != "" {
			d.Message = fmt.Sprintf("unexpected %q", text)
		}
	}
	return nil, d, nil
}

// findFirstError does a depth-first search for the first ERROR or MISSING node.
func findFirstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsError() || c.IsMissing() {
			if found := findFirstError(c); found != nil {
				return found
			}
		}
	}
	return nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 24 {
		s = s[:24] + "..."
	}
	return s
}
