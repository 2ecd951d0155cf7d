package transform

import (
	"context"

	"github.com/ohler55/ojg/oj"
)

// Check syntax-checks a single file the way the per-file phase would,
// without resolving imports. It returns nil for files that parse and for
// files the engine treats as opaque text.
func Check(ctx context.Context, p string, content string) (*Diagnostic, error) {
	if FamilyOf(p) == FamilyData {
		if _, err := oj.ParseString(content); err != nil {
			return &Diagnostic{Path: p, Kind: ParseFailure, Message: err.Error()}, nil
		}
		return nil, nil
	}
	lang, _, ok := grammar(p)
	if !ok {
		return nil, nil
	}
	_, d, err := parse(ctx, p, lang, []byte(content))
	return d, err
}
