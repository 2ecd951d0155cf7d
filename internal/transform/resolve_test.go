package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPackage(t *testing.T) {
	tests := []struct {
		spec, name, sub string
	}{
		{"react", "react", ""},
		{"react-dom/client", "react-dom", "/client"},
		{"@scope/pkg", "@scope/pkg", ""},
		{"@scope/pkg/a/b", "@scope/pkg", "/a/b"},
	}
	for _, tt := range tests {
		name, sub := splitPackage(tt.spec)
		assert.Equal(t, tt.name, name, tt.spec)
		assert.Equal(t, tt.sub, sub, tt.spec)
	}
}

func TestResolver_BareURL(t *testing.T) {
	r := newResolver(nil, DefaultAliases, "https://cdn.example/")
	r.loadVersions(`{"dependencies": {"@scope/ui": "1.2.3", "local": "file:../local"}}`)

	assert.Equal(t, "https://cdn.example/@scope/ui@1.2.3/button", r.bareURL("@scope/ui/button"))
	assert.Equal(t, "https://cdn.example/react@17", r.bareURL("react@17"))
	assert.Equal(t, "https://cdn.example/local", r.bareURL("local"))
}

func TestResolver_Classify(t *testing.T) {
	r := newResolver(nil, DefaultAliases, DefaultCDNBase)
	assert.Equal(t, specLocal, r.classify("./a"))
	assert.Equal(t, specLocal, r.classify("../a"))
	assert.Equal(t, specLocal, r.classify("/a"))
	assert.Equal(t, specLocal, r.classify("@/a"))
	assert.Equal(t, specBare, r.classify("@scope/a"))
	assert.Equal(t, specBare, r.classify("react"))
	assert.Equal(t, specURL, r.classify("https://x.test/m.js"))
}

func TestResolver_ProbeOrder(t *testing.T) {
	files := map[string]Family{
		"/a.ts":          FamilyScript,
		"/a.tsx":         FamilyMarkupScript,
		"/b/index.js":    FamilyScript,
		"/b/index.ts":    FamilyScript,
		"/c":             FamilyOther,
		"/c.tsx":         FamilyMarkupScript,
		"/src/d/e.jsx":   FamilyMarkupScript,
		"/data.json":     FamilyData,
		"/deep/x/y.mjs":  FamilyScript,
		"/deep/index.js": FamilyScript,
		"/lib/helper.ts": FamilyScript,
	}
	r := newResolver(files, DefaultAliases, DefaultCDNBase)
	tests := []struct {
		importer, spec, want string
	}{
		{"/App.tsx", "./a", "/a.tsx"},
		{"/App.tsx", "./b", "/b/index.ts"},
		{"/App.tsx", "./c", "/c"},
		{"/src/App.tsx", "./d/e", "/src/d/e.jsx"},
		{"/src/d/e.jsx", "../../a.ts", "/a.ts"},
		{"/src/App.tsx", "@/data.json", "/data.json"},
		{"/x.js", "/deep/x/y", "/deep/x/y.mjs"},
		{"/x.js", "./deep", "/deep/index.js"},
		// ".." above the root stays at the root.
		{"/App.tsx", "../../../lib/helper", "/lib/helper.ts"},
		{"/src/App.tsx", "../../lib/helper", "/lib/helper.ts"},
	}
	for _, tt := range tests {
		got, ok := r.resolveLocal(tt.importer, tt.spec)
		if assert.True(t, ok, tt.spec) {
			assert.Equal(t, tt.want, got, tt.spec)
		}
	}
	_, ok := r.resolveLocal("/App.tsx", "./missing")
	assert.False(t, ok)
}

func TestJSXText(t *testing.T) {
	assert.Equal(t, "  a  ", jsxText([]byte("  a  ")))
	assert.Equal(t, "Hello world", jsxText([]byte("\n    Hello\n    world\n  ")))
	assert.Equal(t, "", jsxText([]byte("\n    \n  ")))
	assert.Equal(t, "a & b", jsxText([]byte("a &amp; b")))
	assert.Equal(t, "x ", jsxText([]byte("\n  x ")))
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"a<b>\"c\"\n"`, jsString("a<b>\"c\"\n"))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	d, err := Check(ctx, "/ok.ts", "export const x: number = 1;")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = Check(ctx, "/bad.js", "const = ;")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, ParseFailure, d.Kind)
	assert.Equal(t, "/bad.js", d.Path)

	d, err = Check(ctx, "/data.json", "{\"a\": }")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, ParseFailure, d.Kind)

	d, err = Check(ctx, "/readme.md", "anything {")
	require.NoError(t, err)
	assert.Nil(t, d)
}
