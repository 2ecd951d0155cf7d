package transform

import (
	"path"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/atelier/internal/vfs"
)

// specKind partitions import specifiers into disjoint policies.
type specKind int

const (
	specLocal specKind = iota
	specBare
	specURL
)

// Alias maps a specifier prefix such as "@/" onto a store directory.
type Alias struct {
	Prefix string
	Target string
}

// resolver is built once per pass during enumeration and only read during
// the per-file phase.
type resolver struct {
	files    map[string]Family
	aliases  []Alias
	cdnBase  string
	versions map[string]string
}

func newResolver(files map[string]Family, aliases []Alias, cdnBase string) *resolver {
	as := append([]Alias(nil), aliases...)
	sort.SliceStable(as, func(i, j int) bool { return len(as[i].Prefix) > len(as[j].Prefix) })
	return &resolver{
		files:    files,
		aliases:  as,
		cdnBase:  strings.TrimRight(cdnBase, "/"),
		versions: map[string]string{},
	}
}

var depPaths = []jp.Expr{
	jp.MustParseString("$.dependencies"),
	jp.MustParseString("$.devDependencies"),
}

// loadVersions reads package versions from a package.json document.
// dependencies win over devDependencies; local and protocol versions
// ("file:", "workspace:*") are skipped. An unparsable document is ignored
// here; the data module built from it reports the ParseFailure.
func (r *resolver) loadVersions(doc string) {
	data, err := oj.ParseString(doc)
	if err != nil {
		return
	}
	for i := len(depPaths) - 1; i >= 0; i-- {
		deps, ok := depPaths[i].First(data).(map[string]any)
		if !ok {
			continue
		}
		for name, v := range deps {
			if s, ok := v.(string); ok && s != "" && !strings.ContainsAny(s, ":/") {
				r.versions[name] = s
			}
		}
	}
}

func (r *resolver) classify(spec string) specKind {
	switch {
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), strings.HasPrefix(spec, "/"),
		spec == ".", spec == "..":
		return specLocal
	case strings.Contains(spec, "://"), strings.HasPrefix(spec, "data:"), strings.HasPrefix(spec, "blob:"):
		return specURL
	}
	for _, a := range r.aliases {
		if strings.HasPrefix(spec, a.Prefix) {
			return specLocal
		}
	}
	return specBare
}

// target turns a local specifier into an absolute store path without probing.
// ".." segments above the root are dropped, as in a browser URL.
func (r *resolver) target(importer, spec string) string {
	for _, a := range r.aliases {
		if strings.HasPrefix(spec, a.Prefix) {
			return path.Join(a.Target, strings.TrimPrefix(spec, a.Prefix))
		}
	}
	if strings.HasPrefix(spec, "/") {
		return path.Clean(spec)
	}
	return path.Join(vfs.Parent(importer), spec)
}

// resolveLocal probes the literal path, then each script extension, then
// index files inside a directory of that name.
func (r *resolver) resolveLocal(importer, spec string) (string, bool) {
	base := r.target(importer, spec)
	if _, ok := r.files[base]; ok {
		return base, true
	}
	for _, ext := range ScriptExtensions {
		if _, ok := r.files[base+ext]; ok {
			return base + ext, true
		}
	}
	for _, ext := range ScriptExtensions {
		p := path.Join(base, "index"+ext)
		if _, ok := r.files[p]; ok {
			return p, true
		}
	}
	return "", false
}

// bareURL rewrites a package specifier onto the CDN. A version written in
// the specifier wins over the one recorded in package.json.
func (r *resolver) bareURL(spec string) string {
	name, sub := splitPackage(spec)
	pkg, version := name, ""
	if i := strings.LastIndexByte(name, '@'); i > 0 {
		pkg, version = name[:i], name[i+1:]
	}
	if version == "" {
		version = r.versions[pkg]
	}
	url := r.cdnBase + "/" + pkg
	if version != "" {
		url += "@" + version
	}
	return url + sub
}

// splitPackage separates "@scope/pkg/sub/path" into "@scope/pkg" and "/sub/path".
func splitPackage(spec string) (name, sub string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			sub = "/" + parts[2]
		}
		return name, sub
	}
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		return spec[:i], spec[i:]
	}
	return spec, ""
}

func isStylesheet(spec string) bool {
	s := spec
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(strings.ToLower(s), ".css")
}
