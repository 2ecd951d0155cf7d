package transform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/vfs"
)

// Options configures an Engine. Zero fields take the defaults below.
type Options struct {
	// CDNBase is the endpoint bare package specifiers are rewritten onto.
	CDNBase string
	// Factory and Fragment are the JSX lowering targets.
	Factory  string
	Fragment string
	// FactoryImport is the package the factory root is imported from when
	// a file uses JSX without binding it.
	FactoryImport string
	// Aliases map specifier prefixes onto store directories.
	Aliases []Alias
	// Workers bounds per-file parallelism.
	Workers int
	// Refs creates the module reference allocator for each pass.
	Refs RefsFunc
	Logger *slog.Logger
}

const (
	DefaultCDNBase       = "https://esm.sh"
	DefaultFactory       = "React.createElement"
	DefaultFragment      = "React.Fragment"
	DefaultFactoryImport = "react"
)

// DefaultAliases maps "@/" onto the store root.
var DefaultAliases = []Alias{{Prefix: "@/", Target: "/"}}

func (o Options) withDefaults() Options {
	if o.CDNBase == "" {
		o.CDNBase = DefaultCDNBase
	}
	if o.Factory == "" {
		o.Factory = DefaultFactory
	}
	if o.Fragment == "" {
		o.Fragment = DefaultFragment
	}
	if o.FactoryImport == "" {
		o.FactoryImport = DefaultFactoryImport
	}
	if o.Aliases == nil {
		o.Aliases = DefaultAliases
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Refs == nil {
		o.Refs = NewPassRefs
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Unit is the transform result for one non-stylesheet file.
type Unit struct {
	Path        string
	Family      Family
	Ref         string
	Code        string
	Diagnostics []Diagnostic
	// Specifiers maps each rewritten specifier, as written, to its target:
	// a module reference for local imports, a URL for packages.
	Specifiers map[string]string
	// Stylesheets lists local stylesheet imports in source order.
	Stylesheets []string
	// External lists stylesheet URLs imported from packages.
	External []string

	locals map[string]bool
}

// Output is the result of one pass.
type Output struct {
	Generation uint64
	// Units holds every module, in path order.
	Units []Unit
	// Stylesheet is the aggregate of every imported local stylesheet.
	Stylesheet          string
	ExternalStylesheets []string
	// Diagnostics holds every diagnostic of the pass, grouped by path in
	// path order.
	Diagnostics []Diagnostic
	ImportMap   api.ImportMap
}

// Unit returns the unit for path p.
func (o *Output) Unit(p string) (Unit, bool) {
	i := sort.Search(len(o.Units), func(i int) bool { return o.Units[i].Path >= p })
	if i < len(o.Units) && o.Units[i].Path == p {
		return o.Units[i], true
	}
	return Unit{}, false
}

// DiagnosticsFor returns the diagnostics recorded against p.
func (o *Output) DiagnosticsFor(p string) []Diagnostic {
	var out []Diagnostic
	for _, d := range o.Diagnostics {
		if d.Path == p {
			out = append(out, d)
		}
	}
	return out
}

// Engine turns snapshots into module graphs. It holds no per-pass state
// and may run passes concurrently.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Transform runs a full pass over sn. Per-file failures are recorded as
// diagnostics; the only error is cancellation of ctx.
func (e *Engine) Transform(ctx context.Context, sn *vfs.Snapshot) (*Output, error) {
	start := time.Now()
	logger := e.opts.Logger.With("generation", sn.Generation)
	logger.Debug("transform started")

	// Enumeration: the full path set is known before any file is resolved.
	files := sn.Files()
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	families := make(map[string]Family, len(files))
	for _, f := range files {
		families[f.Path] = FamilyOf(f.Path)
	}
	res := newResolver(families, e.opts.Aliases, e.opts.CDNBase)
	if pkg, ok := sn.Lookup("/package.json"); ok && !pkg.IsDir() {
		res.loadVersions(pkg.Content)
	}
	refs := e.opts.Refs()

	// Per-file phase: results are written to distinct slots only.
	results := make([]Unit, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			u, err := e.unit(gctx, f, res, refs)
			if err != nil {
				return err
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debug("transform abandoned", "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Output{
		Generation: sn.Generation,
		ImportMap:  api.ImportMap{Imports: map[string]string{}, Scopes: map[string]map[string]string{}},
	}
	for _, u := range results {
		out.Diagnostics = append(out.Diagnostics, u.Diagnostics...)
		if u.Family == FamilyStylesheet {
			continue
		}
		for spec, target := range u.Specifiers {
			if u.locals[spec] {
				if out.ImportMap.Scopes[u.Ref] == nil {
					out.ImportMap.Scopes[u.Ref] = map[string]string{}
				}
				out.ImportMap.Scopes[u.Ref][spec] = target
				continue
			}
			out.ImportMap.Imports[spec] = target
		}
		out.Units = append(out.Units, u)
	}
	out.Stylesheet, out.ExternalStylesheets = aggregate(sn, out.Units)

	logger.Info("transform finished",
		"units", len(out.Units),
		"diagnostics", len(out.Diagnostics),
		"elapsed", time.Since(start))
	return out, nil
}

// aggregate concatenates imported stylesheets, importing files in path
// order and imports in source order, each stylesheet at most once.
func aggregate(sn *vfs.Snapshot, units []Unit) (string, []string) {
	var b strings.Builder
	seen := map[string]bool{}
	var external []string
	seenExternal := map[string]bool{}
	for _, u := range units {
		for _, p := range u.Stylesheets {
			if seen[p] {
				continue
			}
			seen[p] = true
			n, ok := sn.Lookup(p)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "/* %s */\n%s", p, n.Content)
			if !strings.HasSuffix(n.Content, "\n") {
				b.WriteByte('\n')
			}
		}
		for _, url := range u.External {
			if !seenExternal[url] {
				seenExternal[url] = true
				external = append(external, url)
			}
		}
	}
	return b.String(), external
}

func (e *Engine) unit(ctx context.Context, f vfs.Node, res *resolver, refs Refs) (Unit, error) {
	u := Unit{Path: f.Path, Family: FamilyOf(f.Path), Specifiers: map[string]string{}}
	if u.Family != FamilyStylesheet {
		u.Ref = refs.Ref(f.Path)
	}

	switch u.Family {
	case FamilyData:
		if _, err := oj.ParseString(f.Content); err != nil {
			u.Diagnostics = append(u.Diagnostics, Diagnostic{Path: f.Path, Kind: ParseFailure, Message: err.Error()})
			return u, nil
		}
		u.Code = "export default " + strings.TrimSpace(f.Content) + ";\n"
		return u, nil
	case FamilyOther:
		u.Code = "export default " + jsString(f.Content) + ";\n"
		return u, nil
	}

	lang, typed, _ := grammar(f.Path)
	src := []byte(f.Content)
	root, d, err := parse(ctx, f.Path, lang, src)
	if err != nil {
		return Unit{}, err
	}
	if d != nil {
		u.Diagnostics = append(u.Diagnostics, *d)
		return u, nil
	}
	if u.Family == FamilyStylesheet {
		return u, nil
	}

	em := newEmitter(f.Path, src, typed, res, refs, &e.opts)
	u.Code = em.emit(root)
	u.Diagnostics = em.diags
	sortDiagnostics(u.Diagnostics)
	u.Stylesheets = em.styles
	u.External = em.external
	u.locals = map[string]bool{}
	for _, r := range em.imports {
		u.Specifiers[r.Spec] = r.Target
		if r.Local {
			u.locals[r.Spec] = true
		}
	}
	return u, nil
}
