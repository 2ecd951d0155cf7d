package preview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/atelier/api"
	"github.com/agentic-research/atelier/internal/transform"
	"github.com/agentic-research/atelier/internal/vfs"
)

func snap(t *testing.T, gen uint64, files map[string]string) *vfs.Snapshot {
	t.Helper()
	s := vfs.New()
	for p, content := range files {
		var dirs []string
		for d := vfs.Parent(p); d != vfs.Root; d = vfs.Parent(d) {
			dirs = append([]string{d}, dirs...)
		}
		for _, d := range dirs {
			if !s.Exists(d) {
				require.NoError(t, s.Mkdir(d))
			}
		}
		require.NoError(t, s.Create(p, content))
	}
	return s.Snapshot(gen)
}

func newBuilder() *Builder {
	engine := transform.New(transform.Options{Refs: func() transform.Refs { return transform.StableRefs{} }})
	return NewBuilder(engine, NewAssembler(nil, nil), NewTracker(), nil)
}

func TestSelectEntry(t *testing.T) {
	sn := snap(t, 1, map[string]string{
		"/index.tsx":   "export default 1",
		"/App.jsx":     "export default 2",
		"/App.tsx":     "export default 3",
		"/src/App.tsx": "export default 4",
	})
	entry, err := SelectEntry(sn, DefaultEntryCandidates)
	require.NoError(t, err)
	assert.Equal(t, "/App.tsx", entry)

	sn = snap(t, 1, map[string]string{"/app.JSX": "", "/main.ts": ""})
	entry, err = SelectEntry(sn, DefaultEntryCandidates)
	require.NoError(t, err)
	assert.Equal(t, "/app.JSX", entry, "matching is case-insensitive")
}

func TestSelectEntry_NoEntryPoint(t *testing.T) {
	sn := snap(t, 1, map[string]string{"/src/App.tsx": "export default 1", "/styles.css": ""})
	_, err := SelectEntry(sn, DefaultEntryCandidates)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, NoEntryPoint, ae.Kind)

	_, err = newBuilder().Build(context.Background(), sn)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestBuild_Executable(t *testing.T) {
	b := newBuilder()
	sn := snap(t, 3, map[string]string{
		"/App.tsx":   "import './app.css';\nimport Hello from './Hello';\nexport default () => <Hello />;\n",
		"/Hello.tsx": "export default function Hello() { return <h1>hi</h1>; }",
		"/app.css":   "h1 { color: teal; }",
	})
	res, err := b.Build(context.Background(), sn)
	require.NoError(t, err)
	assert.True(t, res.Executable)

	art := res.Artifact
	assert.Equal(t, uint64(3), art.Generation)
	assert.Equal(t, "/App.tsx", art.EntryPath)
	assert.Equal(t, transform.StableRefs{}.Ref("/App.tsx"), art.EntryRef)
	assert.Len(t, art.Modules, 2)
	assert.Contains(t, art.Stylesheet, "h1 { color: teal; }")
	assert.Empty(t, art.Diagnostics)

	latest, ok := b.Tracker().Latest()
	require.True(t, ok)
	assert.Equal(t, res, latest)
}

func TestBuild_FailClosed(t *testing.T) {
	b := newBuilder()
	sn := snap(t, 1, map[string]string{
		"/App.tsx":          "export default () => null",
		"/unused/Other.tsx": "import Missing from './missing'\nexport const x = Missing;",
	})
	res, err := b.Build(context.Background(), sn)
	require.NoError(t, err)
	assert.False(t, res.Executable, "diagnostics outside the entry's graph still block execution")
	require.Len(t, res.Artifact.Diagnostics, 1)
	assert.Equal(t, "ModuleNotFound", res.Artifact.Diagnostics[0].Kind)
	assert.NotEmpty(t, res.Artifact.EntryRef, "the artifact is still built")

	text := FormatDiagnostics(res.Artifact.Diagnostics)
	assert.Contains(t, text, "Preview blocked by 1 problem:")
	assert.Contains(t, text, "/unused/Other.tsx:1:21")
	assert.Contains(t, text, "./missing")
}

func TestTracker_NeverHandsOutSupersededGeneration(t *testing.T) {
	tr := NewTracker()
	ctx1, done1, err := tr.Begin(context.Background(), 1)
	require.NoError(t, err)
	defer done1()
	ctx2, done2, err := tr.Begin(context.Background(), 2)
	require.NoError(t, err)
	defer done2()

	assert.ErrorIs(t, ctx1.Err(), context.Canceled, "starting generation 2 cancels the generation 1 pass")
	assert.NoError(t, ctx2.Err())

	err = tr.Publish(1, Result{Artifact: api.Artifact{EntryPath: "/old"}})
	assert.ErrorIs(t, err, ErrStale)
	_, ok := tr.Latest()
	assert.False(t, ok)

	require.NoError(t, tr.Publish(2, Result{Artifact: api.Artifact{EntryPath: "/new"}, Executable: true}))
	res, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), res.Artifact.Generation)
	assert.Equal(t, "/new", res.Artifact.EntryPath)

	_, _, err = tr.Begin(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStale)

	_, done3, err := tr.Begin(context.Background(), 3)
	require.NoError(t, err)
	defer done3()
	_, ok = tr.Latest()
	assert.False(t, ok, "generation 2 is not handed out once 3 is requested")
}

func TestTracker_SameGenerationPassesRunSideBySide(t *testing.T) {
	tr := NewTracker()
	ctx1, done1, err := tr.Begin(context.Background(), 4)
	require.NoError(t, err)
	ctx2, done2, err := tr.Begin(context.Background(), 4)
	require.NoError(t, err)

	assert.NoError(t, ctx1.Err(), "a second pass over an unchanged snapshot does not supersede the first")
	assert.NoError(t, ctx2.Err())

	done1()
	assert.ErrorIs(t, ctx1.Err(), context.Canceled, "done releases the pass context")
	assert.NoError(t, ctx2.Err())

	ctx3, done3, err := tr.Begin(context.Background(), 5)
	require.NoError(t, err)
	defer done3()
	assert.ErrorIs(t, ctx2.Err(), context.Canceled, "a newer generation cancels the remaining pass")
	assert.NoError(t, ctx3.Err())
	done2()
	assert.Len(t, tr.passes, 1)
}

func TestBuild_ConcurrentOnSameSnapshot(t *testing.T) {
	b := newBuilder()
	sn := snap(t, 1, map[string]string{
		"/App.jsx": "import { n } from './lib';\nexport default () => <p>{n}</p>;",
		"/lib.js":  "export const n = 1;",
	})

	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			_, err := b.Build(context.Background(), sn)
			return err
		})
	}
	require.NoError(t, g.Wait(), "no build is reported superseded")
	assert.Empty(t, b.Tracker().passes)
}

func TestBuild_SupersededPassIsDiscarded(t *testing.T) {
	b := newBuilder()
	files := map[string]string{"/App.jsx": "export default () => <p>v</p>;"}
	gen1 := snap(t, 1, files)
	gen2 := snap(t, 2, files)

	_, done, err := b.Tracker().Begin(context.Background(), gen2.Generation)
	require.NoError(t, err)
	done()

	_, err = b.Build(context.Background(), gen1)
	assert.ErrorIs(t, err, ErrStale)
	_, ok := b.Tracker().Latest()
	assert.False(t, ok)

	res, err := b.Build(context.Background(), gen2)
	require.NoError(t, err)
	latest, ok := b.Tracker().Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), latest.Artifact.Generation)
	assert.Equal(t, res, latest)
}

func TestFormatDiagnostics_Empty(t *testing.T) {
	assert.Empty(t, FormatDiagnostics(nil))
}
