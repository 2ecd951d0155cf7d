package vfs

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/src"))
	require.NoError(t, s.Create("/src/App.tsx", "export default () => null"))
	require.NoError(t, s.Mkdir("/assets"))
	require.NoError(t, s.Create("/index.css", "body{}"))

	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("project", 0o755))
	chroot, err := fs.Chroot("project")
	require.NoError(t, err)
	require.NoError(t, Export(s, chroot))

	data, err := util.ReadFile(fs, "project/src/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, "export default () => null", string(data))

	require.NoError(t, util.WriteFile(fs, "project/.hidden", []byte("x"), 0o644))

	back, err := Import(fs, "project")
	require.NoError(t, err)
	content, err := back.ReadFile("/src/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, "export default () => null", content)
	assert.True(t, back.Exists("/assets"))
	assert.False(t, back.Exists("/.hidden"))
}
