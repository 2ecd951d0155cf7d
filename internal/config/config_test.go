package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/transform"
)

const sample = `
max_steps_live = 40
max_steps_stub = 3
workers        = 2
cdn_base       = "https://cdn.example.com"
jsx_factory    = "h"
jsx_fragment   = "Fragment"
jsx_import     = "preact"
entry_candidates = ["/main.tsx", "/App.tsx"]
log_level      = "debug"
db             = "/var/lib/atelier/project.db"

alias "@/" {
  target = "/src/"
}

alias "~" {
  target = "/"
}
`

func TestParse(t *testing.T) {
	c, err := Parse("atelier.hcl", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, edit.Limits{Live: 40, Stub: 3}, c.Limits())
	assert.Equal(t, []string{"/main.tsx", "/App.tsx"}, c.EntryCandidates)
	assert.Equal(t, "debug", c.LogLevelName())
	assert.Empty(t, c.LogFilePath())

	o := c.TransformOptions()
	assert.Equal(t, 2, o.Workers)
	assert.Equal(t, "https://cdn.example.com", o.CDNBase)
	assert.Equal(t, "h", o.Factory)
	assert.Equal(t, "Fragment", o.Fragment)
	assert.Equal(t, "preact", o.FactoryImport)
	assert.Equal(t, []transform.Alias{{Prefix: "@/", Target: "/src/"}, {Prefix: "~", Target: "/"}}, o.Aliases)
}

func TestDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.hcl"), false)
	require.NoError(t, err)
	assert.Equal(t, edit.DefaultLimits, c.Limits())
	o := c.TransformOptions()
	assert.Empty(t, o.CDNBase, "the engine fills its own defaults")
	assert.Nil(t, o.Aliases)
	assert.Positive(t, o.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "absent.hcl"), true)
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atelier.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`max_steps_live = 0`), 0o644))
	c, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Limits().Live, "zero means unbounded")
	assert.Equal(t, edit.DefaultLimits.Stub, c.Limits().Stub)
}

func TestValidate(t *testing.T) {
	_, err := Parse("atelier.hcl", []byte(`workers = -1`))
	assert.ErrorContains(t, err, "workers")

	_, err = Parse("atelier.hcl", []byte("alias \"@/\" {\n  target = \"src\"\n}\n"))
	assert.ErrorContains(t, err, "absolute")

	_, err = Parse("atelier.hcl", []byte(`unknown_field = 1`))
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDB, "")
	assert.Equal(t, DefaultConfigPath, Path(""))
	assert.Equal(t, "x.hcl", Path("x.hcl"))
	t.Setenv(EnvConfig, "/etc/atelier.hcl")
	assert.Equal(t, "/etc/atelier.hcl", Path(""))

	var c Config
	assert.Equal(t, DefaultDBPath, c.DBPath(""))
	db := "/from/config.db"
	c.DB = &db
	assert.Equal(t, db, c.DBPath(""))
	t.Setenv(EnvDB, "/from/env.db")
	assert.Equal(t, "/from/env.db", c.DBPath(""))
	assert.Equal(t, "flag.db", c.DBPath("flag.db"))
}
