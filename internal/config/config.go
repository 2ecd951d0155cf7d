// Package config loads atelier.hcl.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/atelier/internal/edit"
	"github.com/agentic-research/atelier/internal/transform"
)

const (
	// EnvConfig names the config file when --config is not given.
	EnvConfig = "ATELIER_CONFIG"
	// EnvDB names the persistence database when --db is not given.
	EnvDB = "ATELIER_DB"

	DefaultConfigPath = "atelier.hcl"
	DefaultDBPath     = "atelier.db"
)

// Alias is an import prefix rewrite, e.g. alias "@/" { target = "/" }.
type Alias struct {
	Prefix string `hcl:"prefix,label"`
	Target string `hcl:"target"`
}

// Config is the file format. Every attribute is optional.
type Config struct {
	MaxStepsLive    *int     `hcl:"max_steps_live"`
	MaxStepsStub    *int     `hcl:"max_steps_stub"`
	Workers         *int     `hcl:"workers"`
	CDNBase         *string  `hcl:"cdn_base"`
	JSXFactory      *string  `hcl:"jsx_factory"`
	JSXFragment     *string  `hcl:"jsx_fragment"`
	JSXImport       *string  `hcl:"jsx_import"`
	EntryCandidates []string `hcl:"entry_candidates,optional"`
	LogLevel        *string  `hcl:"log_level"`
	LogFile         *string  `hcl:"log_file"`
	DB              *string  `hcl:"db"`
	Aliases         []Alias  `hcl:"alias,block"`
}

// Path returns the config file to load: flag, then $ATELIER_CONFIG, then
// the default.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultConfigPath
}

// DBPath returns the database path: flag, then $ATELIER_DB, then the config
// file, then the default.
func (c *Config) DBPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvDB); env != "" {
		return env
	}
	if c.DB != nil && *c.DB != "" {
		return *c.DB
	}
	return DefaultDBPath
}

// Load reads path. A missing file yields the defaults unless required.
func Load(path string, required bool) (*Config, error) {
	var c Config
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !required {
		return &c, nil
	}
	if err := hclsimple.DecodeFile(path, nil, &c); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &c, nil
}

// Parse decodes HCL source; filename is used in error messages and must end
// in .hcl.
func Parse(filename string, src []byte) (*Config, error) {
	var c Config
	if err := hclsimple.Decode(filename, src, nil, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	for name, v := range map[string]*int{
		"max_steps_live": c.MaxStepsLive,
		"max_steps_stub": c.MaxStepsStub,
		"workers":        c.Workers,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for _, a := range c.Aliases {
		if a.Prefix == "" || a.Target == "" || a.Target[0] != '/' {
			return fmt.Errorf("alias %q: target must be an absolute store path", a.Prefix)
		}
	}
	return nil
}

// Limits returns the session step budgets.
func (c *Config) Limits() edit.Limits {
	l := edit.DefaultLimits
	if c.MaxStepsLive != nil {
		l.Live = *c.MaxStepsLive
	}
	if c.MaxStepsStub != nil {
		l.Stub = *c.MaxStepsStub
	}
	return l
}

// TransformOptions returns the engine options; the logger is left to the
// caller.
func (c *Config) TransformOptions() transform.Options {
	o := transform.Options{Workers: runtime.GOMAXPROCS(0)}
	if c.Workers != nil && *c.Workers > 0 {
		o.Workers = *c.Workers
	}
	if c.CDNBase != nil {
		o.CDNBase = *c.CDNBase
	}
	if c.JSXFactory != nil {
		o.Factory = *c.JSXFactory
	}
	if c.JSXFragment != nil {
		o.Fragment = *c.JSXFragment
	}
	if c.JSXImport != nil {
		o.FactoryImport = *c.JSXImport
	}
	for _, a := range c.Aliases {
		o.Aliases = append(o.Aliases, transform.Alias{Prefix: a.Prefix, Target: a.Target})
	}
	return o
}

// LogLevelName returns the configured level, or "" for the default.
func (c *Config) LogLevelName() string {
	if c.LogLevel == nil {
		return ""
	}
	return *c.LogLevel
}

// LogFilePath returns the configured JSON log file, or "".
func (c *Config) LogFilePath() string {
	if c.LogFile == nil {
		return ""
	}
	return *c.LogFile
}
