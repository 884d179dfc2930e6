// Package config implements the layered configuration lookup: built-in
// defaults, overlaid by the pyproject.toml [tool.raiseattention] tables,
// overlaid by .raiseattention.toml, overlaid by CLI flags. Each layer is
// a partial mapping; the effective config is the right-biased overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// Config is the effective, fully resolved configuration.
type Config struct {
	// LocalOnly skips external-module analysis entirely; native and
	// external callees contribute nothing.
	LocalOnly bool

	// WarnNative controls whether unresolved native callees contribute
	// PossibleNativeException.
	WarnNative bool

	// StrictMode additionally reports functions whose may-raise set
	// contains classes missing from their docstring.
	StrictMode bool

	// IgnoreExceptions are class names never reported.
	IgnoreExceptions []string

	// IgnoreModules are glob patterns of module paths whose calls are
	// not analysed.
	IgnoreModules []string

	// IgnoreInclude forces built-in call suppression for these names;
	// IgnoreExclude disables suppression and takes precedence.
	IgnoreInclude []string
	IgnoreExclude []string

	// Exclude are glob patterns of file paths skipped during discovery.
	Exclude []string

	// SuppressWhen are boolean filter expressions evaluated against each
	// diagnostic; any true expression suppresses it.
	SuppressWhen []string

	Cache CacheConfig

	// StubDir overrides the stub database directory.
	StubDir string
}

// CacheConfig holds the cache knobs.
type CacheConfig struct {
	Enabled        bool
	MaxFileEntries int
	TTLHours       int

	// Dir is the on-disk cache directory; empty selects the default
	// under the user cache dir.
	Dir string
}

// Layer is one partial configuration source. Nil fields inherit from the
// layer below.
type Layer struct {
	LocalOnly        *bool     `toml:"local_only"`
	WarnNative       *bool     `toml:"warn_native"`
	StrictMode       *bool     `toml:"strict_mode"`
	IgnoreExceptions *[]string `toml:"ignore_exceptions"`
	IgnoreModules    *[]string `toml:"ignore_modules"`
	IgnoreInclude    *[]string `toml:"ignore_include"`
	IgnoreExclude    *[]string `toml:"ignore_exclude"`
	Exclude          *[]string `toml:"exclude"`
	SuppressWhen     *[]string `toml:"suppress_when"`
	StubDir          *string   `toml:"stub_dir"`
	Cache            *CacheLayer `toml:"cache"`
}

// CacheLayer is the partial cache table.
type CacheLayer struct {
	Enabled        *bool `toml:"enabled"`
	MaxFileEntries *int  `toml:"max_file_entries"`
	TTLHours       *int  `toml:"ttl_hours"`
	Dir            *string `toml:"dir"`
}

// Defaults returns the built-in bottom layer.
func Defaults() Config {
	return Config{
		WarnNative: true,
		Cache: CacheConfig{
			Enabled:        true,
			MaxFileEntries: 4096,
			TTLHours:       24 * 7,
		},
	}
}

// Apply overlays a layer onto the config, right-biased.
func (c *Config) Apply(l Layer) {
	if l.LocalOnly != nil {
		c.LocalOnly = *l.LocalOnly
	}
	if l.WarnNative != nil {
		c.WarnNative = *l.WarnNative
	}
	if l.StrictMode != nil {
		c.StrictMode = *l.StrictMode
	}
	if l.IgnoreExceptions != nil {
		c.IgnoreExceptions = *l.IgnoreExceptions
	}
	if l.IgnoreModules != nil {
		c.IgnoreModules = *l.IgnoreModules
	}
	if l.IgnoreInclude != nil {
		c.IgnoreInclude = *l.IgnoreInclude
	}
	if l.IgnoreExclude != nil {
		c.IgnoreExclude = *l.IgnoreExclude
	}
	if l.Exclude != nil {
		c.Exclude = *l.Exclude
	}
	if l.SuppressWhen != nil {
		c.SuppressWhen = *l.SuppressWhen
	}
	if l.StubDir != nil {
		c.StubDir = *l.StubDir
	}
	if l.Cache != nil {
		if l.Cache.Enabled != nil {
			c.Cache.Enabled = *l.Cache.Enabled
		}
		if l.Cache.MaxFileEntries != nil {
			c.Cache.MaxFileEntries = *l.Cache.MaxFileEntries
		}
		if l.Cache.TTLHours != nil {
			c.Cache.TTLHours = *l.Cache.TTLHours
		}
		if l.Cache.Dir != nil {
			c.Cache.Dir = *l.Cache.Dir
		}
	}
}

// pyprojectFile mirrors the slice of pyproject.toml this tool reads.
type pyprojectFile struct {
	Tool struct {
		RaiseAttention struct {
			Layer
			Analysis Layer `toml:"analysis"`
		} `toml:"raiseattention"`
	} `toml:"tool"`
}

// Load resolves the effective configuration for a project root, bottom
// layer first: defaults, pyproject.toml tables, .raiseattention.toml.
// CLI flags are applied by the caller as the topmost layer.
func Load(projectRoot string) (Config, error) {
	cfg := Defaults()

	pyproject := filepath.Join(projectRoot, "pyproject.toml")
	if data, err := os.ReadFile(pyproject); err == nil {
		var file pyprojectFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", pyproject, err)
		}
		cfg.Apply(file.Tool.RaiseAttention.Layer)
		cfg.Apply(file.Tool.RaiseAttention.Analysis)
	}

	local := filepath.Join(projectRoot, ".raiseattention.toml")
	if data, err := os.ReadFile(local); err == nil {
		var layer Layer
		if err := toml.Unmarshal(data, &layer); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", local, err)
		}
		cfg.Apply(layer)
	}

	return cfg, nil
}

// DefaultCacheDir returns the per-user cache directory, a fixed
// "raiseattention" folder under the user cache dir shared by all
// projects, so `cache status` can find it without configuration.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "raiseattention"), nil
}

// ExcludesPath reports whether path matches any exclude glob. Patterns
// match against both the full path and its base name, slash-normalised.
func (c *Config) ExcludesPath(path string) bool {
	norm := filepath.ToSlash(path)
	for _, pattern := range c.Exclude {
		if ok, err := doublestar.Match(pattern, norm); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, filepath.Base(norm)); err == nil && ok {
			return true
		}
	}
	return false
}

// IgnoresModule reports whether a dotted module path matches any
// ignore_modules glob.
func (c *Config) IgnoresModule(module string) bool {
	for _, pattern := range c.IgnoreModules {
		if ok, err := doublestar.Match(pattern, module); err == nil && ok {
			return true
		}
	}
	return false
}

// IgnoresException reports whether the class name (or its short form)
// is configured as never reported.
func (c *Config) IgnoresException(name string) bool {
	short := shortName(name)
	for _, ignored := range c.IgnoreExceptions {
		if ignored == name || shortName(ignored) == short {
			return true
		}
	}
	return false
}

func shortName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
