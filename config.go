package derivinggc

import (
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/podhmo/derivinggc/annotation"
	"github.com/podhmo/derivinggc/cache"
	"github.com/podhmo/derivinggc/derive"
	"github.com/podhmo/derivinggc/fs"
)

// ConfigFileName is the name of the configuration file looked up by FindConfig.
const ConfigFileName = "derivinggc.toml"

// DefaultOutput is the default name of the generated file; "{package}" is
// replaced by the lower-cased package name.
const DefaultOutput = "{package}_deriving_gc.go"

// Config holds the generation settings and the components shared by the
// scanner, the generator and the runner.
type Config struct {
	// Namespace is the annotation head carrying shredder flags.
	Namespace string `toml:"namespace"`
	// RuntimePackage is the import path of the collector library.
	RuntimePackage string `toml:"runtime_package"`
	// RuntimeName is the preferred import name of RuntimePackage.
	RuntimeName string `toml:"runtime_name"`
	// Output is the name of the generated file of each package.
	Output string `toml:"output"`
	// Exclude lists doublestar patterns of directories, relative to the
	// module root, that are never generated.
	Exclude []string `toml:"exclude"`
	// Jobs bounds the number of packages processed concurrently; 0 means one
	// per CPU.
	Jobs int `toml:"jobs"`
	// Cache is the digest cache file, relative to the module root. Empty
	// disables caching.
	Cache string `toml:"cache"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`

	// Logger is the shared logger for all components.
	Logger *slog.Logger `toml:"-"`

	// Overlay provides in-memory file contents, allowing editors to generate
	// from unsaved buffers.
	Overlay fs.Overlay `toml:"-"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Namespace:      annotation.DefaultNamespace,
		RuntimePackage: derive.DefaultRuntimePackage,
		Output:         DefaultOutput,
		Cache:          filepath.Join(cache.DefaultDirName, cache.DefaultFileName),
	}
}

// FindConfig looks for ConfigFileName in startDir and its parents.
func FindConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadConfig decodes the file at path on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DiscoverConfig loads the configuration file found from startDir, or
// returns DefaultConfig when there is none.
func DiscoverConfig(startDir string) (*Config, error) {
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !token.IsIdentifier(c.Namespace) {
		return fmt.Errorf("namespace %q is not an identifier", c.Namespace)
	}
	if c.RuntimeName != "" && !token.IsIdentifier(c.RuntimeName) {
		return fmt.Errorf("runtime_name %q is not an identifier", c.RuntimeName)
	}
	if c.RuntimePackage == "" {
		return errors.New("runtime_package must not be empty")
	}
	if !strings.HasSuffix(c.Output, ".go") || strings.HasSuffix(c.Output, "_test.go") || strings.ContainsAny(c.Output, `/\`) {
		return fmt.Errorf("output %q must be a non-test .go file name", c.Output)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}

// OutputName returns the generated file name for a package.
func (c *Config) OutputName(pkgName string) string {
	return strings.ReplaceAll(c.Output, "{package}", strings.ToLower(pkgName))
}

// IsOutput reports whether name could be a file generated with this
// configuration, whatever the package name.
func (c *Config) IsOutput(name string) bool {
	prefix, suffix, found := strings.Cut(c.Output, "{package}")
	if !found {
		return name == c.Output
	}
	return len(name) >= len(prefix)+len(suffix) && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
}

// Excluded reports whether the directory rel, relative to the module root,
// matches an exclude pattern.
func (c *Config) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Runtime returns the symbol surface of the configured collector library.
func (c *Config) Runtime() derive.RuntimeSymbols {
	rt := derive.DefaultRuntime()
	if c.RuntimePackage != "" && c.RuntimePackage != rt.Package {
		rt.Package = c.RuntimePackage
		rt.Name = defaultAlias(c.RuntimePackage)
	}
	if c.RuntimeName != "" {
		rt.Name = c.RuntimeName
	}
	return rt
}

// DeriveOptions returns the options of the synthesis engine. The qualifier
// is chosen per file by the generator.
func (c *Config) DeriveOptions() derive.Options {
	return derive.Options{Namespace: c.Namespace, Runtime: c.Runtime()}
}

// Settings returns the settings that change the generated code, as
// key=value strings for the digest cache.
func (c *Config) Settings() []string {
	rt := c.Runtime()
	return []string{
		"namespace=" + c.Namespace,
		"runtime_package=" + rt.Package,
		"runtime_name=" + rt.Name,
		"output=" + c.Output,
		"version=" + strconv.Itoa(generatorVersion),
	}
}

// FS returns the file system seen by the scanner, with the overlay applied.
func (c *Config) FS() fs.FS {
	return fs.WithOverlay(fs.NewOSFS(), c.Overlay)
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
