package derivinggc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	i_fs "io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/podhmo/derivinggc/cache"
	"github.com/podhmo/derivinggc/diag"
	"github.com/podhmo/derivinggc/fs"
	"github.com/podhmo/derivinggc/locator"
	"github.com/podhmo/derivinggc/scanner"
)

// RunOptions controls a Run.
type RunOptions struct {
	// Check generates without writing, and reports packages whose file on
	// disk differs from what would be generated. The cache is not consulted.
	Check bool
}

// PackageReport is the outcome of one package.
type PackageReport struct {
	Dir        string
	ImportPath string
	// Output is the path of the generated file, empty when the package
	// requests no derive.
	Output string
	// Cached is set when the package was skipped because its inputs did not
	// change since the last run.
	Cached  bool
	Written bool
	// Stale is set in check mode when the generated file is missing or out
	// of date.
	Stale       bool
	Results     []Result
	Diagnostics []*diag.Diagnostic
	Err         error
}

// Report is the outcome of a Run, with packages in resolution order.
type Report struct {
	Packages []*PackageReport
}

// Diagnostics returns the diagnostics of every package, sorted by location.
func (r *Report) Diagnostics() []*diag.Diagnostic {
	var ds []*diag.Diagnostic
	for _, p := range r.Packages {
		ds = append(ds, p.Diagnostics...)
	}
	diag.Sort(ds)
	return ds
}

// Stale returns the packages reported as stale.
func (r *Report) Stale() []*PackageReport {
	var ps []*PackageReport
	for _, p := range r.Packages {
		if p.Stale {
			ps = append(ps, p)
		}
	}
	return ps
}

// Runner drives generation over the packages of a module.
type Runner struct {
	cfg       *Config
	workDir   string
	fs        fs.FS
	locator   *locator.Locator
	scanner   *scanner.Scanner
	generator *Generator
	digests   *cache.Digests
}

// NewRunner creates a Runner for the module containing workDir.
func NewRunner(cfg *Config, workDir string) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", workDir, err)
	}
	fsys := cfg.FS()
	l, err := locator.New(absDir, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to locate module: %w", err)
	}
	logger := cfg.logger()
	return &Runner{
		cfg:     cfg,
		workDir: absDir,
		fs:      fsys,
		locator: l,
		scanner: scanner.New(
			scanner.WithFS(fsys),
			scanner.WithLocator(l),
			scanner.WithSkipFile(cfg.IsOutput),
			scanner.WithLogger(logger),
		),
		generator: NewGenerator(cfg),
		digests:   cache.NewDigests(l.RootDir(), cfg.Cache, logger),
	}, nil
}

// Locator returns the locator of the module.
func (r *Runner) Locator() *locator.Locator { return r.locator }

// Resolve turns patterns into package directories, without duplicates.
// A pattern is a directory, a .go file, an import path of the module, or
// one of those followed by "/..." to include every package below it.
// Exclude patterns apply to directories found through "/...".
func (r *Runner) Resolve(patterns []string) ([]string, error) {
	var dirs []string
	seen := map[string]bool{}
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, pattern := range patterns {
		if base, ok := strings.CutSuffix(pattern, "/..."); ok || pattern == "..." {
			if !ok {
				base = "."
			}
			dir, err := r.resolveOne(base)
			if err != nil {
				return nil, err
			}
			found, err := r.walk(dir)
			if err != nil {
				return nil, err
			}
			for _, d := range found {
				add(d)
			}
			continue
		}
		dir, err := r.resolveOne(pattern)
		if err != nil {
			return nil, err
		}
		add(dir)
	}
	return dirs, nil
}

func (r *Runner) resolveOne(pattern string) (string, error) {
	candidate := pattern
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.workDir, candidate)
	}
	if stat, err := r.fs.Stat(candidate); err == nil {
		if stat.IsDir() {
			return candidate, nil
		}
		if strings.HasSuffix(candidate, ".go") {
			return filepath.Dir(candidate), nil
		}
		return "", fmt.Errorf("%s is neither a directory nor a .go file", pattern)
	}
	if strings.HasPrefix(pattern, ".") || filepath.IsAbs(pattern) {
		return "", fmt.Errorf("directory %s does not exist", pattern)
	}
	return r.locator.FindPackageDir(pattern)
}

func (r *Runner) walk(root string) ([]string, error) {
	var dirs []string
	err := r.fs.WalkDir(root, func(path string, d i_fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor" {
				return filepath.SkipDir
			}
			// nested modules are not part of this one
			if _, err := r.fs.Stat(filepath.Join(path, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}
		if rel, err := filepath.Rel(r.locator.RootDir(), path); err == nil && rel != "." && r.cfg.Excluded(rel) {
			r.cfg.logger().Debug("excluded directory", slog.String("dir", rel))
			return filepath.SkipDir
		}
		files, err := r.scanner.ListFiles(path)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return dirs, nil
}

// Run generates the packages matched by patterns. Packages are processed
// concurrently; a failing package does not stop the others, and all
// failures are combined into the returned error. Diagnostics are not errors:
// they are returned in the report and embedded in the generated files.
func (r *Runner) Run(ctx context.Context, patterns []string, opts RunOptions) (*Report, error) {
	dirs, err := r.Resolve(patterns)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, errors.New("no packages matched")
	}
	if !opts.Check {
		if err := r.digests.Load(); err != nil {
			return nil, err
		}
	}

	jobs := r.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	report := &Report{Packages: make([]*PackageReport, len(dirs))}
	var g errgroup.Group
	g.SetLimit(min(jobs, len(dirs)))
	for i, dir := range dirs {
		g.Go(func() error {
			report.Packages[i] = r.runPackage(ctx, dir, opts)
			return nil
		})
	}
	_ = g.Wait() // per-package errors are kept in the report

	for _, p := range report.Packages {
		if p.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", p.Dir, p.Err))
		}
	}
	if !opts.Check {
		if saveErr := r.digests.Save(); saveErr != nil {
			err = multierr.Append(err, saveErr)
		}
	}
	return report, err
}

func (r *Runner) runPackage(ctx context.Context, dir string, opts RunOptions) *PackageReport {
	logger := r.cfg.logger()
	rep := &PackageReport{Dir: dir}
	if err := ctx.Err(); err != nil {
		rep.Err = err
		return rep
	}

	files, err := r.scanner.ListFiles(dir)
	if err != nil {
		rep.Err = err
		return rep
	}
	if len(files) == 0 {
		rep.Err = fmt.Errorf("no buildable Go source files in %s", dir)
		return rep
	}
	digest, err := cache.Sum(r.fs, files, r.cfg.Settings()...)
	if err != nil {
		rep.Err = err
		return rep
	}
	if !opts.Check && r.digests.Fresh(r.fs, dir, digest) {
		if e, ok := r.digests.Get(dir); ok && e.Output != "" {
			rep.Output = filepath.Join(r.locator.RootDir(), filepath.FromSlash(e.Output))
		}
		rep.Cached = true
		logger.DebugContext(ctx, "package is up to date", slog.String("dir", dir))
		return rep
	}

	pkg, err := r.scanner.ScanFiles(ctx, dir, files)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.ImportPath = pkg.ImportPath
	out, err := r.generator.Generate(ctx, pkg)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Results = out.Results
	rep.Diagnostics = out.Diagnostics

	if out.File == nil {
		if !opts.Check {
			r.digests.Set(dir, cache.Entry{Digest: digest})
		}
		return rep
	}
	output := filepath.Join(pkg.Path, out.Filename)
	rep.Output = output

	if opts.Check {
		content, err := out.File.Format(output)
		if err != nil {
			rep.Err = err
			return rep
		}
		existing, err := r.fs.ReadFile(output)
		rep.Stale = err != nil || !bytes.Equal(existing, content)
		return rep
	}

	if _, err := NewPackageDirectory(pkg.Path, pkg.Name).SaveGoFile(ctx, *out.File, out.Filename); err != nil {
		rep.Err = err
		return rep
	}
	rep.Written = true
	rel, err := filepath.Rel(r.locator.RootDir(), output)
	if err != nil {
		rel = output
	}
	r.digests.Set(dir, cache.Entry{
		Digest: digest,
		Output: filepath.ToSlash(rel),
		Broken: len(rep.Diagnostics) > 0,
	})
	logger.InfoContext(ctx, "generated", slog.String("package", pkg.ImportPath), slog.String("output", rel), slog.Int("diagnostics", len(rep.Diagnostics)))
	return rep
}

// Targets returns the directories whose changes can affect the packages
// matched by patterns, sorted. It is used to decide what to watch.
func (r *Runner) Targets(patterns []string) ([]string, error) {
	dirs, err := r.Resolve(patterns)
	if err != nil {
		return nil, err
	}
	dirs = slices.Clone(dirs)
	slices.Sort(dirs)
	return dirs, nil
}
