package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	i_fs "io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/podhmo/derivinggc"
	"github.com/podhmo/derivinggc/watch"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		dryRun    bool
		watchMode bool
	)
	cmd := &cobra.Command{
		Use:   "generate [patterns...]",
		Short: "Generate the files of the matched packages",
		Long: `Generate writes one file per package that has annotated types.
A pattern is a directory, a .go file, an import path of the module, or one
of those followed by /... (default: ./...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if dryRun {
				// nothing reaches the disk, so the cache would lie
				cfg.Cache = ""
				root, err := filepath.Abs(a.cwd)
				if err != nil {
					return err
				}
				ctx = context.WithValue(ctx, derivinggc.FileWriterKey, &printWriter{w: a.stdout, root: root})
			}
			runner, err := a.runner(cfg)
			if err != nil {
				return err
			}
			patterns := patternsOrDefault(args)
			err = a.generate(ctx, runner, patterns)
			if !watchMode {
				return err
			}
			if err != nil && !errors.Is(err, errFailed) {
				return err
			}
			return a.watch(ctx, cfg, runner, patterns)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the generated files instead of writing them")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "regenerate when Go files change")
	return cmd
}

func (a *app) generate(ctx context.Context, runner *derivinggc.Runner, patterns []string) error {
	report, err := runner.Run(ctx, patterns, derivinggc.RunOptions{})
	if report == nil {
		return err
	}
	ds := report.Diagnostics()
	a.printDiagnostics(ds)
	if err != nil {
		return err
	}
	var written, cached int
	for _, p := range report.Packages {
		if p.Written {
			written++
		}
		if p.Cached {
			cached++
		}
	}
	a.logger.InfoContext(ctx, "generation summary",
		slog.Int("packages", len(report.Packages)),
		slog.Int("written", written),
		slog.Int("cached", cached),
		slog.Int("diagnostics", len(ds)))
	if len(ds) > 0 {
		return errFailed
	}
	return nil
}

// watch regenerates the changed packages among those matched by patterns
// until interrupted. Patterns are resolved again on every change, so new
// packages below a /... pattern are picked up.
func (a *app) watch(ctx context.Context, cfg *derivinggc.Config, runner *derivinggc.Runner, patterns []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	w, err := watch.New(watch.Config{
		Root:   runner.Locator().RootDir(),
		Ignore: cfg.IsOutput,
		Logger: a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	defer w.Close()
	a.logger.InfoContext(ctx, "watching for changes", slog.String("root", runner.Locator().RootDir()))

	err = w.Run(ctx, func(ctx context.Context, dirs []string) error {
		targets, err := runner.Targets(patterns)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to resolve packages", slog.Any("error", err))
			return nil
		}
		var changed []string
		for _, dir := range dirs {
			if _, found := slices.BinarySearch(targets, dir); found {
				changed = append(changed, dir)
			}
		}
		if len(changed) == 0 {
			return nil
		}
		if err := a.generate(ctx, runner, changed); err != nil && !errors.Is(err, errFailed) {
			a.logger.ErrorContext(ctx, "generation failed", slog.Any("error", err))
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printWriter prints files instead of writing them.
type printWriter struct {
	mu   sync.Mutex
	w    io.Writer
	root string
}

func (p *printWriter) WriteFile(ctx context.Context, path string, data []byte, perm i_fs.FileMode) error {
	name := path
	if rel, err := filepath.Rel(p.root, path); err == nil {
		name = filepath.ToSlash(rel)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(p.w, "// %s\n", name); err != nil {
		return err
	}
	_, err := p.w.Write(data)
	return err
}
