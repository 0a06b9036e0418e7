// Package scantest runs derivinggc over fixtures written to a temporary
// directory and captures the generated files in memory.
package scantest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/podhmo/derivinggc"
)

// memoryFileWriter is an in-memory implementation of derivinggc.FileWriter for testing.
type memoryFileWriter struct {
	mu      sync.Mutex
	root    string
	Outputs map[string][]byte
}

// WriteFile captures the output in memory instead of writing to disk.
// Outputs are keyed by slash separated paths relative to the fixture root.
func (w *memoryFileWriter) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Outputs == nil {
		w.Outputs = make(map[string][]byte)
	}
	key := path
	if rel, err := filepath.Rel(w.root, path); err == nil {
		key = filepath.ToSlash(rel)
	}
	w.Outputs[key] = data
	return nil
}

// Result holds the outcome of a Run.
type Result struct {
	// Outputs contains the content of the generated files, keyed by their
	// path relative to the fixture directory.
	Outputs map[string][]byte
	Report  *derivinggc.Report
}

// Run generates the packages matched by patterns in dir without touching the
// disk. The cache is disabled; configure adjusts the configuration before
// the run.
func Run(t *testing.T, dir string, patterns []string, configure ...func(*derivinggc.Config)) (*Result, error) {
	t.Helper()
	cfg := derivinggc.DefaultConfig()
	cfg.Cache = ""
	for _, f := range configure {
		f(cfg)
	}
	runner, err := derivinggc.NewRunner(cfg, dir)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	writer := &memoryFileWriter{root: root}
	ctx := context.WithValue(context.Background(), derivinggc.FileWriterKey, writer)

	report, err := runner.Run(ctx, patterns, derivinggc.RunOptions{})
	result := &Result{Outputs: writer.Outputs, Report: report}
	if result.Outputs == nil {
		result.Outputs = map[string][]byte{}
	}
	return result, err
}

// WriteFiles creates a temporary directory and populates it with initial files.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll(%q): %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile(%q): %v", path, err)
		}
	}
	return dir
}
