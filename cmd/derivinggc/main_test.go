package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/podhmo/derivinggc/cache"
	"github.com/podhmo/derivinggc/scantest"
)

const nodeSource = `package models

// @deriving:scan
// @shredder(cant_drop)
type Node struct {
	Next *Node
}
`

func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--cwd", dir, "--color", "off"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func module(t *testing.T, files map[string]string) string {
	t.Helper()
	all := map[string]string{"go.mod": "module example.com/m\n"}
	for name, content := range files {
		all[name] = content
	}
	return scantest.WriteFiles(t, all)
}

func TestGenerate(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": nodeSource})

	_, stderr, err := execute(t, dir, "generate")
	require.NoError(t, err, stderr)

	content, err := os.ReadFile(filepath.Join(dir, "models", "models_deriving_gc.go"))
	require.NoError(t, err)
	require.Contains(t, string(content), "func (v *Node) Scan(scanner *shredder.Scanner) {")
	require.FileExists(t, filepath.Join(dir, cache.DefaultDirName, cache.DefaultFileName))

	_, stderr, err = execute(t, dir, "generate", "./models")
	require.NoError(t, err)
	require.Contains(t, stderr, "cached=1")
}

func TestGenerate_NoCache(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": nodeSource})

	_, stderr, err := execute(t, dir, "--no-cache", "--jobs", "2", "generate", "./...")
	require.NoError(t, err, stderr)
	require.FileExists(t, filepath.Join(dir, "models", "models_deriving_gc.go"))
	require.NoDirExists(t, filepath.Join(dir, cache.DefaultDirName))
}

func TestGenerate_DryRun(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": nodeSource})

	stdout, stderr, err := execute(t, dir, "generate", "--dry-run")
	require.NoError(t, err, stderr)
	require.Contains(t, stdout, "// models/models_deriving_gc.go\n// Code generated by derivinggc. DO NOT EDIT.\n")
	require.NoFileExists(t, filepath.Join(dir, "models", "models_deriving_gc.go"))
	require.NoDirExists(t, filepath.Join(dir, cache.DefaultDirName))
}

func TestGenerate_Diagnostics(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": `package models

// @deriving:scan
type Node struct {
	Next *Node // @shredder(skip_scan, skip_scan)
}
`})

	_, stderr, err := execute(t, dir, "generate")
	require.ErrorIs(t, err, errFailed)
	require.Contains(t, stderr, "error[E201]: duplicate shredder flag skip_scan")

	content, err := os.ReadFile(filepath.Join(dir, "models", "models_deriving_gc.go"))
	require.NoError(t, err)
	require.Contains(t, string(content), `var _ int = /*line models.go:5:36*/ "derivinggc: duplicate shredder flag skip_scan"`)
}

func TestCheck(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": nodeSource})

	stdout, _, err := execute(t, dir, "check")
	require.ErrorIs(t, err, errFailed)
	require.Equal(t, "models/models_deriving_gc.go: out of date\n", stdout)

	_, _, err = execute(t, dir, "generate")
	require.NoError(t, err)

	stdout, _, err = execute(t, dir, "check", "./...")
	require.NoError(t, err)
	require.Empty(t, stdout)
}

func TestCheck_JSON(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": `package models

// @deriving:scan
type Node struct {
	Next *Node // @shredder(skip_scan, bogus)
}
`})

	stdout, stderr, err := execute(t, dir, "check", "--format", "json")
	require.ErrorIs(t, err, errFailed)
	require.Contains(t, stderr, "models/models_deriving_gc.go: out of date\n")

	var ds []struct {
		Code    int
		Message string
		Pos     struct{ Line, Column int }
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &ds), stdout)
	require.Len(t, ds, 1)
	require.Equal(t, 200, ds[0].Code)
	require.Equal(t, "unknown shredder flag bogus", ds[0].Message)
	require.Equal(t, 5, ds[0].Pos.Line)
	require.Equal(t, 37, ds[0].Pos.Column)
}

func TestInspect(t *testing.T) {
	dir := module(t, map[string]string{
		"models/models.go": nodeSource,
		"broken/broken.go": `package broken

// @deriving:finalize
type Kind int

const KindA Kind = 1
`,
	})

	stdout, stderr, err := execute(t, dir, "inspect", "--format", "json")
	require.NoError(t, err, stderr)
	var rows []inspectRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.ElementsMatch(t, []inspectRow{
		{
			Package:   "example.com/m/models",
			Type:      "Node",
			Derive:    "scan",
			Markers:   []string{"GcSafe"},
			Fragments: []string{"scan(Next)"},
			Status:    "ok",
		},
		{
			Package: "example.com/m/broken",
			Type:    "Kind",
			Derive:  "finalize",
			Status:  "E300",
			Message: "the Finalize derive doesn't support enums",
		},
	}, rows)
	require.NoFileExists(t, filepath.Join(dir, "models", "models_deriving_gc.go"))

	stdout, _, err = execute(t, dir, "inspect", "--format", "yaml", "./models")
	require.NoError(t, err)
	require.Contains(t, stdout, "- package: example.com/m/models\n  type: Node\n  derive: scan\n")

	stdout, _, err = execute(t, dir, "inspect", "./models")
	require.NoError(t, err)
	require.Contains(t, stdout, "Node")
	require.Contains(t, stdout, "scan(Next)")
}

func TestFlagErrors(t *testing.T) {
	dir := module(t, map[string]string{"models/models.go": nodeSource})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"color", []string{"--color", "always", "generate"}, `invalid --color "always"`},
		{"log level", []string{"--log-level", "loud", "generate"}, `invalid --log-level "loud"`},
		{"format", []string{"inspect", "--format", "xml"}, `invalid --format "xml"`},
		{"check format", []string{"check", "--format", "table"}, `invalid --format "table"`},
		{"config", []string{"--config", filepath.Join(dir, "missing.toml"), "generate"}, "missing.toml"},
		{"pattern", []string{"generate", "./nowhere"}, "directory ./nowhere does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, dir, tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigFile(t *testing.T) {
	dir := module(t, map[string]string{
		"derivinggc.toml": "namespace = \"gc\"\noutput = \"zz_gc.go\"\ncache = \"\"\n",
		"models/models.go": `package models

// @deriving:scan
// @gc(cant_drop)
type Node struct {
	Next *Node // @gc(skip_scan)
}
`,
	})

	_, stderr, err := execute(t, filepath.Join(dir, "models"), "generate", ".")
	require.NoError(t, err, stderr)
	content, err := os.ReadFile(filepath.Join(dir, "models", "zz_gc.go"))
	require.NoError(t, err)
	require.Contains(t, string(content), "shredder.CheckGcSafe(&v.Next)")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	require.Regexp(t, `^derivinggc \S+\n$`, stdout)
}
