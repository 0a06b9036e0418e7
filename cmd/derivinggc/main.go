// Command derivinggc generates collector support methods for annotated Go
// struct types.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/podhmo/derivinggc"
	"github.com/podhmo/derivinggc/diag"
)

// errFailed reports a failure whose details were already printed.
var errFailed = errors.New("derivinggc failed")

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	cwd        string
	configPath string
	color      string
	logLevel   string
	noCache    bool
	jobs       int

	level  *slog.LevelVar
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, level: new(slog.LevelVar)}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: a.level}))

	root := &cobra.Command{
		Use:           "derivinggc",
		Short:         "Generate collector support methods for Go struct types",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cwd, "cwd", ".", "working directory")
	flags.StringVar(&a.configPath, "config", "", "configuration file (default: derivinggc.toml found from the working directory)")
	flags.StringVar(&a.color, "color", "auto", "colorize output (auto|on|off)")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flags.BoolVar(&a.noCache, "no-cache", false, "regenerate every package")
	flags.IntVar(&a.jobs, "jobs", 0, "packages processed in parallel (0: configuration or GOMAXPROCS)")

	root.AddCommand(
		newGenerateCmd(a),
		newCheckCmd(a),
		newInspectCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.level.Set(level)

	switch a.color {
	case "auto":
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q, must be auto, on or off", a.color)
	}
	return nil
}

// config loads the configuration and applies the command line overrides.
func (a *app) config() (*derivinggc.Config, error) {
	var (
		cfg *derivinggc.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = derivinggc.LoadConfig(a.configPath)
	} else {
		cfg, err = derivinggc.DiscoverConfig(a.cwd)
	}
	if err != nil {
		return nil, err
	}
	if a.noCache {
		cfg.Cache = ""
	}
	if a.jobs > 0 {
		cfg.Jobs = a.jobs
	}
	cfg.Logger = a.logger
	if cfg.Path != "" {
		a.logger.Debug("configuration loaded", slog.String("path", cfg.Path))
	}
	return cfg, nil
}

func (a *app) runner(cfg *derivinggc.Config) (*derivinggc.Runner, error) {
	return derivinggc.NewRunner(cfg, a.cwd)
}

func (a *app) printDiagnostics(ds []*diag.Diagnostic) {
	if len(ds) == 0 {
		return
	}
	relativeTo, err := filepath.Abs(a.cwd)
	if err != nil {
		relativeTo = ""
	}
	if err := diag.Pretty(a.stderr, ds, diag.PrettyOptions{Color: !color.NoColor, RelativeTo: relativeTo}); err != nil {
		a.logger.Error("failed to print diagnostics", slog.Any("error", err))
	}
}

func patternsOrDefault(args []string) []string {
	if len(args) == 0 {
		return []string{"./..."}
	}
	return args
}
