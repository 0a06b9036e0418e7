package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bndr/gotabulate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/podhmo/derivinggc"
)

// inspectRow describes one derive of one type.
type inspectRow struct {
	Package   string   `json:"package" yaml:"package"`
	Type      string   `json:"type" yaml:"type"`
	Derive    string   `json:"derive" yaml:"derive"`
	Markers   []string `json:"markers,omitempty" yaml:"markers,omitempty"`
	Fragments []string `json:"fragments,omitempty" yaml:"fragments,omitempty"`
	Status    string   `json:"status" yaml:"status"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect [patterns...]",
		Short: "Show what would be generated for each annotated type",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("invalid --format %q, must be table, json or yaml", format)
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			runner, err := a.runner(cfg)
			if err != nil {
				return err
			}
			report, err := runner.Run(cmd.Context(), patternsOrDefault(args), derivinggc.RunOptions{Check: true})
			if err != nil {
				return err
			}
			rows := inspectRows(runner.Locator().RootDir(), report)
			return writeRows(a.stdout, format, rows)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table|json|yaml)")
	return cmd
}

func inspectRows(root string, report *derivinggc.Report) []inspectRow {
	rows := []inspectRow{}
	for _, p := range report.Packages {
		pkg := p.ImportPath
		if pkg == "" {
			pkg = p.Dir
			if rel, err := filepath.Rel(root, p.Dir); err == nil {
				pkg = filepath.ToSlash(rel)
			}
		}
		for _, r := range p.Results {
			row := inspectRow{Package: pkg, Type: r.Type, Derive: r.Derive.String(), Status: "ok"}
			for _, m := range r.Markers {
				row.Markers = append(row.Markers, m.Method())
			}
			for _, f := range r.Fragments {
				row.Fragments = append(row.Fragments, f.String())
			}
			if r.Failed() {
				row.Status = r.Diagnostic.Code.String()
				row.Message = r.Diagnostic.Message
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func writeRows(w io.Writer, format string, rows []inspectRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no annotated types")
		return err
	}
	data := make([][]string, len(rows))
	for i, r := range rows {
		status := r.Status
		if r.Message != "" {
			status += " " + r.Message
		}
		data[i] = []string{r.Package, r.Type, r.Derive, strings.Join(r.Markers, " "), strings.Join(r.Fragments, " "), status}
	}
	t := gotabulate.Create(data)
	t.SetHeaders([]string{"package", "type", "derive", "markers", "fragments", "status"})
	t.SetAlign("left")
	_, err := fmt.Fprint(w, t.Render("grid"))
	return err
}
