package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fatih/color"
)

// MarkerPrefix is prepended to every message embedded in an error marker.
const MarkerPrefix = "derivinggc: "

// Marker renders d as a top-level Go declaration that is valid syntax but
// fails type checking. A /*line*/ directive in front of the string literal
// makes the compiler report the failure at the location recorded in d, so
// the generated file behaves like an inline compile error.
//
// The directive stays in effect for the rest of the file; GoFile.Format
// restores the positions of the generated file after each marker.
func Marker(d *Diagnostic) []byte {
	msg := strconv.Quote(MarkerPrefix + d.Message)
	if !d.Pos.IsValid() {
		return fmt.Appendf(nil, "var _ int = %s\n", msg)
	}
	// the directive names the blank that gofmt keeps before the literal
	return fmt.Appendf(nil, "var _ int = /*line %s:%d:%d*/ %s\n", filepath.Base(d.Pos.Filename), d.Pos.Line, max(d.Pos.Column-1, 1), msg)
}

// PrettyOptions controls Pretty.
type PrettyOptions struct {
	Color bool
	// RelativeTo trims this directory from file names when non-empty.
	RelativeTo string
}

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	posLabel   = color.New(color.Bold)
	codeLabel  = color.New(color.FgYellow)
)

// Pretty writes one line per diagnostic:
//
//	path:line:col: error[E201]: duplicate shredder flag skip_scan
func Pretty(w io.Writer, ds []*Diagnostic, opts PrettyOptions) error {
	for _, d := range ds {
		pos := d.Pos
		if opts.RelativeTo != "" && pos.Filename != "" {
			if rel, err := filepath.Rel(opts.RelativeTo, pos.Filename); err == nil {
				pos.Filename = rel
			}
		}
		loc := "<unknown>"
		if pos.IsValid() {
			loc = pos.String()
		}
		label, code := "error", "["+d.Code.String()+"]"
		if opts.Color {
			loc = posLabel.Sprint(loc)
			label = errorLabel.Sprint(label)
			code = codeLabel.Sprint(code)
		}
		if _, err := fmt.Fprintf(w, "%s: %s%s: %s\n", loc, label, code, d.Message); err != nil {
			return err
		}
	}
	return nil
}

// JSON writes the diagnostics as an indented JSON array.
func JSON(w io.Writer, ds []*Diagnostic) error {
	if ds == nil {
		ds = []*Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}

// Sort orders diagnostics by file, line and column.
func Sort(ds []*Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].Pos, ds[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Dedup drops diagnostics identical to an earlier one, keeping order.
// Several derives on the same type validate the same type-level flags and
// would otherwise report the same problem more than once.
func Dedup(ds []*Diagnostic) []*Diagnostic {
	type key struct {
		code Code
		msg  string
		pos  string
	}
	seen := make(map[key]bool, len(ds))
	out := ds[:0:0]
	for _, d := range ds {
		k := key{d.Code, d.Message, d.Pos.String()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
