// Package derivinggc generates the collector support methods of annotated
// Go struct types.
//
// A type opts in with `@deriving:` doc annotations:
//
//	// @deriving:scan
//	// @deriving:finalize
//	// @shredder(can_deref)
//	type Node struct {
//		Value *Value
//		Next  *Node // @shredder(skip_scan)
//	}
//
// Process runs the requested derives of one type, Generator assembles the
// generated file of a package and Runner drives generation over packages.
package derivinggc

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"strings"

	"github.com/podhmo/derivinggc/annotation"
	"github.com/podhmo/derivinggc/derive"
	"github.com/podhmo/derivinggc/diag"
	"github.com/podhmo/derivinggc/scanner"
)

// DerivingAnnotation is the doc annotation naming the derives of a type.
const DerivingAnnotation = "deriving"

// Derive is a generation request attached to a type.
type Derive int

const (
	// DeriveScan generates the capability markers and Scan.
	DeriveScan Derive = iota
	// DeriveFinalize generates Finalize.
	DeriveFinalize
	// DeriveFinalizeFields generates FinalizeFields.
	DeriveFinalizeFields
)

// String returns the name used in `@deriving:` annotations.
func (d Derive) String() string {
	switch d {
	case DeriveScan:
		return "scan"
	case DeriveFinalize:
		return "finalize"
	case DeriveFinalizeFields:
		return "finalize-fields"
	}
	return fmt.Sprintf("Derive(%d)", int(d))
}

// Title is the name of the derive in messages.
func (d Derive) Title() string {
	switch d {
	case DeriveScan:
		return "Scan"
	case DeriveFinalize:
		return "Finalize"
	case DeriveFinalizeFields:
		return "FinalizeFields"
	}
	return d.String()
}

func (d Derive) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDerive parses a derive name.
func ParseDerive(s string) (Derive, bool) {
	switch s {
	case "scan":
		return DeriveScan, true
	case "finalize":
		return DeriveFinalize, true
	case "finalize-fields":
		return DeriveFinalizeFields, true
	}
	return 0, false
}

// Derives returns the derives requested by t, in annotation order, without
// repetitions. A value may list several derives separated by commas or
// spaces. Names of other generators sharing the annotation are ignored.
func Derives(t *scanner.TypeInfo) []Derive {
	var ds []Derive
	seen := map[Derive]bool{}
	for _, value := range t.Annotations(DerivingAnnotation) {
		for _, name := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			d, ok := ParseDerive(name)
			if !ok || seen[d] {
				continue
			}
			seen[d] = true
			ds = append(ds, d)
		}
	}
	return ds
}

// Result is the outcome of one derive of one type: exactly one of Code and
// Diagnostic is set.
type Result struct {
	Type       string           `json:"type"`
	Derive     Derive           `json:"derive"`
	Code       []byte           `json:"-"`
	Diagnostic *diag.Diagnostic `json:"diagnostic,omitempty"`

	Markers   []derive.MarkerKind `json:"markers,omitempty"`
	Fragments []derive.Fragment   `json:"fragments,omitempty"`
}

// Failed reports whether the derive produced a diagnostic.
func (r Result) Failed() bool { return r.Diagnostic != nil }

// UsesRuntime reports whether Code refers to the collector library.
func (r Result) UsesRuntime() bool {
	return !r.Failed() && (r.Derive == DeriveScan || len(r.Fragments) > 0)
}

// Process runs the requested derives on t and returns one Result per derive,
// in order. Unsupported aggregates are rejected before any flag is read.
// The returned error is reserved for failures that are not diagnostics.
func Process(fset *token.FileSet, t *scanner.TypeInfo, derives []Derive, opts derive.Options) ([]Result, error) {
	results := make([]Result, 0, len(derives))
	if t.Kind != scanner.StructKind || t.Struct == nil {
		for _, d := range derives {
			results = append(results, Result{Type: t.Name, Derive: d, Diagnostic: unsupported(fset, t, d)})
		}
		return results, nil
	}

	dt := DeriveType(fset, t)
	for _, d := range derives {
		r := Result{Type: t.Name, Derive: d}
		var buf bytes.Buffer
		var err error
		switch d {
		case DeriveScan:
			var plan *derive.ScanPlan
			if plan, err = derive.PlanScan(dt, opts); err == nil {
				r.Markers = plan.Markers
				r.Fragments = plan.Fragments()
				err = plan.Render(&buf)
			}
		case DeriveFinalize, DeriveFinalizeFields:
			mode := derive.Finalize
			if d == DeriveFinalizeFields {
				mode = derive.FinalizeFields
			}
			var plan *derive.FinalizePlan
			if plan, err = derive.PlanFinalize(dt, mode, opts); err == nil {
				r.Fragments = plan.Fragments()
				err = plan.Render(&buf)
			}
		default:
			return nil, fmt.Errorf("unknown derive %v", d)
		}
		if err != nil {
			var dg *diag.Diagnostic
			if !errors.As(err, &dg) {
				return nil, fmt.Errorf("deriving %s for %s: %w", d, t.Name, err)
			}
			r = Result{Type: t.Name, Derive: d, Diagnostic: dg}
		} else {
			r.Code = buf.Bytes()
		}
		results = append(results, r)
	}
	return results, nil
}

func unsupported(fset *token.FileSet, t *scanner.TypeInfo, d Derive) *diag.Diagnostic {
	pos := t.KeywordPos
	if !pos.IsValid() {
		pos = t.NamePos
	}
	switch t.Kind {
	case scanner.EnumKind:
		return diag.New(fset, pos, diag.UnsupportedAggregate, "the %s derive doesn't support enums", d.Title())
	case scanner.UnionKind:
		return diag.New(fset, pos, diag.UnsupportedAggregate, "the %s derive doesn't support unions", d.Title())
	}
	return diag.New(fset, pos, diag.UnsupportedAggregate, "the %s derive only supports struct types", d.Title())
}

// DeriveType converts a scanned struct into the input of the synthesis
// engine. Annotations are read from the doc and trailing comments of the
// type and of each field.
func DeriveType(fset *token.FileSet, t *scanner.TypeInfo) *derive.Type {
	dt := &derive.Type{
		Name:        t.Name,
		TypeParams:  t.TypeParams,
		Fset:        fset,
		Annotations: annotation.FromComments(t.Comments...),
	}
	if t.Struct == nil {
		return dt
	}
	for _, f := range t.Struct.Fields {
		dt.Fields = append(dt.Fields, derive.Field{
			Name:        f.Name,
			Index:       f.Index,
			Pos:         f.Pos,
			Annotations: annotation.FromComments(f.Comments...),
		})
	}
	return dt
}
