// Package derive synthesizes the collector support methods of a struct type:
// the GcSafe/GcDeref/GcDrop markers, the Scan traversal routine and the
// Finalize/FinalizeFields routines.
//
// Synthesis is split into planning (flag validation plus the per-field
// fragment table) and rendering (Go source from embedded templates). Both
// are pure: the same Type always yields the same plan and the same bytes.
package derive

import (
	"go/token"
	"strings"

	"github.com/podhmo/derivinggc/annotation"
)

// Type is the view of a struct declaration the engine works on.
// It is filled by the caller from whatever frontend parsed the source.
type Type struct {
	Name       string
	TypeParams []string
	// Fset resolves the positions of Annotations and Fields.
	Fset        *token.FileSet
	Annotations []annotation.Annotation
	Fields      []Field
}

// Expr returns the type as written in a receiver, e.g. "List[T]".
func (t *Type) Expr() string {
	if len(t.TypeParams) == 0 {
		return t.Name
	}
	return t.Name + "[" + strings.Join(t.TypeParams, ", ") + "]"
}

// Field is a struct field in declaration order.
type Field struct {
	// Name is the field name; the type name for embedded fields.
	Name        string
	Index       int
	Pos         token.Pos
	Annotations []annotation.Annotation
}

// Blank reports whether the field is `_`, which cannot be referenced.
func (f Field) Blank() bool { return f.Name == "_" }

// Ref returns the reference used by fragments.
func (f Field) Ref() FieldRef { return FieldRef{Name: f.Name, Index: f.Index} }

// FieldRef identifies the field an instrumentation fragment is bound to.
type FieldRef struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// RuntimeSymbols is the symbol surface of the collector library the
// generated code calls into.
type RuntimeSymbols struct {
	// Package is the import path of the collector library.
	Package string
	// Name is the preferred import name for Package.
	Name string

	Scanner      string
	ScanMethod   string
	CheckGcSafe  string
	CheckGcDeref string
	CheckGcDrop  string
	Finalize     string
}

// DefaultRuntimePackage is the import path used when none is configured.
const DefaultRuntimePackage = "github.com/podhmo/shredder"

// DefaultRuntime returns the default symbol surface.
func DefaultRuntime() RuntimeSymbols {
	return RuntimeSymbols{
		Package:      DefaultRuntimePackage,
		Name:         "shredder",
		Scanner:      "Scanner",
		ScanMethod:   "Scan",
		CheckGcSafe:  "CheckGcSafe",
		CheckGcDeref: "CheckGcDeref",
		CheckGcDrop:  "CheckGcDrop",
		Finalize:     "Finalize",
	}
}

// Options configures planning and rendering.
type Options struct {
	// Namespace is the annotation head carrying flags (annotation.DefaultNamespace if empty).
	Namespace string
	Runtime   RuntimeSymbols
	// Qualifier is the identifier the generated file uses for Runtime.Package.
	// Runtime.Name is used when empty.
	Qualifier string
}

func (o Options) qualifier() string {
	if o.Qualifier != "" {
		return o.Qualifier
	}
	return o.Runtime.withDefaults().Name
}
