package derivinggc_test

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/derivinggc"
	"github.com/podhmo/derivinggc/derive"
	"github.com/podhmo/derivinggc/diag"
	"github.com/podhmo/derivinggc/scantest"
)

func TestGenerate(t *testing.T) {
	dir := scantest.WriteFiles(t, map[string]string{
		"go.mod": "module example.com/m\n\ngo 1.22\n",
		"models/models.go": `package models

// Node is a list node.
// @deriving:scan
// @deriving:finalize
// @shredder(cant_drop)
type Node struct {
	Value *Value
	Next  *Node // @shredder(skip_scan)
	_     int
}

// Value is an opaque value.
type Value struct{}
`,
	})
	result, err := scantest.Run(t, dir, []string{"./..."})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := `// Code generated by derivinggc. DO NOT EDIT.

package models

import "github.com/podhmo/shredder"

// GcSafe reports that Node is safe to be held by the collector.
func (*Node) GcSafe() {}

// Scan reports every collector-managed reference held by Node.
func (v *Node) Scan(scanner *shredder.Scanner) {
	scanner.Scan(&v.Value)
	shredder.CheckGcSafe(&v.Next)
}

// Finalize runs the finalizers of the fields of Node.
func (v *Node) Finalize() {
	shredder.Finalize(&v.Value)
	shredder.Finalize(&v.Next)
}
`
	got, ok := result.Outputs["models/models_deriving_gc.go"]
	if !ok {
		t.Fatalf("no output generated, got %v", result.Outputs)
	}
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("generated file mismatch (-want +got):\n%s", diff)
	}

	if len(result.Report.Packages) != 1 {
		t.Fatalf("expected one package, got %d", len(result.Report.Packages))
	}
	pkg := result.Report.Packages[0]
	if pkg.ImportPath != "example.com/m/models" || !pkg.Written {
		t.Errorf("unexpected package report %+v", pkg)
	}
	type summary struct {
		Type      string
		Derive    derivinggc.Derive
		Markers   []derive.MarkerKind
		Fragments []string
	}
	var gotResults []summary
	for _, r := range pkg.Results {
		s := summary{Type: r.Type, Derive: r.Derive, Markers: r.Markers}
		for _, f := range r.Fragments {
			s.Fragments = append(s.Fragments, f.String())
		}
		gotResults = append(gotResults, s)
	}
	wantResults := []summary{
		{"Node", derivinggc.DeriveScan, []derive.MarkerKind{derive.GcSafe}, []string{"scan(Value)", "check_gc_safe(Next)"}},
		{"Node", derivinggc.DeriveFinalize, nil, []string{"finalize(Value)", "finalize(Next)"}},
	}
	if diff := cmp.Diff(wantResults, gotResults); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_Diagnostics(t *testing.T) {
	dir := scantest.WriteFiles(t, map[string]string{
		"go.mod": "module example.com/m\n",
		"models/models.go": `package models

// @deriving:scan
type Good struct {
	P *int
}

// @deriving:scan, finalize
type Bad struct {
	A int // @shredder(skip_scan, skip_scan)
}

// @deriving:scan
type Color int

const (
	Red Color = iota
	Blue
)

// @deriving:finalize
type Shape interface {
	*Good | *Bad
}

// @deriving:scan
// @shredder(can_deref)
type Alias = Good

// @deriving:scan
// @shredder(nope)
type Odd struct{}

// @deriving:finalize
type Late struct {
	P *int
}
`,
	})
	result, err := scantest.Run(t, dir, []string{"models"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	type located struct {
		Code    diag.Code
		Message string
		Line    int
		Column  int
	}
	var got []located
	for _, d := range result.Report.Diagnostics() {
		got = append(got, located{d.Code, d.Message, d.Pos.Line, d.Pos.Column})
	}
	want := []located{
		{diag.DuplicateFlag, "duplicate shredder flag skip_scan", 10, 32},
		{diag.UnsupportedAggregate, "the Scan derive doesn't support enums", 14, 12},
		{diag.UnsupportedAggregate, "the Finalize derive doesn't support unions", 22, 12},
		{diag.UnsupportedAggregate, "the Scan derive only supports struct types", 28, 14},
		{diag.UnknownFlag, "unknown shredder flag nope", 31, 14},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	out := string(result.Outputs["models/models_deriving_gc.go"])
	if out == "" {
		t.Fatal("a file must be generated even when some derives fail")
	}
	if !strings.Contains(out, "func (v *Good) Scan(scanner *shredder.Scanner) {") {
		t.Errorf("the successful derive is missing:\n%s", out)
	}
	marker := "var _ int = /*line models.go:10:31*/ \"derivinggc: duplicate shredder flag skip_scan\"\n"
	if n := strings.Count(out, marker); n != 1 {
		t.Errorf("expected the duplicate flag marker once, found %d times:\n%s", n, out)
	}
	for _, msg := range []string{
		"derivinggc: the Scan derive doesn't support enums",
		"derivinggc: the Finalize derive doesn't support unions",
		"derivinggc: unknown shredder flag nope",
	} {
		if !strings.Contains(out, msg) {
			t.Errorf("missing marker %q:\n%s", msg, out)
		}
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "models_deriving_gc.go", out, parser.ParseComments)
	if err != nil {
		t.Fatalf("generated file does not parse: %v\n%s", err, out)
	}
	// markers are reported at the diagnostics, and the code after them at
	// its own place in the generated file
	var markers []string
	var late string
	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.GenDecl:
			if spec, ok := decl.Specs[0].(*ast.ValueSpec); ok {
				markers = append(markers, fset.Position(spec.Values[0].Pos()).String())
			}
		case *ast.FuncDecl:
			if decl.Name.Name == "Finalize" {
				late = fset.Position(decl.Pos()).String()
			}
		}
	}
	if diff := cmp.Diff([]string{"models.go:10:32", "models.go:14:12", "models.go:22:12", "models.go:28:14", "models.go:31:14"}, markers); diff != "" {
		t.Errorf("marker positions mismatch (-want +got):\n%s", diff)
	}
	wantLate := fmt.Sprintf("models_deriving_gc.go:%d:1", strings.Count(out[:strings.Index(out, "func (v *Late) Finalize()")], "\n")+1)
	if late != wantLate {
		t.Errorf("Late.Finalize reported at %s, want %s\n%s", late, wantLate, out)
	}

	var failed int
	for _, r := range result.Report.Packages[0].Results {
		if r.Failed() {
			failed++
		}
	}
	if failed != 6 {
		t.Errorf("expected 6 failed derives, got %d", failed)
	}
}

func TestGenerate_ImportNames(t *testing.T) {
	dir := scantest.WriteFiles(t, map[string]string{
		"go.mod": "module example.com/m\n",
		"other/other.go": `package other

type shredder struct{}

// @deriving:scan
// @shredder(cant_drop)
type Holder struct {
	S *shredder
}
`,
		"empty/empty.go": `package empty

// @deriving:finalize
type Empty struct{}
`,
		"plain/plain.go": `package plain

type Plain struct{}
`,
	})
	result, err := scantest.Run(t, dir, []string{"./..."})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := `// Code generated by derivinggc. DO NOT EDIT.

package other

import shredder1 "github.com/podhmo/shredder"

// GcSafe reports that Holder is safe to be held by the collector.
func (*Holder) GcSafe() {}

// Scan reports every collector-managed reference held by Holder.
func (v *Holder) Scan(scanner *shredder1.Scanner) {
	scanner.Scan(&v.S)
}
`
	if diff := cmp.Diff(want, string(result.Outputs["other/other_deriving_gc.go"])); diff != "" {
		t.Errorf("generated file mismatch (-want +got):\n%s", diff)
	}

	empty := string(result.Outputs["empty/empty_deriving_gc.go"])
	if !strings.Contains(empty, "func (v *Empty) Finalize()") {
		t.Errorf("missing Finalize:\n%s", empty)
	}
	if strings.Contains(empty, "import") {
		t.Errorf("an unused runtime package must not be imported:\n%s", empty)
	}

	if _, ok := result.Outputs["plain/plain_deriving_gc.go"]; ok {
		t.Errorf("a package without derives must not get a file")
	}
}

func TestGenerate_TypeParams(t *testing.T) {
	dir := scantest.WriteFiles(t, map[string]string{
		"go.mod": "module example.com/m\n",
		"models/models.go": `package models

// @deriving:scan
// @shredder(cant_drop)
type Box[shredder any, v any] struct {
	X *shredder
	Y *v // @shredder(skip_scan)
}
`,
	})
	result, err := scantest.Run(t, dir, []string{"./models"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := `// Code generated by derivinggc. DO NOT EDIT.

package models

import shredder1 "github.com/podhmo/shredder"

// GcSafe reports that Box is safe to be held by the collector.
func (*Box[shredder, v]) GcSafe() {}

// Scan reports every collector-managed reference held by Box.
func (v1 *Box[shredder, v]) Scan(scanner *shredder1.Scanner) {
	scanner.Scan(&v1.X)
	shredder1.CheckGcSafe(&v1.Y)
}
`
	if diff := cmp.Diff(want, string(result.Outputs["models/models_deriving_gc.go"])); diff != "" {
		t.Errorf("generated file mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_CustomConfig(t *testing.T) {
	dir := scantest.WriteFiles(t, map[string]string{
		"go.mod": "module example.com/m\n",
		"models/models.go": `package models

// @deriving:scan
// @gc(can_deref, cant_drop)
type Node struct {
	Next *Node // @gc(unsafe_skip_gc_deref)
	Skip *Node // @shredder(this is ignored)
}
`,
	})
	result, err := scantest.Run(t, dir, []string{"./models"}, func(cfg *derivinggc.Config) {
		cfg.Namespace = "gc"
		cfg.RuntimePackage = "example.com/rt/gc2"
		cfg.Output = "zz_{package}_gc.go"
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := `// Code generated by derivinggc. DO NOT EDIT.

package models

import "example.com/rt/gc2"

// GcSafe reports that Node is safe to be held by the collector.
func (*Node) GcSafe() {}

// GcDeref reports that Node can be dereferenced while the collector scans it.
func (*Node) GcDeref() {}

// Scan reports every collector-managed reference held by Node.
func (v *Node) Scan(scanner *gc2.Scanner) {
	scanner.Scan(&v.Next)
	scanner.Scan(&v.Skip)
	gc2.CheckGcDeref(&v.Skip)
}
`
	if diff := cmp.Diff(want, string(result.Outputs["models/zz_models_gc.go"])); diff != "" {
		t.Errorf("generated file mismatch (-want +got):\n%s", diff)
	}
}
