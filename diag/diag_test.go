package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func at(file string, line, col int) token.Position {
	return token.Position{Filename: file, Line: line, Column: col}
}

func TestCode(t *testing.T) {
	tests := []struct {
		code  Code
		str   string
		title string
	}{
		{MalformedAnnotation, "E100", "malformed annotation"},
		{UnknownFlag, "E200", "unknown flag"},
		{DuplicateFlag, "E201", "duplicate flag"},
		{UnsupportedAggregate, "E300", "unsupported aggregate"},
		{UnknownCode, "E000", "unknown"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.code.Title(); got != tt.title {
			t.Errorf("Title() = %q, want %q", got, tt.title)
		}
	}
}

func TestNew(t *testing.T) {
	fset := token.NewFileSet()
	file := fset.AddFile("/src/models.go", -1, 20)
	file.SetLinesForContent([]byte("package p\n\ntype T\n"))

	d := New(fset, file.Pos(16), DuplicateFlag, "duplicate shredder flag %s", "can_deref")
	want := at("/src/models.go", 3, 6)
	want.Offset = 16
	if diff := cmp.Diff(want, d.Pos); diff != "" {
		t.Errorf("position mismatch (-want +got):\n%s", diff)
	}
	if got, want := d.Error(), "/src/models.go:3:6: duplicate shredder flag can_deref"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var err error = fmt.Errorf("wrapped: %w", d)
	var got *Diagnostic
	if !errors.As(err, &got) || got != d {
		t.Errorf("errors.As did not recover the diagnostic")
	}

	unlocated := New(nil, token.NoPos, UnknownFlag, "unknown shredder flag x")
	if got, want := unlocated.Error(), "unknown shredder flag x"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestMarker(t *testing.T) {
	d := &Diagnostic{
		Code:    DuplicateFlag,
		Message: `duplicate shredder flag "can_deref"`,
		Pos:     at("/src/models.go", 12, 5),
	}
	got := string(Marker(d))
	want := "var _ int = /*line models.go:12:4*/ \"derivinggc: duplicate shredder flag \\\"can_deref\\\"\"\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}

	// The marker must be valid syntax, with the string literal placed at the
	// recorded location.
	src := "package p\n\n" + got
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "generated.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("marker is not valid Go: %v", err)
	}
	spec := f.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec)
	pos := fset.Position(spec.Values[0].Pos())
	if pos.Filename != "models.go" || pos.Line != 12 || pos.Column != 5 {
		t.Errorf("got position %s, want models.go:12:5", pos)
	}
}

func TestMarker_Unlocated(t *testing.T) {
	got := string(Marker(&Diagnostic{Message: "the Scan derive doesn't support enums"}))
	if strings.Contains(got, "//line") {
		t.Errorf("unexpected line directive in %q", got)
	}
	if want := "var _ int = \"derivinggc: the Scan derive doesn't support enums\"\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPretty(t *testing.T) {
	ds := []*Diagnostic{
		{Code: UnknownFlag, Message: "unknown shredder flag x", Pos: at("/src/pkg/models.go", 3, 14)},
		{Code: UnsupportedAggregate, Message: "the Scan derive only supports struct types"},
	}
	var buf bytes.Buffer
	if err := Pretty(&buf, ds, PrettyOptions{RelativeTo: "/src"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "pkg/models.go:3:14: error[E200]: unknown shredder flag x\n" +
		"<unknown>: error[E300]: the Scan derive only supports struct types\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("got %q, want []", got)
	}

	buf.Reset()
	d := &Diagnostic{Code: DuplicateFlag, Message: "duplicate shredder flag skip_scan", Pos: at("models.go", 1, 2)}
	if err := JSON(&buf, []*Diagnostic{d}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded []struct {
		Code    int
		Message string
		Pos     struct{ Filename string }
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Code != 201 || decoded[0].Pos.Filename != "models.go" {
		t.Errorf("unexpected payload: %s", buf.String())
	}
}

func TestSortAndDedup(t *testing.T) {
	a := &Diagnostic{Code: UnknownFlag, Message: "a", Pos: at("b.go", 1, 1)}
	b := &Diagnostic{Code: UnknownFlag, Message: "b", Pos: at("a.go", 9, 1)}
	c := &Diagnostic{Code: UnknownFlag, Message: "c", Pos: at("a.go", 2, 7)}
	c2 := &Diagnostic{Code: UnknownFlag, Message: "c", Pos: at("a.go", 2, 7)}

	ds := Dedup([]*Diagnostic{a, c, b, c2})
	Sort(ds)
	var got []string
	for _, d := range ds {
		got = append(got, d.Message)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
