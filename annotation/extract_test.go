package annotation

import (
	"errors"
	"go/ast"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/derivinggc/diag"
)

func TestExtract(t *testing.T) {
	src := `package p

// @deriving:scan
// @json(omitempty, name = "x")
// @shredder(can_deref, cant_drop)
// @other.path(1, 2)
// @shredder()
// @shredder(skip_scan,)
type T struct{}
`
	fset, f := parseFile(t, src)
	annos := FromComments(f.Decls[0].(*ast.GenDecl).Doc)

	got, err := Extract(fset, annos, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	type flag struct {
		Name      string
		Line, Col int
	}
	var flags []flag
	for _, fl := range got {
		pos := fset.Position(fl.Pos)
		flags = append(flags, flag{fl.Name, pos.Line, pos.Column})
	}
	want := []flag{
		{"can_deref", 5, 14},
		{"cant_drop", 5, 25},
		{"skip_scan", 8, 14},
	}
	if diff := cmp.Diff(want, flags); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ForeignNamespaceIsIgnored(t *testing.T) {
	annos := []Annotation{
		{Text: "@json(omitempty"},
		{Text: "@shredder2(((("},
		{Text: "@deriving:scan"},
		{Text: "@ shredder(x)"},
	}
	got, err := Extract(nil, annos, DefaultNamespace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no flags, got %+v", got)
	}
}

func TestExtract_CustomNamespace(t *testing.T) {
	annos := []Annotation{
		{Text: "@shredder(skip_scan)"},
		{Text: "@gc(skip_scan)"},
	}
	got, err := Extract(nil, annos, "gc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "skip_scan" {
		t.Errorf("unexpected flags: %+v", got)
	}
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		text    string
		wantMsg string
		wantCol int
	}{
		{"@shredder", "shredder annotation expects a flag list, e.g. @shredder(flag)", 5},
		{`@shredder = "x"`, "shredder annotation expects a flag list, e.g. @shredder(flag)", 5},
		{"@shredder.x(skip_scan)", "unknown path shredder.x", 5},
		{`@shredder("skip_scan")`, `unsupported shredder flag "skip_scan": flags must be bare identifiers, not a literal`, 14},
		{"@shredder(skip_scan = 1)", "unsupported shredder flag skip_scan = 1: flags must be bare identifiers, not a name-value", 14},
		{"@shredder(can_deref, skip(x))", "unsupported shredder flag skip(x): flags must be bare identifiers, not a list", 25},
		{"@shredder(a.b)", "unsupported shredder flag a.b: flags must be bare identifiers, not a dotted path", 14},
		{"@shredder(skip_scan", "malformed shredder annotation: expected ',' or ')' but found end of annotation", 23},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			src := "package p\n\n// " + tt.text + "\ntype T struct{}\n"
			fset, f := parseFile(t, src)
			annos := FromComments(f.Decls[0].(*ast.GenDecl).Doc)

			_, err := Extract(fset, annos, DefaultNamespace)
			var d *diag.Diagnostic
			if !errors.As(err, &d) {
				t.Fatalf("expected *diag.Diagnostic, got %v", err)
			}
			if d.Code != diag.MalformedAnnotation {
				t.Errorf("got code %s, want %s", d.Code, diag.MalformedAnnotation)
			}
			if d.Message != tt.wantMsg {
				t.Errorf("got message %q, want %q", d.Message, tt.wantMsg)
			}
			if d.Pos.Line != 3 || d.Pos.Column != tt.wantCol {
				t.Errorf("got position %d:%d, want 3:%d", d.Pos.Line, d.Pos.Column, tt.wantCol)
			}
		})
	}
}
