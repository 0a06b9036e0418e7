package derive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/podhmo/derivinggc/annotation"
)

// parseType builds the Type of the first type declaration in src.
func parseType(t *testing.T, src string) *Type {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "models.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		ts := gd.Specs[0].(*ast.TypeSpec)
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			t.Fatalf("%s is not a struct", ts.Name.Name)
		}
		typ := &Type{
			Name:        ts.Name.Name,
			Fset:        fset,
			Annotations: annotation.FromComments(gd.Doc),
		}
		if ts.TypeParams != nil {
			for _, p := range ts.TypeParams.List {
				for _, n := range p.Names {
					typ.TypeParams = append(typ.TypeParams, n.Name)
				}
			}
		}
		for _, field := range st.Fields.List {
			annos := annotation.FromComments(field.Doc, field.Comment)
			if len(field.Names) == 0 {
				expr := field.Type
				if star, ok := expr.(*ast.StarExpr); ok {
					expr = star.X
				}
				typ.Fields = append(typ.Fields, Field{Name: expr.(*ast.Ident).Name, Index: len(typ.Fields), Pos: field.Pos(), Annotations: annos})
				continue
			}
			for _, n := range field.Names {
				typ.Fields = append(typ.Fields, Field{Name: n.Name, Index: len(typ.Fields), Pos: n.Pos(), Annotations: annos})
			}
		}
		return typ
	}
	t.Fatal("no type declaration found")
	return nil
}

func fragmentStrings(fs []Fragment) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}
