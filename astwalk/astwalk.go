package astwalk

import (
	"go/ast"
	"go/token"
	"iter"
)

// ToplevelTypes returns an iterator over the top-level type declarations of
// file, in source order. The enclosing GenDecl is yielded alongside each spec
// because the doc comment of an ungrouped declaration is attached to it.
//
//	for decl, spec := range ToplevelTypes(file) {
//		// use spec
//	}
func ToplevelTypes(file *ast.File) iter.Seq2[*ast.GenDecl, *ast.TypeSpec] {
	return func(yield func(*ast.GenDecl, *ast.TypeSpec) bool) {
		if file == nil {
			return
		}
		for _, decl := range file.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok || genDecl.Tok != token.TYPE {
				continue
			}
			for _, spec := range genDecl.Specs {
				typeSpec, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if !yield(genDecl, typeSpec) {
					return // Stop iteration if yield returns false
				}
			}
		}
	}
}

// TypeDoc returns the doc comment of spec, falling back to the doc of decl
// when spec is the only spec of an ungrouped declaration.
func TypeDoc(decl *ast.GenDecl, spec *ast.TypeSpec) *ast.CommentGroup {
	if spec.Doc != nil {
		return spec.Doc
	}
	if decl != nil && !decl.Lparen.IsValid() {
		return decl.Doc
	}
	return nil
}

// TypedConsts returns an iterator over the package-level constants of file
// together with the name of their declared type. Within a const group, a spec
// without type and values repeats the type of the previous spec, as iota
// enumerations do. Constants converted with `T(x)` are reported as typed T.
// Untyped constants are skipped.
func TypedConsts(file *ast.File) iter.Seq2[string, *ast.Ident] {
	return func(yield func(string, *ast.Ident) bool) {
		if file == nil {
			return
		}
		for _, decl := range file.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok || genDecl.Tok != token.CONST {
				continue
			}
			var typeName string
			for _, spec := range genDecl.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				switch {
				case vs.Type != nil:
					typeName = identName(vs.Type)
				case len(vs.Values) > 0:
					typeName = conversionName(vs.Values[0])
				}
				if typeName == "" {
					continue
				}
				for _, name := range vs.Names {
					if !yield(typeName, name) {
						return
					}
				}
			}
		}
	}
}

func identName(expr ast.Expr) string {
	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

func conversionName(expr ast.Expr) string {
	call, ok := expr.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return ""
	}
	if paren, ok := call.Fun.(*ast.ParenExpr); ok {
		return identName(paren.X)
	}
	return identName(call.Fun)
}

// ToplevelNames returns an iterator over the identifiers declared at package
// level by file: types, functions, variables and constants. Methods and
// blank identifiers are skipped.
func ToplevelNames(file *ast.File) iter.Seq[string] {
	return func(yield func(string) bool) {
		if file == nil {
			return
		}
		emit := func(name *ast.Ident) bool {
			return name.Name == "_" || yield(name.Name)
		}
		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.FuncDecl:
				if decl.Recv == nil && !emit(decl.Name) {
					return
				}
			case *ast.GenDecl:
				for _, spec := range decl.Specs {
					switch spec := spec.(type) {
					case *ast.TypeSpec:
						if !emit(spec.Name) {
							return
						}
					case *ast.ValueSpec:
						for _, name := range spec.Names {
							if !emit(name) {
								return
							}
						}
					}
				}
			}
		}
	}
}
