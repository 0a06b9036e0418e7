package scanner

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/podhmo/derivinggc/astwalk"
	"github.com/podhmo/derivinggc/fs"
	"github.com/podhmo/derivinggc/locator"
)

// Scanner parses the Go source files of a package.
type Scanner struct {
	fs      fs.FS
	locator *locator.Locator
	skip    func(name string) bool
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFS sets the file system the sources are read from.
func WithFS(fsys fs.FS) Option {
	return func(s *Scanner) { s.fs = fsys }
}

// WithLocator sets the locator used to compute import paths.
// Without it PackageInfo.ImportPath is left empty.
func WithLocator(l *locator.Locator) Option {
	return func(s *Scanner) { s.locator = l }
}

// WithSkipFile excludes files by base name, in addition to _test.go files.
func WithSkipFile(skip func(name string) bool) Option {
	return func(s *Scanner) { s.skip = skip }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// New creates a new Scanner.
func New(options ...Option) *Scanner {
	s := &Scanner{}
	for _, opt := range options {
		opt(s)
	}
	if s.fs == nil {
		s.fs = fs.NewOSFS()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ListFiles returns the sorted absolute paths of the .go files of the package
// in dir that ScanPackage would parse.
func (s *Scanner) ListFiles(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	entries, err := s.fs.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if s.skip != nil && s.skip(name) {
			continue
		}
		files = append(files, filepath.Join(absDir, name))
	}
	slices.Sort(files)
	return files, nil
}

// ScanPackage parses all .go files in a given directory and returns PackageInfo.
func (s *Scanner) ScanPackage(ctx context.Context, dir string) (*PackageInfo, error) {
	files, err := s.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no buildable Go source files in %s", dir)
	}
	return s.ScanFiles(ctx, dir, files)
}

// ScanFiles parses the given files, which must belong to one package in dir.
// Types are reported in file order, then declaration order.
func (s *Scanner) ScanFiles(ctx context.Context, dir string, files []string) (*PackageInfo, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	info := &PackageInfo{
		Path:     absDir,
		Fset:     token.NewFileSet(),
		AstFiles: make(map[string]*ast.File, len(files)),
	}
	if s.locator != nil {
		importPath, err := s.locator.ImportPath(absDir)
		if err != nil {
			return nil, err
		}
		info.ImportPath = importPath
	}

	var parsed []*ast.File
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := s.fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		file, err := parser.ParseFile(info.Fset, path, src, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		switch {
		case info.Name == "":
			info.Name = file.Name.Name
		case info.Name != file.Name.Name:
			return nil, fmt.Errorf("multiple packages found in directory %s: %s and %s", dir, info.Name, file.Name.Name)
		}
		info.Files = append(info.Files, path)
		info.AstFiles[path] = file
		parsed = append(parsed, file)
	}

	enums := map[string]bool{}
	for _, file := range parsed {
		for typeName := range astwalk.TypedConsts(file) {
			enums[typeName] = true
		}
	}

	for i, file := range parsed {
		for decl, spec := range astwalk.ToplevelTypes(file) {
			t := s.parseTypeSpec(decl, spec, enums)
			t.FilePath = info.Files[i]
			info.Types = append(info.Types, t)
		}
	}
	s.logger.DebugContext(ctx, "scanned package", slog.String("dir", dir), slog.Int("files", len(info.Files)), slog.Int("types", len(info.Types)))
	return info, nil
}

func (s *Scanner) parseTypeSpec(decl *ast.GenDecl, sp *ast.TypeSpec, enums map[string]bool) *TypeInfo {
	doc := astwalk.TypeDoc(decl, sp)
	typeInfo := &TypeInfo{
		Name:       sp.Name.Name,
		Doc:        commentText(doc),
		Comments:   []*ast.CommentGroup{doc, sp.Comment},
		NamePos:    sp.Name.Pos(),
		KeywordPos: sp.Type.Pos(),
		Node:       sp,
	}
	if sp.TypeParams != nil {
		for _, field := range sp.TypeParams.List {
			for _, name := range field.Names {
				typeInfo.TypeParams = append(typeInfo.TypeParams, name.Name)
			}
		}
	}

	switch t := sp.Type.(type) {
	case *ast.StructType:
		typeInfo.Kind = StructKind
		typeInfo.KeywordPos = t.Struct
		typeInfo.Struct = s.parseStructType(t)
	case *ast.FuncType:
		typeInfo.Kind = FuncKind
	case *ast.InterfaceType:
		typeInfo.Kind = InterfaceKind
		typeInfo.KeywordPos = t.Interface
		if hasUnion(t) {
			typeInfo.Kind = UnionKind
		}
	case *ast.Ident:
		typeInfo.Kind = AliasKind
		if !sp.Assign.IsValid() && isBasic(t.Name) && enums[sp.Name.Name] {
			typeInfo.Kind = EnumKind
		}
	default:
		typeInfo.Kind = AliasKind
	}
	return typeInfo
}

func (s *Scanner) parseStructType(st *ast.StructType) *StructInfo {
	structInfo := &StructInfo{}
	for _, field := range st.Fields.List {
		fieldType := types.ExprString(field.Type)

		var tag string
		if field.Tag != nil {
			tag = strings.Trim(field.Tag.Value, "`")
		}

		doc := commentText(field.Doc)
		if doc == "" {
			doc = commentText(field.Comment)
		}
		comments := []*ast.CommentGroup{field.Doc, field.Comment}

		if len(field.Names) > 0 {
			for _, name := range field.Names {
				structInfo.Fields = append(structInfo.Fields, &FieldInfo{
					Name:     name.Name,
					Index:    len(structInfo.Fields),
					Type:     fieldType,
					Tag:      tag,
					Doc:      doc,
					Comments: comments,
					Pos:      name.Pos(),
				})
			}
		} else { // Embedded field
			structInfo.Fields = append(structInfo.Fields, &FieldInfo{
				Name:     embeddedName(field.Type),
				Index:    len(structInfo.Fields),
				Embedded: true,
				Type:     fieldType,
				Tag:      tag,
				Doc:      doc,
				Comments: comments,
				Pos:      field.Type.Pos(),
			})
		}
	}
	return structInfo
}

// embeddedName returns the field name of an embedded field: the type name
// without pointer, package qualifier or type arguments.
func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return types.ExprString(expr)
}

func hasUnion(it *ast.InterfaceType) bool {
	for _, elem := range it.Methods.List {
		if len(elem.Names) > 0 {
			continue
		}
		if bin, ok := elem.Type.(*ast.BinaryExpr); ok && bin.Op == token.OR {
			return true
		}
	}
	return false
}

func isBasic(name string) bool {
	obj, ok := types.Universe.Lookup(name).(*types.TypeName)
	if !ok {
		return false
	}
	_, ok = obj.Type().(*types.Basic)
	return ok
}

func commentText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}
