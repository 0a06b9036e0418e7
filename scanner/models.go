package scanner

import (
	"go/ast"
	"go/token"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Kind defines the category of a type definition.
type Kind int

const (
	StructKind Kind = iota
	AliasKind
	FuncKind
	InterfaceKind
	// EnumKind is a defined basic type with package-level constants of that type.
	EnumKind
	// UnionKind is an interface whose type set is a union, e.g. `interface{ A | B }`.
	UnionKind
)

func (k Kind) String() string {
	switch k {
	case StructKind:
		return "struct"
	case AliasKind:
		return "alias"
	case FuncKind:
		return "func"
	case InterfaceKind:
		return "interface"
	case EnumKind:
		return "enum"
	case UnionKind:
		return "union"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PackageInfo holds all the extracted information from a single package.
type PackageInfo struct {
	Name       string
	Path       string
	ImportPath string
	// Files are the absolute paths of the scanned files, sorted.
	Files    []string
	Types    []*TypeInfo
	Fset     *token.FileSet       `json:"-"`
	AstFiles map[string]*ast.File `json:"-"`

	lookupOnce sync.Once
	lookup     map[string]*TypeInfo
}

// Lookup finds a type by name in the package.
func (p *PackageInfo) Lookup(name string) *TypeInfo {
	p.lookupOnce.Do(func() {
		p.lookup = make(map[string]*TypeInfo, len(p.Types))
		for _, t := range p.Types {
			p.lookup[t.Name] = t
		}
	})
	return p.lookup[name]
}

// TypeInfo represents a single type declaration (`type T ...`).
type TypeInfo struct {
	Name       string   `json:"name"`
	FilePath   string   `json:"filePath"`
	Doc        string   `json:"doc,omitempty"`
	Kind       Kind     `json:"kind"`
	TypeParams []string `json:"typeParams,omitempty"`
	// Comments are the doc and the trailing comment of the declaration.
	Comments []*ast.CommentGroup `json:"-"`
	NamePos  token.Pos           `json:"-"`
	// KeywordPos is the position of the `struct` or `interface` keyword, or of
	// the underlying type for other kinds.
	KeywordPos token.Pos     `json:"-"`
	Node       *ast.TypeSpec `json:"-"`
	Struct     *StructInfo   `json:"struct,omitempty"`
}

// Annotation extracts the value of a specific annotation from the TypeInfo's Doc string.
// Annotations are expected to be in the format "@<name>[:<value>]".
// For example, if Doc contains "@deriving:scan", Annotation("deriving") returns "scan", true.
// If Doc contains "@myannotation", Annotation("myannotation") returns "", true (value is optional).
// The name must be followed by a non-identifier character, so "@deriving" does
// not match "@derivingx". All matching lines are considered; the first one wins.
// If the annotation is not found, it returns "", false.
func (ti *TypeInfo) Annotation(name string) (value string, ok bool) {
	values := ti.Annotations(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Annotations returns the values of every "@<name>[:<value>]" line of Doc, in order.
func (ti *TypeInfo) Annotations(name string) []string {
	if ti.Doc == "" {
		return nil
	}
	prefix := "@" + name
	var values []string
	for _, line := range strings.Split(ti.Doc, "\n") {
		trimmedLine := strings.TrimSpace(line)
		rest, found := strings.CutPrefix(trimmedLine, prefix)
		if !found {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(rest); rest != "" && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue // a longer name
		}
		rest = strings.TrimSpace(rest)
		if after, ok := strings.CutPrefix(rest, ":"); ok {
			rest = strings.TrimSpace(after)
		}
		values = append(values, rest)
	}
	return values
}

// StructInfo represents a struct type.
type StructInfo struct {
	Fields []*FieldInfo `json:"fields"`
}

// FieldInfo represents a single field in a struct, in declaration order.
type FieldInfo struct {
	Name string `json:"name"`
	// Index is the position of the field in the struct, counting each name of
	// a multi-name field separately.
	Index    int    `json:"index"`
	Embedded bool   `json:"embedded,omitempty"`
	Type     string `json:"type"`
	Tag      string `json:"tag,omitempty"`
	Doc      string `json:"doc,omitempty"`
	// Comments are the doc and the trailing comment of the field.
	Comments []*ast.CommentGroup `json:"-"`
	Pos      token.Pos           `json:"-"`
}
