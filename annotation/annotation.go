// Package annotation reads `@name(...)` markers out of Go comments.
//
// An annotation is a single line comment whose text starts with '@':
//
//	// @deriving:scan
//	// @shredder(can_deref, cant_drop)
//	type Node struct {
//		Next *Node // @shredder(skip_scan)
//	}
//
// Parse turns the text into a small tree (see Node). Extract walks the trees
// of one namespace and returns the bare identifiers listed inside them.
package annotation

import (
	"go/ast"
	"go/token"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Annotation is one annotation line as found in the source.
type Annotation struct {
	// Text starts with '@'.
	Text string
	// Pos is the position of the '@'.
	Pos token.Pos
}

// FromComments collects the annotations found in the given comment groups,
// in source order. nil groups are skipped.
func FromComments(groups ...*ast.CommentGroup) []Annotation {
	var annos []Annotation
	for _, g := range groups {
		if g == nil {
			continue
		}
		for _, c := range g.List {
			if a, ok := fromComment(c); ok {
				annos = append(annos, a)
			}
		}
	}
	return annos
}

func fromComment(c *ast.Comment) (Annotation, bool) {
	if !strings.HasPrefix(c.Text, "//") {
		return Annotation{}, false // block comments never carry annotations
	}
	body := c.Text[2:]
	trimmed := strings.TrimLeft(body, " \t")
	if !strings.HasPrefix(trimmed, "@") {
		return Annotation{}, false
	}
	offset := 2 + len(body) - len(trimmed)
	a := Annotation{Text: strings.TrimRightFunc(trimmed, unicode.IsSpace)}
	if c.Slash.IsValid() {
		a.Pos = c.Slash + token.Pos(offset)
	}
	return a, true
}

// Head returns the first path segment of the annotation, e.g. "deriving"
// for "@deriving:scan" and "shredder" for "@shredder.x(y)". It does not
// parse the rest of the text, so annotations of foreign namespaces never
// produce errors.
func Head(a Annotation) string {
	text := strings.TrimPrefix(a.Text, "@")
	end := 0
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if r != '_' && !unicode.IsLetter(r) && (end == 0 || !unicode.IsDigit(r)) {
			break
		}
		end += size
	}
	return text[:end]
}
