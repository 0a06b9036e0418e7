package annotation

import (
	"errors"
	"go/token"

	"github.com/podhmo/derivinggc/diag"
)

// DefaultNamespace is the head identifier of the annotations read by Extract.
const DefaultNamespace = "shredder"

// Flag is a bare identifier listed inside a namespaced annotation.
type Flag struct {
	Name string
	Pos  token.Pos
}

// Extract returns, in order, the flags listed by every annotation whose head
// is namespace. Other annotations are ignored. Extraction is purely
// syntactic: whether a flag is known is decided by the caller.
//
// The returned error is a *diag.Diagnostic with code diag.MalformedAnnotation.
func Extract(fset *token.FileSet, annos []Annotation, namespace string) ([]Flag, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	var flags []Flag
	for _, a := range annos {
		if Head(a) != namespace {
			continue
		}
		n, err := Parse(a)
		if err != nil {
			var serr *SyntaxError
			if errors.As(err, &serr) {
				return nil, diag.New(fset, serr.Pos, diag.MalformedAnnotation, "malformed %s annotation: %s", namespace, serr.Msg)
			}
			return nil, diag.New(fset, a.Pos, diag.MalformedAnnotation, "malformed %s annotation: %v", namespace, err)
		}
		if len(n.Path) > 1 {
			return nil, diag.New(fset, n.Pos, diag.MalformedAnnotation, "unknown path %s", n.PathString())
		}
		if n.Kind != ListNode {
			return nil, diag.New(fset, n.Pos, diag.MalformedAnnotation, "%s annotation expects a flag list, e.g. @%s(flag)", namespace, namespace)
		}
		for _, c := range n.Nested {
			if !c.IsIdent() {
				return nil, diag.New(fset, c.Pos, diag.MalformedAnnotation, "unsupported %s flag %s: flags must be bare identifiers, not a %s", namespace, c, shape(c))
			}
			flags = append(flags, Flag{Name: c.Path[0], Pos: c.Pos})
		}
	}
	return flags, nil
}

func shape(n *Node) string {
	if n.Kind == PathNode {
		return "dotted path"
	}
	return n.Kind.String()
}
