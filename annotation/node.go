package annotation

import (
	"go/token"
	"strings"
)

// NodeKind is the shape of a parsed annotation node.
type NodeKind int

const (
	// PathNode is a bare path: `flag` or `a.b`.
	PathNode NodeKind = iota
	// ListNode is a path followed by a parenthesized list: `a(x, y)`.
	ListNode
	// NameValueNode is a path bound to a literal: `a = "x"`.
	NameValueNode
	// LitNode is a string, number or character literal.
	LitNode
)

func (k NodeKind) String() string {
	switch k {
	case PathNode:
		return "path"
	case ListNode:
		return "list"
	case NameValueNode:
		return "name-value"
	case LitNode:
		return "literal"
	}
	return "unknown"
}

// Node is an element of the annotation tree.
type Node struct {
	Kind NodeKind
	Pos  token.Pos

	// Path is set for PathNode, ListNode and NameValueNode.
	Path []string
	// Nested holds the list entries of a ListNode.
	Nested []*Node
	// Value is the literal bound by a NameValueNode.
	Value *Node

	// Lit and LitKind are set for LitNode.
	Lit     string
	LitKind token.Token
}

// PathString joins the path segments with '.'.
func (n *Node) PathString() string {
	return strings.Join(n.Path, ".")
}

// IsIdent reports whether n is a single-segment bare path.
func (n *Node) IsIdent() bool {
	return n.Kind == PathNode && len(n.Path) == 1
}

// String renders the node back to annotation syntax (without the '@').
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch n.Kind {
	case PathNode:
		sb.WriteString(n.PathString())
	case ListNode:
		sb.WriteString(n.PathString())
		sb.WriteByte('(')
		for i, c := range n.Nested {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.write(sb)
		}
		sb.WriteByte(')')
	case NameValueNode:
		sb.WriteString(n.PathString())
		sb.WriteString(" = ")
		if n.Value != nil {
			n.Value.write(sb)
		}
	case LitNode:
		sb.WriteString(n.Lit)
	}
}
