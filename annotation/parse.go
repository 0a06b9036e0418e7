package annotation

import (
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// SyntaxError reports malformed annotation text.
type SyntaxError struct {
	Pos token.Pos
	Msg string
}

func (e *SyntaxError) Error() string { return e.Msg }

// Parse parses the text of a into a Node tree.
//
//	annotation := '@' meta
//	meta       := path [ '(' [ nested { ',' nested } [ ',' ] ] ')' | '=' literal ]
//	path       := IDENT { '.' IDENT }
//	nested     := literal | meta
//
// Positions in the returned tree are positions in the file a came from.
func Parse(a Annotation) (*Node, error) {
	if !strings.HasPrefix(a.Text, "@") {
		return nil, &SyntaxError{Pos: a.Pos, Msg: "annotation must start with '@'"}
	}
	p := newParser(a)
	n := p.parseMeta()
	if p.err == nil {
		p.expectEnd()
	}
	if p.err != nil {
		return nil, p.err
	}
	return n, nil
}

type parser struct {
	file *token.File
	base token.Pos // position of the first byte after '@'
	sc   scanner.Scanner

	pos token.Pos // local to file
	tok token.Token
	lit string

	err *SyntaxError
}

func newParser(a Annotation) *parser {
	src := []byte(a.Text[1:])
	p := &parser{file: token.NewFileSet().AddFile("", -1, len(src))}
	if a.Pos.IsValid() {
		p.base = a.Pos + 1
	}
	p.sc.Init(p.file, src, func(pos token.Position, msg string) {
		p.failAt(p.lift(pos.Offset), msg)
	}, 0)
	p.next()
	return p
}

func (p *parser) lift(offset int) token.Pos {
	if !p.base.IsValid() {
		return token.NoPos
	}
	return p.base + token.Pos(offset)
}

func (p *parser) realPos(local token.Pos) token.Pos {
	return p.lift(p.file.Offset(local))
}

func (p *parser) next() {
	p.pos, p.tok, p.lit = p.sc.Scan()
}

func (p *parser) failAt(pos token.Pos, msg string) {
	if p.err == nil {
		p.err = &SyntaxError{Pos: pos, Msg: msg}
	}
}

func (p *parser) fail(msg string) {
	p.failAt(p.realPos(p.pos), msg)
}

func (p *parser) describe() string {
	switch {
	case p.tok == token.EOF, p.tok == token.SEMICOLON && p.lit == "\n":
		return "end of annotation"
	case p.lit != "":
		return strconv.Quote(p.lit)
	}
	return strconv.Quote(p.tok.String())
}

func (p *parser) isIdent() bool {
	return p.tok == token.IDENT || p.tok.IsKeyword()
}

func (p *parser) isLit() bool {
	switch p.tok {
	case token.INT, token.FLOAT, token.IMAG, token.CHAR, token.STRING:
		return true
	}
	return false
}

func (p *parser) parseMeta() *Node {
	n := &Node{Kind: PathNode, Pos: p.realPos(p.pos)}
	n.Path = p.parsePath()
	if p.err != nil {
		return nil
	}
	switch p.tok {
	case token.LPAREN:
		n.Kind = ListNode
		p.next()
		for p.tok != token.RPAREN && p.err == nil {
			c := p.parseNested()
			if p.err != nil {
				return nil
			}
			n.Nested = append(n.Nested, c)
			if p.tok != token.COMMA {
				break
			}
			p.next()
		}
		if p.err != nil {
			return nil
		}
		if p.tok != token.RPAREN {
			p.fail("expected ',' or ')' but found " + p.describe())
			return nil
		}
		p.next()
	case token.ASSIGN:
		n.Kind = NameValueNode
		p.next()
		n.Value = p.parseLit()
		if p.err != nil {
			return nil
		}
	}
	return n
}

func (p *parser) parsePath() []string {
	var path []string
	for {
		if !p.isIdent() {
			p.fail("expected identifier but found " + p.describe())
			return nil
		}
		path = append(path, p.lit)
		p.next()
		if p.tok != token.PERIOD {
			return path
		}
		p.next()
	}
}

func (p *parser) parseNested() *Node {
	if p.isLit() {
		return p.parseLit()
	}
	return p.parseMeta()
}

func (p *parser) parseLit() *Node {
	if !p.isLit() {
		p.fail("expected literal but found " + p.describe())
		return nil
	}
	n := &Node{Kind: LitNode, Pos: p.realPos(p.pos), Lit: p.lit, LitKind: p.tok}
	p.next()
	return n
}

func (p *parser) expectEnd() {
	if p.tok == token.SEMICOLON && p.lit == "\n" {
		p.next()
	}
	if p.tok != token.EOF {
		p.fail("unexpected " + p.describe() + " after annotation")
	}
}
