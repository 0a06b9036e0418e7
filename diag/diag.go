// Package diag defines the located diagnostics reported while deriving
// collector support code, and the ways they are rendered.
package diag

import (
	"fmt"
	"go/token"
)

// Code identifies the category of a diagnostic.
type Code uint16

const (
	UnknownCode Code = 0

	// MalformedAnnotation is a syntactic shape violation inside a namespaced annotation.
	MalformedAnnotation Code = 100

	// UnknownFlag is an identifier outside the flag vocabulary of its context.
	UnknownFlag Code = 200
	// DuplicateFlag is a flag recorded twice in one scope.
	DuplicateFlag Code = 201

	// UnsupportedAggregate is a derive requested on something that is not a struct.
	UnsupportedAggregate Code = 300
)

func (c Code) String() string {
	if c == UnknownCode {
		return "E000"
	}
	return fmt.Sprintf("E%03d", uint16(c))
}

// Title returns a short human readable name of the code.
func (c Code) Title() string {
	switch c {
	case MalformedAnnotation:
		return "malformed annotation"
	case UnknownFlag:
		return "unknown flag"
	case DuplicateFlag:
		return "duplicate flag"
	case UnsupportedAggregate:
		return "unsupported aggregate"
	}
	return "unknown"
}

// Diagnostic is a located error message. It implements error so that every
// stage can return it through ordinary error values; callers recover it with
// errors.As.
type Diagnostic struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Pos     token.Position `json:"pos"`
}

// New returns a diagnostic located at pos, resolved through fset.
// A nil fset or an invalid pos yields an unlocated diagnostic.
func New(fset *token.FileSet, pos token.Pos, code Code, format string, args ...any) *Diagnostic {
	d := &Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
	if fset != nil && pos.IsValid() {
		d.Pos = fset.Position(pos)
	}
	return d
}

func (d *Diagnostic) Error() string {
	if d.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", d.Pos, d.Message)
	}
	return d.Message
}
