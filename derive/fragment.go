package derive

import (
	"fmt"

	"github.com/podhmo/derivinggc/flags"
)

// FragmentKind is the kind of per-field instrumentation.
type FragmentKind int

const (
	// ScanCall registers the field's references with the scanner.
	ScanCall FragmentKind = iota
	// CheckGcSafe asserts the field is GcSafe without scanning it.
	CheckGcSafe
	// CheckGcDeref asserts the field is GcDeref.
	CheckGcDeref
	// CheckGcDrop asserts the field is GcDrop.
	CheckGcDrop
	// FinalizeCall runs the field's finalizer.
	FinalizeCall
)

func (k FragmentKind) String() string {
	switch k {
	case ScanCall:
		return "scan"
	case CheckGcSafe:
		return "check_gc_safe"
	case CheckGcDeref:
		return "check_gc_deref"
	case CheckGcDrop:
		return "check_gc_drop"
	case FinalizeCall:
		return "finalize"
	}
	return fmt.Sprintf("FragmentKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k FragmentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Fragment is one statement of a generated routine, bound to one field.
type Fragment struct {
	Kind  FragmentKind `json:"kind"`
	Field FieldRef     `json:"field"`
}

func (f Fragment) String() string {
	return fmt.Sprintf("%s(%s)", f.Kind, f.Field.Name)
}

// scanTable gates the traversal fragments. Rows are evaluated independently
// for every field and appended in table order.
var scanTable = []struct {
	kind FragmentKind
	when func(t flags.TypeOptions, f flags.FieldOptions) bool
}{
	{ScanCall, func(_ flags.TypeOptions, f flags.FieldOptions) bool { return !f.SkipScan && !f.SkipGcSafe }},
	{CheckGcSafe, func(_ flags.TypeOptions, f flags.FieldOptions) bool { return f.SkipScan && !f.SkipGcSafe }},
	{CheckGcDeref, func(t flags.TypeOptions, f flags.FieldOptions) bool { return !f.SkipGcDeref && t.EmitDeref }},
	{CheckGcDrop, func(t flags.TypeOptions, f flags.FieldOptions) bool { return !f.SkipGcDrop && t.EmitDrop }},
}

func scanFragments(ref FieldRef, t flags.TypeOptions, f flags.FieldOptions) []Fragment {
	var out []Fragment
	for _, row := range scanTable {
		if row.when(t, f) {
			out = append(out, Fragment{Kind: row.kind, Field: ref})
		}
	}
	return out
}

// statement renders f as a Go statement. recv and scanner are the names of
// the receiver and of the scanner parameter, q the qualifier of the runtime
// package.
func (f Fragment) statement(recv, scanner, q string, rt RuntimeSymbols) string {
	arg := "&" + recv + "." + f.Field.Name
	switch f.Kind {
	case ScanCall:
		return fmt.Sprintf("%s.%s(%s)", scanner, rt.ScanMethod, arg)
	case CheckGcSafe:
		return fmt.Sprintf("%s.%s(%s)", q, rt.CheckGcSafe, arg)
	case CheckGcDeref:
		return fmt.Sprintf("%s.%s(%s)", q, rt.CheckGcDeref, arg)
	case CheckGcDrop:
		return fmt.Sprintf("%s.%s(%s)", q, rt.CheckGcDrop, arg)
	case FinalizeCall:
		return fmt.Sprintf("%s.%s(%s)", q, rt.Finalize, arg)
	}
	panic(fmt.Sprintf("unexpected fragment kind %d", f.Kind))
}

// withDefaults fills unset symbols from DefaultRuntime.
func (rt RuntimeSymbols) withDefaults() RuntimeSymbols {
	def := DefaultRuntime()
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&rt.Package, def.Package)
	fill(&rt.Name, def.Name)
	fill(&rt.Scanner, def.Scanner)
	fill(&rt.ScanMethod, def.ScanMethod)
	fill(&rt.CheckGcSafe, def.CheckGcSafe)
	fill(&rt.CheckGcDeref, def.CheckGcDeref)
	fill(&rt.CheckGcDrop, def.CheckGcDrop)
	fill(&rt.Finalize, def.Finalize)
	return rt
}
