package derive

import (
	"github.com/podhmo/derivinggc/annotation"
	"github.com/podhmo/derivinggc/flags"
)

// MarkerKind is a capability marker method implemented by a derived type.
type MarkerKind int

const (
	GcSafe MarkerKind = iota
	GcDrop
	GcDeref
)

// Method returns the name of the marker method.
func (m MarkerKind) Method() string {
	switch m {
	case GcSafe:
		return "GcSafe"
	case GcDrop:
		return "GcDrop"
	case GcDeref:
		return "GcDeref"
	}
	return ""
}

func (m MarkerKind) MarshalText() ([]byte, error) {
	return []byte(m.Method()), nil
}

func (m MarkerKind) doc() string {
	switch m {
	case GcSafe:
		return "is safe to be held by the collector"
	case GcDrop:
		return "can be dropped while the collector holds it"
	case GcDeref:
		return "can be dereferenced while the collector scans it"
	}
	return ""
}

// FieldPlan is the validated options and the fragments of one field.
type FieldPlan struct {
	Field     FieldRef           `json:"field"`
	Options   flags.FieldOptions `json:"options"`
	Fragments []Fragment         `json:"fragments"`
}

// ScanPlan is everything needed to render the Scan derive of a type.
type ScanPlan struct {
	Type    *Type             `json:"-"`
	Options flags.TypeOptions `json:"options"`
	Markers []MarkerKind      `json:"markers"`
	Fields  []FieldPlan       `json:"fields"`

	opts Options
}

// Fragments returns the traversal body in emission order.
func (p *ScanPlan) Fragments() []Fragment {
	var out []Fragment
	for _, f := range p.Fields {
		out = append(out, f.Fragments...)
	}
	return out
}

// PlanScan validates the type flags, then the flags of each field in
// declaration order, and evaluates the fragment table. The first invalid
// flag aborts planning and is returned as a *diag.Diagnostic.
func PlanScan(t *Type, opts Options) (*ScanPlan, error) {
	typeOpts, err := typeOptions(t, opts)
	if err != nil {
		return nil, err
	}
	plan := &ScanPlan{Type: t, Options: typeOpts, Markers: markers(typeOpts), opts: opts}
	for _, f := range t.Fields {
		fieldOpts, err := fieldOptions(t, f, opts)
		if err != nil {
			return nil, err
		}
		fp := FieldPlan{Field: f.Ref(), Options: fieldOpts}
		if !f.Blank() {
			fp.Fragments = scanFragments(fp.Field, typeOpts, fieldOpts)
		}
		plan.Fields = append(plan.Fields, fp)
	}
	return plan, nil
}

func markers(t flags.TypeOptions) []MarkerKind {
	ms := []MarkerKind{GcSafe}
	if t.EmitDrop {
		ms = append(ms, GcDrop)
	}
	if t.EmitDeref {
		ms = append(ms, GcDeref)
	}
	return ms
}

// FinalizeMode selects the finalize method that is generated.
type FinalizeMode int

const (
	// Finalize generates `Finalize()`.
	Finalize FinalizeMode = iota
	// FinalizeFields generates `FinalizeFields()`, for types that implement
	// Finalize by hand and call FinalizeFields from it.
	FinalizeFields
)

// Method returns the name of the generated method.
func (m FinalizeMode) Method() string {
	if m == FinalizeFields {
		return "FinalizeFields"
	}
	return "Finalize"
}

// FinalizePlan is everything needed to render a finalize derive of a type.
type FinalizePlan struct {
	Type   *Type        `json:"-"`
	Mode   FinalizeMode `json:"mode"`
	Fields []FieldPlan  `json:"fields"`

	opts Options
}

// Fragments returns the finalization body in emission order.
func (p *FinalizePlan) Fragments() []Fragment {
	var out []Fragment
	for _, f := range p.Fields {
		out = append(out, f.Fragments...)
	}
	return out
}

// PlanFinalize validates the flags of t and emits one finalize call per
// field that does not set skip_finalize. Type flags do not affect
// finalization but are still validated so that errors are reported no matter
// which derive runs.
func PlanFinalize(t *Type, mode FinalizeMode, opts Options) (*FinalizePlan, error) {
	if _, err := typeOptions(t, opts); err != nil {
		return nil, err
	}
	plan := &FinalizePlan{Type: t, Mode: mode, opts: opts}
	for _, f := range t.Fields {
		fieldOpts, err := fieldOptions(t, f, opts)
		if err != nil {
			return nil, err
		}
		fp := FieldPlan{Field: f.Ref(), Options: fieldOpts}
		if !f.Blank() && !fieldOpts.SkipFinalize {
			fp.Fragments = []Fragment{{Kind: FinalizeCall, Field: fp.Field}}
		}
		plan.Fields = append(plan.Fields, fp)
	}
	return plan, nil
}

func typeOptions(t *Type, opts Options) (flags.TypeOptions, error) {
	fs, err := annotation.Extract(t.Fset, t.Annotations, opts.Namespace)
	if err != nil {
		return flags.TypeOptions{}, err
	}
	return flags.ParseTypeOptions(t.Fset, fs)
}

func fieldOptions(t *Type, f Field, opts Options) (flags.FieldOptions, error) {
	fs, err := annotation.Extract(t.Fset, f.Annotations, opts.Namespace)
	if err != nil {
		return flags.FieldOptions{}, err
	}
	return flags.ParseFieldOptions(t.Fset, fs)
}
