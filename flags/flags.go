// Package flags validates the flags extracted from `@shredder(...)`
// annotations and folds them into option records.
package flags

import (
	"go/token"

	"github.com/podhmo/derivinggc/annotation"
	"github.com/podhmo/derivinggc/diag"
)

// Type-level flags.
const (
	CanDeref = "can_deref"
	CantDrop = "cant_drop"
)

// Field-level flags.
const (
	SkipScan          = "skip_scan"
	UnsafeSkipGcDeref = "unsafe_skip_gc_deref"
	UnsafeSkipGcDrop  = "unsafe_skip_gc_drop"
	UnsafeSkipGcSafe  = "unsafe_skip_gc_safe"
	UnsafeSkipAll     = "unsafe_skip_all"
	SkipFinalize      = "skip_finalize"
)

// TypeOptions controls which capability markers are emitted for a type.
type TypeOptions struct {
	EmitDeref bool `json:"emitDeref"`
	EmitDrop  bool `json:"emitDrop"`
}

// DefaultTypeOptions is the result of a type without any flags.
var DefaultTypeOptions = TypeOptions{EmitDeref: false, EmitDrop: true}

// FieldOptions controls which instrumentation is emitted for a field.
type FieldOptions struct {
	SkipScan     bool `json:"skipScan"`
	SkipGcDeref  bool `json:"skipGcDeref"`
	SkipGcDrop   bool `json:"skipGcDrop"`
	SkipGcSafe   bool `json:"skipGcSafe"`
	SkipFinalize bool `json:"skipFinalize"`
}

// ParseTypeOptions validates type-level flags. The first duplicate or unknown
// flag is returned as a *diag.Diagnostic located at that flag.
func ParseTypeOptions(fset *token.FileSet, fs []annotation.Flag) (TypeOptions, error) {
	var canDeref, cantDrop bool
	set := binder{fset: fset, vocabulary: map[string]*bool{
		CanDeref: &canDeref,
		CantDrop: &cantDrop,
	}}
	if err := set.apply(fs); err != nil {
		return TypeOptions{}, err
	}
	return TypeOptions{EmitDeref: canDeref, EmitDrop: !cantDrop}, nil
}

// ParseFieldOptions validates field-level flags. unsafe_skip_all is expanded
// after every flag was applied, so its position relative to the flags it
// implies never matters and never counts as a duplicate.
func ParseFieldOptions(fset *token.FileSet, fs []annotation.Flag) (FieldOptions, error) {
	var opts FieldOptions
	var skipAll bool
	set := binder{fset: fset, vocabulary: map[string]*bool{
		SkipScan:          &opts.SkipScan,
		UnsafeSkipGcDeref: &opts.SkipGcDeref,
		UnsafeSkipGcDrop:  &opts.SkipGcDrop,
		UnsafeSkipGcSafe:  &opts.SkipGcSafe,
		UnsafeSkipAll:     &skipAll,
		SkipFinalize:      &opts.SkipFinalize,
	}}
	if err := set.apply(fs); err != nil {
		return FieldOptions{}, err
	}
	if skipAll {
		opts.SkipScan = true
		opts.SkipGcDeref = true
		opts.SkipGcDrop = true
		opts.SkipGcSafe = true
	}
	return opts, nil
}

// binder sets one boolean per known flag, failing on the first repeat.
type binder struct {
	fset       *token.FileSet
	vocabulary map[string]*bool
}

func (b binder) apply(fs []annotation.Flag) error {
	for _, f := range fs {
		dst, ok := b.vocabulary[f.Name]
		if !ok {
			return diag.New(b.fset, f.Pos, diag.UnknownFlag, "unknown shredder flag %s", f.Name)
		}
		if *dst {
			return diag.New(b.fset, f.Pos, diag.DuplicateFlag, "duplicate shredder flag %s", f.Name)
		}
		*dst = true
	}
	return nil
}
