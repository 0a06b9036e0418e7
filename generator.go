package derivinggc

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/podhmo/derivinggc/astwalk"
	"github.com/podhmo/derivinggc/diag"
	"github.com/podhmo/derivinggc/scanner"
)

// generatorVersion is part of the cache digest; bump it when the generated
// code changes for identical inputs.
const generatorVersion = 1

// identifiers declared by the generated methods themselves
var generatedIdents = []string{"v", "scanner"}

// Generator builds the generated file of a package.
type Generator struct {
	cfg *Config
}

// NewGenerator creates a new Generator.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{cfg: cfg}
}

// Output is the generated file of one package.
type Output struct {
	Package *scanner.PackageInfo
	// Filename is the base name of the generated file.
	Filename string
	// File is nil when no type of the package requests a derive.
	File        *GoFile
	Results     []Result
	Diagnostics []*diag.Diagnostic
}

// Generate runs the derives of every annotated type of pkg, in source order.
// A failed derive contributes an error marker instead of code, so that the
// file still compiles up to the marker and `go build` reports the problem at
// its source location.
func (g *Generator) Generate(ctx context.Context, pkg *scanner.PackageInfo) (*Output, error) {
	logger := g.cfg.logger()
	out := &Output{Package: pkg, Filename: g.cfg.OutputName(pkg.Name)}

	rt := g.cfg.Runtime()
	im := NewImportManager(pkg.ImportPath)
	im.Reserve(generatedIdents...)
	for _, path := range pkg.Files {
		for name := range astwalk.ToplevelNames(pkg.AstFiles[path]) {
			im.Reserve(name)
		}
	}
	// type parameters are in scope in the methods of their type
	for _, t := range pkg.Types {
		if len(Derives(t)) > 0 {
			im.Reserve(t.TypeParams...)
		}
	}
	opts := g.cfg.DeriveOptions()
	opts.Qualifier = im.Add(rt.Package, rt.Name)

	var code bytes.Buffer
	usesRuntime := false
	emitted := map[string]bool{}
	for _, t := range pkg.Types {
		derives := Derives(t)
		if len(derives) == 0 {
			continue
		}
		results, err := Process(pkg.Fset, t, derives, opts)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			out.Results = append(out.Results, r)
			if r.Failed() {
				out.Diagnostics = append(out.Diagnostics, r.Diagnostic)
				key := r.Diagnostic.Error()
				if emitted[key] {
					continue
				}
				emitted[key] = true
				code.WriteString("\n")
				code.Write(diag.Marker(r.Diagnostic))
				logger.DebugContext(ctx, "derive failed", slog.String("type", t.Name), slog.String("derive", r.Derive.String()), slog.Any("error", r.Diagnostic))
				continue
			}
			usesRuntime = usesRuntime || r.UsesRuntime()
			code.WriteString("\n")
			code.Write(r.Code)
		}
	}
	out.Diagnostics = diag.Dedup(out.Diagnostics)

	if len(out.Results) == 0 {
		return out, nil
	}
	imports := im.Imports()
	if !usesRuntime {
		delete(imports, rt.Package)
	}
	out.File = &GoFile{
		PackageName: pkg.Name,
		Imports:     imports,
		CodeSet:     code.String(),
	}
	logger.DebugContext(ctx, "generated package", slog.String("package", pkg.ImportPath), slog.Int("results", len(out.Results)), slog.Int("diagnostics", len(out.Diagnostics)))
	return out, nil
}
