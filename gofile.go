package derivinggc

import (
	"bytes"
	"context"
	"fmt"
	i_fs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/tools/imports"
)

// GeneratedHeader is the first line of every generated file.
const GeneratedHeader = "// Code generated by derivinggc. DO NOT EDIT."

// FileWriter is an interface for writing files.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte, perm i_fs.FileMode) error
}

type contextKey string

// FileWriterKey is the context key of the FileWriter used by WriteFile.
// Tests and the dry-run mode put their own writer under this key.
const FileWriterKey contextKey = "fileWriter"

type defaultFileWriter struct{}

func (w *defaultFileWriter) WriteFile(ctx context.Context, path string, data []byte, perm i_fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// WriteFile writes data with the FileWriter found in ctx, or to disk.
func WriteFile(ctx context.Context, path string, data []byte) error {
	writer, ok := ctx.Value(FileWriterKey).(FileWriter)
	if !ok {
		writer = &defaultFileWriter{}
	}
	return writer.WriteFile(ctx, path, data, 0644)
}

// GoFile is the content of a generated Go file.
type GoFile struct {
	PackageName string
	// Imports maps import paths to import names.
	Imports map[string]string
	CodeSet string
}

// Format assembles the file and formats it. filename is the path the file
// is saved to; it names the file in the directives restoring positions after
// error markers.
func (f GoFile) Format(filename string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\npackage %s\n", GeneratedHeader, f.PackageName)

	if len(f.Imports) > 0 {
		paths := make([]string, 0, len(f.Imports))
		for p := range f.Imports {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		if len(paths) == 1 {
			fmt.Fprintf(&buf, "\nimport %s\n", importSpec(paths[0], f.Imports[paths[0]]))
		} else {
			buf.WriteString("\nimport (\n")
			for _, p := range paths {
				fmt.Fprintf(&buf, "\t%s\n", importSpec(p, f.Imports[p]))
			}
			buf.WriteString(")\n")
		}
	}
	buf.WriteString(f.CodeSet)

	// FormatOnly: imports are managed by ImportManager, and resolving
	// missing ones would load packages.
	formatted, err := imports.Process(filename, buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("goimports failed: %w\n%s", err, buf.String())
	}
	return restorePositions(formatted, filename), nil
}

var blockLineDirective = []byte("/*line ")

// restorePositions follows every line holding a /*line directive with a
// //line directive giving the next line its real position in filename.
func restorePositions(src []byte, filename string) []byte {
	if !bytes.Contains(src, blockLineDirective) {
		return src
	}
	name := filepath.Base(filename)
	var buf bytes.Buffer
	n := 0 // lines written so far
	for _, line := range bytes.SplitAfter(src, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		buf.Write(line)
		n++
		if bytes.Contains(line, blockLineDirective) {
			n++
			fmt.Fprintf(&buf, "//line %s:%d:1\n", name, n+1)
		}
	}
	return buf.Bytes()
}

func importSpec(importPath, alias string) string {
	if alias == "" || alias == path.Base(importPath) {
		return strconv.Quote(importPath)
	}
	return alias + " " + strconv.Quote(importPath)
}

// PackageDirectory is the directory generated files of a package are saved to.
type PackageDirectory struct {
	Path        string
	PackageName string
}

// NewPackageDirectory creates a new PackageDirectory.
func NewPackageDirectory(path, packageName string) *PackageDirectory {
	return &PackageDirectory{Path: path, PackageName: packageName}
}

// SaveGoFile formats f and writes it as filename in the directory, with the
// FileWriter found in ctx. It returns the written path.
func (d *PackageDirectory) SaveGoFile(ctx context.Context, f GoFile, filename string) (string, error) {
	if f.PackageName == "" {
		f.PackageName = d.PackageName
	}
	output := filepath.Join(d.Path, filename)
	content, err := f.Format(output)
	if err != nil {
		return "", fmt.Errorf("failed to format %s: %w", output, err)
	}
	if err := WriteFile(ctx, output, content); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", output, err)
	}
	return output, nil
}
