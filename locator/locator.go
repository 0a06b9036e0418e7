package locator

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/podhmo/derivinggc/fs"
)

// Locator finds the module root and maps between directories and import
// paths inside that module.
type Locator struct {
	modulePath string
	rootDir    string
	replaces   []*modfile.Replace
	fs         fs.FS
}

// New creates a new Locator by searching for a go.mod file.
// It starts searching from startPath and moves up the directory tree.
// A nil fsys means the OS file system.
func New(startPath string, fsys fs.FS) (*Locator, error) {
	if fsys == nil {
		fsys = fs.NewOSFS()
	}
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", startPath, err)
	}

	rootDir, err := FindModuleRoot(fsys, absPath)
	if err != nil {
		return nil, err
	}

	goModFilePath := filepath.Join(rootDir, "go.mod")
	content, err := fsys.ReadFile(goModFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read go.mod at %s: %w", goModFilePath, err)
	}

	mf, err := modfile.Parse(goModFilePath, content, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", goModFilePath, err)
	}
	if mf.Module == nil || mf.Module.Mod.Path == "" {
		return nil, fmt.Errorf("module path not found in %s", goModFilePath)
	}

	return &Locator{
		modulePath: mf.Module.Mod.Path,
		rootDir:    rootDir,
		replaces:   mf.Replace,
		fs:         fsys,
	}, nil
}

// RootDir returns the project's root directory (where go.mod is located).
func (l *Locator) RootDir() string {
	return l.rootDir
}

// ModulePath returns the module path from go.mod.
func (l *Locator) ModulePath() string {
	return l.modulePath
}

// ImportPath returns the import path of the package in dir, which must be
// inside the module.
func (l *Locator) ImportPath(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	rel, err := filepath.Rel(l.rootDir, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("directory %s is outside module %s (root: %s)", dir, l.modulePath, l.rootDir)
	}
	if rel == "." {
		return l.modulePath, nil
	}
	return path.Join(l.modulePath, filepath.ToSlash(rel)), nil
}

// FindPackageDir converts an import path to a physical directory path.
// Packages of the current module and of modules replaced by a local
// directory are supported.
func (l *Locator) FindPackageDir(importPath string) (string, error) {
	if err := module.CheckImportPath(importPath); err != nil {
		return "", fmt.Errorf("invalid import path %q: %w", importPath, err)
	}
	for _, r := range l.replaces {
		rest, ok := cutModulePrefix(importPath, r.Old.Path)
		if !ok || !modfile.IsDirectoryPath(r.New.Path) {
			continue
		}
		base := r.New.Path
		if !filepath.IsAbs(base) {
			base = filepath.Join(l.rootDir, base)
		}
		candidate := filepath.Join(base, filepath.FromSlash(rest))
		if l.isDir(candidate) {
			return candidate, nil
		}
	}
	if rest, ok := cutModulePrefix(importPath, l.modulePath); ok {
		candidate := filepath.Join(l.rootDir, filepath.FromSlash(rest))
		if l.isDir(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("import path %q could not be resolved. Current module is %q (root: %s)", importPath, l.modulePath, l.rootDir)
}

func (l *Locator) isDir(p string) bool {
	stat, err := l.fs.Stat(p)
	return err == nil && stat.IsDir()
}

// cutModulePrefix reports whether importPath is modulePath or a package
// below it, and returns the remaining slash separated path.
func cutModulePrefix(importPath, modulePath string) (string, bool) {
	if importPath == modulePath {
		return "", true
	}
	rest, ok := strings.CutPrefix(importPath, modulePath+"/")
	return rest, ok
}

// FindModuleRoot searches for a go.mod starting from dir and moving upwards.
func FindModuleRoot(fsys fs.FS, dir string) (string, error) {
	currentDir := dir
	for {
		if _, err := fsys.Stat(filepath.Join(currentDir, "go.mod")); err == nil {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", fmt.Errorf("go.mod not found in or above %s", dir)
		}
		currentDir = parentDir
	}
}
