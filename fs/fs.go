package fs

import (
	i_fs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FS is an interface abstracting the file system operations used by the
// scanner and the generator. This allows for testable code by replacing the
// file system.
type FS interface {
	Stat(name string) (i_fs.FileInfo, error)
	ReadDir(name string) ([]i_fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WalkDir(root string, fn i_fs.WalkDirFunc) error
}

// osFS implements FS using the underlying os package. This is the default
// implementation used for real file system operations.
type osFS struct{}

// NewOSFS creates a new osFS instance.
func NewOSFS() FS {
	return &osFS{}
}

func (f *osFS) Stat(name string) (i_fs.FileInfo, error) {
	return os.Stat(name)
}

func (f *osFS) ReadDir(name string) ([]i_fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (f *osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (f *osFS) WalkDir(root string, fn i_fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// Overlay replaces the contents of files, or adds files that do not exist on
// disk. Keys are absolute, cleaned paths.
type Overlay map[string][]byte

// WithOverlay returns an FS that serves files from overlay first and falls
// back to base. Directories of overlay files must exist in base.
func WithOverlay(base FS, overlay Overlay) FS {
	if len(overlay) == 0 {
		return base
	}
	return &overlayFS{base: base, overlay: overlay}
}

type overlayFS struct {
	base    FS
	overlay Overlay
}

func (f *overlayFS) Stat(name string) (i_fs.FileInfo, error) {
	if content, ok := f.overlay[filepath.Clean(name)]; ok {
		return overlayInfo{name: filepath.Base(name), size: int64(len(content))}, nil
	}
	return f.base.Stat(name)
}

func (f *overlayFS) ReadFile(name string) ([]byte, error) {
	if content, ok := f.overlay[filepath.Clean(name)]; ok {
		return content, nil
	}
	return f.base.ReadFile(name)
}

func (f *overlayFS) ReadDir(name string) ([]i_fs.DirEntry, error) {
	entries, err := f.base.ReadDir(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Clean(name)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.Name()] = true
	}
	for path, content := range f.overlay {
		if filepath.Dir(path) != dir || seen[filepath.Base(path)] {
			continue
		}
		info := overlayInfo{name: filepath.Base(path), size: int64(len(content))}
		entries = append(entries, i_fs.FileInfoToDirEntry(info))
	}
	slices.SortFunc(entries, func(a, b i_fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

// WalkDir walks base; files that exist only in the overlay are not visited.
func (f *overlayFS) WalkDir(root string, fn i_fs.WalkDirFunc) error {
	return f.base.WalkDir(root, fn)
}

type overlayInfo struct {
	name string
	size int64
}

func (i overlayInfo) Name() string { return i.name }
func (i overlayInfo) Size() int64 { return i.size }
func (i overlayInfo) Mode() i_fs.FileMode { return 0o644 }
func (i overlayInfo) ModTime() time.Time { return time.Time{} }
func (i overlayInfo) IsDir() bool { return false }
func (i overlayInfo) Sys() any { return nil }
