package derivinggc

import (
	"fmt"
	"go/token"
	"path"
	"strings"
	"sync"
)

// ImportManager picks the import names used by a generated file.
// An import name never collides with another import, a Go keyword or
// predeclared identifier, or a reserved identifier (package-level names of the
// target package and the identifiers the generated methods declare).
type ImportManager struct {
	mu                 sync.Mutex
	currentPackagePath string
	imports            map[string]string // import path -> alias
	aliasesInUse       map[string]string // alias -> import path ("" for reserved names)
}

var goKeywords = map[string]bool{
	"break":       true,
	"case":        true,
	"chan":        true,
	"const":       true,
	"continue":    true,
	"default":     true,
	"defer":       true,
	"else":        true,
	"fallthrough": true,
	"for":         true,
	"func":        true,
	"go":          true,
	"goto":        true,
	"if":          true,
	"import":      true,
	"interface":   true,
	"map":         true,
	"package":     true,
	"range":       true,
	"return":      true,
	"select":      true,
	"struct":      true,
	"switch":      true,
	"type":        true,
	"var":         true,
	// predeclared identifiers
	"true":    true,
	"false":   true,
	"iota":    true,
	"nil":     true,
	"append":  true,
	"cap":     true,
	"clear":   true,
	"close":   true,
	"complex": true,
	"copy":    true,
	"delete":  true,
	"imag":    true,
	"len":     true,
	"make":    true,
	"max":     true,
	"min":     true,
	"new":     true,
	"panic":   true,
	"print":   true,
	"println": true,
	"real":    true,
	"recover": true,
}

// NewImportManager creates a new ImportManager for a file of the package
// with the given import path. currentPackagePath may be empty.
func NewImportManager(currentPackagePath string) *ImportManager {
	return &ImportManager{
		currentPackagePath: currentPackagePath,
		imports:            make(map[string]string),
		aliasesInUse:       make(map[string]string),
	}
}

// Reserve marks identifiers that must not be used as import names.
func (im *ImportManager) Reserve(names ...string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	for _, name := range names {
		if _, ok := im.aliasesInUse[name]; !ok {
			im.aliasesInUse[name] = ""
		}
	}
}

// Add registers an import path and its desired alias.
// It handles conflicts by adjusting aliases if necessary.
// Returns the actual alias that should be used for the package.
// If the path is the current package's path, it returns an empty string (no alias needed for qualification).
func (im *ImportManager) Add(importPath string, requestedAlias string) string {
	im.mu.Lock()
	defer im.mu.Unlock()

	if importPath == "" {
		return ""
	}
	if im.currentPackagePath != "" && importPath == im.currentPackagePath {
		return ""
	}
	if alias, ok := im.imports[importPath]; ok {
		return alias
	}

	aliasCandidate := requestedAlias
	if aliasCandidate == "" {
		aliasCandidate = defaultAlias(importPath)
	}
	aliasCandidate = sanitizeAlias(aliasCandidate)
	if goKeywords[aliasCandidate] {
		aliasCandidate += "_pkg"
	}
	if !token.IsIdentifier(aliasCandidate) {
		aliasCandidate = "pkg_" + aliasCandidate
		if !token.IsIdentifier(aliasCandidate) {
			var h uint32
			for _, r := range importPath {
				h = h*31 + uint32(r)
			}
			aliasCandidate = fmt.Sprintf("p%x", h)
		}
	}

	finalAlias := aliasCandidate
	for counter := 1; ; counter++ {
		existing, inUse := im.aliasesInUse[finalAlias]
		if !goKeywords[finalAlias] && (!inUse || existing == importPath) {
			break
		}
		finalAlias = fmt.Sprintf("%s%d", aliasCandidate, counter)
	}

	im.imports[importPath] = finalAlias
	im.aliasesInUse[finalAlias] = importPath
	return finalAlias
}

// Imports returns a copy of the map of import paths to aliases for use in GoFile.
func (im *ImportManager) Imports() map[string]string {
	im.mu.Lock()
	defer im.mu.Unlock()

	importsCopy := make(map[string]string, len(im.imports))
	for p, alias := range im.imports {
		importsCopy[p] = alias
	}
	return importsCopy
}

// defaultAlias guesses the package name from the import path, skipping a
// major version suffix ("example.com/lib/v2" -> "lib").
func defaultAlias(importPath string) string {
	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' && strings.Trim(base[1:], "0123456789") == "" {
		if parent := path.Dir(importPath); parent != "." && parent != "/" {
			base = path.Base(parent)
		}
	}
	return strings.TrimPrefix(base, "go-")
}

func sanitizeAlias(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, ".", "_")
}
