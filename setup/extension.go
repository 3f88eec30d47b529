package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// -----------------------------------------------------------------------------

// Extension describes a native module whose compilation is delegated to
// CMake. It carries no sources: CMake owns the build graph.
type Extension struct {
	name      string
	sourceDir string
	target    string
}

// NewExtension returns an Extension rooted at sourceDir, which is resolved
// to an absolute path and must be an existing directory. An empty sourceDir
// means the current directory.
func NewExtension(name, sourceDir string) (Extension, error) {
	if name == "" {
		return Extension{}, fmt.Errorf("extension name is empty")
	}
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return Extension{}, fmt.Errorf("extension %s: %w", name, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Extension{}, fmt.Errorf("extension %s: %w", name, err)
	}
	if !info.IsDir() {
		return Extension{}, fmt.Errorf("extension %s: %s is not a directory", name, abs)
	}
	return Extension{name: name, sourceDir: abs}, nil
}

// WithTarget returns a copy of e that builds target instead of the target
// named after the extension.
func (e Extension) WithTarget(target string) Extension {
	e.target = target
	return e
}

// Name returns the dotted module name, e.g. "pyspiel" or "pkg.sub._impl".
func (e Extension) Name() string {
	return e.name
}

// SourceDir returns the absolute directory holding the top CMakeLists.txt.
func (e Extension) SourceDir() string {
	return e.sourceDir
}

// Target returns the CMake target producing the module.
func (e Extension) Target() string {
	if e.target != "" {
		return e.target
	}
	return e.name[strings.LastIndex(e.name, ".")+1:]
}

// PackageDir returns the slash separated directory of the module inside the
// package tree: "" for "pyspiel", "pkg/sub" for "pkg.sub._impl".
func (e Extension) PackageDir() string {
	i := strings.LastIndex(e.name, ".")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(e.name[:i], ".", "/")
}

// NameList returns the names of exts in order.
func NameList(exts []Extension) []string {
	names := make([]string, len(exts))
	for i, ext := range exts {
		names[i] = ext.name
	}
	return names
}

// Names joins the names of exts for user facing messages.
func Names(exts []Extension) string {
	return strings.Join(NameList(exts), ", ")
}

// -----------------------------------------------------------------------------
