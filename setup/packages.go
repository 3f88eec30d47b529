package setup

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// PackageMarker is the file that makes a directory a Python package.
const PackageMarker = "__init__.py"

// FindPackages returns the dotted names of the packages under Dir matching
// the Packages patterns, sorted. A package is a directory holding
// PackageMarker whose parents are packages too; "*" in a pattern matches
// any run of characters, dots included.
func (m *Metadata) FindPackages() ([]string, error) {
	if len(m.Packages) == 0 {
		return nil, nil
	}
	var found []string
	var walk func(dir, name string) error
	walk = func(dir, name string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() || strings.Contains(e.Name(), ".") {
				continue
			}
			sub := filepath.Join(dir, e.Name())
			if _, err := os.Stat(filepath.Join(sub, PackageMarker)); err != nil {
				continue
			}
			pkg := e.Name()
			if name != "" {
				pkg = name + "." + pkg
			}
			if m.includesPackage(pkg) {
				found = append(found, pkg)
			}
			if err := walk(sub, pkg); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(m.Dir(), ""); err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

func (m *Metadata) includesPackage(pkg string) bool {
	for _, pattern := range m.Packages {
		// Dotted names carry no slashes, so path.Match lets "*" span dots.
		if ok, _ := path.Match(pattern, pkg); ok {
			return true
		}
	}
	return false
}

// PackageDir returns the slash separated directory of the dotted package
// name, relative to Dir.
func PackageDir(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "/")
}
