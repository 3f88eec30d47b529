package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"
)

// DefaultFile is the metadata file looked up by the command line.
const DefaultFile = "setup.toml"

// ExtensionConfig declares one extension in setup.toml.
type ExtensionConfig struct {
	Name      string `toml:"name"`
	SourceDir string `toml:"sourcedir"`
	Target    string `toml:"target,omitempty"`
}

// Metadata holds the static package fields. Nothing here is computed; the
// values pass straight through to the manifest.
type Metadata struct {
	Name                       string   `toml:"name"`
	Version                    string   `toml:"version"`
	License                    string   `toml:"license"`
	Author                     string   `toml:"author"`
	AuthorEmail                string   `toml:"author_email"`
	Description                string   `toml:"description"`
	LongDescription            string   `toml:"long_description"`
	LongDescriptionContentType string   `toml:"long_description_content_type"`
	URL                        string   `toml:"url"`
	PythonRequires             string   `toml:"python_requires"`
	Packages                   []string `toml:"packages"`
	ZipSafe                    bool     `toml:"zip_safe"`

	// RequirementsSearch lists the directories searched for
	// requirements.txt, first hit wins.
	RequirementsSearch []string `toml:"requirements_search"`

	Extensions []ExtensionConfig `toml:"extension"`

	// dir is the directory of the file the metadata was loaded from.
	dir string
}

// LoadMetadata decodes a setup.toml file. Relative paths inside it are
// resolved against the file's directory.
func LoadMetadata(file string) (*Metadata, error) {
	var m Metadata
	if _, err := toml.DecodeFile(file, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	dir, err := filepath.Abs(filepath.Dir(file))
	if err != nil {
		return nil, err
	}
	m.dir = dir
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &m, nil
}

func (m *Metadata) applyDefaults() {
	if m.LongDescription == "" {
		m.LongDescription = "README.md"
	}
	if m.LongDescriptionContentType == "" {
		m.LongDescriptionContentType = "text/markdown"
	}
	if len(m.RequirementsSearch) == 0 {
		m.RequirementsSearch = []string{".", ".."}
	}
}

var specifierOps = []string{"===", "==", "!=", "~=", ">=", "<=", ">", "<"}

// Validate reports missing or malformed fields.
func (m *Metadata) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.Version == "" {
		errs = append(errs, errors.New("version is required"))
	} else if !semver.IsValid("v" + m.Version) {
		errs = append(errs, fmt.Errorf("version %q is not a semantic version", m.Version))
	}
	if m.PythonRequires != "" {
		for _, clause := range strings.Split(m.PythonRequires, ",") {
			if !hasSpecifierOp(strings.TrimSpace(clause)) {
				errs = append(errs, fmt.Errorf("python_requires clause %q has no comparison operator", clause))
			}
		}
	}
	for i, ext := range m.Extensions {
		if ext.Name == "" {
			errs = append(errs, fmt.Errorf("extension #%d has no name", i+1))
		}
	}
	return errors.Join(errs...)
}

func hasSpecifierOp(clause string) bool {
	for _, op := range specifierOps {
		if strings.HasPrefix(clause, op) {
			return true
		}
	}
	return false
}

// Dir returns the directory relative paths are resolved against.
func (m *Metadata) Dir() string {
	if m.dir == "" {
		return "."
	}
	return m.dir
}

// Path resolves p against Dir unless it is already absolute.
func (m *Metadata) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir(), p)
}

// ReadLongDescription returns the contents of the long description file.
func (m *Metadata) ReadLongDescription() (string, error) {
	data, err := os.ReadFile(m.Path(m.LongDescription))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RequirementDirs returns the absolute directories searched for the
// requirements file.
func (m *Metadata) RequirementDirs() []string {
	dirs := make([]string, len(m.RequirementsSearch))
	for i, r := range m.RequirementsSearch {
		dirs[i] = m.Path(r)
	}
	return dirs
}

// Exts builds the declared extensions. Without any declaration the package
// ships a single "pyspiel" module built from "open_spiel".
func (m *Metadata) Exts() ([]Extension, error) {
	decls := m.Extensions
	if len(decls) == 0 {
		decls = []ExtensionConfig{{Name: "pyspiel", SourceDir: "open_spiel"}}
	}
	exts := make([]Extension, 0, len(decls))
	for _, decl := range decls {
		ext, err := NewExtension(decl.Name, m.Path(decl.SourceDir))
		if err != nil {
			return nil, err
		}
		if decl.Target != "" {
			ext = ext.WithTarget(decl.Target)
		}
		exts = append(exts, ext)
	}
	return exts, nil
}
