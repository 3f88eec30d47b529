// Package manifest renders the package metadata file (PKG-INFO) that ships
// next to the built extensions.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/goplus/pyext/pkgs/requirements"
	"github.com/goplus/pyext/setup"
)

// MetadataVersion is the core metadata version rendered by WriteTo.
const MetadataVersion = "2.1"

// FileName is the conventional manifest file name.
const FileName = "PKG-INFO"

// ZipSafeFile returns the name of the empty marker file recording whether
// the package can be imported from a zip archive.
func ZipSafeFile(zipSafe bool) string {
	if zipSafe {
		return "zip-safe"
	}
	return "not-zip-safe"
}

// Manifest is the package metadata together with its runtime requirements.
type Manifest struct {
	Meta            *setup.Metadata
	Requirements    []string
	LongDescription string
}

// New returns a Manifest. requirements are emitted in the given order.
func New(meta *setup.Metadata, requirements []string, longDescription string) *Manifest {
	return &Manifest{Meta: meta, Requirements: requirements, LongDescription: longDescription}
}

// Load assembles the manifest of meta: the requirements file is searched in
// meta.RequirementDirs and the long description read from its file. A
// missing requirements file is fatal.
func Load(meta *setup.Metadata) (*Manifest, error) {
	file, err := requirements.Find(meta.RequirementDirs()...)
	if err != nil {
		return nil, fmt.Errorf("locating requirements: %w", err)
	}
	reqs, err := requirements.Parse(file, nil)
	if err != nil {
		return nil, err
	}
	log.Debugf("read %d requirements from %s", len(reqs), file)

	long, err := meta.ReadLongDescription()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warnf("long description %s not found, leaving it empty", meta.LongDescription)
	case err != nil:
		return nil, err
	}
	return New(meta, reqs, long), nil
}

// WriteTo renders the manifest to w.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: bufio.NewWriter(w)}
	meta := m.Meta

	header(cw, "Metadata-Version", MetadataVersion)
	header(cw, "Name", meta.Name)
	header(cw, "Version", meta.Version)
	header(cw, "Summary", meta.Description)
	header(cw, "Home-page", meta.URL)
	header(cw, "Author", meta.Author)
	header(cw, "Author-email", meta.AuthorEmail)
	header(cw, "License", meta.License)
	header(cw, "Requires-Python", meta.PythonRequires)
	if m.LongDescription != "" {
		header(cw, "Description-Content-Type", meta.LongDescriptionContentType)
	}
	for _, req := range m.Requirements {
		header(cw, "Requires-Dist", req)
	}
	if m.LongDescription != "" {
		fmt.Fprintf(cw, "\n%s", m.LongDescription)
		if !strings.HasSuffix(m.LongDescription, "\n") {
			io.WriteString(cw, "\n")
		}
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Bytes returns the rendered manifest.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	m.WriteTo(&buf)
	return buf.Bytes()
}

// Write replaces path with the rendered manifest, atomically where the
// platform supports it.
func (m *Manifest) Write(path string) error {
	if err := writeFile(path, m.Bytes()); err != nil {
		return err
	}
	log.Infof("wrote %s", path)
	return nil
}

// header writes one field, skipping empty values. Continuation lines are
// indented so multi line values such as a full license text stay in one
// field.
func header(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	value = strings.ReplaceAll(strings.TrimRight(value, "\n"), "\n", "\n        ")
	fmt.Fprintf(w, "%s: %s\n", key, value)
}

type countWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
