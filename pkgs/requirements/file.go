package requirements

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the conventional name of a requirements file.
const FileName = "requirements.txt"

// Parse returns the dependency specifiers listed in a requirements file.
// If data is non-nil it is parsed instead of reading file.
func Parse(file string, data []byte) ([]string, error) {
	var reader io.Reader

	if data != nil {
		reader = bytes.NewBuffer(data)
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	var reqs []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if req := ParseLine(scanner.Text()); req != "" {
			reqs = append(reqs, req)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ParseLine strips an inline "#" comment and surrounding whitespace.
func ParseLine(line string) string {
	req, _, _ := strings.Cut(line, "#")
	return strings.TrimSpace(req)
}

// Find returns the first requirements file found in dirs. When installing
// from an sdist the file sits next to the build script, in a checkout it is
// one level up.
func Find(dirs ...string) (string, error) {
	for _, dir := range dirs {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &os.PathError{Op: "find", Path: FileName, Err: os.ErrNotExist}
}
