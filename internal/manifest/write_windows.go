package manifest

import "os"

// renameio offers no atomic replace on Windows.
func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
