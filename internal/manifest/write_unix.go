//go:build !windows

package manifest

import "github.com/google/renameio"

func writeFile(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}
