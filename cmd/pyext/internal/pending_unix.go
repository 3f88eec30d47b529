//go:build !windows

package internal

import "github.com/google/renameio"

func createPending(dest string) (pendingFile, error) {
	t, err := renameio.TempFile("", dest)
	if err != nil {
		return nil, err
	}
	return t, nil
}
