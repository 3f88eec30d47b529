package internal

import "os"

// plainFile writes dest in place; renameio offers no atomic replace on
// Windows.
type plainFile struct {
	*os.File
	closed bool
}

func createPending(dest string) (pendingFile, error) {
	f, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	return &plainFile{File: f}, nil
}

func (f *plainFile) Cleanup() error {
	if f.closed {
		return nil
	}
	f.File.Close()
	return os.Remove(f.Name())
}

func (f *plainFile) CloseAtomicallyReplace() error {
	f.closed = true
	return f.File.Close()
}
