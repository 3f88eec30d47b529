package env

import (
	"os"
	"path/filepath"
)

// WorkDir returns <UserCacheDir>/.pyext, the root of all pyext state.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".pyext"), nil
}

// BuildTemp returns the default CMake working directory for an extension:
// <WorkDir>/build/<name>/<config>. The directory is not created; the
// configure step creates it on demand.
func BuildTemp(name, config string) (string, error) {
	workDir, err := WorkDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(workDir, "build", name, config), nil
}
