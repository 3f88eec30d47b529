package build

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/goplus/pyext/pkgs/toolchain"
	"github.com/goplus/pyext/setup"
)

// fakeCMake records CMake invocations instead of running them.
type fakeCMake struct {
	version string
	fail    map[string]error // keyed by step: "version", "configure", "build"
	calls   []*exec.Cmd
}

func step(cmd *exec.Cmd) string {
	if len(cmd.Args) < 2 {
		return ""
	}
	switch cmd.Args[1] {
	case "--version":
		return "version"
	case "-S":
		return "configure"
	case "--build":
		return "build"
	}
	return cmd.Args[1]
}

func (f *fakeCMake) run(cmd *exec.Cmd) error {
	f.calls = append(f.calls, cmd)
	s := step(cmd)
	if err := f.fail[s]; err != nil {
		return err
	}
	if s == "version" {
		v := f.version
		if v == "" {
			v = "3.28.3"
		}
		fmt.Fprintf(cmd.Stdout, "cmake version %s\n", v)
	}
	return nil
}

// steps returns the step names of the recorded calls, skipping the version
// query when skipVersion is set.
func (f *fakeCMake) steps(skipVersion bool) []string {
	var out []string
	for _, cmd := range f.calls {
		s := step(cmd)
		if skipVersion && s == "version" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// fakeCompiler is a toolchain whose lookups and version checks are scripted.
type fakeCompiler struct {
	env     map[string]string
	present map[string]bool
	broken  map[string]bool
	checked []string
}

func (f *fakeCompiler) selector(goos string) *toolchain.Selector {
	return &toolchain.Selector{
		GOOS:   goos,
		Getenv: func(key string) string { return f.env[key] },
		LookPath: func(file string) (string, error) {
			if f.present[file] {
				return filepath.Join("/fake/bin", file), nil
			}
			return "", errors.New("executable file not found")
		},
		Run: func(ctx context.Context, name string, args ...string) error {
			f.checked = append(f.checked, name)
			if f.broken[name] {
				return errors.New("exit status 1")
			}
			return nil
		},
	}
}

func newExt(t *testing.T, name string) setup.Extension {
	t.Helper()
	ext, err := setup.NewExtension(name, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return ext
}
