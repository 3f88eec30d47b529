package build

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/pyext/setup"
)

type testEnv struct {
	cmake    *fakeCMake
	compiler *fakeCompiler
	buildDir string
	outDir   string
	parallel string // value LookupEnv reports for EnvParallelLevel, "" when unset
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		cmake:    &fakeCMake{fail: map[string]error{}},
		compiler: &fakeCompiler{env: map[string]string{}, present: map[string]bool{}, broken: map[string]bool{}},
		buildDir: filepath.Join(t.TempDir(), "build", "temp"),
		outDir:   t.TempDir(),
	}
}

func (te *testEnv) options(goos string) Options {
	return Options{
		BuildTemp: te.buildDir,
		OutputDir: te.outDir,
		Python:    "/usr/bin/python3",
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
		Toolchain: te.compiler.selector(goos),
		Runner:    te.cmake.run,
		LookupEnv: func(key string) (string, bool) {
			if key == EnvParallelLevel && te.parallel != "" {
				return te.parallel, true
			}
			return "", false
		},
		NumCPU: func() int { return 8 },
	}
}

func (te *testEnv) builder(t *testing.T, goos string, exts ...setup.Extension) *Builder {
	t.Helper()
	b, err := NewBuilder(exts, te.options(goos))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestConfigureArgs(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "linux", ext)

	c, err := b.CMake(ext, b.Env(ext))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"-S", ext.SourceDir(),
		"-B", te.buildDir,
		"-DPython3_EXECUTABLE=/usr/bin/python3",
		"-DCMAKE_LIBRARY_OUTPUT_DIRECTORY=" + te.outDir,
		"-DCMAKE_CXX_COMPILER=clang++",
		"-DCMAKE_BUILD_TYPE=Release",
	}
	if diff := cmp.Diff(want, c.ConfigureArgs()); diff != "" {
		t.Errorf("configure args mismatch (-want +got):\n%s", diff)
	}
	wantBuild := []string{"--build", te.buildDir, "--target", "pyspiel", "--config", "Release"}
	if diff := cmp.Diff(wantBuild, c.BuildArgs()); diff != "" {
		t.Errorf("build args mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigureArgsBuildType(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		t.Run(goos, func(t *testing.T) {
			te := newTestEnv(t)
			te.compiler.present["cl"] = true
			ext := newExt(t, "pyspiel")
			b := te.builder(t, goos, ext)

			c, err := b.CMake(ext, b.Env(ext))
			if err != nil {
				t.Fatal(err)
			}
			got := slices.Contains(c.ConfigureArgs(), "-DCMAKE_BUILD_TYPE=Release")
			if want := goos != "windows"; got != want {
				t.Errorf("CMAKE_BUILD_TYPE defined = %v, want %v", got, want)
			}
			if !slices.Contains(c.BuildArgs(), "Release") {
				t.Errorf("build args %v lack the configuration", c.BuildArgs())
			}
		})
	}
}

func TestConfigureArgsNoCompiler(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "windows", ext)

	c, err := b.CMake(ext, b.Env(ext))
	if err != nil {
		t.Fatal(err)
	}
	for _, arg := range c.ConfigureArgs() {
		if strings.HasPrefix(arg, "-DCMAKE_CXX_COMPILER") {
			t.Errorf("unexpected %s without a resolved compiler", arg)
		}
	}
}

func TestDebugConfig(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	opts := te.options("linux")
	opts.Debug = true
	b, err := NewBuilder([]setup.Extension{ext}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if b.Config() != ConfigDebug {
		t.Fatalf("Config() = %q, want %q", b.Config(), ConfigDebug)
	}
	c, err := b.CMake(ext, b.Env(ext))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(c.ConfigureArgs(), "-DCMAKE_BUILD_TYPE=Debug") {
		t.Errorf("configure args %v lack the Debug build type", c.ConfigureArgs())
	}
}

func TestTargetOverride(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	opts := te.options("linux")
	opts.Target = "pyspiel_full"
	b, err := NewBuilder([]setup.Extension{ext}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Target(ext); got != "pyspiel_full" {
		t.Fatalf("Target() = %q", got)
	}
	if got := b.Target(ext.WithTarget("other")); got != "pyspiel_full" {
		t.Fatalf("Target() with extension target = %q", got)
	}
}

func TestBuildExtension(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "linux", ext)

	if err := b.BuildExtension(context.Background(), ext); err != nil {
		t.Fatalf("BuildExtension: %v", err)
	}
	if diff := cmp.Diff([]string{"configure", "build"}, te.cmake.steps(false)); diff != "" {
		t.Fatalf("cmake calls mismatch (-want +got):\n%s", diff)
	}
	if fi, err := os.Stat(te.buildDir); err != nil || !fi.IsDir() {
		t.Fatalf("build directory not created: %v", err)
	}
	for _, cmd := range te.cmake.calls {
		if cmd.Dir != te.buildDir {
			t.Errorf("%v ran in %q, want %q", cmd.Args, cmd.Dir, te.buildDir)
		}
	}
}

func TestBuildExtensionConfigureFails(t *testing.T) {
	te := newTestEnv(t)
	errConfigure := errors.New("exit status 1")
	te.cmake.fail["configure"] = errConfigure
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "linux", ext)

	err := b.BuildExtension(context.Background(), ext)
	if !errors.Is(err, errConfigure) {
		t.Fatalf("BuildExtension() = %v, want configure error", err)
	}
	if diff := cmp.Diff([]string{"configure"}, te.cmake.steps(false)); diff != "" {
		t.Fatalf("build ran after a failed configure (-want +got):\n%s", diff)
	}
}

func TestParallelLevel(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		te := newTestEnv(t)
		ext := newExt(t, "pyspiel")
		b := te.builder(t, "linux", ext)
		if got := b.Env(ext).Overrides[EnvParallelLevel]; got != "8" {
			t.Fatalf("%s = %q, want 8", EnvParallelLevel, got)
		}
		if err := b.BuildExtension(context.Background(), ext); err != nil {
			t.Fatal(err)
		}
		for _, cmd := range te.cmake.calls {
			if !slices.Contains(cmd.Env, EnvParallelLevel+"=8") {
				t.Errorf("%v env lacks %s=8", cmd.Args, EnvParallelLevel)
			}
		}
	})
	t.Run("set", func(t *testing.T) {
		te := newTestEnv(t)
		te.parallel = "2"
		ext := newExt(t, "pyspiel")
		b := te.builder(t, "linux", ext)
		if v, ok := b.Env(ext).Overrides[EnvParallelLevel]; ok {
			t.Fatalf("%s overridden with %q", EnvParallelLevel, v)
		}
	})
}

func TestColor(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	opts := te.options("linux")
	opts.Color = true
	b, err := NewBuilder([]setup.Extension{ext}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Env(ext).Overrides[EnvColor]; got != "1" {
		t.Fatalf("%s = %q, want 1", EnvColor, got)
	}
}

func TestExtensionDir(t *testing.T) {
	te := newTestEnv(t)
	top := newExt(t, "pyspiel")
	nested := newExt(t, "open_spiel.python._impl")
	b := te.builder(t, "linux", top, nested)

	if got := b.ExtensionDir(top); got != te.outDir {
		t.Errorf("ExtensionDir(pyspiel) = %q, want %q", got, te.outDir)
	}
	want := filepath.Join(te.outDir, "open_spiel", "python")
	if got := b.ExtensionDir(nested); got != want {
		t.Errorf("ExtensionDir(nested) = %q, want %q", got, want)
	}
}

func TestVerify(t *testing.T) {
	te := newTestEnv(t)
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "linux", ext)

	if err := b.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got, ok := b.cxx.Resolved(); !ok || got != "clang++" {
		t.Fatalf("Resolved() = %q, %v; want clang++", got, ok)
	}
	if diff := cmp.Diff([]string{"clang++"}, te.compiler.checked); diff != "" {
		t.Fatalf("compiler checks mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyRemembersWindowsCompiler(t *testing.T) {
	te := newTestEnv(t)
	te.compiler.present["clang-cl"] = true
	ext := newExt(t, "pyspiel")
	b := te.builder(t, "windows", ext)

	if err := b.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Later builds reuse the compiler even if PATH changed.
	te.compiler.present = map[string]bool{"cl": true}
	if got := b.Env(ext).CXX; got != "clang-cl" {
		t.Fatalf("Env().CXX = %q, want clang-cl", got)
	}
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		setup   func(te *testEnv)
		kind    error
		message []string
	}{
		{
			name:    "no cmake",
			goos:    "linux",
			setup:   func(te *testEnv) { te.cmake.fail["version"] = errors.New(`exec: "cmake": executable file not found in $PATH`) },
			kind:    ErrMissingTool,
			message: []string{"CMake must be installed", "pyspiel, other"},
		},
		{
			name:    "no compiler",
			goos:    "windows",
			setup:   func(te *testEnv) {},
			kind:    ErrNoCompiler,
			message: []string{"No compatible C++ compiler", "pyspiel, other", "clang-cl.exe"},
		},
		{
			name:    "old compiler",
			goos:    "linux",
			setup:   func(te *testEnv) { te.compiler.broken["clang++"] = true },
			kind:    ErrIncompatibleCompiler,
			message: []string{"supports c++17", "Clang version >= 7.0.0"},
		},
		{
			name: "broken override",
			goos: "darwin",
			setup: func(te *testEnv) {
				te.compiler.env["CXX"] = "/opt/gcc-5/bin/g++"
				te.compiler.broken["/opt/gcc-5/bin/g++"] = true
			},
			kind:    ErrIncompatibleCompiler,
			message: []string{"supports c++17"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEnv(t)
			tt.setup(te)
			b := te.builder(t, tt.goos, newExt(t, "pyspiel"), newExt(t, "other"))

			err := b.Verify(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Fatalf("Verify() = %v, want %v", err, tt.kind)
			}
			var envErr *EnvError
			if !errors.As(err, &envErr) {
				t.Fatalf("Verify() = %T, want *EnvError", err)
			}
			for _, m := range tt.message {
				if !strings.Contains(err.Error(), m) {
					t.Errorf("error %q does not mention %q", err, m)
				}
			}
			if _, ok := b.cxx.Resolved(); ok {
				t.Error("compiler remembered after a failed check")
			}
			if steps := te.cmake.steps(true); len(steps) != 0 {
				t.Errorf("cmake ran %v after a failed check", steps)
			}
		})
	}
}

func TestVerifyCMakeExitFailure(t *testing.T) {
	te := newTestEnv(t)
	te.cmake.fail["version"] = &exec.ExitError{}
	b := te.builder(t, "linux", newExt(t, "pyspiel"))

	err := b.Verify(context.Background())
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Verify() = %v, want the exit error", err)
	}
	if errors.Is(err, ErrMissingTool) {
		t.Fatalf("Verify() = %v, a failing cmake is not a missing one", err)
	}
	if len(te.compiler.checked) != 0 {
		t.Fatal("compiler checked after cmake failed")
	}
}

func TestVerifyMinCMakeVersion(t *testing.T) {
	tests := []struct {
		found, want string
		ok          bool
	}{
		{"3.28.3", "3.17", true},
		{"3.17.0", "3.17", true},
		{"3.10.2", "3.17", false},
		{"3.10.2", "", true},
	}
	for _, tt := range tests {
		te := newTestEnv(t)
		te.cmake.version = tt.found
		ext := newExt(t, "pyspiel")
		opts := te.options("linux")
		opts.MinCMakeVersion = tt.want
		b, err := NewBuilder([]setup.Extension{ext}, opts)
		if err != nil {
			t.Fatal(err)
		}
		err = b.Verify(context.Background())
		if tt.ok && err != nil {
			t.Errorf("found %s, want >= %s: Verify() = %v", tt.found, tt.want, err)
		}
		if !tt.ok && !errors.Is(err, ErrMissingTool) {
			t.Errorf("found %s, want >= %s: Verify() = %v, want ErrMissingTool", tt.found, tt.want, err)
		}
	}
}

func TestNewBuilderPython(t *testing.T) {
	te := newTestEnv(t)
	te.compiler.present["python"] = true
	opts := te.options("linux")
	opts.Python = ""
	b, err := NewBuilder(nil, opts)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if want := filepath.Join("/fake/bin", "python"); b.Python() != want {
		t.Fatalf("Python() = %q, want %q", b.Python(), want)
	}

	te.compiler.present = map[string]bool{}
	ext := newExt(t, "pyspiel")
	_, err = NewBuilder([]setup.Extension{ext}, opts)
	if !errors.Is(err, ErrMissingTool) {
		t.Fatalf("NewBuilder() = %v, want ErrMissingTool", err)
	}
}

func TestRun(t *testing.T) {
	te := newTestEnv(t)
	b := te.builder(t, "linux", newExt(t, "pyspiel"), newExt(t, "other"))

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"version", "configure", "build", "configure", "build"}
	if diff := cmp.Diff(want, te.cmake.steps(false)); diff != "" {
		t.Fatalf("cmake calls mismatch (-want +got):\n%s", diff)
	}
	if len(te.compiler.checked) != 1 {
		t.Fatalf("compiler checked %d times, want 1", len(te.compiler.checked))
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	te := newTestEnv(t)
	errBuild := errors.New("exit status 2")
	te.cmake.fail["build"] = errBuild
	b := te.builder(t, "linux", newExt(t, "pyspiel"), newExt(t, "other"))

	err := b.Run(context.Background())
	if !errors.Is(err, errBuild) {
		t.Fatalf("Run() = %v, want build error", err)
	}
	if !strings.Contains(err.Error(), "building pyspiel") {
		t.Fatalf("Run() = %v, want it to name pyspiel", err)
	}
	if diff := cmp.Diff([]string{"configure", "build"}, te.cmake.steps(true)); diff != "" {
		t.Fatalf("second extension was built (-want +got):\n%s", diff)
	}
}

func TestRunEnvErrorStopsEarly(t *testing.T) {
	te := newTestEnv(t)
	te.compiler.broken["clang++"] = true
	b := te.builder(t, "linux", newExt(t, "pyspiel"))

	if err := b.Run(context.Background()); !errors.Is(err, ErrIncompatibleCompiler) {
		t.Fatalf("Run() = %v, want ErrIncompatibleCompiler", err)
	}
	if steps := te.cmake.steps(true); len(steps) != 0 {
		t.Fatalf("cmake ran %v", steps)
	}
}

func TestRunNoExtensions(t *testing.T) {
	te := newTestEnv(t)
	b := te.builder(t, "linux")
	if err := b.Run(context.Background()); err == nil {
		t.Fatal("Run() with no extensions succeeded")
	}
}

func TestEnvErrorFormat(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &EnvError{
		Kind:       ErrIncompatibleCompiler,
		Msg:        "A C++ compiler that supports c++17 must be installed to build the following extensions",
		Extensions: []string{"pyspiel"},
		Hint:       compilerHint,
		Err:        cause,
	}
	want := "A C++ compiler that supports c++17 must be installed to build the following extensions: pyspiel. " +
		"We recommend: Clang version >= 7.0.0 or Microsoft Visual Studio Build Tools. (exit status 1)"
	if got := err.Error(); got != want {
		t.Fatalf("Error() =\n%s\nwant\n%s", got, want)
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrIncompatibleCompiler) {
		t.Fatal("EnvError does not unwrap to its kind and cause")
	}
	if errors.Is(err, ErrNoCompiler) {
		t.Fatal("EnvError matches the wrong kind")
	}
}

func TestToolchainWriters(t *testing.T) {
	te := newTestEnv(t)
	opts := te.options("linux")
	b, err := NewBuilder(nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if b.cxx.Stdout != opts.Stdout || b.cxx.Stderr != opts.Stderr {
		t.Fatal("compiler check does not write to the builder's output")
	}
}
