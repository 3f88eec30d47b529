package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/qiniu/x/log"
	"golang.org/x/mod/semver"

	"github.com/goplus/pyext/internal/env"
	"github.com/goplus/pyext/pkgs/buildsys"
	"github.com/goplus/pyext/pkgs/buildsys/cmake"
	"github.com/goplus/pyext/pkgs/toolchain"
	"github.com/goplus/pyext/setup"
)

// Environment variables read or set by the builder.
const (
	EnvParallelLevel = "CMAKE_BUILD_PARALLEL_LEVEL"
	EnvColor         = "CLICOLOR_FORCE"
)

// Build configurations.
const (
	ConfigDebug   = "Debug"
	ConfigRelease = "Release"
)

// DefaultOutputDir receives the built modules when Options.OutputDir is
// empty.
const DefaultOutputDir = "build/lib"

var pythonCandidates = []string{"python3", "python"}

// Options controls how extensions are built.
type Options struct {
	Debug bool

	// BuildTemp is the CMake working directory. When empty each extension
	// gets its own directory under the user cache.
	BuildTemp string

	// OutputDir is the package tree root that receives the built modules.
	OutputDir string

	// Target overrides the CMake target of every extension.
	Target string

	// Python is the interpreter CMake builds against. When empty python3,
	// then python, is looked up in PATH.
	Python string

	// MinCMakeVersion rejects older CMake releases when set, e.g. "3.17".
	MinCMakeVersion string

	// Color forces colored CMake output even though it is not attached to
	// a terminal.
	Color bool

	Stdout io.Writer
	Stderr io.Writer

	// Toolchain selects the compiler. Defaults to toolchain.New().
	Toolchain *toolchain.Selector

	// Runner runs the CMake subprocesses. Defaults to running them.
	Runner cmake.Runner

	// LookupEnv reads the caller environment. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)

	// NumCPU reports the logical core count. Defaults to runtime.NumCPU.
	NumCPU func() int
}

// Env is the environment of a single extension build. It is derived fresh
// for every build and never reused.
type Env struct {
	CXX       string // empty when no compiler resolved
	Config    string // ConfigDebug or ConfigRelease
	OutputDir string
	Overrides map[string]string
}

// Builder delegates extension builds to CMake.
type Builder struct {
	exts   []setup.Extension
	opts   Options
	cxx    *toolchain.Selector
	python string
	outDir string
}

// NewBuilder returns a Builder for exts.
func NewBuilder(exts []setup.Extension, opts Options) (*Builder, error) {
	if opts.Toolchain == nil {
		opts.Toolchain = toolchain.New()
	}
	if opts.Toolchain.Stdout == nil {
		opts.Toolchain.Stdout = opts.Stdout
	}
	if opts.Toolchain.Stderr == nil {
		opts.Toolchain.Stderr = opts.Stderr
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.NumCPU == nil {
		opts.NumCPU = runtime.NumCPU
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	outDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		exts:   exts,
		opts:   opts,
		cxx:    opts.Toolchain,
		outDir: outDir,
	}
	if b.python, err = b.findPython(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) findPython() (string, error) {
	if b.opts.Python != "" {
		return b.opts.Python, nil
	}
	for _, name := range pythonCandidates {
		if path, err := b.cxx.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", &EnvError{
		Kind:       ErrMissingTool,
		Msg:        "A Python interpreter must be installed to build the following extensions",
		Extensions: setup.NameList(b.exts),
		Hint:       "Pass --python with the interpreter path.",
	}
}

// Extensions returns the extensions the builder was created for.
func (b *Builder) Extensions() []setup.Extension {
	return b.exts
}

// Python returns the interpreter CMake builds against.
func (b *Builder) Python() string {
	return b.python
}

// Config returns the CMake build configuration.
func (b *Builder) Config() string {
	if b.opts.Debug {
		return ConfigDebug
	}
	return ConfigRelease
}

// OutputDir returns the absolute package tree root.
func (b *Builder) OutputDir() string {
	return b.outDir
}

// Verify checks that CMake and a C++ compiler are usable before anything is
// compiled. The compiler found is remembered for the builds that follow.
func (b *Builder) Verify(ctx context.Context) error {
	c := b.newCMake("", "")
	version, err := c.Version(ctx)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("cmake --version: %w", err)
	}
	if err != nil {
		return &EnvError{
			Kind:       ErrMissingTool,
			Msg:        "CMake must be installed to build the following extensions",
			Extensions: setup.NameList(b.exts),
			Err:        err,
		}
	}
	if version != "" {
		log.Infof("Found CMake %s", version)
	} else {
		log.Info("Found CMake")
	}
	if err := b.checkCMakeVersion(version); err != nil {
		return err
	}

	cxx, ok := b.cxx.Select()
	if !ok {
		return &EnvError{
			Kind:       ErrNoCompiler,
			Msg:        "No compatible C++ compiler was detected to build the following extensions",
			Extensions: setup.NameList(b.exts),
			Hint:       noCompilerHint,
		}
	}
	if err := b.cxx.CheckVersion(ctx, cxx); err != nil {
		return &EnvError{
			Kind:       ErrIncompatibleCompiler,
			Msg:        "A C++ compiler that supports c++17 must be installed to build the following extensions",
			Extensions: setup.NameList(b.exts),
			Hint:       compilerHint,
			Err:        err,
		}
	}
	log.Infof("Found C++ compiler: %s", cxx)
	b.cxx.Remember(cxx)
	return nil
}

func (b *Builder) checkCMakeVersion(version string) error {
	want := b.opts.MinCMakeVersion
	if want == "" {
		return nil
	}
	if version == "" || !semver.IsValid("v"+version) {
		log.Warnf("cannot read the CMake version %q, skipping the >= %s check", version, want)
		return nil
	}
	if semver.Compare("v"+version, "v"+want) >= 0 {
		return nil
	}
	return &EnvError{
		Kind:       ErrMissingTool,
		Msg:        fmt.Sprintf("CMake >= %s is required (found %s) to build the following extensions", want, version),
		Extensions: setup.NameList(b.exts),
	}
}

// Env derives the build environment of ext.
func (b *Builder) Env(ext setup.Extension) *Env {
	cxx, _ := b.cxx.Select()
	overrides := map[string]string{}
	if _, ok := b.opts.LookupEnv(EnvParallelLevel); !ok {
		overrides[EnvParallelLevel] = strconv.Itoa(b.opts.NumCPU())
	}
	if b.opts.Color {
		overrides[EnvColor] = "1"
	}
	return &Env{
		CXX:       cxx,
		Config:    b.Config(),
		OutputDir: b.ExtensionDir(ext),
		Overrides: overrides,
	}
}

// ExtensionDir returns the directory receiving the module of ext.
func (b *Builder) ExtensionDir(ext setup.Extension) string {
	return filepath.Join(b.outDir, filepath.FromSlash(ext.PackageDir()))
}

// BuildTemp returns the CMake working directory of ext.
func (b *Builder) BuildTemp(ext setup.Extension) (string, error) {
	if b.opts.BuildTemp != "" {
		return filepath.Abs(b.opts.BuildTemp)
	}
	return env.BuildTemp(ext.Name(), b.Config())
}

// CMake returns the configured CMake invocation for ext in e.
func (b *Builder) CMake(ext setup.Extension, e *Env) (*cmake.CMake, error) {
	buildTemp, err := b.BuildTemp(ext)
	if err != nil {
		return nil, err
	}
	c := b.newCMake(ext.SourceDir(), buildTemp)
	c.Define("Python3_EXECUTABLE", b.python)
	c.Define("CMAKE_LIBRARY_OUTPUT_DIRECTORY", e.OutputDir)
	if e.CXX != "" {
		c.Define("CMAKE_CXX_COMPILER", e.CXX)
	}
	// Multi config generators on Windows take the configuration at build
	// time only.
	if !toolchain.IsWindows(b.cxx.GOOS) {
		c.Define("CMAKE_BUILD_TYPE", e.Config)
	}
	for k, v := range e.Overrides {
		c.Env(k, v)
	}
	c.Config(e.Config).Target(b.Target(ext))
	return c, nil
}

// Target returns the CMake target built for ext.
func (b *Builder) Target(ext setup.Extension) string {
	if b.opts.Target != "" {
		return b.opts.Target
	}
	return ext.Target()
}

func (b *Builder) newCMake(sourceDir, buildDir string) *cmake.CMake {
	c := cmake.New(sourceDir, buildDir)
	c.Stdout = b.opts.Stdout
	c.Stderr = b.opts.Stderr
	c.Runner = b.opts.Runner
	return c
}

// BuildExtension configures and builds the single target producing ext.
func (b *Builder) BuildExtension(ctx context.Context, ext setup.Extension) error {
	c, err := b.CMake(ext, b.Env(ext))
	if err != nil {
		return err
	}
	return delegate(ctx, c)
}

func delegate(ctx context.Context, bs buildsys.BuildSystem) error {
	if err := bs.Configure(ctx); err != nil {
		return fmt.Errorf("cmake configure: %w", err)
	}
	if err := bs.Build(ctx); err != nil {
		return fmt.Errorf("cmake build: %w", err)
	}
	return nil
}

// Run verifies the environment once, then builds every extension in order.
// The first failure aborts the run.
func (b *Builder) Run(ctx context.Context) error {
	if len(b.exts) == 0 {
		return errors.New("no extensions to build")
	}
	if err := b.Verify(ctx); err != nil {
		return err
	}
	for _, ext := range b.exts {
		log.Infof("building extension %s (target %s, %s)", ext.Name(), b.Target(ext), b.Config())
		if err := b.BuildExtension(ctx, ext); err != nil {
			return fmt.Errorf("building %s: %w", ext.Name(), err)
		}
	}
	return nil
}
