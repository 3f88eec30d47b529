// Package toolchain selects the C++ compiler handed to CMake and checks that
// it can be launched.
package toolchain

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sys/execabs"
)

// EnvCXX is the environment variable that overrides compiler selection.
const EnvCXX = "CXX"

// DefaultCXX is assumed on platforms that do not probe for a compiler.
const DefaultCXX = "clang++"

// windowsCandidates are probed in order on Windows.
var windowsCandidates = []string{"clang-cl", "cl"}

// Selector resolves which C++ compiler to use.
//
// The zero value is not usable; call New.
type Selector struct {
	GOOS     string
	Getenv   func(key string) string
	LookPath func(file string) (string, error)
	// Run executes name with args and returns its error.
	Run func(ctx context.Context, name string, args ...string) error

	// Stdout and Stderr receive the output of the default Run. Nil means
	// the process streams.
	Stdout io.Writer
	Stderr io.Writer

	resolved string // set after a successful version check
}

// New returns a Selector bound to the host platform.
func New() *Selector {
	s := &Selector{
		GOOS:     runtime.GOOS,
		Getenv:   os.Getenv,
		LookPath: execabs.LookPath,
	}
	s.Run = s.run
	return s
}

func (s *Selector) run(ctx context.Context, name string, args ...string) error {
	cmd := execabs.CommandContext(ctx, name, args...)
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// Remember records cxx as the compiler resolved by a prior verification.
func (s *Selector) Remember(cxx string) {
	s.resolved = cxx
}

// Resolved returns the remembered compiler, if any.
func (s *Selector) Resolved() (string, bool) {
	return s.resolved, s.resolved != ""
}

// Select returns the compiler to use. The CXX override wins, then a
// remembered compiler, then the platform default.
func (s *Selector) Select() (string, bool) {
	if cxx := s.Getenv(EnvCXX); cxx != "" {
		return cxx, true
	}
	if cxx, ok := s.Resolved(); ok {
		return cxx, true
	}
	return s.defaultCompiler()
}

func (s *Selector) defaultCompiler() (string, bool) {
	if !IsWindows(s.GOOS) {
		return DefaultCXX, true
	}
	for _, candidate := range windowsCandidates {
		if _, err := s.LookPath(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// CheckVersion launches cxx with its version flag. A launch failure or a
// nonzero exit is returned as is.
func (s *Selector) CheckVersion(ctx context.Context, cxx string) error {
	return s.Run(ctx, cxx, VersionArgs(cxx)...)
}

// VersionArgs returns the arguments that make cxx print its version.
// MSVC has no --version, so it is asked for help instead.
func VersionArgs(cxx string) []string {
	if IsMSVC(cxx) {
		return []string{"/?"}
	}
	return []string{"--version"}
}

// IsMSVC reports whether cxx names the Microsoft compiler driver.
func IsMSVC(cxx string) bool {
	base := strings.ToLower(baseName(cxx))
	return base == "cl" || base == "cl.exe"
}

// IsWindows reports whether goos is Windows.
func IsWindows(goos string) bool {
	return goos == "windows"
}

// baseName strips both separator styles so Windows paths are handled on
// any host.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
