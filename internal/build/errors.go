package build

import (
	"errors"
	"strings"
)

// Kinds of environment failures. Use errors.Is against an *EnvError.
var (
	ErrMissingTool          = errors.New("missing build tool")
	ErrNoCompiler           = errors.New("no C++ compiler")
	ErrIncompatibleCompiler = errors.New("incompatible C++ compiler")
)

const (
	noCompilerHint = "On Windows, ensure that cl.exe or clang-cl.exe is available in a " +
		"Developer Command Prompt or set the CXX environment variable."
	compilerHint = "We recommend: Clang version >= 7.0.0 or Microsoft Visual Studio Build Tools."
)

// EnvError reports a build environment that cannot build the extensions.
// It is returned before any compilation is attempted.
type EnvError struct {
	Kind       error    // one of the Err* kinds above
	Msg        string   // what is wrong, without the extension names
	Extensions []string // names of the affected extensions
	Hint       string   // remediation advice, may be empty
	Err        error    // underlying cause, may be nil
}

func (e *EnvError) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Extensions, ", "))
	if e.Hint != "" {
		b.WriteString(". ")
		b.WriteString(e.Hint)
	}
	if e.Err != nil {
		b.WriteString(" (")
		b.WriteString(e.Err.Error())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *EnvError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
