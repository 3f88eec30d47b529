package cmake

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/sys/execabs"

	"github.com/goplus/pyext/pkgs/buildsys"
)

// Program is the CMake executable name.
const Program = "cmake"

// Runner runs a prepared command and waits for it.
type Runner func(cmd *exec.Cmd) error

type define struct {
	key      string
	value    string
	typeName string
}

// CMake wraps the CMake configure/build steps with chainable configuration.
type CMake struct {
	SourceDir string
	buildDir  string
	generator string
	config    string
	target    string
	defines   []define
	env       map[string]string

	Stdout io.Writer
	Stderr io.Writer
	Runner Runner
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New creates a CMake helper configuring sourceDir into buildDir.
func New(sourceDir, buildDir string) *CMake {
	return &CMake{
		SourceDir: sourceDir,
		buildDir:  buildDir,
		env:       map[string]string{},
	}
}

func (c *CMake) Source(dir string) {
	c.SourceDir = dir
}

func (c *CMake) BuildDir(dir string) {
	c.buildDir = dir
}

func (c *CMake) Generator(name string) *CMake {
	c.generator = name
	return c
}

// Config sets the configuration passed to "cmake --build --config". Multi
// config generators (Visual Studio, Xcode) pick the configuration here
// rather than from CMAKE_BUILD_TYPE.
func (c *CMake) Config(name string) *CMake {
	c.config = name
	return c
}

// Target restricts the build step to a single target.
func (c *CMake) Target(name string) *CMake {
	c.target = name
	return c
}

// Define adds an untyped -D<key>=<value> cache entry.
func (c *CMake) Define(key, value string) *CMake {
	return c.DefineTyped(key, "", value)
}

// DefineTyped adds a -D<key>:<typ>=<value> cache entry.
func (c *CMake) DefineTyped(key, typ, value string) *CMake {
	for i := range c.defines {
		if c.defines[i].key == key {
			c.defines[i] = define{key: key, value: value, typeName: typ}
			return c
		}
	}
	c.defines = append(c.defines, define{key: key, value: value, typeName: typ})
	return c
}

func (c *CMake) DefineBool(key string, value bool) *CMake {
	if value {
		return c.DefineTyped(key, "BOOL", "ON")
	}
	return c.DefineTyped(key, "BOOL", "OFF")
}

// Env records an environment override for the CMake subprocesses. The
// process environment itself is left untouched.
func (c *CMake) Env(key, value string) {
	if c.env == nil {
		c.env = map[string]string{}
	}
	c.env[key] = value
}

// Environ returns the environment the subprocesses run with.
func (c *CMake) Environ() []string {
	return mergeEnv(os.Environ(), c.env)
}

// ConfigureArgs returns the arguments Configure passes to cmake.
func (c *CMake) ConfigureArgs(args ...string) []string {
	cmakeArgs := []string{"-S", absDir(c.SourceDir), "-B", c.absOutputDir()}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	return append(cmakeArgs, args...)
}

// BuildArgs returns the arguments Build passes to cmake.
func (c *CMake) BuildArgs(args ...string) []string {
	cmdArgs := []string{"--build", c.absOutputDir()}
	if c.target != "" {
		cmdArgs = append(cmdArgs, "--target", c.target)
	}
	if c.config != "" {
		cmdArgs = append(cmdArgs, "--config", c.config)
	}
	return append(cmdArgs, args...)
}

// Configure creates the build directory if needed and generates the build
// tree in it.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.absOutputDir(), 0755); err != nil {
		return err
	}
	return c.run(ctx, c.ConfigureArgs(args...))
}

func (c *CMake) Build(ctx context.Context, args ...string) error {
	return c.run(ctx, c.BuildArgs(args...))
}

// OutputDir returns the build directory, "build" when unset.
func (c *CMake) OutputDir() string {
	if c.buildDir == "" {
		return "build"
	}
	return c.buildDir
}

// absOutputDir is OutputDir resolved against the current directory. The
// subprocesses run inside the build directory, so relative paths would
// resolve twice.
func (c *CMake) absOutputDir() string {
	return absDir(c.OutputDir())
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// Version runs "cmake --version" and returns the reported version, or ""
// when the output carries none.
func (c *CMake) Version(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	cmd := execabs.CommandContext(ctx, Program, "--version")
	cmd.Stdout = io.MultiWriter(&buf, c.stdout())
	cmd.Stderr = c.stderr()
	cmd.Env = c.Environ()
	log.Debugf("running %s", strings.Join(cmd.Args, " "))
	if err := c.runner()(cmd); err != nil {
		return "", err
	}
	return ParseVersion(buf.String()), nil
}

var versionRE = regexp.MustCompile(`cmake version (\d+\.\d+(?:\.\d+)?)`)

// ParseVersion extracts the dotted version from "cmake --version" output.
func ParseVersion(out string) string {
	m := versionRE.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}

func (c *CMake) run(ctx context.Context, args []string) error {
	cmd := execabs.CommandContext(ctx, Program, args...)
	cmd.Dir = c.absOutputDir()
	cmd.Stdout = c.stdout()
	cmd.Stderr = c.stderr()
	cmd.Env = c.Environ()
	log.Debugf("running %s (in %s)", strings.Join(cmd.Args, " "), cmd.Dir)
	return c.runner()(cmd)
}

func (c *CMake) runner() Runner {
	if c.Runner != nil {
		return c.Runner
	}
	return (*exec.Cmd).Run
}

func (c *CMake) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *CMake) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	args := make([]string, 0, len(c.defines))
	for _, def := range c.defines {
		if def.typeName != "" {
			args = append(args, "-D"+def.key+":"+def.typeName+"="+def.value)
			continue
		}
		args = append(args, "-D"+def.key+"="+def.value)
	}
	return args
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
