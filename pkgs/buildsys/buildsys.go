package buildsys

import "context"

// BuildSystem captures what the extension builder needs from an external
// build tool. Implementations add their own extras.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	BuildDir(dir string)

	// Environment override for every subprocess.
	Env(key, val string)

	// Lifecycle.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error

	// Where the build tree lives.
	OutputDir() string
}
