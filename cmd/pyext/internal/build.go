package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/pyext/internal/build"
)

var buildOpts buildFlags

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the native extensions",
	Long: `Build verifies the environment once, then configures and builds the CMake target of
every declared extension, in order. The first failure stops the build.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildOpts.register(buildCmd)
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	_, exts, err := loadProject()
	if err != nil {
		return err
	}
	builder, err := build.NewBuilder(exts, buildOpts.options())
	if err != nil {
		return err
	}
	if err := builder.Run(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), builder.OutputDir())
	return nil
}
