package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/pyext/internal/build"
	"github.com/goplus/pyext/setup"
)

var checkPython string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that CMake and a C++ compiler are usable",
	Long:  `Check verifies the build environment of every declared extension without compiling anything.`,
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPython, "python", "", "Python interpreter to build against")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	_, exts, err := loadProject()
	if err != nil {
		return err
	}
	builder, err := build.NewBuilder(exts, build.Options{Python: checkPython})
	if err != nil {
		return err
	}
	if err := builder.Verify(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", setup.Names(exts))
	return nil
}
