package internal

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/pyext/internal/build"
	"github.com/goplus/pyext/setup"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pyext",
	Short: "pyext builds CMake based Python extensions",
	Long: `pyext builds native Python extension modules by delegating compilation to CMake,
and writes the package metadata that ships with them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", setup.DefaultFile, "Package metadata file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every command run")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

// loadProject reads the metadata file and the extensions it declares.
func loadProject() (*setup.Metadata, []setup.Extension, error) {
	meta, err := setup.LoadMetadata(configFile)
	if err != nil {
		return nil, nil, err
	}
	exts, err := meta.Exts()
	if err != nil {
		return nil, nil, err
	}
	return meta, exts, nil
}

// buildFlags are shared by the commands that compile extensions.
type buildFlags struct {
	debug     bool
	buildTemp string
	outputDir string
	target    string
	python    string
	minCMake  string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.debug, "debug", false, "Build with the Debug configuration")
	flags.StringVar(&f.buildTemp, "build-temp", "", "CMake build directory (default: per extension under the user cache)")
	flags.StringVar(&f.outputDir, "output-dir", build.DefaultOutputDir, "Package tree receiving the built modules")
	flags.StringVar(&f.target, "target", "", "Build this CMake target instead of the one named after the extension")
	flags.StringVar(&f.python, "python", "", "Python interpreter to build against (default: python3 or python in PATH)")
	flags.StringVar(&f.minCMake, "min-cmake", "", "Minimum accepted CMake version, e.g. 3.17")
}

func (f *buildFlags) options() build.Options {
	return build.Options{
		Debug:           f.debug,
		BuildTemp:       f.buildTemp,
		OutputDir:       f.outputDir,
		Target:          f.target,
		Python:          f.python,
		MinCMakeVersion: f.minCMake,
		Color:           isTerminal(os.Stdout),
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
