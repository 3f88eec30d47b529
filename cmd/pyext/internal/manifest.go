package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/pyext/internal/manifest"
)

var manifestOutput string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Write the package metadata file",
	Long:  `Manifest writes PKG-INFO from the metadata file, the requirements file and the long description.`,
	Args:  cobra.NoArgs,
	RunE:  runManifest,
}

func init() {
	manifestCmd.Flags().StringVarP(&manifestOutput, "output", "o", manifest.FileName, "Output file")
	rootCmd.AddCommand(manifestCmd)
}

func runManifest(cmd *cobra.Command, args []string) error {
	meta, _, err := loadProject()
	if err != nil {
		return err
	}
	m, err := manifest.Load(meta)
	if err != nil {
		return err
	}
	return m.Write(manifestOutput)
}
