package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/pyext/internal/build"
	"github.com/goplus/pyext/internal/manifest"
	"github.com/goplus/pyext/setup"
)

var (
	packageOpts   buildFlags
	packageOutput string
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Build the extensions and bundle the package tree",
	Long: `Package builds every extension, adds the declared Python packages, PKG-INFO and
the zip safety marker to the package tree, and copies the tree to the output
path (directory, .zip or .tar.gz file).`,
	Args: cobra.NoArgs,
	RunE: runPackage,
}

func init() {
	packageOpts.register(packageCmd)
	packageCmd.Flags().StringVarP(&packageOutput, "output", "o", "", "Output path (directory, .zip or .tar.gz file)")
	packageCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	// Resolve output path to absolute before build
	dest, err := filepath.Abs(packageOutput)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	meta, exts, err := loadProject()
	if err != nil {
		return err
	}
	m, err := manifest.Load(meta)
	if err != nil {
		return err
	}
	builder, err := build.NewBuilder(exts, packageOpts.options())
	if err != nil {
		return err
	}
	if err := builder.Run(cmd.Context()); err != nil {
		return err
	}

	if err := stagePackage(meta, m, builder.OutputDir()); err != nil {
		return err
	}
	if notZipSafe(meta, dest) {
		log.Warnf("%s is not zip safe, extract %s before importing from it", meta.Name, dest)
	}
	if err := outputResult(builder.OutputDir(), dest); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}

// stagePackage completes the package tree in dir: the Python modules of the
// declared packages, PKG-INFO and the zip safety marker.
func stagePackage(meta *setup.Metadata, m *manifest.Manifest, dir string) error {
	pkgs, err := meta.FindPackages()
	if err != nil {
		return fmt.Errorf("finding packages: %w", err)
	}
	for _, pkg := range pkgs {
		if err := copyModules(meta.Path(setup.PackageDir(pkg)), filepath.Join(dir, filepath.FromSlash(setup.PackageDir(pkg)))); err != nil {
			return fmt.Errorf("copying package %s: %w", pkg, err)
		}
	}
	if err := m.Write(filepath.Join(dir, manifest.FileName)); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifest.ZipSafeFile(meta.ZipSafe)), nil, 0644)
}

// copyModules copies the .py files of srcDir, not its subdirectories, into
// destDir.
func copyModules(srcDir, destDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".py" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(destDir, e.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// notZipSafe reports whether dest is a zip the package cannot be imported
// from directly.
func notZipSafe(meta *setup.Metadata, dest string) bool {
	return !meta.ZipSafe && strings.HasSuffix(dest, ".zip")
}

// outputResult writes the package tree to dest.
// If dest ends with ".zip" or ".tar.gz", creates an archive; otherwise copies
// the directory.
func outputResult(srcDir, dest string) error {
	if srcDir == dest {
		return errors.New("output path is the build output directory")
	}
	switch {
	case strings.HasSuffix(dest, ".zip"):
		return writeArchive(dest, func(w io.Writer) error { return zipDir(srcDir, w) })
	case strings.HasSuffix(dest, ".tar.gz"), strings.HasSuffix(dest, ".tgz"):
		return writeArchive(dest, func(w io.Writer) error { return tarGzDir(srcDir, w) })
	}
	return os.CopyFS(dest, os.DirFS(srcDir))
}
