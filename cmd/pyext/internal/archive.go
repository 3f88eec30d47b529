package internal

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
)

// pendingFile is an output file that only replaces its destination once
// complete.
type pendingFile interface {
	io.Writer
	Cleanup() error
	CloseAtomicallyReplace() error
}

// writeArchive replaces dest atomically with the output of write.
func writeArchive(dest string, write func(w io.Writer) error) error {
	out, err := createPending(dest)
	if err != nil {
		return err
	}
	defer out.Cleanup()
	if err := write(out); err != nil {
		return err
	}
	return out.CloseAtomicallyReplace()
}

// walkFiles calls fn for every regular file under root with its slash
// separated relative name.
func walkFiles(root string, fn func(path, name string, info fs.FileInfo) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(path, filepath.ToSlash(rel), info)
	})
}

func copyFile(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(w, file)
	return err
}

// zipDir writes a zip archive of the contents of srcDir to out.
func zipDir(srcDir string, out io.Writer) error {
	w := zip.NewWriter(out)
	err := walkFiles(srcDir, func(path, name string, info fs.FileInfo) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		return copyFile(writer, path)
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// tarGzDir writes a gzip compressed tarball of the contents of srcDir to out.
func tarGzDir(srcDir string, out io.Writer) error {
	zw := pgzip.NewWriter(out)
	tw := tar.NewWriter(zw)
	err := walkFiles(srcDir, func(path, name string, info fs.FileInfo) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		return copyFile(tw, path)
	})
	if err != nil {
		tw.Close()
		zw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}
