package fetch

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// PackExtension zips the contents of a local extension directory into an
// in-memory archive suitable for upload. The directory must contain a
// manifest.json at its root.
func PackExtension(dir string) ([]byte, error) {
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		return nil, eris.Wrapf(err, "extension: no manifest.json in %s", dir)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return nil, eris.Wrapf(err, "extension: pack %s", dir)
	}

	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "extension: close archive")
	}
	return buf.Bytes(), nil
}
