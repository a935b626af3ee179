// Package repo: this file manages the on-disk asset directory that holds
// uploaded files under their generated stored names.
package repo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrBadAssetName is returned for stored names that are empty or carry a
// path component.
var ErrBadAssetName = errors.New("invalid asset name")

// AssetFiles stores uploaded bytes in a flat directory.
type AssetFiles struct {
	dir string
}

// NewAssetFiles returns an AssetFiles rooted at dir, creating it if needed.
func NewAssetFiles(dir string) (*AssetFiles, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("asset files: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AssetFiles{dir: dir}, nil
}

// Path resolves a stored name inside the asset directory.
func (a *AssetFiles) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", ErrBadAssetName
	}
	return filepath.Join(a.dir, name), nil
}

// Write persists b under name. Existing files are never overwritten.
func (a *AssetFiles) Write(ctx context.Context, name string, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.Path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p)
		return err
	}
	return nil
}

// Exists reports whether a stored file is present.
func (a *AssetFiles) Exists(name string) bool {
	p, err := a.Path(name)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Remove deletes a stored file; a missing file is not an error.
func (a *AssetFiles) Remove(name string) error {
	p, err := a.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
