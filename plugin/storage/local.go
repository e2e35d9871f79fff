package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalDriver stores blobs as plain files under a root directory.
type LocalDriver struct {
	root string
}

// NewLocalDriver creates the root directory if needed.
func NewLocalDriver(dataDir string) (*LocalDriver, error) {
	root := filepath.Join(dataDir, "files")
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	return &LocalDriver{root: root}, nil
}

// resolve maps a key to a path under root. Cleaning the key with a leading
// slash keeps ".." segments from escaping.
func (d *LocalDriver) resolve(key string) string {
	return filepath.Join(d.root, filepath.Clean("/"+key))
}

func (d *LocalDriver) Put(_ context.Context, key string, data []byte) error {
	path := d.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrapf(err, "create dir for %s", key)
	}
	return os.WriteFile(path, data, 0640)
}

func (d *LocalDriver) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(d.resolve(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read %s", key)
	}
	return data, true, nil
}

func (d *LocalDriver) Delete(_ context.Context, key string) error {
	err := os.Remove(d.resolve(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *LocalDriver) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk storage dir")
	}
	return keys, nil
}
