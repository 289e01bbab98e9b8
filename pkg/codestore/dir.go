package codestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/panbanda/klone/pkg/models"
)

// Dir serves entities from a directory laid out as <root>/<mode>/<id>/.
// A missing entity directory is reported as pending.
type Dir struct {
	root string
}

// NewDir creates a directory-backed store.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) entityDir(ref models.EntityRef) string {
	return filepath.Join(d.root, string(ref.Mode), strconv.Itoa(ref.ID))
}

// List implements Store.
func (d *Dir) List(_ context.Context, ref models.EntityRef) (Listing, error) {
	return listDir(d.entityDir(ref))
}

// Read implements Store.
func (d *Dir) Read(_ context.Context, ref models.EntityRef, path string) (string, error) {
	return readFile(d.entityDir(ref), path)
}

// listDir walks base and lists its files, skipping VCS metadata.
func listDir(base string) (Listing, error) {
	info, err := os.Stat(base)
	if errors.Is(err, fs.ErrNotExist) {
		return Listing{Status: StatusPending}, nil
	}
	if err != nil {
		return Listing{}, err
	}
	if !info.IsDir() {
		return Listing{Status: StatusFailed, Error: base + " is not a directory"}, nil
	}

	var paths []string
	err = filepath.WalkDir(base, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			if de.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !de.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return Listing{}, fmt.Errorf("walk %s: %w", base, err)
	}
	sort.Strings(paths)
	return Listing{Status: StatusDone, Root: TreeFromPaths(paths)}, nil
}

func readFile(base, path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
