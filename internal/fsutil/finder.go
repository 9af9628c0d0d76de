// Package fsutil provides file system helpers shared by the loaders.
package fsutil

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// FindFilesByExtension recursively searches root for files ending with
// extension and returns their full paths, sorted. Hidden directories such as
// a feedstock's .git are not descended into.
func FindFilesByExtension(root, extension string) ([]string, error) {
	if extension == "" {
		return nil, errors.New("fsutil: extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Stem returns the last element of a file path or URL without its extension.
func Stem(location string) string {
	base := path.Base(filepath.ToSlash(location))
	return strings.TrimSuffix(base, path.Ext(base))
}
