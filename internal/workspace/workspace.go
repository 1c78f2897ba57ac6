// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workspace manages the local working directories of a run: the
// downloaded model trees, the export directory, and their cleanup.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Mkpath creates path (and parents) if it does not exist. Both the hub
// download and the toolkit export fail when their target directory is
// missing.
func Mkpath(path string, w io.Writer) error {
	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.IsDir():
		fmt.Fprintf(w, "exists:  %s\n", path)
		return nil
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", path)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	fmt.Fprintf(w, "created: %s\n", path)
	return nil
}

// CopyConfigs copies every *.json file found under src (recursively) into
// dst, flattening the tree. Later files with the same base name overwrite
// earlier ones in lexical path order. Mode and modification time are kept.
// It returns the number of files copied.
func CopyConfigs(src, dst string, w io.Writer) (int, error) {
	var matches []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != src && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) == ".json" {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning %s for configs: %w", src, err)
	}
	sort.Strings(matches)

	for _, m := range matches {
		target := filepath.Join(dst, filepath.Base(m))
		if err := copyFile(m, target); err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "copied:  %s\n", m)
	}
	return len(matches), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
		return fmt.Errorf("setting times on %s: %w", dst, err)
	}
	return nil
}

// Cleanup removes the run trees dirs, each of which must lie below root,
// then removes root itself if nothing else is left in it. Other entries of
// root are never touched. Missing directories are not an error.
func Cleanup(root string, dirs []string, w io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}

	var errs []error
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolving %s: %w", dir, err))
			continue
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == "." || !filepath.IsLocal(rel) {
			errs = append(errs, fmt.Errorf("refusing to remove %s: not below %s", dir, root))
			continue
		}
		fmt.Fprintf(w, "cleaning up: %s\n", filepath.Clean(dir))
		if err := os.RemoveAll(abs); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", dir, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	entries, err := os.ReadDir(absRoot)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("reading %s: %w", root, err)
	case len(entries) > 0:
		fmt.Fprintf(w, "kept:    %s (%d other entries)\n", filepath.Clean(root), len(entries))
		return nil
	}
	if err := os.Remove(absRoot); err != nil {
		return fmt.Errorf("removing %s: %w", root, err)
	}
	fmt.Fprintf(w, "cleaning up: %s\n", filepath.Clean(root))
	return nil
}

// FindFile returns the first file under dir whose name has extension ext,
// in lexical order.
func FindFile(dir, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ext) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("no %s file found in %s", ext, dir)
	}
	return found, nil
}
