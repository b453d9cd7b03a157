package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

const tempPrefix = ".mrcrypt-tmp-"

// Source is one input file.
type Source struct {
	Path string
	// Root is the directory or glob base the file was found under. It is
	// empty when the file was named directly.
	Root string
}

// ResolveOptions controls which files a directory or glob selects.
type ResolveOptions struct {
	ForEncryption bool
	Suffix        string
}

// ResolveFiles expands input into the files to process.
func ResolveFiles(input string, opts ResolveOptions) ([]Source, error) {
	info, err := os.Stat(input)
	switch {
	case err == nil && info.IsDir():
		return findFilesInDir(input, opts)
	case err == nil:
		return []Source{{Path: input}}, nil
	case errors.Is(err, os.ErrNotExist) && hasGlobMeta(input):
		return expandGlob(input, opts)
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", merrors.ErrFileNotFound, input)
	default:
		return nil, err
	}
}

func findFilesInDir(dir string, opts ResolveOptions) ([]Source, error) {
	var files []Source

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if selected(path, opts) {
			files = append(files, Source{Path: path, Root: dir})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", merrors.ErrNoFilesFound, dir)
	}
	return files, nil
}

func expandGlob(pattern string, opts ResolveOptions) ([]Source, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	root := filepath.FromSlash(base)

	var files []Source
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if selected(m, opts) {
			files = append(files, Source{Path: m, Root: root})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if len(files) == 0 {
		return nil, fmt.Errorf("%w for %s", merrors.ErrNoFilesFound, pattern)
	}
	return files, nil
}

func selected(path string, opts ResolveOptions) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, tempPrefix) {
		return false
	}
	encrypted := strings.HasSuffix(base, opts.Suffix)
	return encrypted != opts.ForEncryption
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
