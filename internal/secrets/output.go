package secrets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

// DecryptedSuffix is appended when decrypting a file without the encrypted suffix.
const DecryptedSuffix = ".decrypted"

// OutputOptions controls where results are written.
type OutputOptions struct {
	// Outfile is the --outfile value: a file for single inputs, otherwise a
	// directory to mirror results under.
	Outfile    string
	Encrypting bool
	Suffix     string
}

// OutputName maps a source file name to its result file name.
func OutputName(name string, encrypting bool, suffix string) string {
	if encrypting {
		return name + suffix
	}
	if trimmed := strings.TrimSuffix(name, suffix); trimmed != name && trimmed != "" {
		return trimmed
	}
	return name + DecryptedSuffix
}

// OutputPath returns where the result for src is written.
func OutputPath(src Source, opts OutputOptions) (string, error) {
	name := OutputName(filepath.Base(src.Path), opts.Encrypting, opts.Suffix)

	if opts.Outfile == "" {
		return filepath.Join(filepath.Dir(src.Path), name), nil
	}

	if src.Root == "" {
		if info, err := os.Stat(opts.Outfile); err == nil && info.IsDir() {
			return filepath.Join(opts.Outfile, name), nil
		}
		return opts.Outfile, nil
	}

	rel, err := filepath.Rel(src.Root, filepath.Dir(src.Path))
	if err != nil {
		return "", fmt.Errorf("locating %s under %s: %w", src.Path, src.Root, err)
	}
	return filepath.Join(opts.Outfile, rel, name), nil
}

// WriteFileAtomic creates path from whatever write produces. Nothing
// appears at path unless write succeeds.
func WriteFileAtomic(path string, noOverwrite bool, write func(io.Writer) error) (err error) {
	if noOverwrite {
		if err := checkNotExists(path); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmp.Name(), err)
	}

	if noOverwrite {
		if err := checkNotExists(path); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving result into place at %s: %w", path, err)
	}
	return nil
}

func checkNotExists(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return fmt.Errorf("%w: %s", merrors.ErrOutputExists, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
