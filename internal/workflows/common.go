package workflows

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/mrcrypt/mrcrypt/internal/configs"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
	"github.com/mrcrypt/mrcrypt/internal/materials"
	"github.com/mrcrypt/mrcrypt/internal/secrets"
	"github.com/mrcrypt/mrcrypt/internal/utils"
)

// CommonOptions are shared by every workflow.
type CommonOptions struct {
	// Input is a file, directory, glob or "-" for stdin.
	Input string

	// Outfile overrides where results are written. See secrets.OutputPath.
	Outfile string

	// NoOverwrite fails instead of replacing existing outputs.
	NoOverwrite bool

	// DryRun reports planned outputs without contacting KMS or writing files.
	DryRun bool

	// Jobs bounds how many files are processed at once. Zero uses the config.
	Jobs int

	// Profile is the AWS profile in use, recorded in the audit log.
	Profile string

	// Config supplies defaults. Nil uses configs.Default().
	Config *configs.Config

	// Keys wraps and unwraps data keys. Required unless DryRun is set.
	Keys materials.KeyProvider

	Logger logger.Logger

	// Stdin and Stdout are used when Input is "-". Nil uses the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// FileResult pairs one input with the output written for it.
type FileResult struct {
	Source string
	Output string
}

func (o *CommonOptions) config() *configs.Config {
	if o.Config == nil {
		return configs.Default()
	}
	return o.Config
}

func (o *CommonOptions) jobs() int {
	if o.Jobs > 0 {
		return o.Jobs
	}
	return o.config().Defaults.Jobs
}

func (o *CommonOptions) fromStdin() bool {
	return o.Input == utils.StdinMarker
}

func (o *CommonOptions) readStdin() ([]byte, error) {
	if o.Stdin != nil {
		return utils.ReadAllFrom(o.Stdin)
	}
	return utils.ReadStdin()
}

func (o *CommonOptions) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

// plan resolves the inputs and their outputs.
func (o *CommonOptions) plan(encrypting bool) ([]FileResult, error) {
	suffix := o.config().Defaults.EncryptedSuffix

	sources, err := secrets.ResolveFiles(o.Input, secrets.ResolveOptions{ForEncryption: encrypting, Suffix: suffix})
	if err != nil {
		return nil, err
	}

	planned := make([]FileResult, len(sources))
	for i, src := range sources {
		out, err := secrets.OutputPath(src, secrets.OutputOptions{Outfile: o.Outfile, Encrypting: encrypting, Suffix: suffix})
		if err != nil {
			return nil, err
		}
		planned[i] = FileResult{Source: src.Path, Output: out}
	}
	return planned, nil
}

// runStdin processes stdin with transform. The output is buffered so
// nothing reaches stdout or the outfile unless transform succeeds.
func (o *CommonOptions) runStdin(transform func(w io.Writer, r io.Reader) error) (FileResult, error) {
	data, err := o.readStdin()
	if err != nil {
		return FileResult{}, err
	}

	var out bytes.Buffer
	if err := transform(&out, bytes.NewReader(data)); err != nil {
		return FileResult{}, err
	}

	if o.Outfile != "" {
		err := secrets.WriteFileAtomic(o.Outfile, o.NoOverwrite, func(w io.Writer) error {
			_, err := out.WriteTo(w)
			return err
		})
		return FileResult{Source: utils.StdinMarker, Output: o.Outfile}, err
	}

	if _, err := out.WriteTo(o.stdout()); err != nil {
		return FileResult{}, fmt.Errorf("writing to stdout: %w", err)
	}
	return FileResult{Source: utils.StdinMarker, Output: utils.StdinMarker}, nil
}

// runFiles applies transform to every planned file with at most jobs in
// flight. Each output is written atomically.
func (o *CommonOptions) runFiles(ctx context.Context, verb string, planned []FileResult, transform func(ctx context.Context, w io.Writer, r io.Reader) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs())

	for _, file := range planned {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o.Logger.Debugf("%s %s -> %s", verb, file.Source, file.Output)

			err := secrets.WriteFileAtomic(file.Output, o.NoOverwrite, func(w io.Writer) error {
				f, err := os.Open(file.Source)
				if err != nil {
					return err
				}
				defer f.Close()
				return transform(gctx, w, f)
			})
			if err != nil {
				return fmt.Errorf("%s %s: %w", verb, file.Source, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func outputs(files []FileResult) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Output
	}
	return out
}
