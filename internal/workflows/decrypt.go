package workflows

import (
	"context"
	"fmt"
	"io"

	"github.com/mrcrypt/mrcrypt/internal/audit"
	"github.com/mrcrypt/mrcrypt/internal/materials"
	"github.com/mrcrypt/mrcrypt/internal/message"
	"github.com/mrcrypt/mrcrypt/internal/utils"
)

// DecryptOptions configures the decrypt workflow.
type DecryptOptions struct {
	CommonOptions
}

// DecryptResult contains the outcome of a decrypt operation.
type DecryptResult struct {
	Files []FileResult

	// DryRun indicates no files were written.
	DryRun bool
}

// Decrypt decrypts opts.Input. Each message's data keys are tried in the
// order they were written until one region unwraps it.
//
// Plaintext is written to a temporary file and only moved into place once
// every frame and the signature have verified.
//
// Returns ErrNoDecryptableKey when no region can unwrap the data key,
// ErrMalformedMessage, ErrAuthenticationFailed or ErrSignatureInvalid for
// corrupt or tampered input, and ErrOutputExists when NoOverwrite is set.
func Decrypt(ctx context.Context, opts DecryptOptions) (*DecryptResult, error) {
	result := &DecryptResult{DryRun: opts.DryRun}

	manager := materials.NewManager(opts.Keys, opts.Logger)
	transform := func(ctx context.Context, w io.Writer, r io.Reader) error {
		h, err := message.Decrypt(w, r, manager.Resolver(ctx))
		if err != nil {
			return err
		}
		opts.Logger.Debugf("Decrypted message %x (%s)", h.MessageID, h.Suite)
		return nil
	}

	if opts.fromStdin() {
		if opts.DryRun {
			result.Files = []FileResult{{Source: utils.StdinMarker, Output: stdinOutput(opts.Outfile)}}
			return result, nil
		}
		if opts.Keys == nil {
			return nil, fmt.Errorf("no key provider configured")
		}
		file, err := opts.runStdin(func(w io.Writer, r io.Reader) error {
			return transform(ctx, w, r)
		})
		if err != nil {
			return nil, err
		}
		result.Files = []FileResult{file}
	} else {
		planned, err := opts.plan(false)
		if err != nil {
			return nil, err
		}
		result.Files = planned
		if opts.DryRun {
			return result, nil
		}
		if opts.Keys == nil {
			return nil, fmt.Errorf("no key provider configured")
		}
		if err := opts.runFiles(ctx, "decrypting", planned, transform); err != nil {
			return nil, err
		}
	}

	entry := audit.NewEntry("decrypt")
	entry.Files = outputs(result.Files)
	entry.Profile = opts.Profile
	audit.Log(entry)

	return result, nil
}
