package workflows

import (
	"context"
	"fmt"
	"io"

	"github.com/mrcrypt/mrcrypt/internal/audit"
	"github.com/mrcrypt/mrcrypt/internal/kms"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
	"github.com/mrcrypt/mrcrypt/internal/materials"
	"github.com/mrcrypt/mrcrypt/internal/message"
	"github.com/mrcrypt/mrcrypt/internal/utils"
)

// EncryptOptions configures the encrypt workflow.
type EncryptOptions struct {
	CommonOptions

	// KeyID is the CMK id, ARN or alias. Empty uses defaults.key_id.
	KeyID string

	// Regions from the command line. Empty falls back through the config,
	// the key ARN and the environment.
	Regions []string

	// EncryptionContext is bound into every message as additional
	// authenticated data.
	EncryptionContext map[string]string
}

// EncryptResult contains the outcome of an encrypt operation.
type EncryptResult struct {
	Files   []FileResult
	KeyID   string
	Regions []string
	Suite   *message.AlgorithmSuite

	// DryRun indicates no files were written.
	DryRun bool
}

// Encrypt encrypts opts.Input under opts.KeyID in every region.
//
// Each file gets its own data key, generated in the first region and
// wrapped again under the CMK in the remaining regions, so any one region
// can decrypt it.
//
// Returns ErrNoKeyID if no key was given, ErrFileNotFound or
// ErrNoFilesFound if the input matches nothing, ErrReservedContextKey for
// context keys that start with "aws-crypto-", ErrOutputExists when
// NoOverwrite is set, and a *KMSError when a region rejects the request.
func Encrypt(ctx context.Context, opts EncryptOptions) (*EncryptResult, error) {
	cfg := opts.config()

	keyID, err := cfg.ResolveKeyID(opts.KeyID)
	if err != nil {
		return nil, err
	}
	if err := materials.ValidateContext(opts.EncryptionContext); err != nil {
		return nil, err
	}

	result := &EncryptResult{
		KeyID:   keyID,
		Regions: cfg.ResolveRegions(opts.Regions, keyID),
		Suite:   cfg.Suite(),
		DryRun:  opts.DryRun,
	}
	if home := kms.HomeRegion(keyID); home != "" {
		result.Regions = pinToRegion(result.Regions, home, keyID, opts.Logger)
	}
	opts.Logger.Infof("Encrypting with %s in %v using %s", keyID, result.Regions, result.Suite)

	manager := materials.NewManager(opts.Keys, opts.Logger)
	transform := func(ctx context.Context, w io.Writer, r io.Reader) error {
		mats, err := manager.GetEncryptionMaterials(ctx, materials.EncryptionRequest{
			KeyID:             keyID,
			Regions:           result.Regions,
			EncryptionContext: opts.EncryptionContext,
			Suite:             result.Suite,
		})
		if err != nil {
			return err
		}
		_, err = message.Encrypt(w, r, mats.Params(cfg.Defaults.FrameLength))
		return err
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
		planned, err := opts.plan(true)
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
		if err := opts.runFiles(ctx, "encrypting", planned, transform); err != nil {
			return nil, err
		}
	}

	entry := audit.NewEntry("encrypt")
	entry.Files = outputs(result.Files)
	entry.KeyID = keyID
	entry.Regions = result.Regions
	entry.Profile = opts.Profile
	audit.Log(entry)

	return result, nil
}

// pinToRegion keeps only home, since KMS rejects a single-Region key ARN
// outside its own region.
func pinToRegion(regions []string, home, keyID string, log logger.Logger) []string {
	for _, r := range regions {
		if r != home {
			log.Warnf("Skipping region %s: %s is a single-Region key in %s", r, keyID, home)
		}
	}
	return []string{home}
}

func stdinOutput(outfile string) string {
	if outfile != "" {
		return outfile
	}
	return utils.StdinMarker
}
