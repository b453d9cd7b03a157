package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrcrypt/mrcrypt/internal/configs"
	"github.com/mrcrypt/mrcrypt/internal/ui"
	"github.com/mrcrypt/mrcrypt/internal/utils"
	"github.com/mrcrypt/mrcrypt/internal/workflows"
)

var (
	encryptRegions     []string
	encryptContext     string
	encryptDryRun      bool
	encryptNoOverwrite bool
	encryptJobs        int
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [flags] [KEY_ID] FILENAME",
	Short: "Encrypts a file or directory recursively",
	Long: `Encrypts a file, a directory (recursively) or a glob under a KMS key.

The data key is wrapped under KEY_ID in every region given with -r, so any
one of those regions can decrypt the result. KEY_ID may be a key id, key
ARN or alias, and may be omitted when key_id is set in the config file.
A single-Region key ARN only works in its own region; other -r regions are
skipped with a warning. Multi-Region (mrk-) ARNs use the replica in each
region. Use - as FILENAME to read from stdin.`,
	Example: `  mrcrypt encrypt -r us-east-1,us-west-2 alias/app secrets.env
  mrcrypt encrypt -e "{'env': 'prod'}" alias/app config/
  cat key.pem | mrcrypt -o key.pem.encrypted encrypt alias/app -`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID, input := "", args[len(args)-1]
		if len(args) == 2 {
			keyID = args[0]
		}
		Logger.Infof("Starting encrypt command")

		var encCtx map[string]string
		if encryptContext != "" {
			parsed, err := configs.ParseEncryptionContext(encryptContext)
			if err != nil {
				return err
			}
			encCtx = parsed
			Logger.Debugf("Encryption context: %v", encCtx)
		}

		opts := workflows.EncryptOptions{
			CommonOptions:     commonOptions(input),
			KeyID:             keyID,
			Regions:           encryptRegions,
			EncryptionContext: encCtx,
		}
		opts.DryRun = encryptDryRun
		opts.NoOverwrite = encryptNoOverwrite
		opts.Jobs = encryptJobs
		if !encryptDryRun {
			opts.Keys = newKeyProvider()
		}

		spinner, cleanup := startSpinner("Encrypting...", statusWriter(input))
		defer cleanup()

		result, err := workflows.Encrypt(cmd.Context(), opts)
		if err != nil {
			return err
		}
		Logger.Infof("Encrypt command completed successfully")

		spinner.FinalMSG = formatEncryptResult(result)
		return nil
	},
}

func formatEncryptResult(result *workflows.EncryptResult) string {
	regions := make([]string, len(result.Regions))
	for i, r := range result.Regions {
		regions[i] = ui.Region.Sprint(r)
	}
	where := "with " + ui.Key.Sprint(result.KeyID) + " in " + strings.Join(regions, " ")

	files := outputPaths(result.Files)
	if result.DryRun {
		return ui.HintMark() + " Dry run: would encrypt " + pluralize(len(files), "file") + " " + where +
			"\nThe following files would be created:" + utils.FormatPaths(files)
	}
	if len(files) == 1 && files[0] == utils.StdinMarker {
		return ""
	}
	return ui.SuccessMark() + " Encrypted " + pluralize(len(files), "file") + " " + where +
		"\nThe following files were created:" + utils.FormatPaths(files)
}

func outputPaths(files []workflows.FileResult) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Output
	}
	return out
}

func addEncryptFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.StringSliceVarP(&encryptRegions, "regions", "r", nil, "regions to encrypt in (repeat or comma separate)")
	flags.StringVarP(&encryptContext, "encryption-context", "e", "", "an encryption context dictionary, e.g. \"{'env': 'prod'}\"")
	flags.BoolVar(&encryptDryRun, "dry-run", false, "show which files would be encrypted without contacting KMS")
	flags.BoolVar(&encryptNoOverwrite, "no-overwrite", false, "fail instead of replacing existing files")
	flags.IntVarP(&encryptJobs, "jobs", "j", 0, "files to encrypt in parallel (default from config)")
}

func init() {
	addEncryptFlags(encryptCmd)
}

func resetEncryptCommandState() {
	encryptRegions = nil
	encryptContext = ""
	encryptDryRun = false
	encryptNoOverwrite = false
	encryptJobs = 0
	encryptCmd.ResetFlags()
	addEncryptFlags(encryptCmd)
}
