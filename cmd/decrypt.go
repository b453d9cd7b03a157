package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mrcrypt/mrcrypt/internal/ui"
	"github.com/mrcrypt/mrcrypt/internal/utils"
	"github.com/mrcrypt/mrcrypt/internal/workflows"
)

var (
	decryptDryRun      bool
	decryptNoOverwrite bool
	decryptJobs        int
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt [flags] FILENAME",
	Short: "Decrypts a file",
	Long: `Decrypts a file, or every encrypted file in a directory or glob.

Each region that holds a copy of the data key is tried in turn, so the file
decrypts as long as one of them is reachable. Use - as FILENAME to read
from stdin.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		Logger.Infof("Starting decrypt command")

		opts := workflows.DecryptOptions{CommonOptions: commonOptions(input)}
		opts.DryRun = decryptDryRun
		opts.NoOverwrite = decryptNoOverwrite
		opts.Jobs = decryptJobs
		if !decryptDryRun {
			opts.Keys = newKeyProvider()
		}

		spinner, cleanup := startSpinner("Decrypting...", statusWriter(input))
		defer cleanup()

		result, err := workflows.Decrypt(cmd.Context(), opts)
		if err != nil {
			return err
		}
		Logger.Infof("Decrypt command completed successfully")

		spinner.FinalMSG = formatDecryptResult(result)
		return nil
	},
}

func formatDecryptResult(result *workflows.DecryptResult) string {
	files := outputPaths(result.Files)
	if result.DryRun {
		return ui.HintMark() + " Dry run: would decrypt " + pluralize(len(files), "file") +
			"\nThe following files would be created:" + utils.FormatPaths(files)
	}
	if len(files) == 1 && files[0] == utils.StdinMarker {
		return ""
	}
	return ui.SuccessMark() + " Decrypted " + pluralize(len(files), "file") +
		"\nThe following files were created:" + utils.FormatPaths(files) +
		ui.HintMark() + " Decrypted files are plaintext; keep them out of version control"
}

func addDecryptFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.BoolVar(&decryptDryRun, "dry-run", false, "show which files would be decrypted without contacting KMS")
	flags.BoolVar(&decryptNoOverwrite, "no-overwrite", false, "fail instead of replacing existing files")
	flags.IntVarP(&decryptJobs, "jobs", "j", 0, "files to decrypt in parallel (default from config)")
}

func init() {
	addDecryptFlags(decryptCmd)
}

func resetDecryptCommandState() {
	decryptDryRun = false
	decryptNoOverwrite = false
	decryptJobs = 0
	decryptCmd.ResetFlags()
	addDecryptFlags(decryptCmd)
}
