package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrcrypt/mrcrypt/internal/audit"
	"github.com/mrcrypt/mrcrypt/internal/workflows"
)

var (
	logLimit     int
	logReverse   bool
	logOperation string
	logSince     string
	logUntil     string
	logJSON      bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Shows the local history of encrypt and decrypt runs",
	Long: `Displays the local audit log of mrcrypt operations on this machine.

Examples:
  mrcrypt log                      # View full log
  mrcrypt log -n 10 --reverse      # Last 10 entries, newest first
  mrcrypt log --operation decrypt  # Only decryptions
  mrcrypt log --since 2024-01-01   # Filter by date
  mrcrypt log --json               # JSON output`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting log command")

		result, err := workflows.History(cmd.Context(), workflows.HistoryOptions{
			Operations: logOperation,
			Since:      logSince,
			Until:      logUntil,
			Limit:      logLimit,
			Reverse:    logReverse,
		})
		if err != nil {
			return err
		}
		Logger.Debugf("Read %d entries from %s, %d match", result.Total, result.LogPath, len(result.Entries))

		out := cmd.OutOrStdout()
		if logJSON {
			data, err := json.MarshalIndent(result.Entries, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal entries to JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(result.Entries) == 0 {
			if result.Total == 0 {
				fmt.Fprintln(out, "No audit log entries found.")
			} else {
				fmt.Fprintln(out, "No audit log entries found matching the filters.")
			}
			return nil
		}

		for _, e := range result.Entries {
			printLogEntry(cmd, e)
		}
		return nil
	},
}

func printLogEntry(cmd *cobra.Command, e audit.Entry) {
	fmt.Fprintf(cmd.OutOrStdout(), "%-19s  %-16s  %-8s  %s\n",
		workflows.FormatDateTime(e), e.User, e.Operation, workflows.FormatDetails(e))
}

func addLogFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	flags.BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	flags.StringVar(&logOperation, "operation", "", "filter by operation (comma-separated)")
	flags.StringVar(&logSince, "since", "", "show entries on or after date (YYYY-MM-DD)")
	flags.StringVar(&logUntil, "until", "", "show entries on or before date (YYYY-MM-DD)")
	flags.BoolVar(&logJSON, "json", false, "output as JSON array")
}

func init() {
	addLogFlags(logCmd)
}

// resetLogCommandState resets the log command's global state for testing.
func resetLogCommandState() {
	logLimit = 0
	logReverse = false
	logOperation = ""
	logSince = ""
	logUntil = ""
	logJSON = false
	logCmd.ResetFlags()
	addLogFlags(logCmd)
}
