package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mrcrypt/mrcrypt/internal/configs"
	"github.com/mrcrypt/mrcrypt/internal/kms"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
	"github.com/mrcrypt/mrcrypt/internal/utils"
)

var (
	verbosity  int
	profile    string
	outfile    string
	configPath string

	Logger logger.Logger
	Config *configs.Config

	// started is set once flag and argument validation has passed.
	started bool
	logSink io.Closer

	// kmsFactory replaces the AWS client factory when set.
	kmsFactory kms.ClientFactory

	RootCmd = &cobra.Command{
		Use:   "mrcrypt",
		Short: "Multi Region Encryption. A tool for managing secrets across multiple AWS regions.",
		Long: `mrcrypt encrypts files under an AWS KMS key in one or more regions, so that
any one of those regions can decrypt them later.

Usage:
  mrcrypt encrypt [-r REGION ...] [-e CONTEXT] KEY_ID FILENAME
  mrcrypt decrypt FILENAME
  mrcrypt log
  mrcrypt config init|show

Use "-" as FILENAME to read from stdin.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogSink()
		},
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&profile, "profile", "p", "", "the AWS profile to use")
	flags.CountVarP(&verbosity, "verbose", "v", "more verbose output (-vv for debug)")
	flags.StringVarP(&outfile, "outfile", "o", "", "the file or directory to write the results to")
	flags.StringVar(&configPath, "config", "", "path to the config file")
	flags.SetNormalizeFunc(underscoreToDash)
	RootCmd.Flags().SetNormalizeFunc(underscoreToDash)

	RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	RootCmd.AddCommand(encryptCmd)
	RootCmd.AddCommand(decryptCmd)
	RootCmd.AddCommand(logCmd)
	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(versionCmd)
}

// underscoreToDash lets --encryption_context and --encryption-context both work.
func underscoreToDash(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func setup(cmd *cobra.Command, args []string) error {
	started = true
	Logger = logger.FromVerbosity(verbosity)

	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}
	Config = cfg

	if cfg.Logging.File != "" {
		sink := logger.NewFileSink(logger.FileSinkOptions{
			Path:       utils.ExpandHome(cfg.Logging.File),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		Logger.File = sink
		logSink = sink
	}

	for _, key := range cfg.Unknown {
		Logger.Warnf("Ignoring unknown config key %s", key)
	}
	Logger.Debugf("Initialized %s with log level %s", cmd.CommandPath(), Logger.Level())
	return nil
}

func closeLogSink() {
	if logSink != nil {
		_ = logSink.Close()
		logSink = nil
	}
}

// newKeyProvider returns the KMS provider for this invocation.
func newKeyProvider() *kms.Provider {
	return kms.NewProvider(kms.Options{
		Profile: Config.ResolveProfile(profile),
		Factory: kmsFactory,
		Logger:  Logger,
	})
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Subcommands keep the context of their first run; drop it so each
	// run sees this one.
	clearContexts(RootCmd)
	err := RootCmd.ExecuteContext(ctx)
	closeLogSink()
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	return 0
}

func clearContexts(c *cobra.Command) {
	for _, sub := range c.Commands() {
		sub.SetContext(nil) //nolint:staticcheck // nil makes cobra inherit the root context
		clearContexts(sub)
	}
}

// Helper functions for testing

// GetRootCmd returns the RootCmd for testing.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// SetKMSFactory replaces the AWS client factory for testing.
func SetKMSFactory(f kms.ClientFactory) {
	kmsFactory = f
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbosity = 0
	profile = ""
	outfile = ""
	configPath = ""
	started = false
	Config = nil
	kmsFactory = nil
	closeLogSink()
	resetEncryptCommandState()
	resetDecryptCommandState()
	resetLogCommandState()
	resetConfigCommandState()
}
