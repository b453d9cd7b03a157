package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/mrcrypt/mrcrypt/internal/configs"
	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/mrcrypt/mrcrypt/internal/ui"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manages the mrcrypt config file",
	Long: `Creates and displays the mrcrypt config file.

The file lives at $MRCRYPT_CONFIG, or config.toml under the user config
directory, unless --config is given.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Writes a config file holding the built-in defaults",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config init command")

		path := configFilePath()
		if path == "" {
			return usageError{Logger.ErrorfAndReturn("no config directory available; pass --config")}
		}

		_, err := os.Stat(path)
		switch {
		case err == nil && !configInitForce:
			return fmt.Errorf("%w: %s", merrors.ErrConfigExists, path)
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return err
		}

		if err := configs.SaveTOML(path, configs.Default()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		Logger.Debugf("Wrote default config to %s", path)

		fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMark()+" Wrote default config to "+ui.Path.Sprint(path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the effective configuration",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config show command")

		out := cmd.OutOrStdout()
		if path := configFilePath(); path != "" {
			fmt.Fprintf(out, "# %s\n", path)
		}
		return toml.NewEncoder(out).Encode(Config)
	},
}

// configFilePath is the file config commands act on.
func configFilePath() string {
	if configPath != "" {
		return configPath
	}
	return configs.UserPaths.ConfigFile
}

func addConfigInitFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.BoolVar(&configInitForce, "force", false, "replace an existing config file")
}

func init() {
	addConfigInitFlags(configInitCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// resetConfigCommandState resets the config commands' global state for testing.
func resetConfigCommandState() {
	configInitForce = false
	configInitCmd.ResetFlags()
	addConfigInitFlags(configInitCmd)
}
