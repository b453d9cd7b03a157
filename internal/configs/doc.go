// Package configs loads mrcrypt's user configuration and resolves it
// against command-line flags and the environment.
//
// The configuration lives in a TOML file, by default
// $XDG_CONFIG_HOME/mrcrypt/config.toml. A missing file is not an error;
// every setting has a built-in default.
//
//	[defaults]
//	profile = "dev"
//	regions = ["us-east-1", "us-west-2"]
//	key_id = "alias/mrcrypt"
//
//	[logging]
//	file = "~/.local/state/mrcrypt/mrcrypt.log"
package configs
