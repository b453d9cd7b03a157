package configs

import (
	"os"
	"path/filepath"
)

// Paths locates mrcrypt's files on this machine.
type Paths struct {
	ConfigFile string
	StateDir   string
}

// UserPaths is resolved at startup and may be replaced in tests.
var UserPaths = DefaultPaths()

// DefaultPaths resolves the config file and state directory from the
// environment, following the XDG base directory conventions.
func DefaultPaths() *Paths {
	configFile := os.Getenv("MRCRYPT_CONFIG")
	if configFile == "" {
		if configDir, err := os.UserConfigDir(); err == nil {
			configFile = filepath.Join(configDir, "mrcrypt", "config.toml")
		}
	}

	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			stateDir = filepath.Join(home, ".local", "state")
		}
	}
	if stateDir != "" {
		stateDir = filepath.Join(stateDir, "mrcrypt")
	}

	return &Paths{ConfigFile: configFile, StateDir: stateDir}
}

// AuditLogPath returns the path of the local operation log, or "" when no
// state directory is available.
func (p *Paths) AuditLogPath() string {
	if p.StateDir == "" {
		return ""
	}
	return filepath.Join(p.StateDir, "audit.jsonl")
}
