package cmd

import (
	"strings"
	"testing"

	"github.com/mrcrypt/mrcrypt/internal/configs"
)

func TestConfigInitWritesDefaults(t *testing.T) {
	env := setupTestEnvironment(t)

	output, code := runCLI(t, "config", "init")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, output)
	}
	if !strings.Contains(output, "Wrote default config") {
		t.Errorf("Expected confirmation, got: %s", output)
	}

	cfg, err := configs.Load(env.paths.ConfigFile)
	if err != nil {
		t.Fatalf("Written config does not load: %v", err)
	}
	if len(cfg.Unknown) != 0 {
		t.Errorf("Expected no unknown keys, got %v", cfg.Unknown)
	}
	if cfg.Defaults.Jobs != configs.DefaultJobs || cfg.Defaults.EncryptedSuffix != configs.DefaultEncryptedSuffix {
		t.Errorf("Unexpected defaults: %+v", cfg.Defaults)
	}
	if cfg.Logging.File != "" {
		t.Errorf("Expected the log file to stay opt-in, got %q", cfg.Logging.File)
	}
	if cfg.Logging.MaxSizeMB != 1 || cfg.Logging.MaxBackups != 2 || cfg.Logging.MaxAgeDays != 30 {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	env := setupTestEnvironment(t)
	env.writeConfig(t, "[defaults]\nkey_id = \"alias/app\"\n")

	output, code := runCLI(t, "config", "init")
	if code != 1 {
		t.Fatalf("Expected exit 1, got %d", code)
	}
	if !strings.Contains(output, "config file already exists") || !strings.Contains(output, "--force") {
		t.Errorf("Expected exists error with hint, got: %s", output)
	}
	if !strings.Contains(readFile(t, env.paths.ConfigFile), "alias/app") {
		t.Error("Existing config should be untouched")
	}

	if output, code := runCLI(t, "config", "init", "--force"); code != 0 {
		t.Fatalf("Expected exit 0 with --force, got %d: %s", code, output)
	}
	if strings.Contains(readFile(t, env.paths.ConfigFile), "alias/app") {
		t.Error("Expected config to be replaced with defaults")
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	env := setupTestEnvironment(t)
	env.writeConfig(t, "[defaults]\nkey_id = \"alias/app\"\njobs = 2\n")

	output, code := runCLI(t, "config", "show")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, output)
	}
	for _, want := range []string{env.paths.ConfigFile, `key_id = "alias/app"`, "jobs = 2", "[logging]"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}
