package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"

	"github.com/mrcrypt/mrcrypt/internal/configs"
	"github.com/mrcrypt/mrcrypt/internal/kms/kmstest"
)

func init() {
	color.NoColor = true
}

// testEnv is an isolated CLI environment backed by a fake KMS.
type testEnv struct {
	cloud *kmstest.Cloud
	dir   string
	paths *configs.Paths
}

// setupTestEnvironment points config and state at temp directories and
// installs a fake KMS with alias/app in each region.
func setupTestEnvironment(t *testing.T, regions ...string) *testEnv {
	t.Helper()

	ResetGlobalState()
	tempUserDir := t.TempDir()

	originalPaths := configs.UserPaths
	paths := &configs.Paths{
		ConfigFile: filepath.Join(tempUserDir, "config", "config.toml"),
		StateDir:   filepath.Join(tempUserDir, "state"),
	}
	configs.UserPaths = paths

	cloud := kmstest.NewCloud()
	cloud.CreateAliasedKeys("alias/app", regions...)
	SetKMSFactory(cloud.Factory())

	t.Cleanup(func() {
		configs.UserPaths = originalPaths
		ResetGlobalState()
	})

	return &testEnv{cloud: cloud, dir: t.TempDir(), paths: paths}
}

// writeFile creates a file under the environment's working directory.
func (e *testEnv) writeFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil { // #nosec G306
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// writeConfig writes the user config file.
func (e *testEnv) writeConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(e.paths.ConfigFile), 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(e.paths.ConfigFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// runCLI executes mrcrypt with args and returns its combined output and exit code.
func runCLI(t *testing.T, args ...string) (string, int) {
	t.Helper()
	// Flag values persist between runs of the same command tree.
	resetEncryptCommandState()
	resetDecryptCommandState()
	resetLogCommandState()
	resetConfigCommandState()
	verbosity, profile, outfile, configPath, started = 0, "", "", "", false

	RootCmd.SetArgs(args)
	code := 0
	output, _ := captureOutput(func() error {
		code = Execute()
		return nil
	})
	return output, code
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	stdoutChan := make(chan string, 1)
	stderrChan := make(chan string, 1)

	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, stdoutReader)
		stdoutChan <- buf.String()
	}()

	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, stderrReader)
		stderrChan <- buf.String()
	}()

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-stdoutChan + <-stderrChan, err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}
