// Package shared contains utilities shared between integration tests.
//
// Integration tests talk to real AWS KMS. They are built only with the
// integration tag and skip themselves unless
// AWS_ENCRYPTION_SDK_PYTHON_INTEGRATION_TEST_AWS_KMS_KEY_ID names a key the
// ambient credentials (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_SESSION_TOKEN or a profile) can use.
package shared

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"

	"github.com/mrcrypt/mrcrypt/cmd"
	"github.com/mrcrypt/mrcrypt/internal/configs"
	"github.com/mrcrypt/mrcrypt/internal/kms"
)

// KeyIDEnv names the KMS key used by integration tests.
const KeyIDEnv = "AWS_ENCRYPTION_SDK_PYTHON_INTEGRATION_TEST_AWS_KMS_KEY_ID"

// DefaultRegion is used when AWS_DEFAULT_REGION is unset.
const DefaultRegion = "us-east-1"

// KeyID returns the integration test key, skipping the test when unset.
func KeyID(t *testing.T) string {
	t.Helper()
	keyID := os.Getenv(KeyIDEnv)
	if keyID == "" {
		t.Skipf("%s is not set; skipping integration test", KeyIDEnv)
	}
	return keyID
}

// Region returns AWS_DEFAULT_REGION, setting it to DefaultRegion when unset.
func Region(t *testing.T) string {
	t.Helper()
	region := os.Getenv("AWS_DEFAULT_REGION")
	if region == "" {
		region = DefaultRegion
		t.Setenv("AWS_DEFAULT_REGION", region)
	}
	return region
}

// KeyRegion is the region a key ARN lives in, or Region(t) for other ids.
func KeyRegion(t *testing.T, keyID string) string {
	t.Helper()
	if region, err := kms.RegionFromARN(keyID); err == nil {
		return region
	}
	return Region(t)
}

// SetupTestEnvironment isolates config and state in temp directories and
// returns a working directory for test files.
func SetupTestEnvironment(t *testing.T) string {
	t.Helper()
	color.NoColor = true

	tempUserDir := t.TempDir()
	originalPaths := configs.UserPaths
	configs.UserPaths = &configs.Paths{
		ConfigFile: filepath.Join(tempUserDir, "config.toml"),
		StateDir:   filepath.Join(tempUserDir, "state"),
	}

	cmd.ResetGlobalState()
	t.Cleanup(func() {
		configs.UserPaths = originalPaths
		cmd.ResetGlobalState()
	})

	return t.TempDir()
}

// RunCLI runs mrcrypt with args and returns its combined output and exit code.
func RunCLI(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd.ResetGlobalState()
	cmd.GetRootCmd().SetArgs(args)

	code := 0
	output, _ := CaptureOutput(func() error {
		code = cmd.Execute()
		return nil
	})
	return output, code
}

// CaptureOutput captures both stdout and stderr during function execution.
func CaptureOutput(fn func() error) (string, error) {
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

// WriteFile creates a test file with the given content.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil { // #nosec G306
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
