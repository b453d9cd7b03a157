package utils

import (
	"fmt"
	"io"
	"os"
)

// StdinMarker is the filename that selects standard input or output.
const StdinMarker = "-"

// ReadStdin reads all content from stdin.
// Returns an error if stdin is a terminal (no piped data) or cannot be read.
func ReadStdin() ([]byte, error) {
	if IsTerminal() {
		return nil, fmt.Errorf("no data provided on stdin (hint: pipe the content to this command)")
	}

	return ReadAllFrom(os.Stdin)
}

// ReadAllFrom reads r to EOF.
func ReadAllFrom(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}
	return data, nil
}
