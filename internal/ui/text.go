package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Formatter applies a semantic style to text.
type Formatter struct {
	color *color.Color
	open  string
	close string
}

// Sprint formats the arguments and returns the styled string.
func (f Formatter) Sprint(a ...interface{}) string {
	return f.style(fmt.Sprint(a...))
}

// Sprintf formats according to a format specifier and returns the styled string.
func (f Formatter) Sprintf(format string, a ...interface{}) string {
	return f.style(fmt.Sprintf(format, a...))
}

func (f Formatter) style(text string) string {
	if noColor() {
		return f.open + text + f.close
	}
	return f.color.Sprint(text)
}

// EnsureNewline ensures the string ends with a newline character.
func EnsureNewline(s string) string {
	if !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

// noColor reports whether colour output is disabled (https://no-color.org/).
func noColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return color.NoColor
}

var (
	// Code formats runnable commands. `backticks` without colour.
	Code = Formatter{color.New(color.FgYellow), "`", "`"}

	// Path formats file or directory paths.
	Path = Formatter{color.New(color.FgYellow), "", ""}

	// Flag formats CLI flags like --outfile.
	Flag = Formatter{color.New(color.FgYellow), "", ""}

	// Region formats AWS region names. [brackets] without colour.
	Region = Formatter{color.New(color.FgMagenta), "[", "]"}

	// Key formats KMS key identifiers. 'quotes' without colour.
	Key = Formatter{color.New(color.FgCyan), "'", "'"}

	Success = Formatter{color.New(color.FgGreen), "", ""}
	Error   = Formatter{color.New(color.FgRed), "", ""}
	Warning = Formatter{color.New(color.FgYellow), "", ""}
	Info    = Formatter{color.New(color.FgCyan), "", ""}

	// Muted formats secondary text. (parentheses) without colour.
	Muted = Formatter{color.New(color.FgHiBlack), "(", ")"}
)

// Status marks prefixed to final command messages.
func SuccessMark() string { return Success.Sprint("✓") }
func ErrorMark() string   { return Error.Sprint("✗") }
func HintMark() string    { return Info.Sprint("→") }
