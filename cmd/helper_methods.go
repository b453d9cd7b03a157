package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/mrcrypt/mrcrypt/internal/ui"
	"github.com/mrcrypt/mrcrypt/internal/utils"
	"github.com/mrcrypt/mrcrypt/internal/workflows"
)

// startSpinner creates and starts a spinner with the given message when
// stdout is a terminal and the logger is quiet. Returns the spinner and a
// function that should be deferred to clean up.
//
// spinner.FinalMSG values do NOT need trailing newlines. The cleanup
// function calls ui.EnsureNewline() on the final message and prints it to
// out.
func startSpinner(message string, out io.Writer) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr

	// Ignore color errors - continue without colored spinner if it fails.
	_ = s.Color("cyan")

	spinning := !Logger.Verbose && !Logger.Debug && utils.StdoutIsTerminal()
	if spinning {
		s.Start()
	} else {
		Logger.Infof("%s", message)
	}

	cleanup := func() {
		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if spinning {
			s.Stop()
		}

		if finalMsg != "" {
			fmt.Fprint(out, finalMsg)
		}
	}

	return s, cleanup
}

// statusWriter is where final messages go: stdout, unless stdout carries
// the result of a stdin run.
func statusWriter(input string) io.Writer {
	if input == utils.StdinMarker && outfile == "" {
		return os.Stderr
	}
	return os.Stdout
}

func commonOptions(input string) workflows.CommonOptions {
	opts := workflows.CommonOptions{
		Input:   input,
		Outfile: outfile,
		Profile: Config.ResolveProfile(profile),
		Config:  Config,
		Logger:  Logger,
	}
	return opts
}

// usageError marks errors in flags or arguments.
type usageError struct {
	error
}

func (e usageError) Unwrap() error { return e.error }

var knownErrors = []error{
	merrors.ErrReservedContextKey,
	merrors.ErrNoKeyID,
	merrors.ErrNoFilesFound,
	merrors.ErrFileNotFound,
	merrors.ErrOutputExists,
	merrors.ErrInvalidDateFormat,
	merrors.ErrInvalidConfig,
	merrors.ErrConfigExists,
	merrors.ErrKMSUnavailable,
	merrors.ErrNoDecryptableKey,
	merrors.ErrMalformedMessage,
	merrors.ErrUnsupportedAlgorithm,
	merrors.ErrAuthenticationFailed,
	merrors.ErrSignatureInvalid,
	merrors.ErrContextMismatch,
}

// reportError prints err for the user. Errors mrcrypt knows about print
// their message; anything else prints its type and is logged in full.
func reportError(w io.Writer, err error) {
	if errors.Is(err, merrors.ErrInvalidEncryptionContext) {
		fmt.Fprintln(w, "Invalid dictionary in encryption context argument")
		return
	}

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, ui.ErrorMark()+" Interrupted")
		return
	}

	var usage usageError
	if errors.As(err, &usage) || !started {
		fmt.Fprintln(w, ui.ErrorMark()+" "+err.Error())
		fmt.Fprintln(w, ui.HintMark()+" Run "+ui.Code.Sprint("mrcrypt --help")+" for usage")
		return
	}

	for _, known := range knownErrors {
		if errors.Is(err, known) {
			fmt.Fprintln(w, ui.ErrorMark()+" "+err.Error())
			if hint := hintFor(known); hint != "" {
				fmt.Fprintln(w, ui.HintMark()+" "+hint)
			}
			return
		}
	}

	message := fmt.Sprintf("Encountered unexpected %s: increase verbosity to see details", errorTypeName(err))
	Logger.Errorf("%s: %v", message, err)
	fmt.Fprintln(w, message)
}

func hintFor(err error) string {
	switch err {
	case merrors.ErrNoKeyID:
		return "Pass a KEY_ID or set " + ui.Code.Sprint("key_id") + " under [defaults] in your config"
	case merrors.ErrConfigExists:
		return "Pass " + ui.Flag.Sprint("--force") + " to replace it with the defaults"
	case merrors.ErrOutputExists:
		return "Remove " + ui.Flag.Sprint("--no-overwrite") + " to replace existing files"
	case merrors.ErrKMSUnavailable, merrors.ErrNoDecryptableKey:
		return "Check your AWS credentials and " + ui.Flag.Sprint("--profile") + ", then retry with " + ui.Flag.Sprint("-v")
	case merrors.ErrAuthenticationFailed, merrors.ErrSignatureInvalid, merrors.ErrMalformedMessage:
		return "The file is corrupt or has been tampered with"
	}
	return ""
}

// errorTypeName names the type of the first error in err's chain that is
// not just a wrapper, e.g. "PathError".
func errorTypeName(err error) string {
	name := fmt.Sprintf("%T", err)
	for isWrapper(name) {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
		name = fmt.Sprintf("%T", err)
	}
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func isWrapper(typeName string) bool {
	return strings.HasPrefix(typeName, "*fmt.wrap") || typeName == "cmd.usageError"
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
