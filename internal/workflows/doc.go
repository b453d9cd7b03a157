// Package workflows provides high-level orchestration for mrcrypt commands.
//
// Workflows coordinate configuration, file resolution, the crypto materials
// manager, the message codec and the audit log to implement a complete
// command. They are independent of CLI concerns like flag parsing, spinners
// and output formatting.
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// # Available Workflows
//
//   - Encrypt: encrypts a file, directory, glob or stdin under a KMS key in
//     one or more regions
//   - Decrypt: decrypts files produced by Encrypt using whichever region can
//     unwrap the data key
//
// # Concurrency
//
// Files are processed by a bounded pool of Jobs workers. Results are
// reported in input order, and the first failure cancels the remaining work.
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching:
//
//	result, err := workflows.Decrypt(ctx, opts)
//	if errors.Is(err, merrors.ErrNoDecryptableKey) {
//	    // None of the regions could unwrap the data key.
//	}
package workflows
