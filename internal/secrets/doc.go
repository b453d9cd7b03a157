// Package secrets finds the files a command operates on and writes its
// results safely.
//
// # Inputs
//
// An input may be a single file, a directory (walked recursively) or a
// glob with ** support. When encrypting a directory or glob, files that
// already carry the encrypted suffix are skipped; when decrypting, only
// those files are selected. A single named file is always used as given.
//
// # Outputs
//
// Encrypting appends the suffix (default ".encrypted"). Decrypting strips
// it, or appends ".decrypted" when the input has no suffix. Results are
// written next to their source unless an output path is given, in which
// case directory inputs are mirrored beneath it.
//
// Every file is written to a temporary file in the destination directory
// and renamed into place, so a failed or tampered decryption never leaves
// partial plaintext behind. Outputs are created with 0600 permissions.
package secrets
