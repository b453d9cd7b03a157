// Package errors provides typed error values for mrcrypt.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Input errors: bad arguments or files (ErrInvalidEncryptionContext, ErrNoFilesFound)
//   - Configuration errors: unreadable or invalid settings (ErrInvalidConfig)
//   - KMS errors: key service failures (ErrKMSUnavailable, ErrNoDecryptableKey)
//   - Message errors: corrupt or tampered ciphertext (ErrMalformedMessage, ErrSignatureInvalid)
//
// # Usage
//
// Return errors from internal packages:
//
//	if keyID == "" {
//	    return nil, errors.ErrNoKeyID
//	}
//
// Handle errors in the CLI layer:
//
//	result, err := workflows.Encrypt(ctx, opts)
//	if errors.Is(err, merrors.ErrNoKeyID) {
//	    // Show user-friendly message
//	}
//
// KMS failures carry the region and key that failed:
//
//	var kmsErr *merrors.KMSError
//	if errors.As(err, &kmsErr) {
//	    fmt.Println(kmsErr.Region)
//	}
package errors
