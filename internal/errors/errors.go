package errors

import (
	"errors"
	"fmt"
)

// Input errors indicate a problem with the arguments or files the user supplied.
var (
	// ErrInvalidEncryptionContext indicates the encryption context is not a flat dictionary.
	ErrInvalidEncryptionContext = errors.New("invalid dictionary in encryption context argument")

	// ErrReservedContextKey indicates a user context key uses the reserved aws-crypto- prefix.
	ErrReservedContextKey = errors.New("encryption context key uses reserved prefix")

	// ErrNoKeyID indicates no master key was given on the command line or in config.
	ErrNoKeyID = errors.New("no key id provided")

	// ErrNoFilesFound indicates nothing matched the provided input.
	ErrNoFilesFound = errors.New("no matching files found")

	// ErrFileNotFound indicates a specific file could not be located.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates the destination exists and overwriting is disabled.
	ErrOutputExists = errors.New("output file already exists")

	// ErrInvalidDateFormat indicates a date filter is not YYYY-MM-DD.
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates the configuration file is malformed or holds invalid values.
	ErrInvalidConfig = errors.New("configuration is invalid")

	// ErrConfigExists indicates config init would replace an existing file.
	ErrConfigExists = errors.New("config file already exists")
)

// KMS errors indicate the key service could not wrap or unwrap a data key.
var (
	// ErrKMSUnavailable indicates a KMS call failed.
	ErrKMSUnavailable = errors.New("KMS request failed")

	// ErrNoDecryptableKey indicates none of the message's data keys could be decrypted.
	ErrNoDecryptableKey = errors.New("unable to decrypt any data key")
)

// Message errors indicate the ciphertext is corrupt, truncated or was tampered with.
var (
	// ErrMalformedMessage indicates the message structure could not be parsed.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnsupportedAlgorithm indicates an unknown algorithm suite.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm suite")

	// ErrAuthenticationFailed indicates an AES-GCM tag did not verify.
	ErrAuthenticationFailed = errors.New("message authentication failed")

	// ErrSignatureInvalid indicates the message signature did not verify.
	ErrSignatureInvalid = errors.New("message signature is invalid")

	// ErrContextMismatch indicates the signing algorithm and encryption context disagree.
	ErrContextMismatch = errors.New("encryption context does not match algorithm suite")
)

// KMSError records which region, key and operation a KMS failure came from.
type KMSError struct {
	Region string
	KeyID  string
	Op     string
	Err    error
}

func (e *KMSError) Error() string {
	return fmt.Sprintf("kms %s with key %s in %s: %v", e.Op, e.KeyID, e.Region, e.Err)
}

// Is returns true if the target error is ErrKMSUnavailable.
func (e *KMSError) Is(target error) bool {
	return target == ErrKMSUnavailable
}

func (e *KMSError) Unwrap() error {
	return e.Err
}

// NewKMSError creates a new KMSError.
func NewKMSError(op, region, keyID string, err error) *KMSError {
	return &KMSError{Region: region, KeyID: keyID, Op: op, Err: err}
}
