// Package kms wraps and unwraps data keys with AWS KMS across regions.
//
// A Provider lazily builds one KMS client per region from the shared AWS
// configuration (environment, ~/.aws/config, the selected profile) and
// caches it for the life of the command. Every wrapped key records the full
// ARN of the CMK that produced it, which is also how decryption finds the
// region to call.
//
// # IAM Permissions
//
// Encrypting needs kms:GenerateDataKey in the first region and kms:Encrypt
// in every other region. Decrypting needs kms:Decrypt in at least one.
//
// # Testing
//
// The kmstest subpackage provides an in-memory multi-region KMS that
// satisfies the API interface.
package kms
