// Package materials assembles the keys a message needs.
//
// For encryption it generates one data key, wraps it under the CMK in every
// requested region, and for signed suites creates an ECDSA signing key whose
// public half travels in the encryption context. For decryption it unwraps
// the first data key any region will release and recovers the verification
// key from the context.
//
// Files written by early mrcrypt releases stored the verification key as an
// uncompressed curve point. Those still decrypt, with a warning.
package materials
