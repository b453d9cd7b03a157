// Package message implements mrcrypt's framed ciphertext format.
//
// A message is a header, a sequence of encrypted frames and, for signed
// algorithm suites, a footer holding an ECDSA signature over everything
// before it.
//
// # Layout
//
//	header:  version(1) type(1) suite(2) message-id(16)
//	         context-len(2) context  edk-count(2) edks
//	         content-type(1) reserved(4) iv-len(1) frame-len(4)
//	         header-iv(12) header-tag(16)
//	frames:  seq(4) iv(12) ciphertext(frame-len) tag(16)
//	final:   0xFFFFFFFF seq(4) iv(12) content-len(4) ciphertext tag(16)
//	footer:  sig-len(2) signature
//
// All integers are big-endian. The encryption context is serialized with
// its keys sorted so that equal contexts always produce equal bytes.
//
// # Keys
//
// The data key is never used directly. Each message derives its content key
// with HKDF over the data key, using the suite id and message id as info, so
// two messages under the same data key still use distinct AES keys.
package message
