package message

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"crypto/ecdsa"
	"fmt"
	"hash"
	"io"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

// DecryptionMaterials unlock one message.
type DecryptionMaterials struct {
	DataKey []byte
	// VerificationKey is required for signed suites.
	VerificationKey *ecdsa.PublicKey
}

// MaterialsResolver produces the materials for a parsed header, usually by
// asking a key service to unwrap one of its encrypted data keys.
type MaterialsResolver func(h *Header) (*DecryptionMaterials, error)

// Decrypt reads a message from r and writes its plaintext to w.
//
// Plaintext is written frame by frame as each frame authenticates, but the
// signature can only be checked at the end of the message. Callers must
// discard anything written to w when Decrypt returns an error.
func Decrypt(w io.Writer, r io.Reader, resolve MaterialsResolver) (*Header, error) {
	br := bufio.NewReader(r)
	hashing := &hashingReader{r: br}

	h, body, err := readHeader(hashing)
	if err != nil {
		return nil, err
	}

	materials, err := resolve(h)
	if err != nil {
		return h, err
	}
	if h.Suite.Signed() {
		if materials.VerificationKey == nil {
			return h, fmt.Errorf("%w: signed message without a verification key", merrors.ErrContextMismatch)
		}
		// readHeader consumed through the tag, so seed the hash with it.
		hashing.h = h.Suite.signatureHash()
		hashing.h.Write(body)
		hashing.h.Write(h.iv)
		hashing.h.Write(h.tag)
	}

	key, err := h.Suite.deriveKey(materials.DataKey, h.MessageID)
	if err != nil {
		return h, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return h, err
	}

	if _, err := aead.Open(nil, h.iv, h.tag, body); err != nil {
		return h, fmt.Errorf("%w: header", merrors.ErrAuthenticationFailed)
	}

	if err := decryptFrames(w, hashing, aead, h); err != nil {
		return h, err
	}

	if h.Suite.Signed() {
		digest := hashing.h.Sum(nil)
		hashing.h = nil

		footer := &fieldReader{r: br}
		signature := footer.field(int(footer.u16()))
		if footer.err != nil {
			return h, footer.failure()
		}
		if !ecdsa.VerifyASN1(materials.VerificationKey, digest, signature) {
			return h, merrors.ErrSignatureInvalid
		}
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return h, malformed("trailing bytes after message")
	}

	return h, nil
}

func decryptFrames(w io.Writer, r io.Reader, aead cipher.AEAD, h *Header) error {
	fr := &fieldReader{r: r}
	buf := make([]byte, int(h.FrameLength)+tagLength)

	for expected := uint32(1); ; expected++ {
		seq := fr.u32()
		final := seq == finalFrameMarker
		if final {
			seq = fr.u32()
		}
		iv := fr.field(ivLength)

		contentLen := h.FrameLength
		if final {
			contentLen = fr.u32()
		}
		if fr.err != nil {
			return fr.failure()
		}

		switch {
		case seq != expected:
			return malformed("frame %d out of order, expected %d", seq, expected)
		case !bytes.Equal(iv, frameIV(seq)):
			return malformed("frame %d has an unexpected IV", seq)
		case contentLen > h.FrameLength:
			return malformed("final frame length %d exceeds frame length %d", contentLen, h.FrameLength)
		}

		sealed := buf[:int(contentLen)+tagLength]
		fr.full(sealed)
		if fr.err != nil {
			return fr.failure()
		}

		label := frameLabel
		if final {
			label = finalFrameLabel
		}
		plaintext, err := aead.Open(sealed[:0], iv, sealed, frameAAD(h.MessageID, label, seq, int(contentLen)))
		if err != nil {
			return fmt.Errorf("%w: frame %d", merrors.ErrAuthenticationFailed, seq)
		}
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("writing plaintext: %w", err)
		}

		if final {
			return nil
		}
	}
}

// hashingReader feeds everything it reads into h while h is set.
type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if hr.h != nil && n > 0 {
		hr.h.Write(p[:n])
	}
	return n, err
}
