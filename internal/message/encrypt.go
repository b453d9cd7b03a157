package message

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/google/uuid"
)

const (
	frameLabel      = "mrcrypt-frame"
	finalFrameLabel = "mrcrypt-final-frame"
)

// EncryptParams carries the materials for one message.
type EncryptParams struct {
	Suite             *AlgorithmSuite
	DataKey           []byte
	EncryptedDataKeys []EncryptedDataKey
	EncryptionContext map[string]string

	// SigningKey is required for signed suites and ignored otherwise.
	SigningKey *ecdsa.PrivateKey

	// FrameLength defaults to DefaultFrameLength.
	FrameLength int
}

// Encrypt reads plaintext from r and writes a complete message to w.
// It returns the header that was written.
func Encrypt(w io.Writer, r io.Reader, p EncryptParams) (*Header, error) {
	if p.Suite == nil {
		p.Suite = DefaultSuite
	}
	if p.FrameLength == 0 {
		p.FrameLength = DefaultFrameLength
	}
	if p.FrameLength < 0 || p.FrameLength > MaxFrameLength {
		return nil, fmt.Errorf("frame length must be between 1 and %d, got %d", MaxFrameLength, p.FrameLength)
	}
	if p.Suite.Signed() && p.SigningKey == nil {
		return nil, fmt.Errorf("suite %s requires a signing key", p.Suite)
	}

	h := &Header{
		Suite:             p.Suite,
		MessageID:         uuid.New(),
		EncryptionContext: p.EncryptionContext,
		EncryptedDataKeys: p.EncryptedDataKeys,
		FrameLength:       uint32(p.FrameLength),
	}

	key, err := p.Suite.deriveKey(p.DataKey, h.MessageID)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body, err := h.marshalBody()
	if err != nil {
		return nil, err
	}
	h.iv = make([]byte, ivLength)
	h.tag = aead.Seal(nil, h.iv, nil, body)

	var sig hash.Hash
	out := w
	if p.Suite.Signed() {
		sig = p.Suite.signatureHash()
		out = io.MultiWriter(w, sig)
	}

	for _, part := range [][]byte{body, h.iv, h.tag} {
		if _, err := out.Write(part); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	if err := encryptFrames(out, bufio.NewReader(r), aead, h); err != nil {
		return nil, err
	}

	if sig != nil {
		signature, err := ecdsa.SignASN1(rand.Reader, p.SigningKey, sig.Sum(nil))
		if err != nil {
			return nil, fmt.Errorf("signing message: %w", err)
		}
		var footer bytes.Buffer
		if err := writeField(&footer, signature); err != nil {
			return nil, err
		}
		if _, err := w.Write(footer.Bytes()); err != nil {
			return nil, fmt.Errorf("writing footer: %w", err)
		}
	}

	return h, nil
}

func encryptFrames(w io.Writer, r *bufio.Reader, aead cipher.AEAD, h *Header) error {
	buf := make([]byte, h.FrameLength)
	for seq := uint32(1); ; seq++ {
		if seq == finalFrameMarker {
			return fmt.Errorf("plaintext exceeds the maximum number of frames")
		}

		n, err := io.ReadFull(r, buf)
		final := false
		switch {
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			final = true
		case err != nil:
			return fmt.Errorf("reading plaintext: %w", err)
		default:
			if _, peekErr := r.Peek(1); errors.Is(peekErr, io.EOF) {
				final = true
			}
		}

		if final {
			return writeFinalFrame(w, aead, h, seq, buf[:n])
		}
		if err := writeFrame(w, aead, h, seq, buf[:n]); err != nil {
			return err
		}
	}
}

func writeFrame(w io.Writer, aead cipher.AEAD, h *Header, seq uint32, plaintext []byte) error {
	iv := frameIV(seq)
	sealed := aead.Seal(nil, iv, plaintext, frameAAD(h.MessageID, frameLabel, seq, len(plaintext)))

	var buf bytes.Buffer
	writeUint32(&buf, seq)
	buf.Write(iv)
	buf.Write(sealed)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing frame %d: %w", seq, err)
	}
	return nil
}

func writeFinalFrame(w io.Writer, aead cipher.AEAD, h *Header, seq uint32, plaintext []byte) error {
	iv := frameIV(seq)
	sealed := aead.Seal(nil, iv, plaintext, frameAAD(h.MessageID, finalFrameLabel, seq, len(plaintext)))

	var buf bytes.Buffer
	writeUint32(&buf, finalFrameMarker)
	writeUint32(&buf, seq)
	buf.Write(iv)
	writeUint32(&buf, uint32(len(plaintext)))
	buf.Write(sealed)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing final frame: %w", err)
	}
	return nil
}

// frameIV is eight zero bytes followed by the sequence number. The header
// uses the all-zero IV, which no frame can produce since sequences start at 1.
func frameIV(seq uint32) []byte {
	iv := make([]byte, ivLength)
	binary.BigEndian.PutUint32(iv[ivLength-4:], seq)
	return iv
}

func frameAAD(messageID [16]byte, label string, seq uint32, contentLen int) []byte {
	aad := make([]byte, 0, len(messageID)+len(label)+4+8)
	aad = append(aad, messageID[:]...)
	aad = append(aad, label...)
	aad = binary.BigEndian.AppendUint32(aad, seq)
	aad = binary.BigEndian.AppendUint64(aad, uint64(contentLen))
	return aad
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
