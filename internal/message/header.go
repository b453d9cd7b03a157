package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

const (
	formatVersion       byte = 0x01
	messageTypeCustomer byte = 0x80
	contentTypeFramed   byte = 0x02

	finalFrameMarker uint32 = 0xFFFFFFFF

	// MaxFrameLength bounds the configurable frame size.
	MaxFrameLength = 1 << 20
	// DefaultFrameLength is used when no frame length is configured.
	DefaultFrameLength = 4096
)

// EncryptedDataKey is a data key wrapped by one master key.
type EncryptedDataKey struct {
	// ProviderID names the key provider, e.g. "aws-kms".
	ProviderID string
	// ProviderInfo identifies the master key, e.g. a KMS key ARN.
	ProviderInfo string
	Ciphertext   []byte
}

// Header is the parsed message header.
type Header struct {
	Suite             *AlgorithmSuite
	MessageID         [16]byte
	EncryptionContext map[string]string
	EncryptedDataKeys []EncryptedDataKey
	FrameLength       uint32

	iv  []byte
	tag []byte
}

// marshalBody serializes everything the header tag authenticates.
func (h *Header) marshalBody() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(formatVersion)
	buf.WriteByte(messageTypeCustomer)
	writeUint16(&buf, h.Suite.ID)
	buf.Write(h.MessageID[:])

	ctx, err := marshalContext(h.EncryptionContext)
	if err != nil {
		return nil, err
	}
	writeUint16(&buf, uint16(len(ctx)))
	buf.Write(ctx)

	if len(h.EncryptedDataKeys) == 0 {
		return nil, fmt.Errorf("message requires at least one encrypted data key")
	}
	if len(h.EncryptedDataKeys) > math.MaxUint16 {
		return nil, fmt.Errorf("too many encrypted data keys: %d", len(h.EncryptedDataKeys))
	}
	writeUint16(&buf, uint16(len(h.EncryptedDataKeys)))
	for _, edk := range h.EncryptedDataKeys {
		for _, field := range [][]byte{[]byte(edk.ProviderID), []byte(edk.ProviderInfo), edk.Ciphertext} {
			if err := writeField(&buf, field); err != nil {
				return nil, fmt.Errorf("encrypted data key: %w", err)
			}
		}
	}

	buf.WriteByte(contentTypeFramed)
	buf.Write([]byte{0, 0, 0, 0})
	buf.WriteByte(ivLength)
	writeUint32(&buf, h.FrameLength)

	return buf.Bytes(), nil
}

// marshalContext serializes the encryption context with sorted keys.
// An empty context serializes to zero bytes.
func marshalContext(ctx map[string]string) ([]byte, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	if len(ctx) > math.MaxUint16 {
		return nil, fmt.Errorf("encryption context has too many entries: %d", len(ctx))
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writeUint16(&buf, uint16(len(keys)))
	for _, k := range keys {
		if err := writeField(&buf, []byte(k)); err != nil {
			return nil, fmt.Errorf("encryption context key %q: %w", k, err)
		}
		if err := writeField(&buf, []byte(ctx[k])); err != nil {
			return nil, fmt.Errorf("encryption context value for %q: %w", k, err)
		}
	}
	if buf.Len() > math.MaxUint16 {
		return nil, fmt.Errorf("encryption context is too large: %d bytes", buf.Len())
	}
	return buf.Bytes(), nil
}

// readHeader parses a header from r. The returned bytes are the
// authenticated header body, without the IV and tag.
func readHeader(r io.Reader) (*Header, []byte, error) {
	var body bytes.Buffer
	hr := &fieldReader{r: io.TeeReader(r, &body)}

	version := hr.u8()
	msgType := hr.u8()
	if hr.err == nil && version != formatVersion {
		return nil, nil, malformed("unsupported format version 0x%02x", version)
	}
	if hr.err == nil && msgType != messageTypeCustomer {
		return nil, nil, malformed("unsupported message type 0x%02x", msgType)
	}

	suiteID := hr.u16()
	if hr.err != nil {
		return nil, nil, hr.failure()
	}
	suite, err := SuiteByID(suiteID)
	if err != nil {
		return nil, nil, err
	}

	h := &Header{Suite: suite}
	hr.full(h.MessageID[:])

	ctxBytes := hr.field(int(hr.u16()))
	if hr.err != nil {
		return nil, nil, hr.failure()
	}
	h.EncryptionContext, err = unmarshalContext(ctxBytes)
	if err != nil {
		return nil, nil, err
	}

	count := int(hr.u16())
	if hr.err == nil && count == 0 {
		return nil, nil, malformed("no encrypted data keys")
	}
	for i := 0; i < count && hr.err == nil; i++ {
		edk := EncryptedDataKey{
			ProviderID:   string(hr.field(int(hr.u16()))),
			ProviderInfo: string(hr.field(int(hr.u16()))),
		}
		edk.Ciphertext = hr.field(int(hr.u16()))
		h.EncryptedDataKeys = append(h.EncryptedDataKeys, edk)
	}

	contentType := hr.u8()
	reserved := hr.field(4)
	ivLen := hr.u8()
	h.FrameLength = hr.u32()
	if hr.err != nil {
		return nil, nil, hr.failure()
	}
	switch {
	case contentType != contentTypeFramed:
		return nil, nil, malformed("unsupported content type 0x%02x", contentType)
	case !bytes.Equal(reserved, []byte{0, 0, 0, 0}):
		return nil, nil, malformed("reserved bytes are not zero")
	case ivLen != ivLength:
		return nil, nil, malformed("unsupported IV length %d", ivLen)
	case h.FrameLength == 0 || h.FrameLength > MaxFrameLength:
		return nil, nil, malformed("invalid frame length %d", h.FrameLength)
	}

	authenticated := append([]byte(nil), body.Bytes()...)

	// The IV and tag are not part of the authenticated body.
	tail := &fieldReader{r: r}
	h.iv = tail.field(ivLength)
	h.tag = tail.field(tagLength)
	if tail.err != nil {
		return nil, nil, tail.failure()
	}

	return h, authenticated, nil
}

func unmarshalContext(data []byte) (map[string]string, error) {
	ctx := make(map[string]string)
	if len(data) == 0 {
		return ctx, nil
	}

	cr := &fieldReader{r: bytes.NewReader(data)}
	count := int(cr.u16())
	for i := 0; i < count && cr.err == nil; i++ {
		k := string(cr.field(int(cr.u16())))
		v := string(cr.field(int(cr.u16())))
		if _, dup := ctx[k]; dup && cr.err == nil {
			return nil, malformed("duplicate encryption context key %q", k)
		}
		ctx[k] = v
	}
	if cr.err != nil {
		return nil, cr.failure()
	}
	if cr.r.(*bytes.Reader).Len() != 0 {
		return nil, malformed("trailing bytes after encryption context")
	}
	return ctx, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeField(buf *bytes.Buffer, field []byte) error {
	if len(field) > math.MaxUint16 {
		return fmt.Errorf("field is too long: %d bytes", len(field))
	}
	writeUint16(buf, uint16(len(field)))
	buf.Write(field)
	return nil
}

// fieldReader reads fixed-width fields and remembers the first error.
type fieldReader struct {
	r   io.Reader
	err error
}

func (f *fieldReader) full(p []byte) {
	if f.err != nil {
		return
	}
	_, f.err = io.ReadFull(f.r, p)
}

func (f *fieldReader) field(n int) []byte {
	p := make([]byte, n)
	f.full(p)
	return p
}

func (f *fieldReader) u8() byte {
	var b [1]byte
	f.full(b[:])
	return b[0]
}

func (f *fieldReader) u16() uint16 {
	var b [2]byte
	f.full(b[:])
	return binary.BigEndian.Uint16(b[:])
}

func (f *fieldReader) u32() uint32 {
	var b [4]byte
	f.full(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (f *fieldReader) failure() error {
	if errors.Is(f.err, io.EOF) || errors.Is(f.err, io.ErrUnexpectedEOF) {
		return malformed("message is truncated")
	}
	return f.err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", merrors.ErrMalformedMessage, fmt.Sprintf(format, args...))
}
