package message

import (
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	keyLength = 32
	ivLength  = 12
	tagLength = 16
)

// AlgorithmSuite describes the content cipher, key derivation and signing
// scheme of a message.
type AlgorithmSuite struct {
	ID   uint16
	Name string

	kdfHash func() hash.Hash
	curve   elliptic.Curve
}

var (
	// AES256GCMHKDFSHA384ECDSAP384 is the default suite.
	AES256GCMHKDFSHA384ECDSAP384 = &AlgorithmSuite{
		ID:      0x0378,
		Name:    "AES_256_GCM_HKDF_SHA384_ECDSA_P384",
		kdfHash: sha512.New384,
		curve:   elliptic.P384(),
	}

	// AES256GCMHKDFSHA256 is an unsigned suite for callers that do not need
	// to distinguish encrypters from decrypters.
	AES256GCMHKDFSHA256 = &AlgorithmSuite{
		ID:      0x0178,
		Name:    "AES_256_GCM_HKDF_SHA256",
		kdfHash: sha256.New,
	}

	// DefaultSuite is used when no algorithm is configured.
	DefaultSuite = AES256GCMHKDFSHA384ECDSAP384

	suites = []*AlgorithmSuite{AES256GCMHKDFSHA384ECDSAP384, AES256GCMHKDFSHA256}
)

// SuiteByID returns the suite with the given wire identifier.
func SuiteByID(id uint16) (*AlgorithmSuite, error) {
	for _, s := range suites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%04x", merrors.ErrUnsupportedAlgorithm, id)
}

// SuiteByName returns the suite with the given configuration name.
func SuiteByName(name string) (*AlgorithmSuite, error) {
	for _, s := range suites {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", merrors.ErrUnsupportedAlgorithm, name)
}

// SuiteNames lists the configuration names of every supported suite.
func SuiteNames() []string {
	names := make([]string, 0, len(suites))
	for _, s := range suites {
		names = append(names, s.Name)
	}
	return names
}

// Signed reports whether messages in this suite carry a signature footer.
func (s *AlgorithmSuite) Signed() bool {
	return s.curve != nil
}

// Curve returns the signing curve, or nil for unsigned suites.
func (s *AlgorithmSuite) Curve() elliptic.Curve {
	return s.curve
}

// DataKeyLength is the length of the plaintext data key the suite expects.
func (s *AlgorithmSuite) DataKeyLength() int {
	return keyLength
}

func (s *AlgorithmSuite) String() string {
	return s.Name
}

// deriveKey expands the data key into the per-message content key.
func (s *AlgorithmSuite) deriveKey(dataKey []byte, messageID [16]byte) ([]byte, error) {
	if len(dataKey) != keyLength {
		return nil, fmt.Errorf("data key must be %d bytes, got %d", keyLength, len(dataKey))
	}

	info := make([]byte, 2, 2+len(messageID))
	binary.BigEndian.PutUint16(info, s.ID)
	info = append(info, messageID[:]...)

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(s.kdfHash, dataKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("deriving content key: %w", err)
	}
	return key, nil
}

func (s *AlgorithmSuite) signatureHash() hash.Hash {
	return sha512.New384()
}
