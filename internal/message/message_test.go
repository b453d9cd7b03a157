package message

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(t *testing.T, suite *AlgorithmSuite) (EncryptParams, *DecryptionMaterials) {
	t.Helper()

	dataKey := make([]byte, 32)
	_, err := rand.Read(dataKey)
	require.NoError(t, err)

	p := EncryptParams{
		Suite:   suite,
		DataKey: dataKey,
		EncryptedDataKeys: []EncryptedDataKey{
			{ProviderID: "aws-kms", ProviderInfo: "arn:aws:kms:us-east-1:111122223333:key/a", Ciphertext: []byte("wrapped-1")},
			{ProviderID: "aws-kms", ProviderInfo: "arn:aws:kms:us-west-2:111122223333:key/a", Ciphertext: []byte("wrapped-2")},
		},
		EncryptionContext: map[string]string{"app": "billing", "env": "prod"},
		FrameLength:       16,
	}
	dm := &DecryptionMaterials{DataKey: dataKey}

	if suite.Signed() {
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		p.SigningKey = key
		dm.VerificationKey = &key.PublicKey
	}
	return p, dm
}

func encryptString(t *testing.T, p EncryptParams, plaintext string) []byte {
	t.Helper()
	var out bytes.Buffer
	_, err := Encrypt(&out, strings.NewReader(plaintext), p)
	require.NoError(t, err)
	return out.Bytes()
}

func staticResolver(dm *DecryptionMaterials) MaterialsResolver {
	return func(*Header) (*DecryptionMaterials, error) { return dm, nil }
}

func TestRoundTrip(t *testing.T) {
	plaintexts := map[string]string{
		"empty":          "",
		"short":          "hunter2",
		"exact frame":    strings.Repeat("a", 16),
		"exact frames":   strings.Repeat("b", 64),
		"partial frames": strings.Repeat("c", 50),
	}

	for _, suite := range []*AlgorithmSuite{AES256GCMHKDFSHA384ECDSAP384, AES256GCMHKDFSHA256} {
		for name, plaintext := range plaintexts {
			t.Run(suite.Name+"/"+name, func(t *testing.T) {
				p, dm := testParams(t, suite)
				ciphertext := encryptString(t, p, plaintext)

				var out bytes.Buffer
				h, err := Decrypt(&out, bytes.NewReader(ciphertext), staticResolver(dm))
				require.NoError(t, err)
				assert.Equal(t, plaintext, out.String())
				assert.Equal(t, suite, h.Suite)
				assert.Equal(t, p.EncryptionContext, h.EncryptionContext)
				assert.Len(t, h.EncryptedDataKeys, 2)
				assert.Equal(t, uint32(16), h.FrameLength)
			})
		}
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	p, _ := testParams(t, AES256GCMHKDFSHA256)
	a := encryptString(t, p, "same input")
	b := encryptString(t, p, "same input")
	assert.NotEqual(t, a, b)
}

func TestResolverSeesHeader(t *testing.T) {
	p, dm := testParams(t, DefaultSuite)
	ciphertext := encryptString(t, p, "payload")

	var seen *Header
	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), func(h *Header) (*DecryptionMaterials, error) {
		seen = h
		return dm, nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "arn:aws:kms:us-west-2:111122223333:key/a", seen.EncryptedDataKeys[1].ProviderInfo)
	assert.Equal(t, []byte("wrapped-1"), seen.EncryptedDataKeys[0].Ciphertext)
}

func TestResolverErrorIsReturned(t *testing.T) {
	p, _ := testParams(t, DefaultSuite)
	ciphertext := encryptString(t, p, "payload")

	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), func(*Header) (*DecryptionMaterials, error) {
		return nil, merrors.ErrNoDecryptableKey
	})
	assert.ErrorIs(t, err, merrors.ErrNoDecryptableKey)
}

func TestWrongDataKeyFailsHeaderAuth(t *testing.T) {
	p, dm := testParams(t, AES256GCMHKDFSHA256)
	ciphertext := encryptString(t, p, "payload")

	wrong := *dm
	wrong.DataKey = bytes.Repeat([]byte{7}, 32)
	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(&wrong))
	assert.ErrorIs(t, err, merrors.ErrAuthenticationFailed)
}

func TestTamperedBodyFails(t *testing.T) {
	p, dm := testParams(t, AES256GCMHKDFSHA256)
	ciphertext := encryptString(t, p, strings.Repeat("x", 40))

	// Flip a byte in the last frame's ciphertext.
	ciphertext[len(ciphertext)-20] ^= 0xFF

	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(dm))
	assert.ErrorIs(t, err, merrors.ErrAuthenticationFailed)
}

func TestTamperedSignatureFails(t *testing.T) {
	p, dm := testParams(t, DefaultSuite)
	ciphertext := encryptString(t, p, "payload")

	other, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	wrong := *dm
	wrong.VerificationKey = &other.PublicKey

	_, err = Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(&wrong))
	assert.ErrorIs(t, err, merrors.ErrSignatureInvalid)
}

func TestTruncatedMessageIsMalformed(t *testing.T) {
	p, dm := testParams(t, DefaultSuite)
	ciphertext := encryptString(t, p, strings.Repeat("y", 100))

	for _, cut := range []int{3, 30, len(ciphertext) / 2, len(ciphertext) - 1} {
		_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext[:cut]), staticResolver(dm))
		assert.ErrorIs(t, err, merrors.ErrMalformedMessage, "cut at %d", cut)
	}
}

func TestReorderedFramesAreMalformed(t *testing.T) {
	p, dm := testParams(t, AES256GCMHKDFSHA256)
	ciphertext := encryptString(t, p, strings.Repeat("z", 40))

	start := bytes.Index(ciphertext, append([]byte{0, 0, 0, 1}, frameIV(1)...))
	require.Positive(t, start, "first frame not found")
	size := 4 + ivLength + int(p.FrameLength) + tagLength
	first := append([]byte(nil), ciphertext[start:start+size]...)
	second := append([]byte(nil), ciphertext[start+size:start+2*size]...)
	copy(ciphertext[start:], second)
	copy(ciphertext[start+size:], first)

	var out bytes.Buffer
	_, err := Decrypt(&out, bytes.NewReader(ciphertext), staticResolver(dm))
	assert.ErrorIs(t, err, merrors.ErrMalformedMessage)
	assert.Contains(t, err.Error(), "out of order")
	assert.Zero(t, out.Len())
}

func TestTrailingBytesAreMalformed(t *testing.T) {
	p, dm := testParams(t, AES256GCMHKDFSHA256)
	ciphertext := append(encryptString(t, p, "payload"), 0x00)

	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(dm))
	assert.ErrorIs(t, err, merrors.ErrMalformedMessage)
}

func TestUnknownSuiteIsRejected(t *testing.T) {
	p, dm := testParams(t, AES256GCMHKDFSHA256)
	ciphertext := encryptString(t, p, "payload")
	ciphertext[2], ciphertext[3] = 0x00, 0x14

	_, err := Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(dm))
	assert.ErrorIs(t, err, merrors.ErrUnsupportedAlgorithm)
}

func TestSignedSuiteRequiresKeys(t *testing.T) {
	p, dm := testParams(t, DefaultSuite)

	noSigner := p
	noSigner.SigningKey = nil
	_, err := Encrypt(&bytes.Buffer{}, strings.NewReader("x"), noSigner)
	assert.Error(t, err)

	ciphertext := encryptString(t, p, "x")
	noVerifier := *dm
	noVerifier.VerificationKey = nil
	_, err = Decrypt(&bytes.Buffer{}, bytes.NewReader(ciphertext), staticResolver(&noVerifier))
	assert.ErrorIs(t, err, merrors.ErrContextMismatch)
}

func TestEncryptValidation(t *testing.T) {
	p, _ := testParams(t, AES256GCMHKDFSHA256)

	tooBig := p
	tooBig.FrameLength = MaxFrameLength + 1
	_, err := Encrypt(&bytes.Buffer{}, strings.NewReader("x"), tooBig)
	assert.Error(t, err)

	noKeys := p
	noKeys.EncryptedDataKeys = nil
	_, err = Encrypt(&bytes.Buffer{}, strings.NewReader("x"), noKeys)
	assert.Error(t, err)

	shortKey := p
	shortKey.DataKey = []byte("short")
	_, err = Encrypt(&bytes.Buffer{}, strings.NewReader("x"), shortKey)
	assert.Error(t, err)
}

func TestContextSerializationIsOrderIndependent(t *testing.T) {
	a, err := marshalContext(map[string]string{"b": "2", "a": "1", "c": "3"})
	require.NoError(t, err)
	b, err := marshalContext(map[string]string{"c": "3", "a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := marshalContext(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	parsed, err := unmarshalContext(a)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, parsed)
}

func TestSuiteLookup(t *testing.T) {
	s, err := SuiteByName("AES_256_GCM_HKDF_SHA256")
	require.NoError(t, err)
	assert.False(t, s.Signed())

	s, err = SuiteByID(0x0378)
	require.NoError(t, err)
	assert.True(t, s.Signed())

	_, err = SuiteByName("ROT13")
	assert.True(t, errors.Is(err, merrors.ErrUnsupportedAlgorithm))
	assert.ElementsMatch(t, []string{"AES_256_GCM_HKDF_SHA384_ECDSA_P384", "AES_256_GCM_HKDF_SHA256"}, SuiteNames())
}
