package materials

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/mrcrypt/mrcrypt/internal/kms"
	"github.com/mrcrypt/mrcrypt/internal/kms/kmstest"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
	"github.com/mrcrypt/mrcrypt/internal/message"
)

func init() {
	color.NoColor = true
}

type fixture struct {
	cloud    *kmstest.Cloud
	provider *kms.Provider
	manager  *Manager
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, regions ...string) *fixture {
	t.Helper()
	cloud := kmstest.NewCloud()
	cloud.CreateAliasedKeys("alias/app", regions...)
	logs := &bytes.Buffer{}
	log := logger.Logger{Verbose: true, Debug: true, Out: logs}
	provider := kms.NewProvider(kms.Options{Factory: cloud.Factory(), Logger: log})
	return &fixture{cloud: cloud, provider: provider, manager: NewManager(provider, log), logs: logs}
}

func (f *fixture) roundTrip(t *testing.T, mats *EncryptionMaterials, plaintext string) (string, error) {
	t.Helper()
	var ciphertext bytes.Buffer
	_, err := message.Encrypt(&ciphertext, strings.NewReader(plaintext), mats.Params(0))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = message.Decrypt(&out, &ciphertext, f.manager.Resolver(context.Background()))
	return out.String(), err
}

func TestEncryptionMaterialsWrapInEveryRegion(t *testing.T) {
	f := newFixture(t, "us-east-1", "us-west-2", "eu-west-1")

	mats, err := f.manager.GetEncryptionMaterials(context.Background(), EncryptionRequest{
		KeyID:             "alias/app",
		Regions:           []string{"us-east-1", "us-west-2", "eu-west-1"},
		EncryptionContext: map[string]string{"team": "payments"},
	})
	require.NoError(t, err)

	require.Len(t, mats.EncryptedDataKeys, 3)
	for i, region := range []string{"us-east-1", "us-west-2", "eu-west-1"} {
		edk := mats.EncryptedDataKeys[i]
		assert.Equal(t, kms.ProviderID, edk.ProviderID)
		got, err := kms.RegionFromARN(edk.ProviderInfo)
		require.NoError(t, err)
		assert.Equal(t, region, got)
	}

	assert.Equal(t, "payments", mats.EncryptionContext["team"])
	assert.Contains(t, mats.EncryptionContext, PublicKeyContextKey)
	require.NotNil(t, mats.SigningKey)

	point, err := base64.StdEncoding.DecodeString(mats.EncryptionContext[PublicKeyContextKey])
	require.NoError(t, err)
	assert.Len(t, point, 49, "verification key should be a compressed P-384 point")
}

func TestEncryptionMaterialsUnsignedSuite(t *testing.T) {
	f := newFixture(t, "us-east-1")

	mats, err := f.manager.GetEncryptionMaterials(context.Background(), EncryptionRequest{
		KeyID:   "alias/app",
		Regions: []string{"us-east-1"},
		Suite:   message.AES256GCMHKDFSHA256,
	})
	require.NoError(t, err)
	assert.Nil(t, mats.SigningKey)
	assert.NotContains(t, mats.EncryptionContext, PublicKeyContextKey)

	plaintext, err := f.roundTrip(t, mats, "unsigned")
	require.NoError(t, err)
	assert.Equal(t, "unsigned", plaintext)
}

func TestEncryptionRequestValidation(t *testing.T) {
	f := newFixture(t, "us-east-1")
	ctx := context.Background()

	_, err := f.manager.GetEncryptionMaterials(ctx, EncryptionRequest{Regions: []string{"us-east-1"}})
	assert.ErrorIs(t, err, merrors.ErrNoKeyID)

	_, err = f.manager.GetEncryptionMaterials(ctx, EncryptionRequest{KeyID: "alias/app"})
	assert.Error(t, err)

	_, err = f.manager.GetEncryptionMaterials(ctx, EncryptionRequest{
		KeyID:             "alias/app",
		Regions:           []string{"us-east-1"},
		EncryptionContext: map[string]string{"aws-crypto-public-key": "forged"},
	})
	assert.ErrorIs(t, err, merrors.ErrReservedContextKey)
}

func TestEncryptionFailsWhenAnyRegionFails(t *testing.T) {
	f := newFixture(t, "us-east-1", "us-west-2")
	f.cloud.Disable("us-west-2")

	_, err := f.manager.GetEncryptionMaterials(context.Background(), EncryptionRequest{
		KeyID:   "alias/app",
		Regions: []string{"us-east-1", "us-west-2"},
	})
	assert.ErrorIs(t, err, merrors.ErrKMSUnavailable)
}

func TestDecryptFallsBackToAnotherRegion(t *testing.T) {
	f := newFixture(t, "us-east-1", "us-west-2")

	mats, err := f.manager.GetEncryptionMaterials(context.Background(), EncryptionRequest{
		KeyID:   "alias/app",
		Regions: []string{"us-east-1", "us-west-2"},
	})
	require.NoError(t, err)

	f.cloud.Disable("us-east-1")
	plaintext, err := f.roundTrip(t, mats, "still readable")
	require.NoError(t, err)
	assert.Equal(t, "still readable", plaintext)
	assert.Contains(t, f.cloud.Calls(), "Decrypt us-west-2")
}

func TestDecryptFailsWhenNoRegionAnswers(t *testing.T) {
	f := newFixture(t, "us-east-1", "us-west-2")

	mats, err := f.manager.GetEncryptionMaterials(context.Background(), EncryptionRequest{
		KeyID:   "alias/app",
		Regions: []string{"us-east-1", "us-west-2"},
	})
	require.NoError(t, err)

	f.cloud.Disable("us-east-1")
	f.cloud.Disable("us-west-2")
	_, err = f.roundTrip(t, mats, "locked")
	assert.ErrorIs(t, err, merrors.ErrNoDecryptableKey)
	assert.ErrorIs(t, err, merrors.ErrKMSUnavailable)
}

func TestLegacyUncompressedVerificationKey(t *testing.T) {
	f := newFixture(t, "us-east-1")
	ctx := context.Background()
	suite := message.DefaultSuite

	signingKey, err := ecdsa.GenerateKey(suite.Curve(), rand.Reader)
	require.NoError(t, err)
	encCtx := map[string]string{
		PublicKeyContextKey: base64.StdEncoding.EncodeToString(
			elliptic.Marshal(suite.Curve(), signingKey.X, signingKey.Y)), //nolint:staticcheck // legacy files used uncompressed points
	}

	dataKey, wrapped, err := f.provider.GenerateDataKey(ctx, "us-east-1", "alias/app", encCtx)
	require.NoError(t, err)

	mats := &EncryptionMaterials{
		Suite:   suite,
		DataKey: dataKey,
		EncryptedDataKeys: []message.EncryptedDataKey{
			{ProviderID: kms.ProviderID, ProviderInfo: wrapped.KeyARN, Ciphertext: wrapped.Ciphertext},
		},
		EncryptionContext: encCtx,
		SigningKey:        signingKey,
	}

	plaintext, err := f.roundTrip(t, mats, "from an old release")
	require.NoError(t, err)
	assert.Equal(t, "from an old release", plaintext)
	assert.Contains(t, f.logs.String(), "This file is encrypted using an uncompressed key")
}

func TestVerificationKeyMismatch(t *testing.T) {
	f := newFixture(t, "us-east-1")

	unsigned := &message.Header{
		Suite:             message.AES256GCMHKDFSHA256,
		EncryptionContext: map[string]string{PublicKeyContextKey: "AAAA"},
	}
	_, err := f.manager.verificationKey(unsigned)
	assert.ErrorIs(t, err, merrors.ErrContextMismatch)

	signed := &message.Header{Suite: message.DefaultSuite, EncryptionContext: map[string]string{}}
	_, err = f.manager.verificationKey(signed)
	assert.ErrorIs(t, err, merrors.ErrContextMismatch)

	garbage := &message.Header{
		Suite:             message.DefaultSuite,
		EncryptionContext: map[string]string{PublicKeyContextKey: base64.StdEncoding.EncodeToString([]byte{4, 1, 2, 3})},
	}
	_, err = f.manager.verificationKey(garbage)
	assert.ErrorIs(t, err, merrors.ErrContextMismatch)
}

func TestSkipsForeignProviders(t *testing.T) {
	f := newFixture(t, "us-east-1")

	h := &message.Header{
		Suite:             message.AES256GCMHKDFSHA256,
		EncryptionContext: map[string]string{},
		EncryptedDataKeys: []message.EncryptedDataKey{{ProviderID: "raw-aes", ProviderInfo: "local", Ciphertext: []byte("x")}},
	}
	_, err := f.manager.DecryptMaterials(context.Background(), h)
	assert.ErrorIs(t, err, merrors.ErrNoDecryptableKey)
	assert.Empty(t, f.cloud.Calls())
}
