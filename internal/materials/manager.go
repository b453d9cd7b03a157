package materials

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/mrcrypt/mrcrypt/internal/kms"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
	"github.com/mrcrypt/mrcrypt/internal/message"
)

const (
	// PublicKeyContextKey holds the base64 verification key of signed messages.
	PublicKeyContextKey = "aws-crypto-public-key"

	// ReservedPrefix marks context keys callers may not set.
	ReservedPrefix = "aws-crypto-"
)

// KeyProvider wraps and unwraps data keys. *kms.Provider satisfies it.
type KeyProvider interface {
	GenerateDataKey(ctx context.Context, region, keyID string, encCtx map[string]string) ([]byte, kms.WrappedKey, error)
	EncryptDataKey(ctx context.Context, region, keyID string, plaintext []byte, encCtx map[string]string) (kms.WrappedKey, error)
	DecryptDataKey(ctx context.Context, key kms.WrappedKey, encCtx map[string]string) ([]byte, error)
}

// Manager is the crypto materials manager.
type Manager struct {
	keys KeyProvider
	log  logger.Logger
}

func NewManager(keys KeyProvider, log logger.Logger) *Manager {
	return &Manager{keys: keys, log: log}
}

// EncryptionRequest describes the message about to be written.
type EncryptionRequest struct {
	KeyID             string
	Regions           []string
	EncryptionContext map[string]string
	Suite             *message.AlgorithmSuite
}

// EncryptionMaterials is everything needed to write one message.
type EncryptionMaterials struct {
	Suite             *message.AlgorithmSuite
	DataKey           []byte
	EncryptedDataKeys []message.EncryptedDataKey
	EncryptionContext map[string]string
	SigningKey        *ecdsa.PrivateKey
}

// Params converts the materials into codec parameters.
func (m *EncryptionMaterials) Params(frameLength int) message.EncryptParams {
	return message.EncryptParams{
		Suite:             m.Suite,
		DataKey:           m.DataKey,
		EncryptedDataKeys: m.EncryptedDataKeys,
		EncryptionContext: m.EncryptionContext,
		SigningKey:        m.SigningKey,
		FrameLength:       frameLength,
	}
}

// GetEncryptionMaterials generates a data key in the first region and wraps
// the same key under the CMK in each remaining region.
func (m *Manager) GetEncryptionMaterials(ctx context.Context, req EncryptionRequest) (*EncryptionMaterials, error) {
	if req.KeyID == "" {
		return nil, merrors.ErrNoKeyID
	}
	if len(req.Regions) == 0 {
		return nil, fmt.Errorf("at least one region is required")
	}
	if err := ValidateContext(req.EncryptionContext); err != nil {
		return nil, err
	}

	suite := req.Suite
	if suite == nil {
		suite = message.DefaultSuite
	}

	encCtx := make(map[string]string, len(req.EncryptionContext)+1)
	for k, v := range req.EncryptionContext {
		encCtx[k] = v
	}

	var signingKey *ecdsa.PrivateKey
	if suite.Signed() {
		key, err := ecdsa.GenerateKey(suite.Curve(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		signingKey = key
		encCtx[PublicKeyContextKey] = base64.StdEncoding.EncodeToString(
			elliptic.MarshalCompressed(suite.Curve(), key.X, key.Y))
	}

	primary := req.Regions[0]
	dataKey, first, err := m.keys.GenerateDataKey(ctx, primary, req.KeyID, encCtx)
	if err != nil {
		return nil, err
	}
	if len(dataKey) != suite.DataKeyLength() {
		return nil, fmt.Errorf("KMS returned a %d byte data key, expected %d", len(dataKey), suite.DataKeyLength())
	}
	m.log.Infof("Generated data key with %s", first.KeyARN)

	wrapped := make([]kms.WrappedKey, len(req.Regions))
	wrapped[0] = first

	g, gctx := errgroup.WithContext(ctx)
	for i, region := range req.Regions[1:] {
		g.Go(func() error {
			w, err := m.keys.EncryptDataKey(gctx, region, req.KeyID, dataKey, encCtx)
			if err != nil {
				return err
			}
			wrapped[i+1] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	edks := make([]message.EncryptedDataKey, len(wrapped))
	for i, w := range wrapped {
		if i > 0 {
			m.log.Infof("Wrapped data key with %s", w.KeyARN)
		}
		edks[i] = message.EncryptedDataKey{ProviderID: kms.ProviderID, ProviderInfo: w.KeyARN, Ciphertext: w.Ciphertext}
	}

	return &EncryptionMaterials{
		Suite:             suite,
		DataKey:           dataKey,
		EncryptedDataKeys: edks,
		EncryptionContext: encCtx,
		SigningKey:        signingKey,
	}, nil
}

// DecryptMaterials unwraps the message's data key and loads its
// verification key. It matches message.MaterialsResolver once bound to a
// context with Resolver.
func (m *Manager) DecryptMaterials(ctx context.Context, h *message.Header) (*message.DecryptionMaterials, error) {
	verificationKey, err := m.verificationKey(h)
	if err != nil {
		return nil, err
	}

	dataKey, err := m.decryptDataKey(ctx, h)
	if err != nil {
		return nil, err
	}

	return &message.DecryptionMaterials{DataKey: dataKey, VerificationKey: verificationKey}, nil
}

// Resolver binds DecryptMaterials to ctx for use with message.Decrypt.
func (m *Manager) Resolver(ctx context.Context) message.MaterialsResolver {
	return func(h *message.Header) (*message.DecryptionMaterials, error) {
		return m.DecryptMaterials(ctx, h)
	}
}

func (m *Manager) decryptDataKey(ctx context.Context, h *message.Header) ([]byte, error) {
	var errs []error
	for _, edk := range h.EncryptedDataKeys {
		if edk.ProviderID != kms.ProviderID {
			m.log.Debugf("Skipping data key from unknown provider %q", edk.ProviderID)
			continue
		}

		dataKey, err := m.keys.DecryptDataKey(ctx, kms.WrappedKey{KeyARN: edk.ProviderInfo, Ciphertext: edk.Ciphertext}, h.EncryptionContext)
		if err != nil {
			m.log.Debugf("Could not decrypt data key with %s: %v", edk.ProviderInfo, err)
			errs = append(errs, err)
			continue
		}
		if len(dataKey) != h.Suite.DataKeyLength() {
			errs = append(errs, fmt.Errorf("data key from %s has length %d", edk.ProviderInfo, len(dataKey)))
			continue
		}
		m.log.Infof("Decrypted data key with %s", edk.ProviderInfo)
		return dataKey, nil
	}

	if len(errs) == 0 {
		return nil, merrors.ErrNoDecryptableKey
	}
	return nil, fmt.Errorf("%w: %w", merrors.ErrNoDecryptableKey, errors.Join(errs...))
}

func (m *Manager) verificationKey(h *message.Header) (*ecdsa.PublicKey, error) {
	encoded, ok := h.EncryptionContext[PublicKeyContextKey]
	switch {
	case !h.Suite.Signed() && ok:
		return nil, fmt.Errorf("%w: unsigned suite with a verification key", merrors.ErrContextMismatch)
	case !h.Suite.Signed():
		return nil, nil
	case !ok:
		return nil, fmt.Errorf("%w: signed suite without a verification key", merrors.ErrContextMismatch)
	}

	point, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: verification key is not base64: %v", merrors.ErrContextMismatch, err)
	}

	curve := h.Suite.Curve()
	if x, y := elliptic.UnmarshalCompressed(curve, point); x != nil {
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	}

	m.log.Debugf("Verification key is not a compressed point. Attempting to load it as an uncompressed point.")
	key, err := legacyVerificationKey(curve, point)
	if err != nil {
		return nil, err
	}
	m.log.Warnf("This file is encrypted using an uncompressed key, which may lead to compatibility issues with the AWS Encryption SDK.")
	return key, nil
}

// legacyVerificationKey decodes the uncompressed points early mrcrypt
// releases wrote into the encryption context.
func legacyVerificationKey(curve elliptic.Curve, point []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(curve, point) //nolint:staticcheck // uncompressed points are only read for legacy files
	if x == nil {
		return nil, fmt.Errorf("%w: verification key is not a valid %s point", merrors.ErrContextMismatch, curve.Params().Name)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// ValidateContext rejects context keys in the reserved namespace.
func ValidateContext(encCtx map[string]string) error {
	for k := range encCtx {
		if strings.HasPrefix(k, ReservedPrefix) {
			return fmt.Errorf("%w: %q", merrors.ErrReservedContextKey, k)
		}
	}
	return nil
}
