package kms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	logger "github.com/mrcrypt/mrcrypt/internal/logging"
)

// ProviderID is recorded on every data key wrapped by KMS.
const ProviderID = "aws-kms"

// API is the subset of the KMS client mrcrypt uses.
type API interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// ClientFactory builds a client for one region.
type ClientFactory func(ctx context.Context, region string) (API, error)

// Options configures a Provider.
type Options struct {
	// Profile selects a named profile from the shared AWS config.
	Profile string
	// Factory overrides client construction, mainly for tests.
	Factory ClientFactory
	Logger  logger.Logger
}

// Provider hands out per-region KMS clients.
type Provider struct {
	factory ClientFactory
	log     logger.Logger

	mu      sync.Mutex
	clients map[string]API
}

// WrappedKey is a data key encrypted under one CMK.
type WrappedKey struct {
	KeyARN     string
	Ciphertext []byte
}

func NewProvider(opts Options) *Provider {
	factory := opts.Factory
	if factory == nil {
		factory = SharedConfigFactory(opts.Profile)
	}
	return &Provider{
		factory: factory,
		log:     opts.Logger,
		clients: make(map[string]API),
	}
}

// SharedConfigFactory loads credentials the same way the AWS CLI does,
// optionally pinned to a named profile.
func SharedConfigFactory(profile string) ClientFactory {
	return func(ctx context.Context, region string) (API, error) {
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if profile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(profile))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		return kms.NewFromConfig(cfg), nil
	}
}

func (p *Provider) client(ctx context.Context, region string) (API, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[region]; ok {
		return c, nil
	}
	p.log.Debugf("Creating KMS client for region %s", region)
	c, err := p.factory(ctx, region)
	if err != nil {
		return nil, merrors.NewKMSError("connect", region, "", err)
	}
	p.clients[region] = c
	return c, nil
}

// GenerateDataKey creates a new AES-256 data key under keyID in region.
func (p *Provider) GenerateDataKey(ctx context.Context, region, keyID string, encCtx map[string]string) ([]byte, WrappedKey, error) {
	c, err := p.client(ctx, region)
	if err != nil {
		return nil, WrappedKey{}, err
	}

	keyID = KeyIDForRegion(keyID, region)
	p.log.Debugf("Generating data key with %s in %s", keyID, region)
	out, err := c.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(keyID),
		KeySpec:           types.DataKeySpecAes256,
		EncryptionContext: encCtx,
	})
	if err != nil {
		return nil, WrappedKey{}, wrapError("GenerateDataKey", region, keyID, err)
	}
	return out.Plaintext, WrappedKey{KeyARN: aws.ToString(out.KeyId), Ciphertext: out.CiphertextBlob}, nil
}

// EncryptDataKey wraps an existing plaintext data key under keyID in region.
func (p *Provider) EncryptDataKey(ctx context.Context, region, keyID string, plaintext []byte, encCtx map[string]string) (WrappedKey, error) {
	c, err := p.client(ctx, region)
	if err != nil {
		return WrappedKey{}, err
	}

	keyID = KeyIDForRegion(keyID, region)
	p.log.Debugf("Encrypting data key with %s in %s", keyID, region)
	out, err := c.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(keyID),
		Plaintext:         plaintext,
		EncryptionContext: encCtx,
	})
	if err != nil {
		return WrappedKey{}, wrapError("Encrypt", region, keyID, err)
	}
	return WrappedKey{KeyARN: aws.ToString(out.KeyId), Ciphertext: out.CiphertextBlob}, nil
}

// DecryptDataKey unwraps a data key, calling KMS in the region named by its key ARN.
func (p *Provider) DecryptDataKey(ctx context.Context, key WrappedKey, encCtx map[string]string) ([]byte, error) {
	region, err := RegionFromARN(key.KeyARN)
	if err != nil {
		return nil, err
	}
	c, err := p.client(ctx, region)
	if err != nil {
		return nil, err
	}

	p.log.Debugf("Decrypting data key with %s in %s", key.KeyARN, region)
	out, err := c.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    key.Ciphertext,
		KeyId:             aws.String(key.KeyARN),
		EncryptionContext: encCtx,
	})
	if err != nil {
		return nil, wrapError("Decrypt", region, key.KeyARN, err)
	}
	if got := aws.ToString(out.KeyId); got != key.KeyARN {
		return nil, merrors.NewKMSError("Decrypt", region, key.KeyARN,
			fmt.Errorf("KMS used key %s instead of the recorded key", got))
	}
	return out.Plaintext, nil
}

// RegionFromARN returns the region of a KMS key ARN.
func RegionFromARN(keyARN string) (string, error) {
	parsed, err := arn.Parse(keyARN)
	if err != nil {
		return "", fmt.Errorf("%w: invalid key ARN %q: %v", merrors.ErrMalformedMessage, keyARN, err)
	}
	if parsed.Service != "kms" || parsed.Region == "" {
		return "", fmt.Errorf("%w: %q is not a regional KMS ARN", merrors.ErrMalformedMessage, keyARN)
	}
	return parsed.Region, nil
}

// KeyIDForRegion rewrites a multi-Region key ARN to point at its replica in
// region. Aliases, bare key ids and single-region ARNs are returned as-is.
func KeyIDForRegion(keyID, region string) string {
	if !arn.IsARN(keyID) {
		return keyID
	}
	parsed, err := arn.Parse(keyID)
	if err != nil || parsed.Region == region || !strings.HasPrefix(parsed.Resource, "key/mrk-") {
		return keyID
	}
	parsed.Region = region
	return parsed.String()
}

// HomeRegion returns the region a single-Region key ARN is confined to.
// Multi-Region ARNs, aliases and bare key ids return "".
func HomeRegion(keyID string) string {
	if !arn.IsARN(keyID) {
		return ""
	}
	parsed, err := arn.Parse(keyID)
	if err != nil || parsed.Service != "kms" || strings.HasPrefix(parsed.Resource, "key/mrk-") {
		return ""
	}
	return parsed.Region
}

func wrapError(op, region, keyID string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		err = fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return merrors.NewKMSError(op, region, keyID, err)
}
