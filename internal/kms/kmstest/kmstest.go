// Package kmstest provides an in-memory, multi-region KMS for tests.
//
// Data keys are wrapped with NaCl secretbox under a random per-CMK master
// key, and the encryption context is bound into the sealed payload, so the
// fake rejects the same mistakes real KMS would: wrong key, wrong region,
// wrong context.
package kmstest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"

	mkms "github.com/mrcrypt/mrcrypt/internal/kms"
)

const account = "111122223333"

// Cloud is a set of fake KMS regions.
type Cloud struct {
	mu       sync.Mutex
	keys     map[string]*[32]byte         // ARN -> master key
	aliases  map[string]map[string]string // region -> alias -> ARN
	disabled map[string]bool
	calls    []string
}

func NewCloud() *Cloud {
	return &Cloud{
		keys:     make(map[string]*[32]byte),
		aliases:  make(map[string]map[string]string),
		disabled: make(map[string]bool),
	}
}

// CreateKey creates a CMK in region and returns its ARN.
func (c *Cloud) CreateKey(region string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyARN := fmt.Sprintf("arn:aws:kms:%s:%s:key/%s", region, account, uuid.NewString())
	var master [32]byte
	if _, err := rand.Read(master[:]); err != nil {
		panic(err)
	}
	c.keys[keyARN] = &master
	return keyARN
}

// CreateAlias points alias (e.g. "alias/app") at keyARN in the key's region.
func (c *Cloud) CreateAlias(alias, keyARN string) {
	region, err := mkms.RegionFromARN(keyARN)
	if err != nil {
		panic(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aliases[region] == nil {
		c.aliases[region] = make(map[string]string)
	}
	c.aliases[region][alias] = keyARN
}

// CreateAliasedKeys creates one key per region behind the same alias.
func (c *Cloud) CreateAliasedKeys(alias string, regions ...string) map[string]string {
	arns := make(map[string]string, len(regions))
	for _, r := range regions {
		arns[r] = c.CreateKey(r)
		c.CreateAlias(alias, arns[r])
	}
	return arns
}

// Disable makes every call in region fail as if the service were unreachable.
func (c *Cloud) Disable(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[region] = true
}

// Calls returns the "Operation region" log of every request made.
func (c *Cloud) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Factory returns a client factory backed by this cloud.
func (c *Cloud) Factory() mkms.ClientFactory {
	return func(_ context.Context, region string) (mkms.API, error) {
		return &Client{cloud: c, region: region}, nil
	}
}

// Client is one region's view of the cloud.
type Client struct {
	cloud  *Cloud
	region string
}

var _ mkms.API = (*Client)(nil)

func (k *Client) GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	plaintext := make([]byte, 32)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, err
	}
	out, err := k.encrypt("GenerateDataKey", aws.ToString(in.KeyId), plaintext, in.EncryptionContext)
	if err != nil {
		return nil, err
	}
	return &kms.GenerateDataKeyOutput{
		KeyId:          out.KeyId,
		CiphertextBlob: out.CiphertextBlob,
		Plaintext:      plaintext,
	}, nil
}

func (k *Client) Encrypt(ctx context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	return k.encrypt("Encrypt", aws.ToString(in.KeyId), in.Plaintext, in.EncryptionContext)
}

func (k *Client) Decrypt(ctx context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	k.cloud.mu.Lock()
	defer k.cloud.mu.Unlock()

	if err := k.record("Decrypt"); err != nil {
		return nil, err
	}

	blob := in.CiphertextBlob
	if len(blob) < 2 {
		return nil, apiError("InvalidCiphertextException", "ciphertext is too short")
	}
	n := int(binary.BigEndian.Uint16(blob))
	if len(blob) < 2+n+24 {
		return nil, apiError("InvalidCiphertextException", "ciphertext is too short")
	}
	keyARN := string(blob[2 : 2+n])
	if in.KeyId != nil && aws.ToString(in.KeyId) != keyARN {
		return nil, apiError("IncorrectKeyException", "ciphertext was not encrypted under the requested key")
	}
	region, err := mkms.RegionFromARN(keyARN)
	if err != nil || region != k.region {
		return nil, apiError("NotFoundException", "key is not in region "+k.region)
	}
	master, ok := k.cloud.keys[keyARN]
	if !ok {
		return nil, apiError("NotFoundException", "key does not exist")
	}

	var nonce [24]byte
	copy(nonce[:], blob[2+n:])
	payload, ok := secretbox.Open(nil, blob[2+n+24:], &nonce, master)
	if !ok || len(payload) < sha256.Size {
		return nil, apiError("InvalidCiphertextException", "ciphertext failed to decrypt")
	}
	digest := contextDigest(in.EncryptionContext)
	if !bytes.Equal(payload[:sha256.Size], digest[:]) {
		return nil, apiError("InvalidCiphertextException", "encryption context does not match")
	}

	return &kms.DecryptOutput{KeyId: aws.String(keyARN), Plaintext: payload[sha256.Size:]}, nil
}

func (k *Client) encrypt(op, keyID string, plaintext []byte, encCtx map[string]string) (*kms.EncryptOutput, error) {
	k.cloud.mu.Lock()
	defer k.cloud.mu.Unlock()

	if err := k.record(op); err != nil {
		return nil, err
	}

	keyARN, err := k.resolve(keyID)
	if err != nil {
		return nil, err
	}
	master := k.cloud.keys[keyARN]

	digest := contextDigest(encCtx)
	payload := append(digest[:], plaintext...)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	blob := binary.BigEndian.AppendUint16(nil, uint16(len(keyARN)))
	blob = append(blob, keyARN...)
	blob = append(blob, nonce[:]...)
	blob = secretbox.Seal(blob, payload, &nonce, master)

	return &kms.EncryptOutput{KeyId: aws.String(keyARN), CiphertextBlob: blob}, nil
}

func (k *Client) resolve(keyID string) (string, error) {
	switch {
	case strings.HasPrefix(keyID, "alias/"):
		if keyARN, ok := k.cloud.aliases[k.region][keyID]; ok {
			return keyARN, nil
		}
	case strings.HasPrefix(keyID, "arn:"):
		region, err := mkms.RegionFromARN(keyID)
		if err == nil && region == k.region {
			if _, ok := k.cloud.keys[keyID]; ok {
				return keyID, nil
			}
		}
	default:
		keyARN := fmt.Sprintf("arn:aws:kms:%s:%s:key/%s", k.region, account, keyID)
		if _, ok := k.cloud.keys[keyARN]; ok {
			return keyARN, nil
		}
	}
	return "", apiError("NotFoundException", fmt.Sprintf("key %s not found in %s", keyID, k.region))
}

// record must be called with the cloud lock held.
func (k *Client) record(op string) error {
	k.cloud.calls = append(k.cloud.calls, op+" "+k.region)
	if k.cloud.disabled[k.region] {
		return apiError("KMSInternalException", "region "+k.region+" is unavailable")
	}
	return nil
}

func contextDigest(encCtx map[string]string) [sha256.Size]byte {
	keys := make([]string, 0, len(encCtx))
	for key := range encCtx {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		fmt.Fprintf(h, "%d:%s%d:%s", len(key), key, len(encCtx[key]), encCtx[key])
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func apiError(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg}
}
