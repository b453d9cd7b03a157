package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
	"github.com/mrcrypt/mrcrypt/internal/message"
)

const (
	// FallbackRegion is used when no region is configured anywhere.
	FallbackRegion = "us-east-1"

	DefaultJobs            = 4
	DefaultEncryptedSuffix = ".encrypted"
)

type Config struct {
	Defaults Defaults `toml:"defaults"`
	Logging  Logging  `toml:"logging"`

	// Unknown lists keys in the file that were not recognised.
	Unknown []string `toml:"-"`
}

type Defaults struct {
	Profile         string   `toml:"profile"`
	Regions         []string `toml:"regions"`
	KeyID           string   `toml:"key_id"`
	FrameLength     int      `toml:"frame_length"`
	Algorithm       string   `toml:"algorithm"`
	Jobs            int      `toml:"jobs"`
	EncryptedSuffix string   `toml:"encrypted_suffix"`
}

type Logging struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			FrameLength:     message.DefaultFrameLength,
			Algorithm:       message.DefaultSuite.Name,
			Jobs:            DefaultJobs,
			EncryptedSuffix: DefaultEncryptedSuffix,
		},
		Logging: Logging{
			MaxSizeMB:  1,
			MaxBackups: 2,
			MaxAgeDays: 30,
		},
	}
}

// Load reads the config file at path, or UserPaths.ConfigFile when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = UserPaths.ConfigFile
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	unknown, err := LoadTOML(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", merrors.ErrInvalidConfig, path, err)
	}
	cfg.Unknown = unknown

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	d := c.Defaults
	if d.FrameLength < 1 || d.FrameLength > message.MaxFrameLength {
		return fmt.Errorf("%w: frame_length must be between 1 and %d, got %d", merrors.ErrInvalidConfig, message.MaxFrameLength, d.FrameLength)
	}
	if d.Jobs < 1 {
		return fmt.Errorf("%w: jobs must be at least 1, got %d", merrors.ErrInvalidConfig, d.Jobs)
	}
	if _, err := message.SuiteByName(d.Algorithm); err != nil {
		return fmt.Errorf("%w: algorithm must be one of %s", merrors.ErrInvalidConfig, strings.Join(message.SuiteNames(), ", "))
	}
	if d.EncryptedSuffix == "" || strings.ContainsAny(d.EncryptedSuffix, `/\`) {
		return fmt.Errorf("%w: encrypted_suffix must be a non-empty file name suffix", merrors.ErrInvalidConfig)
	}
	return nil
}

// Suite returns the configured algorithm suite.
func (c *Config) Suite() *message.AlgorithmSuite {
	suite, err := message.SuiteByName(c.Defaults.Algorithm)
	if err != nil {
		return message.DefaultSuite
	}
	return suite
}

// ResolveProfile picks the flag value, then the configured profile. An
// empty result leaves profile selection to the AWS SDK (AWS_PROFILE).
func (c *Config) ResolveProfile(flag string) string {
	if flag != "" {
		return flag
	}
	return c.Defaults.Profile
}

// ResolveKeyID picks the positional key id, then the configured one.
func (c *Config) ResolveKeyID(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if c.Defaults.KeyID != "" {
		return c.Defaults.KeyID, nil
	}
	return "", merrors.ErrNoKeyID
}

// ResolveRegions returns the regions to encrypt in, in order of
// preference: flags, config, the region of an ARN key id, the environment,
// then FallbackRegion. Flag values may be comma separated; duplicates are
// dropped keeping the first occurrence.
func (c *Config) ResolveRegions(flags []string, keyID string) []string {
	if regions := normalizeRegions(flags); len(regions) > 0 {
		return regions
	}
	if regions := normalizeRegions(c.Defaults.Regions); len(regions) > 0 {
		return regions
	}
	if region := arnRegion(keyID); region != "" {
		return []string{region}
	}
	for _, env := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if region := strings.TrimSpace(os.Getenv(env)); region != "" {
			return []string{region}
		}
	}
	return []string{FallbackRegion}
}

func normalizeRegions(values []string) []string {
	var regions []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, r := range strings.Split(v, ",") {
			r = strings.TrimSpace(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			regions = append(regions, r)
		}
	}
	return regions
}

// arnRegion extracts the region of "arn:<partition>:kms:<region>:..." ids.
func arnRegion(keyID string) string {
	parts := strings.SplitN(keyID, ":", 6)
	if len(parts) < 6 || parts[0] != "arn" || parts[2] != "kms" {
		return ""
	}
	return parts[3]
}
