package configs

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

// ParseEncryptionContext parses a dictionary literal into an encryption
// context. Both {'key': 'value'} and {"key": "value"} forms are accepted,
// as is any YAML flow or block mapping. Values must be scalars.
func ParseEncryptionContext(literal string) (map[string]string, error) {
	if strings.TrimSpace(literal) == "" {
		return nil, merrors.ErrInvalidEncryptionContext
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(literal), &node); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrInvalidEncryptionContext, err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) != 1 || node.Content[0].Kind != yaml.MappingNode {
		return nil, merrors.ErrInvalidEncryptionContext
	}

	mapping := node.Content[0]
	encCtx := make(map[string]string, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode || value.Tag == "!!null" {
			return nil, fmt.Errorf("%w: values must be plain strings or numbers", merrors.ErrInvalidEncryptionContext)
		}
		if _, dup := encCtx[key.Value]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", merrors.ErrInvalidEncryptionContext, key.Value)
		}
		encCtx[key.Value] = value.Value
	}
	return encCtx, nil
}
