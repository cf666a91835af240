package transform

import (
	"fmt"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

const TypeExtract = "extract"

// ExtractConfig holds the configuration for the extract transformation
type ExtractConfig struct {
	Fields []string `mapstructure:"fields"`
}

// Validate validates the ExtractConfig
func (c *ExtractConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	return nil
}

// Type returns the type of the transformation
func (c *ExtractConfig) Type() string {
	return TypeExtract
}

// Extract creates a Func that keeps only the configured top-level fields.
// Fields absent from the record stay absent.
func Extract(config *ExtractConfig) Func {
	return func(r *entity.Record) (*entity.Record, error) {
		if r == nil {
			return nil, fmt.Errorf("cannot transform nil record")
		}
		kept := make(map[string]any, len(config.Fields))
		for _, field := range config.Fields {
			if value, exists := r.Fields[field]; exists {
				kept[field] = value
			}
		}
		r.Fields = kept
		return r, nil
	}
}
