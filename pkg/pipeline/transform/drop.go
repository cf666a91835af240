package transform

import (
	"fmt"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

const TypeDrop = "drop"

// DropConfig holds the configuration for the drop transformation
type DropConfig struct {
	Fields []string `mapstructure:"fields"`
}

// Validate validates the DropConfig
func (c *DropConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	return nil
}

// Type returns the type of the transformation
func (c *DropConfig) Type() string {
	return TypeDrop
}

// Drop creates a Func that removes the configured top-level fields.
// The record is modified in place; callers pass a clone.
func Drop(config *DropConfig) Func {
	return func(r *entity.Record) (*entity.Record, error) {
		if r == nil {
			return nil, fmt.Errorf("cannot transform nil record")
		}
		for _, field := range config.Fields {
			delete(r.Fields, field)
		}
		return r, nil
	}
}

// StripInternalID is the drop transformation for the storage identifier.
func StripInternalID() Transformation {
	return Transformation{
		Type:   TypeDrop,
		Config: map[string]any{"fields": []string{entity.InternalIDField}},
	}
}
