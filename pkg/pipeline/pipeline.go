package pipeline

import (
	"fmt"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/transform"
)

// Config configures a pipeline run.
type Config struct {
	// Window is the number of unconfirmed sends allowed; 1 confirms every
	// record before the next one is read.
	Window int `mapstructure:"window"`
	// ProgressEvery logs progress after this many confirmed records of a kind.
	ProgressEvery int `mapstructure:"progressEvery"`
	// Kinds restricts the run to these kinds, kept in the fixed order.
	Kinds []string `mapstructure:"kinds"`
	// Transformations are applied after the built-in ones, per kind.
	Transformations map[string][]transform.Transformation `mapstructure:"transformations"`
}

// DefaultConfig returns the record-by-record configuration.
func DefaultConfig() Config {
	return Config{Window: 1, ProgressEvery: 50}
}

// Options converts the config into Runner options.
func (c Config) Options() ([]Option, error) {
	opts := []Option{WithWindow(c.Window), WithProgressEvery(c.ProgressEvery)}

	if len(c.Kinds) > 0 {
		kinds := make([]entity.Kind, 0, len(c.Kinds))
		for _, s := range c.Kinds {
			k, err := entity.ParseKind(s)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
		opts = append(opts, WithKinds(kinds...))
	}

	for name, ts := range c.Transformations {
		k, err := entity.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("transformations: %w", err)
		}
		opts = append(opts, WithTransformations(k, ts...))
	}
	return opts, nil
}

// chains builds the transformation chain of every kind: strip the storage id,
// sanitize PII kinds, then the configured extras.
func chains(kinds []entity.Kind, salt string, extra map[entity.Kind][]transform.Transformation) (map[entity.Kind]transform.Func, error) {
	manager := transform.NewManager()
	manager.RegisterBuiltins()

	out := make(map[entity.Kind]transform.Func, len(kinds))
	for _, k := range kinds {
		ts := []transform.Transformation{transform.StripInternalID()}
		if k.HasPII() {
			ts = append(ts, transform.SanitizeWithSalt(salt))
		}
		ts = append(ts, extra[k]...)

		chain, err := manager.Chain(ts)
		if err != nil {
			return nil, fmt.Errorf("error creating %s transformation chain: %w", k, err)
		}
		out[k] = chain
	}
	return out, nil
}
