package transform

import (
	"fmt"
	"sync"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/mitchellh/mapstructure"
)

// Func is the signature for all transformation functions.
// Returning a nil record without error filters the record out.
type Func func(*entity.Record) (*entity.Record, error)

// Transformation represents a single transformation step (like Kafka SMT)
type Transformation struct {
	Config map[string]any `mapstructure:"config"`
	Type   string         `mapstructure:"type"`
}

// Config is the interface that all transformations must implement
type Config interface {
	// Validate validates the configuration
	Validate() error
	// Type returns the transformation type
	Type() string
}

// Registry is a collection of transformation functions
type Registry struct {
	transforms sync.Map // map[string]func(Config) Func
}

// Register adds a transformation to the registry
func (r *Registry) Register(name string, factory func(Config) Func) {
	r.transforms.Store(name, factory)
}

// Get returns a transformation from the registry
func (r *Registry) Get(name string) (func(Config) Func, error) {
	if value, ok := r.transforms.Load(name); ok {
		return value.(func(Config) Func), nil
	}
	return nil, fmt.Errorf("transformation %s not found", name)
}

// NewRegistry creates a new transformation registry
func NewRegistry() *Registry {
	return &Registry{
		transforms: sync.Map{},
	}
}

type Manager struct {
	registry *Registry
}

func NewManager() *Manager {
	return &Manager{
		registry: NewRegistry(),
	}
}

// RegisterBuiltins registers all built-in transformations
func (m *Manager) RegisterBuiltins() {
	m.registry.Register(TypeDrop, func(config Config) Func {
		if dropConfig, ok := config.(*DropConfig); ok {
			return Drop(dropConfig)
		}
		return invalidConfig(TypeDrop)
	})

	m.registry.Register(TypeExtract, func(config Config) Func {
		if extractConfig, ok := config.(*ExtractConfig); ok {
			return Extract(extractConfig)
		}
		return invalidConfig(TypeExtract)
	})

	m.registry.Register(TypeFilter, func(config Config) Func {
		if filterConfig, ok := config.(*FilterConfig); ok {
			return Filter(filterConfig)
		}
		return invalidConfig(TypeFilter)
	})

	m.registry.Register(TypeReplace, func(config Config) Func {
		if replaceConfig, ok := config.(*ReplaceConfig); ok {
			return Replace(replaceConfig)
		}
		return invalidConfig(TypeReplace)
	})

	m.registry.Register(TypeSanitize, func(config Config) Func {
		if sanitizeConfig, ok := config.(*SanitizeConfig); ok {
			return Sanitize(sanitizeConfig)
		}
		return invalidConfig(TypeSanitize)
	})
}

func invalidConfig(name string) Func {
	return func(r *entity.Record) (*entity.Record, error) {
		return r, fmt.Errorf("invalid config type for %s transformation", name)
	}
}

// Chain creates a transformation chain from a list of configs
func (m *Manager) Chain(configs []Transformation) (Func, error) {
	var transforms []Func

	for _, cfg := range configs {
		factory, err := m.registry.Get(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("error getting transformation %s: %w", cfg.Type, err)
		}

		transformConfig, err := cfg.ToConfig()
		if err != nil {
			return nil, fmt.Errorf("error converting config for %s: %w", cfg.Type, err)
		}
		if err := transformConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s configuration: %w", cfg.Type, err)
		}

		transforms = append(transforms, factory(transformConfig))
	}

	return func(r *entity.Record) (*entity.Record, error) {
		current := r
		var err error
		for _, t := range transforms {
			current, err = t(current)
			if err != nil {
				return nil, err
			}
			if current == nil {
				return nil, nil // Stop processing if any transformation returns nil
			}
		}
		return current, nil
	}, nil
}

// ToConfig decodes the loose config map into the typed config of t.Type.
func (t *Transformation) ToConfig() (Config, error) {
	var cfg Config
	switch t.Type {
	case TypeDrop:
		cfg = &DropConfig{}
	case TypeExtract:
		cfg = &ExtractConfig{}
	case TypeFilter:
		cfg = &FilterConfig{}
	case TypeReplace:
		cfg = &ReplaceConfig{}
	case TypeSanitize:
		cfg = &SanitizeConfig{}
	default:
		return nil, fmt.Errorf("unknown transformation type: %s", t.Type)
	}
	if err := mapstructure.Decode(t.Config, cfg); err != nil {
		return nil, fmt.Errorf("error decoding %s config: %w", t.Type, err)
	}
	return cfg, nil
}
