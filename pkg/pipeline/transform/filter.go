package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

const TypeFilter = "filter"

// FilterConfig keeps records by the value of one top-level field. Values are
// compared in their string form, so 1, 1.0 and "1" all read "1".
type FilterConfig struct {
	Field   string   `mapstructure:"field"`
	Pattern string   `mapstructure:"pattern"` // regular expression
	Glob    string   `mapstructure:"glob"`    // eg "Большая*"
	In      []string `mapstructure:"in"`
	Exclude bool     `mapstructure:"exclude"` // drop matches instead of keeping them
}

func (c *FilterConfig) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("field is required")
	}
	if c.Pattern == "" && c.Glob == "" && len(c.In) == 0 {
		return fmt.Errorf("at least one filter criteria required")
	}
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	}
	if c.Glob != "" {
		if _, err := filepath.Match(c.Glob, ""); err != nil {
			return fmt.Errorf("invalid glob: %w", err)
		}
	}
	return nil
}

func (c *FilterConfig) Type() string {
	return TypeFilter
}

// Filter creates a Func that returns nil for records that do not pass.
// A record missing the field never matches.
func Filter(config *FilterConfig) Func {
	var re *regexp.Regexp
	if config.Pattern != "" {
		re = regexp.MustCompile(config.Pattern)
	}

	matches := func(r *entity.Record) bool {
		v, ok := r.Fields[config.Field]
		if !ok {
			return false
		}
		s := stringify(v)
		if re != nil && !re.MatchString(s) {
			return false
		}
		if config.Glob != "" {
			if ok, _ := filepath.Match(config.Glob, s); !ok {
				return false
			}
		}
		if len(config.In) > 0 && !slices.Contains(config.In, s) {
			return false
		}
		return true
	}

	return func(r *entity.Record) (*entity.Record, error) {
		if r == nil {
			return nil, fmt.Errorf("cannot transform nil record")
		}
		if matches(r) == config.Exclude {
			return nil, nil
		}
		return r, nil
	}
}
