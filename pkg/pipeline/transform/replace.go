package transform

import (
	"fmt"
	"regexp"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

const TypeReplace = "replace"

// ReplaceConfig renames top-level fields, either by exact name or by pattern.
type ReplaceConfig struct {
	Fields map[string]string  `mapstructure:"fields"`
	Regex  []RegexReplacement `mapstructure:"regex"`
}

// RegexReplacement renames every field whose name matches Pattern.
type RegexReplacement struct {
	Pattern string `mapstructure:"pattern"`
	Replace string `mapstructure:"replace"` // may reference groups, eg ${1}
}

// Validate validates the ReplaceConfig
func (c *ReplaceConfig) Validate() error {
	if len(c.Fields) == 0 && len(c.Regex) == 0 {
		return fmt.Errorf("at least one replacement is required")
	}
	for _, regex := range c.Regex {
		if _, err := regexp.Compile(regex.Pattern); err != nil {
			return fmt.Errorf("invalid regex pattern %s: %w", regex.Pattern, err)
		}
	}
	return nil
}

// Type returns the type of the transformation
func (c *ReplaceConfig) Type() string {
	return TypeReplace
}

type compiledReplacement struct {
	re      *regexp.Regexp
	replace string
}

// Replace creates a Func that renames fields. Exact names apply first, then
// each pattern in order. A rename onto an existing field overwrites it.
func Replace(config *ReplaceConfig) Func {
	res := make([]compiledReplacement, 0, len(config.Regex))
	for _, regex := range config.Regex {
		res = append(res, compiledReplacement{re: regexp.MustCompile(regex.Pattern), replace: regex.Replace})
	}

	return func(r *entity.Record) (*entity.Record, error) {
		if r == nil {
			return nil, fmt.Errorf("cannot transform nil record")
		}
		fields := renameKeys(r.Fields, func(k string) string {
			if name, ok := config.Fields[k]; ok {
				return name
			}
			return k
		})
		for _, rr := range res {
			fields = renameKeys(fields, func(k string) string {
				return rr.re.ReplaceAllString(k, rr.replace)
			})
		}
		r.Fields = fields
		return r, nil
	}
}

func renameKeys(m map[string]any, rename func(string) string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[rename(k)] = v
	}
	return out
}
