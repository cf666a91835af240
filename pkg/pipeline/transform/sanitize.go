package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/mitchellh/mapstructure"
)

const TypeSanitize = "sanitize"

// Field names written in place of the raw PII values.
const (
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldEmailHash = "email_hash"
	FieldPhoneHash = "phone_hash"
	FieldManager   = "manager"
)

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizeEmail trims surrounding whitespace and lowercases.
func NormalizeEmail(v any) string {
	return strings.ToLower(strings.TrimSpace(stringify(v)))
}

// NormalizePhone keeps digits only and prefixes a single "+".
// Values without any digit normalize to "".
func NormalizePhone(v any) string {
	digits := nonDigits.ReplaceAllString(stringify(v), "")
	if digits == "" {
		return ""
	}
	return "+" + digits
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// Hasher produces salted one-way digests of normalized values.
type Hasher struct {
	salt string
}

func NewHasher(salt string) Hasher {
	return Hasher{salt: salt}
}

// Hash returns hex(sha256(value + salt)), or "" for an empty value so that a
// blank field never turns into a constant digest.
func (h Hasher) Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value + h.salt))
	return hex.EncodeToString(sum[:])
}

// contact is the typed view of a PII-bearing (sub)record.
type contact struct {
	Email any `mapstructure:"email"`
	Phone any `mapstructure:"phone"`
}

// Sanitizer replaces PII fields of customer and store records with digests.
type Sanitizer struct {
	hasher Hasher
}

func NewSanitizer(salt string) *Sanitizer {
	return &Sanitizer{hasher: NewHasher(salt)}
}

// Sanitize returns a sanitized deep copy of r; r itself is left untouched.
// Products and purchases carry no PII and come back as plain copies.
func (s *Sanitizer) Sanitize(r entity.Record) (entity.Record, error) {
	out := r.Clone()
	if err := s.apply(&out); err != nil {
		return entity.Record{}, err
	}
	return out, nil
}

func (s *Sanitizer) apply(r *entity.Record) error {
	switch r.Kind {
	case entity.KindCustomer:
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		c, err := decodeContact(r.Fields)
		if err != nil {
			return fmt.Errorf("decode customer contact: %w", err)
		}
		delete(r.Fields, FieldEmail)
		delete(r.Fields, FieldPhone)
		r.Fields[FieldEmailHash] = s.hasher.Hash(NormalizeEmail(c.Email))
		r.Fields[FieldPhoneHash] = s.hasher.Hash(NormalizePhone(c.Phone))
	case entity.KindStore:
		m, ok := r.Fields[FieldManager].(map[string]any)
		if !ok {
			return nil
		}
		c, err := decodeContact(m)
		if err != nil {
			return fmt.Errorf("decode store manager: %w", err)
		}
		name, ok := m["name"]
		if !ok {
			name = ""
		}
		r.Fields[FieldManager] = map[string]any{
			"name":         name,
			FieldEmailHash: s.hasher.Hash(NormalizeEmail(c.Email)),
			FieldPhoneHash: s.hasher.Hash(NormalizePhone(c.Phone)),
		}
	}
	return nil
}

// decodeContact reads the exact lowercase keys only; Email or PHONE are
// ordinary fields, not PII slots.
func decodeContact(m map[string]any) (contact, error) {
	var c contact
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
		Result:    &c,
	})
	if err != nil {
		return c, err
	}
	err = dec.Decode(m)
	return c, err
}

// SanitizeConfig holds the configuration for the sanitize transformation.
// An empty salt is accepted; config validation reports it separately.
type SanitizeConfig struct {
	Salt string `mapstructure:"salt"`
}

func (c *SanitizeConfig) Validate() error { return nil }

func (c *SanitizeConfig) Type() string { return TypeSanitize }

// Sanitize creates a Func that hashes PII fields in place.
func Sanitize(config *SanitizeConfig) Func {
	s := NewSanitizer(config.Salt)
	return func(r *entity.Record) (*entity.Record, error) {
		if r == nil {
			return nil, fmt.Errorf("cannot transform nil record")
		}
		if err := s.apply(r); err != nil {
			return nil, err
		}
		return r, nil
	}
}

// SanitizeWithSalt is the sanitize transformation for the given salt.
func SanitizeWithSalt(salt string) Transformation {
	return Transformation{
		Type:   TypeSanitize,
		Config: map[string]any{"salt": salt},
	}
}
