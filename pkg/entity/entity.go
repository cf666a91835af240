// Package entity defines the retail entity kinds that flow through the pipeline
// and the Record envelope used wherever kind-specific logic is needed.
package entity

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Kind is one of the four fixed retail record categories.
type Kind string

const (
	KindStore    Kind = "store"
	KindProduct  Kind = "product"
	KindCustomer Kind = "customer"
	KindPurchase Kind = "purchase"
)

// InternalIDField is the storage artifact stripped before publishing.
const InternalIDField = "_id"

// Kinds returns all kinds in pipeline order.
func Kinds() []Kind {
	return []Kind{KindStore, KindProduct, KindCustomer, KindPurchase}
}

// ParseKind accepts singular (store) and plural (stores) names.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if s == string(k) || s == k.Collection() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k Kind) String() string { return string(k) }

// IDField returns the natural identifier field, eg customer_id.
func (k Kind) IDField() string {
	return string(k) + "_id"
}

// Collection returns the source collection name (plural).
func (k Kind) Collection() string {
	return string(k) + "s"
}

// Topic returns the destination topic; topics are named after collections.
func (k Kind) Topic() string {
	return k.Collection()
}

// HasPII reports whether records of this kind carry email/phone fields.
func (k Kind) HasPII() bool {
	return k == KindCustomer || k == KindStore
}

// Record is a single document tagged with its kind. Fields stays an open
// schema since downstream consumers treat payloads as semi-structured JSON.
type Record struct {
	Kind   Kind
	Fields map[string]any
}

// Key returns the natural identifier rendered as a string. A missing or nil
// identifier yields "" which the transport still accepts without ordering.
func (r Record) Key() string {
	v, ok := r.Fields[r.Kind.IDField()]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case fmt.Stringer:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a deep copy of the record; nested maps and slices are copied.
func (r Record) Clone() Record {
	return Record{Kind: r.Kind, Fields: cloneMap(r.Fields)}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := slices.Clone(t)
		for i := range s {
			s[i] = cloneValue(s[i])
		}
		return s
	default:
		return v
	}
}
