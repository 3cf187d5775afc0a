// Package schema defines the ordered column layout of enriched Snowplow events.
package schema

import (
	"fmt"
	"strings"
)

// Registry is an immutable ordered list of field names. Position i of the
// registry names column i of a tab-separated event line.
type Registry struct {
	fields []string
}

// New builds a registry from fields in column order.
// Empty and duplicate names are rejected.
func New(fields ...string) (*Registry, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema registry requires at least one field")
	}

	r := &Registry{fields: make([]string, len(fields))}
	seen := make(map[string]int, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return nil, fmt.Errorf("field %d has an empty name", i)
		}
		if prev, dup := seen[f]; dup {
			return nil, fmt.Errorf("duplicate field %q at positions %d and %d", f, prev, i)
		}
		seen[f] = i
		r.fields[i] = f
	}
	return r, nil
}

// MustNew is like New but panics on an invalid field list.
func MustNew(fields ...string) *Registry {
	r, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of columns.
func (r *Registry) Len() int {
	return len(r.fields)
}

// Fields returns a copy of the field names in column order.
func (r *Registry) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Pair zips field names with tokens, stopping at the shorter of the two.
// Missing trailing tokens leave their fields absent; surplus tokens are dropped.
func (r *Registry) Pair(tokens []string) map[string]string {
	n := min(len(tokens), len(r.fields))
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		out[r.fields[i]] = tokens[i]
	}
	return out
}
