// Package query evaluates property predicates against flattened preset
// records and projects matches into tabular rows.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/dagaz/internal/preset"
)

// Op is a predicate operator. All text comparison is case-insensitive.
type Op string

const (
	OpIncludes    Op = "includes"     // value is a substring of the property
	OpNotIncludes Op = "not_includes" // property absent or substring missing
	OpEquals      Op = "equals"       // full-value match
	OpNotEquals   Op = "not_equals"   // property absent or value differs
	OpExists      Op = "exists"       // property present, value ignored
	OpNotExists   Op = "not_exists"   // property missing, value ignored
)

// ParseOp normalizes an operator received from a client. The empty
// string means includes, and the legacy spelling "exact" is accepted
// for equals.
func ParseOp(s string) (Op, error) {
	switch Op(strings.ToLower(strings.TrimSpace(s))) {
	case "", OpIncludes:
		return OpIncludes, nil
	case OpNotIncludes:
		return OpNotIncludes, nil
	case OpEquals, "exact":
		return OpEquals, nil
	case OpNotEquals:
		return OpNotEquals, nil
	case OpExists:
		return OpExists, nil
	case OpNotExists:
		return OpNotExists, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Presence selects what "the property exists" means for the existence
// operators.
type Presence int

const (
	// PresenceByKey counts a property as existing when the key is set,
	// even if its value is null.
	PresenceByKey Presence = iota

	// PresenceByValue counts a property as existing only when it holds a
	// non-null value.
	PresenceByValue
)

// ParsePresence maps a configuration string to a Presence mode.
func ParsePresence(s string) (Presence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "key":
		return PresenceByKey, nil
	case "value":
		return PresenceByValue, nil
	default:
		return 0, fmt.Errorf("unknown presence mode %q", s)
	}
}

// Filter is one predicate. A query matches a record only when every
// non-ignored filter matches (conjunction).
type Filter struct {
	Property string `json:"property"`
	Op       Op     `json:"operator"`
	Value    string `json:"value"`
}

// Ignored reports whether the filter is too incomplete to apply: no
// property named, or no value given to an operator that compares one.
// Ignored filters are skipped, not rejected.
func (f Filter) Ignored() bool {
	if strings.TrimSpace(f.Property) == "" {
		return true
	}
	switch f.Op {
	case OpExists, OpNotExists:
		return false
	}
	return strings.TrimSpace(f.Value) == ""
}

// Matches reports whether the record satisfies every non-ignored filter.
// Filters with unknown operators match nothing.
func Matches(rec preset.Record, filters []Filter, presence Presence) bool {
	for _, f := range filters {
		if f.Ignored() {
			continue
		}
		if !f.matches(rec, presence) {
			return false
		}
	}
	return true
}

func (f Filter) matches(rec preset.Record, presence Presence) bool {
	v, keySet := rec[f.Property]

	switch f.Op {
	case OpExists:
		return present(keySet, v, presence)
	case OpNotExists:
		return !present(keySet, v, presence)
	}

	if !keySet || v == nil {
		// Nothing to compare against: only the negated forms hold.
		return f.Op == OpNotIncludes || f.Op == OpNotEquals
	}

	have := strings.ToLower(Text(v))
	want := strings.ToLower(f.Value)
	switch f.Op {
	case OpIncludes:
		return strings.Contains(have, want)
	case OpNotIncludes:
		return !strings.Contains(have, want)
	case OpEquals:
		return have == want
	case OpNotEquals:
		return have != want
	}
	return false
}

func present(keySet bool, v any, presence Presence) bool {
	if presence == PresenceByValue {
		return keySet && v != nil
	}
	return keySet
}

// Text renders a record value for comparison and CSV output. Nil becomes
// the empty string; numbers drop a trailing ".0".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
