package store

import (
	"math"
	"strconv"
	"strings"

	"github.com/starford/dagaz/internal/query"
)

// renderedValue is the SQL rendering of a property value, matching the
// case-folded text the in-memory engine compares against. SQLite
// extracts JSON booleans as 0/1, so they are mapped back to their JSON
// spelling first. Consumes two path parameters.
const renderedValue = `CASE json_type(props, ?)
	WHEN 'true' THEN 'true'
	WHEN 'false' THEN 'false'
	ELSE lower(CAST(json_extract(props, ?) AS TEXT))
END`

// lowerFilters translates predicates into a WHERE clause over the props
// JSON column. Semantics track query.Matches: comparisons are
// case-insensitive over the textual rendering of the value, and absent
// or null values satisfy only the negated operators. The one deliberate
// departure is typed matching: a filter value that reads as a boolean
// or number literal compares against the stored JSON value, not its
// text rendering, so `equals 8` finds the number 8 but not the string
// "8".
func lowerFilters(filters []query.Filter, presence query.Presence) (string, []any) {
	var conds []string
	var args []any
	for _, f := range filters {
		if f.Ignored() {
			continue
		}
		cond, a := lowerFilter(f, presence)
		conds = append(conds, cond)
		args = append(args, a...)
	}
	return strings.Join(conds, " AND "), args
}

func lowerFilter(f query.Filter, presence query.Presence) (string, []any) {
	path := "$." + f.Property

	switch f.Op {
	case query.OpExists:
		if presence == query.PresenceByValue {
			return `json_extract(props, ?) IS NOT NULL`, []any{path}
		}
		return `json_type(props, ?) IS NOT NULL`, []any{path}

	case query.OpNotExists:
		if presence == query.PresenceByValue {
			return `json_extract(props, ?) IS NULL`, []any{path}
		}
		return `json_type(props, ?) IS NULL`, []any{path}
	}

	// Boolean and number literals take the typed path; a filter is
	// never both a text match and a typed match.
	if cond, typedArgs, ok := lowerTyped(path, f.Value); ok {
		switch f.Op {
		case query.OpIncludes, query.OpEquals:
			return cond, typedArgs

		case query.OpNotIncludes, query.OpNotEquals:
			return `(json_extract(props, ?) IS NULL OR NOT (` + cond + `))`,
				append([]any{path}, typedArgs...)
		}
	}

	switch f.Op {
	case query.OpIncludes:
		return renderedValue + ` LIKE ? ESCAPE '\'`,
			[]any{path, path, likePattern(f.Value)}

	case query.OpEquals:
		return renderedValue + ` = lower(?)`,
			[]any{path, path, f.Value}

	case query.OpNotIncludes:
		// json_extract is NULL for both a missing key and a JSON null,
		// exactly the states where the negated operators hold.
		return `(json_extract(props, ?) IS NULL OR NOT (` + renderedValue + ` LIKE ? ESCAPE '\'))`,
			[]any{path, path, path, likePattern(f.Value)}

	case query.OpNotEquals:
		return `(json_extract(props, ?) IS NULL OR NOT (` + renderedValue + ` = lower(?)))`,
			[]any{path, path, path, f.Value}
	}

	// Unknown operator matches nothing, same as the in-memory engine.
	return `0`, nil
}

// lowerTyped builds an exact-value condition for a filter value that
// parses as a boolean or number literal. The json_type guard keeps JSON
// true from matching the filter value "1" through its integer
// extraction, and numbers from matching "true".
func lowerTyped(path, value string) (string, []any, bool) {
	switch strings.ToLower(value) {
	case "true", "false":
		return `json_type(props, ?) = ?`, []any{path, strings.ToLower(value)}, true
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return "", nil, false
	}
	return `(json_type(props, ?) IN ('integer', 'real') AND json_extract(props, ?) = ?)`,
		[]any{path, path, n}, true
}

// likePattern builds a case-folded substring pattern, escaping the LIKE
// metacharacters in the filter value so they match literally.
func likePattern(value string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(value))
	return "%" + esc + "%"
}
