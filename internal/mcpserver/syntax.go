package mcpserver

// QuerySyntax describes the filter grammar that LLM consumers should
// follow when composing query_presets calls.
const QuerySyntax = `# Dagaz Query Filter Syntax

The ` + "`" + `query_presets` + "`" + ` tool filters flattened preset records. Every record is a
flat map of property names to values; one record per drawable object, in
file order.

## Filters

Pass ` + "`" + `filters` + "`" + ` as a JSON array. A record matches only when EVERY predicate
matches (conjunction).

` + "```" + `json
[
  {"property": "type", "operator": "equals", "value": "button"},
  {"property": "className", "operator": "includes", "value": "primary"}
]
` + "```" + `

## Operators

| Operator       | Matches when                                            |
|----------------|---------------------------------------------------------|
| ` + "`" + `includes` + "`" + `     | property value contains ` + "`" + `value` + "`" + ` as a substring       |
| ` + "`" + `not_includes` + "`" + ` | property absent, or substring missing                   |
| ` + "`" + `equals` + "`" + `       | property value equals ` + "`" + `value` + "`" + ` (alias: ` + "`" + `exact` + "`" + `)        |
| ` + "`" + `not_equals` + "`" + `   | property absent, or value differs                       |
| ` + "`" + `exists` + "`" + `       | property is present; ` + "`" + `value` + "`" + ` is ignored              |
| ` + "`" + `not_exists` + "`" + `   | property is missing; ` + "`" + `value` + "`" + ` is ignored              |

## Rules

1. **Comparison is case-insensitive.** ` + "`" + `Button` + "`" + ` and ` + "`" + `button` + "`" + ` are equal.
2. **Empty operator means ` + "`" + `includes` + "`" + `.** Unknown operators are rejected.
3. **A record without the property** satisfies only the negated operators
   (` + "`" + `not_includes` + "`" + `, ` + "`" + `not_equals` + "`" + `, ` + "`" + `not_exists` + "`" + `).
4. **Blank predicates are skipped.** A filter with no property, or a
   comparing operator with no value, constrains nothing.
5. **Nested values are JSON text.** Properties that held objects or arrays
   in the source file are stored as their JSON serialization, so
   ` + "`" + `includes` + "`" + ` can match inside them (e.g. ` + "`" + `"fontSize":12` + "`" + `).

## Projection

- ` + "`" + `columns` + "`" + ` is a comma-separated list of property names. Cells for
  properties a record does not carry come back as ` + "`" + `null` + "`" + `.
- Empty ` + "`" + `columns` + "`" + ` selects the default projection:
  ` + "`" + `fileName, controlTitle, type, className` + "`" + `.
- ` + "`" + `count` + "`" + ` in the response is the full match count; ` + "`" + `results` + "`" + ` is clipped
  to the preview limit unless ` + "`" + `limit` + "`" + ` overrides it.

## Useful properties

- ` + "`" + `fileName` + "`" + ` — source preset file the record came from.
- ` + "`" + `type` + "`" + `, ` + "`" + `controlTitle` + "`" + `, ` + "`" + `className` + "`" + ` — common drawable-object fields.
- Call ` + "`" + `list_properties` + "`" + ` for the full set present in the loaded data.
`
