// Package preset flattens design-preset documents into per-object
// property records.
package preset

// Well-known property names shared across the flattener, the query
// engine, and the stores.
const (
	// FieldFileName tags every record with the file it came from. It
	// overwrites any same-named property on the source object.
	FieldFileName = "fileName"

	// FieldType holds the object kind; groups are recursed into.
	FieldType = "type"

	// FieldObjects is the children array of a group node. It is consumed
	// by recursion and never appears on an emitted record.
	FieldObjects = "objects"

	// TypeGroup marks a container object whose children are flattened
	// alongside it.
	TypeGroup = "group"
)

// Record is one drawable object's properties, flattened to a single
// level and tagged with its source file. Values are JSON scalars;
// nested objects and arrays are kept as serialized JSON text.
type Record map[string]any
