package preset

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// objectsPath locates the top-level drawable tree inside a preset
// document.
var objectsPath = jp.R().C("body").C("objects")

// maxDepth bounds group recursion so a cyclic or absurdly deep document
// cannot blow the stack.
const maxDepth = 64

// FlattenJSON parses raw preset JSON and flattens it. A document that is
// not valid JSON is an error; a valid document with no body.objects array
// flattens to zero records.
func FlattenJSON(data []byte, fileName string) ([]Record, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", fileName, err)
	}
	return Flatten(doc, fileName), nil
}

// Flatten walks body.objects depth-first and returns one Record per
// object node, parents before children. Group nodes are emitted and then
// recursed into; every other node is a leaf regardless of any children
// it carries.
func Flatten(doc any, fileName string) []Record {
	records := []Record{}
	for _, v := range objectsPath.Get(doc) {
		nodes, ok := v.([]any)
		if !ok {
			continue
		}
		records = flattenNodes(nodes, fileName, 0, records)
	}
	return records
}

func flattenNodes(nodes []any, fileName string, depth int, out []Record) []Record {
	if depth >= maxDepth {
		return out
	}
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		rec := make(Record, len(node)+1)
		for k, v := range node {
			if k == FieldObjects {
				continue
			}
			rec[k] = flattenValue(v)
		}
		rec[FieldFileName] = fileName
		out = append(out, rec)

		if node[FieldType] == TypeGroup {
			if children, ok := node[FieldObjects].([]any); ok && len(children) > 0 {
				out = flattenNodes(children, fileName, depth+1, out)
			}
		}
	}
	return out
}

// flattenValue keeps scalars as-is and serializes nested structures to
// JSON text so every record value is single-level.
func flattenValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return v
	}
}
