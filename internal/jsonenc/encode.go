// Package jsonenc turns query results into the JSON documents written next
// to each query file.
package jsonenc

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/fastsql2json/sql2json/internal/db"
)

// DefaultRootName is used when no name can be derived from the input path.
const DefaultRootName = "result"

// RootName returns the document's root key for the query file at path: its
// base name without the extension.
func RootName(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return DefaultRootName
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return DefaultRootName
	}
	return name
}

// Rows flattens every group of rs into row objects, keeping statement order,
// row order and column order.
func Rows(rs db.ResultSet) []*orderedmap.OrderedMap[string, any] {
	rows := make([]*orderedmap.OrderedMap[string, any], 0, rs.RowCount())
	for _, group := range rs {
		for _, raw := range group.Rows {
			obj := orderedmap.New[string, any](len(group.Columns))
			for i, col := range group.Columns {
				var v any
				if i < len(raw) {
					v = raw[i]
				}
				obj.Set(col, Coerce(v))
			}
			rows = append(rows, obj)
		}
	}
	return rows
}

// Encode renders rs as the pretty-printed document {"<root>": [rows...]}.
func Encode(rs db.ResultSet, root string) ([]byte, error) {
	if root == "" {
		root = DefaultRootName
	}

	doc := map[string]any{root: Rows(rs)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", root, err)
	}
	return append(data, '\n'), nil
}
