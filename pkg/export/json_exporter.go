package export

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONExporter renders Dataset records as a pretty-printed JSON array.
type JSONExporter struct{}

// NewJSONExporter builds a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Render produces an indented JSON array, one object per row keyed by header.
// Header order is preserved within each object.
func (e *JSONExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("json requires at least one header")
	}
	buf := &bytes.Buffer{}
	buf.WriteString("[")
	for i, row := range data.Rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, header := range data.Headers {
			if j > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(header)
			if err != nil {
				return nil, fmt.Errorf("marshal json key: %w", err)
			}
			value, err := json.Marshal(row[header])
			if err != nil {
				return nil, fmt.Errorf("marshal json value: %w", err)
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(value)
		}
		buf.WriteString("}")
	}
	if len(data.Rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}
