package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeJSONMap decodes a single JSON object into a map[string]any.
//
// json.Decoder.UseNumber() keeps byte counts exact; they routinely exceed
// float64's integer precision for large models.
func DecodeJSONMap(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("unexpected trailing JSON content")
		}
		return nil, fmt.Errorf("unexpected trailing JSON content: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return m, nil
}

// PrettyJSON renders v indented for display. Markup in model templates
// (e.g. "<|eot_id|>") is kept literal.
func PrettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("<json error: %v>", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
