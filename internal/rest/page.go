package rest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The list endpoints answer in one of three shapes: a bare array,
// {items, nextCursor, hasMore}, or the PascalCase variant of the same
// envelope. decodePage folds all three into items + cursor + hasMore.
func decodePage(data []byte) ([]map[string]any, string, bool, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, "", false, fmt.Errorf("decode page: %w", err)
	}

	switch t := v.(type) {
	case []any:
		return objects(t), "", false, nil
	case map[string]any:
		items, _ := envelopeField(t, "items").([]any)
		next, _ := envelopeField(t, "nextcursor").(string)
		more, _ := envelopeField(t, "hasmore").(bool)
		return objects(items), next, more, nil
	case nil:
		return nil, "", false, nil
	}
	return nil, "", false, fmt.Errorf("decode page: unexpected shape %T", v)
}

func objects(items []any) []map[string]any {
	var out []map[string]any
	for _, it := range items {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// envelopeField looks a key up ignoring casing and separators, so
// "nextCursor", "NextCursor" and "next_cursor" all resolve.
func envelopeField(m map[string]any, canonical string) any {
	for k, v := range m {
		folded := strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(k), "_", ""), "-", "")
		if folded == canonical {
			return v
		}
	}
	return nil
}
