package store

import "encoding/json"

func encodeJSONMap(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// DecodeJSONMap restores a scalar field map; a corrupt blob falls back to the
// given state rather than failing the load.
func DecodeJSONMap(raw string, fallback map[string]any) map[string]any {
	if raw == "" {
		return fallback
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return fallback
	}
	return out
}

func encodeStringList(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func DecodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// EncodeJSONMap and EncodeStringList are the write-side counterparts used by
// the mutation tracker.
func EncodeJSONMap(m map[string]any) string { return encodeJSONMap(m) }

func EncodeStringList(ids []string) string { return encodeStringList(ids) }
