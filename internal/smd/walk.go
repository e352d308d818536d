package smd

import "encoding/json"

// smdKeys are the envelope keys whose values carry server_message_data.
// Upstream payloads use either casing; outbound casing is preserved.
var smdKeys = []string{"server_message_data", "serverMessageData"}

// EncodeEnvelope walks an envelope and replaces every server_message_data
// record with its wire-form string. Non-record values pass through unchanged.
func EncodeEnvelope(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSMDKey(k) {
				if m, ok := val.(map[string]any); ok {
					if rec, ok := recordFromMap(m); ok {
						out[k] = Encode(rec)
						continue
					}
				}
			}
			out[k] = EncodeEnvelope(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = EncodeEnvelope(val)
		}
		return out
	default:
		return v
	}
}

// DecodeEnvelope is the inverse of EncodeEnvelope: wire-form strings under a
// server_message_data key are expanded back into records. Strings that fail
// to decode are left as-is.
func DecodeEnvelope(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSMDKey(k) {
				if s, ok := val.(string); ok {
					if rec, err := Decode(s); err == nil {
						out[k] = rec.AsMap()
						continue
					}
				}
			}
			out[k] = DecodeEnvelope(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DecodeEnvelope(val)
		}
		return out
	default:
		return v
	}
}

func isSMDKey(k string) bool {
	for _, key := range smdKeys {
		if k == key {
			return true
		}
	}
	return false
}

// AsMap renders the record with absent fields omitted.
func (r Record) AsMap() map[string]any {
	out := map[string]any{}
	if r.UUID != nil {
		out["uuid"] = *r.UUID
	}
	if r.Seconds != nil {
		out["seconds"] = *r.Seconds
	}
	if r.Nanos != nil {
		out["nanos"] = *r.Nanos
	}
	return out
}

func recordFromMap(m map[string]any) (Record, bool) {
	var rec Record
	any := false
	if s, ok := m["uuid"].(string); ok {
		rec.UUID = &s
		any = true
	}
	if v, ok := asInt64(m["seconds"]); ok {
		rec.Seconds = &v
		any = true
	}
	if v, ok := asInt64(m["nanos"]); ok {
		rec.Nanos = &v
		any = true
	}
	if !any && len(m) > 0 {
		// Unknown shape under the key; leave it to the caller untouched.
		return Record{}, false
	}
	return rec, true
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
