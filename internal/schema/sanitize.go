// Package schema normalizes tool input schemas so the upstream validator
// accepts them. The upstream rejects envelopes whose tool schemas have typed
// properties without descriptions, empty containers, or dangling required
// entries, so everything is repaired defensively before encoding.
package schema

import "strings"

const draft07 = "http://json-schema.org/draft-07/schema#"

// Property-name heuristics for defaulting a missing "type".
var (
	urlLikeNames    = map[string]bool{"url": true, "uri": true, "href": true, "link": true}
	objectLikeNames = map[string]bool{"headers": true, "options": true, "params": true, "payload": true, "data": true}
)

// SanitizeEnvelope rewrites every mcp_context.tools[*].input_schema subtree
// in the packet. The operation is idempotent and never fails; anything it
// does not recognize passes through unchanged.
func SanitizeEnvelope(packet map[string]any) map[string]any {
	if packet == nil {
		return packet
	}
	mcp, ok := lookup(packet, "mcp_context", "mcpContext").(map[string]any)
	if !ok {
		return packet
	}
	tools, ok := mcp["tools"].([]any)
	if !ok {
		return packet
	}
	for _, t := range tools {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"input_schema", "inputSchema"} {
			if s, ok := tool[key].(map[string]any); ok {
				tool[key] = SanitizeInputSchema(s)
			}
		}
	}
	return packet
}

// SanitizeInputSchema normalizes one JSON-Schema object.
func SanitizeInputSchema(schema map[string]any) map[string]any {
	cleaned, _ := pruneEmpty(schema).(map[string]any)
	if cleaned == nil {
		cleaned = map[string]any{}
	}
	out := sanitizeSchemaObject(cleaned)
	out["$schema"] = draft07
	return out
}

// sanitizeSchemaObject applies the structural rules to a schema node and
// recurses into nested property schemas.
func sanitizeSchemaObject(schema map[string]any) map[string]any {
	props, hasProps := schema["properties"].(map[string]any)
	if hasProps && emptyValue(schema["type"]) {
		schema["type"] = "object"
	}
	if hasProps {
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				prop = map[string]any{}
			}
			if name == "headers" {
				props[name] = sanitizeHeadersProperty(prop)
				continue
			}
			// Recurse first so a property carrying its own properties map
			// is typed "object" before the name heuristic can run.
			if _, nested := prop["properties"]; nested {
				prop = sanitizeSchemaObject(prop)
			}
			ensureTypeAndDescription(prop, name, defaultTypeFor(name))
			props[name] = prop
		}
		pruneRequired(schema, props)
	}
	if ap, ok := schema["additionalProperties"].(map[string]any); ok && len(ap) == 0 {
		delete(schema, "additionalProperties")
	}
	return schema
}

// sanitizeHeadersProperty forces the well-known "headers" shape: an object
// with at least one string sub-property.
func sanitizeHeadersProperty(prop map[string]any) map[string]any {
	prop["type"] = "object"
	if emptyValue(prop["description"]) {
		prop["description"] = "headers parameter"
	}
	sub, ok := prop["properties"].(map[string]any)
	if !ok || len(sub) == 0 {
		sub = map[string]any{
			"user-agent": map[string]any{
				"type":        "string",
				"description": "User-Agent header for the request",
			},
		}
	}
	for name, raw := range sub {
		p, ok := raw.(map[string]any)
		if !ok {
			p = map[string]any{}
		}
		ensureTypeAndDescription(p, name, "string")
		sub[name] = p
	}
	prop["properties"] = sub
	return prop
}

func ensureTypeAndDescription(prop map[string]any, name, defaultType string) {
	if emptyValue(prop["type"]) {
		prop["type"] = defaultType
	}
	if emptyValue(prop["description"]) {
		prop["description"] = name + " parameter"
	}
}

func defaultTypeFor(name string) string {
	n := strings.ToLower(name)
	switch {
	case urlLikeNames[n]:
		return "string"
	case objectLikeNames[n]:
		return "object"
	default:
		return "string"
	}
}

// pruneRequired drops required entries that reference missing properties and
// removes the list entirely when nothing is left.
func pruneRequired(schema, props map[string]any) {
	req, ok := schema["required"].([]any)
	if !ok {
		return
	}
	kept := make([]any, 0, len(req))
	for _, r := range req {
		if name, ok := r.(string); ok {
			if _, exists := props[name]; exists {
				kept = append(kept, name)
			}
		}
	}
	if len(kept) == 0 {
		delete(schema, "required")
		return
	}
	schema["required"] = kept
}

// pruneEmpty recursively drops map keys whose values are empty: nil, blank
// strings, and empty containers. Booleans and numbers always survive, which
// keeps explicit additionalProperties: false intact. Entries of a
// "properties" map are kept even when empty: a declared property name must
// survive so the defaulting rules can fill it in.
func pruneEmpty(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "properties" {
				if pm, ok := val.(map[string]any); ok && len(pm) > 0 {
					out[k] = prunePropertyMap(pm)
					continue
				}
			}
			cleaned := pruneEmpty(val)
			if emptyValue(cleaned) {
				continue
			}
			out[k] = cleaned
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			cleaned := pruneEmpty(val)
			if emptyValue(cleaned) {
				continue
			}
			out = append(out, cleaned)
		}
		return out
	default:
		return v
	}
}

func prunePropertyMap(pm map[string]any) map[string]any {
	out := make(map[string]any, len(pm))
	for name, pv := range pm {
		cleaned := pruneEmpty(pv)
		if _, ok := cleaned.(map[string]any); !ok {
			cleaned = map[string]any{}
		}
		out[name] = cleaned
	}
	return out
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
