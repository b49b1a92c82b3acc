// Package schema reshapes caller-supplied JSON-Schema tool parameter
// definitions into the form the upstream generative API accepts.
package schema

import (
	"fmt"
	"reflect"
	"strings"
)

var validTypes = map[string]string{
	"string":  "STRING",
	"number":  "NUMBER",
	"integer": "INTEGER",
	"boolean": "BOOLEAN",
	"array":   "ARRAY",
	"object":  "OBJECT",
}

var droppedKeys = map[string]bool{
	"$defs":       true,
	"definitions": true,
	"$schema":     true,
	"$id":         true,
	"const":       true,
	"oneOf":       true,
	"strict":      true,
}

var passthroughKeys = map[string]bool{
	"required":    true,
	"description": true,
	"enum":        true,
	"format":      true,
	"nullable":    true,
}

// Sanitize reshapes a tool-parameter schema fragment. It never errors:
// unrecognized structures are copied through unchanged, matching the
// caller-facing contract that every input produces some output.
func Sanitize(fragment map[string]interface{}) map[string]interface{} {
	return sanitize(fragment, make(map[uintptr]bool))
}

func sanitize(fragment map[string]interface{}, visited map[uintptr]bool) map[string]interface{} {
	if fragment == nil {
		return nil
	}
	identity := reflect.ValueOf(fragment).Pointer()
	if visited[identity] {
		return fragment
	}
	visited[identity] = true

	fragment = mergeAllOf(fragment)
	fragment = collapseAnyOf(fragment)

	out := make(map[string]interface{}, len(fragment))
	def, hasDefault := fragment["default"]
	if hasDefault {
		out["description"] = foldDefault(fragment, def)
	}

	for k, v := range fragment {
		switch {
		case k == "default":
			// folded into description above
		case k == "description" && hasDefault:
			// already folded with the default value above
		case k == "type":
			out["type"] = normalizeType(v)
		case k == "properties":
			out["properties"] = sanitizeProperties(v, visited)
		case k == "items":
			out["items"] = sanitizeItems(v, visited)
		case k == "allOf", k == "anyOf":
			// already consumed above
		case droppedKeys[k]:
			// dropped
		case passthroughKeys[k]:
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}

// normalizeType maps a schema "type" value to the upstream's uppercase
// singleton form. A type array picks the first non-"null" member.
func normalizeType(v interface{}) string {
	switch t := v.(type) {
	case string:
		if up, ok := validTypes[strings.ToLower(t)]; ok {
			return up
		}
	case []interface{}:
		for _, item := range t {
			s, ok := item.(string)
			if !ok || strings.ToLower(s) == "null" {
				continue
			}
			if up, ok := validTypes[strings.ToLower(s)]; ok {
				return up
			}
		}
	}
	return "STRING"
}

func sanitizeProperties(v interface{}, visited map[uintptr]bool) interface{} {
	props, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	out := make(map[string]interface{}, len(props))
	for name, val := range props {
		if child, ok := val.(map[string]interface{}); ok {
			out[name] = sanitize(child, visited)
		} else {
			out[name] = val
		}
	}
	return out
}

func sanitizeItems(v interface{}, visited map[uintptr]bool) interface{} {
	if child, ok := v.(map[string]interface{}); ok {
		return sanitize(child, visited)
	}
	return v
}

// mergeAllOf element-wise merges an "allOf" array into the fragment:
// properties are unioned, required lists concatenated, everything else
// last-writer-wins in array order.
func mergeAllOf(fragment map[string]interface{}) map[string]interface{} {
	raw, ok := fragment["allOf"]
	if !ok {
		return fragment
	}
	items, ok := raw.([]interface{})
	if !ok {
		delete(fragment, "allOf")
		return fragment
	}

	merged := make(map[string]interface{})
	var required []interface{}
	properties := make(map[string]interface{})

	for k, v := range fragment {
		if k == "allOf" {
			continue
		}
		merged[k] = v
	}
	if req, ok := merged["required"].([]interface{}); ok {
		required = append(required, req...)
		delete(merged, "required")
	}
	if props, ok := merged["properties"].(map[string]interface{}); ok {
		for k, v := range props {
			properties[k] = v
		}
		delete(merged, "properties")
	}

	for _, item := range items {
		sub, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for k, v := range sub {
			switch k {
			case "properties":
				if props, ok := v.(map[string]interface{}); ok {
					for pk, pv := range props {
						properties[pk] = pv
					}
				}
			case "required":
				if req, ok := v.([]interface{}); ok {
					required = append(required, req...)
				}
			default:
				merged[k] = v
			}
		}
	}

	if len(properties) > 0 {
		merged["properties"] = properties
	}
	if len(required) > 0 {
		merged["required"] = dedupeStrings(required)
	}
	return merged
}

func dedupeStrings(items []interface{}) []interface{} {
	seen := make(map[string]bool, len(items))
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			out = append(out, it)
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, it)
	}
	return out
}

// collapseAnyOf turns an "anyOf" of all-const branches into an "enum";
// any other shape is dropped, per the sanitizer's fixed transformation
// rules.
func collapseAnyOf(fragment map[string]interface{}) map[string]interface{} {
	raw, ok := fragment["anyOf"]
	if !ok {
		return fragment
	}
	items, ok := raw.([]interface{})
	if !ok {
		delete(fragment, "anyOf")
		return fragment
	}

	consts := make([]interface{}, 0, len(items))
	allConst := len(items) > 0
	for _, item := range items {
		sub, ok := item.(map[string]interface{})
		if !ok {
			allConst = false
			break
		}
		c, ok := sub["const"]
		if !ok {
			allConst = false
			break
		}
		consts = append(consts, c)
	}

	delete(fragment, "anyOf")
	if allConst {
		fragment["enum"] = consts
	}
	return fragment
}

// foldDefault appends "(Default: <value>)" to the fragment's description,
// or produces it standalone when no description exists.
func foldDefault(fragment map[string]interface{}, def interface{}) string {
	desc, _ := fragment["description"].(string)
	if desc == "" {
		return fmt.Sprintf("(Default: %v)", def)
	}
	return fmt.Sprintf("%s (Default: %v)", desc, def)
}
