package convert

import (
	"github.com/tidwall/gjson"

	"geminigate/internal/schema"
)

// buildTools converts the caller's OpenAI-shaped tool declarations into a
// single upstream tool block, running each tool's parameters through the
// schema sanitizer, plus the corresponding tool-config from tool_choice.
func buildTools(rawJSON []byte) (tools interface{}, toolConfig interface{}) {
	toolsResult := gjson.GetBytes(rawJSON, "tools")
	if toolsResult.IsArray() {
		var declarations []interface{}
		for _, t := range toolsResult.Array() {
			if t.Get("type").String() != "function" {
				continue
			}
			fn := t.Get("function")
			params := sanitizeParams(fn.Get("parameters"))
			declarations = append(declarations, map[string]interface{}{
				"name":        fn.Get("name").String(),
				"description": fn.Get("description").String(),
				"parameters":  params,
			})
		}
		if len(declarations) > 0 {
			tools = []interface{}{
				map[string]interface{}{"functionDeclarations": declarations},
			}
		}
	}

	if choice := gjson.GetBytes(rawJSON, "tool_choice"); choice.Exists() {
		toolConfig = map[string]interface{}{
			"functionCallingConfig": map[string]interface{}{
				"mode": mapToolChoice(choice),
			},
		}
	}

	return tools, toolConfig
}

func sanitizeParams(params gjson.Result) map[string]interface{} {
	if !params.IsObject() {
		return map[string]interface{}{}
	}
	m, ok := params.Value().(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return schema.Sanitize(m)
}

// mapToolChoice maps an OpenAI tool_choice string to the upstream's
// function-calling mode. Unknown or non-string values default to AUTO.
func mapToolChoice(choice gjson.Result) string {
	if choice.Type != gjson.String {
		return "AUTO"
	}
	switch choice.String() {
	case "auto":
		return "AUTO"
	case "none":
		return "NONE"
	case "required":
		return "ANY"
	default:
		return "AUTO"
	}
}
