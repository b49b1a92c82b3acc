package convert

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ToCanonicalResponse converts one complete upstream generateContent
// response into a canonical chat.completion object (spec.md §4.2, unary).
func ToCanonicalResponse(model string, created int64, upstreamJSON []byte) ([]byte, error) {
	result := gjson.ParseBytes(upstreamJSON)

	var choices []interface{}
	for _, candidate := range result.Get("candidates").Array() {
		choices = append(choices, buildChoice(candidate, "message"))
	}

	response := map[string]interface{}{
		"id":      NextCompletionID(),
		"object":  "chat.completion",
		"created": created,
		"model":   model,
		"choices": choices,
	}
	if usage := buildUsage(result); usage != nil {
		response["usage"] = usage
	}
	return json.Marshal(response)
}

// ToCanonicalChunk converts one upstream streaming chunk into a canonical
// chat.completion.chunk object sharing id across the whole stream
// (spec.md §4.2, streaming).
func ToCanonicalChunk(model, id string, created int64, upstreamJSON []byte) ([]byte, error) {
	result := gjson.ParseBytes(upstreamJSON)

	var choices []interface{}
	for _, candidate := range result.Get("candidates").Array() {
		choices = append(choices, buildChoice(candidate, "delta"))
	}

	chunk := map[string]interface{}{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   model,
		"choices": choices,
	}
	if usage := buildUsage(result); usage != nil {
		chunk["usage"] = usage
	}
	return json.Marshal(chunk)
}

// buildChoice assembles one choice/delta object from a candidate. field
// is "message" for the unary shape and "delta" for streaming chunks; both
// share identical content-building rules.
func buildChoice(candidate gjson.Result, field string) map[string]interface{} {
	var text string
	var toolCalls []interface{}

	for _, part := range candidate.Get("content.parts").Array() {
		if t := part.Get("text"); t.Exists() {
			text += t.String()
		}
		if fnCall := part.Get("functionCall"); fnCall.Exists() {
			name := fnCall.Get("name").String()
			args := fnCall.Get("args")
			var argsJSON []byte
			if args.Exists() {
				argsJSON, _ = json.Marshal(args.Value())
			} else {
				argsJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   fmt.Sprintf("call_%s", name),
				"type": "function",
				"function": map[string]interface{}{
					"name":      name,
					"arguments": string(argsJSON),
				},
			})
		}
	}

	message := map[string]interface{}{"role": "assistant"}
	if text != "" {
		message["content"] = text
	}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}

	choice := map[string]interface{}{
		"index":         int(candidate.Get("index").Int()),
		field:           message,
		"finish_reason": mapFinishReason(candidate.Get("finishReason")),
	}
	return choice
}

// mapFinishReason maps an upstream finishReason to the canonical value.
// STOP maps to "stop", MAX_TOKENS to "length", SAFETY/RECITATION to
// "content_filter", any other non-empty value to "stop", and a missing
// value to nil.
func mapFinishReason(fr gjson.Result) interface{} {
	if !fr.Exists() || fr.String() == "" {
		return nil
	}
	switch fr.String() {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

func buildUsage(result gjson.Result) map[string]interface{} {
	usage := result.Get("usageMetadata")
	if !usage.Exists() {
		return nil
	}
	prompt := usage.Get("promptTokenCount").Int()
	completion := usage.Get("candidatesTokenCount").Int()
	return map[string]interface{}{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      prompt + completion,
	}
}
