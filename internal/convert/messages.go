package convert

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// buildContents walks the canonical "messages" array and produces the
// upstream "contents" list plus any system-instruction parts collected
// along the way (spec.md §4.2, Canonical → Upstream).
func buildContents(rawJSON []byte) (contents []interface{}, systemParts []interface{}) {
	messages := gjson.GetBytes(rawJSON, "messages")

	for _, msg := range messages.Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			systemParts = append(systemParts, map[string]interface{}{
				"text": flattenContent(content),
			})

		case "user":
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": convertUserParts(content),
			})

		case "assistant":
			if part := buildAssistantContent(msg, content); part != nil {
				contents = append(contents, part)
			}

		case "tool":
			contents = append(contents, buildToolContent(msg, content))
		}
	}
	return contents, systemParts
}

// convertUserParts renders a user message's content into upstream parts.
// Plain string/array-of-text content is flattened to one text part;
// image_url entries become inlineData/fileData parts instead of being
// collapsed to text, since flattening would silently drop the image
// (SPEC_FULL.md supplement to the base flatten-content rule).
func convertUserParts(content gjson.Result) []interface{} {
	if !content.IsArray() || !containsImage(content) {
		return []interface{}{map[string]interface{}{"text": flattenContent(content)}}
	}

	var parts []interface{}
	for _, item := range content.Array() {
		switch item.Get("type").String() {
		case "image_url":
			if part := buildImagePart(item.Get("image_url")); part != nil {
				parts = append(parts, part)
			}
		case "text":
			parts = append(parts, map[string]interface{}{"text": item.Get("text").String()})
		default:
			if text := item.Get("text"); text.Exists() {
				parts = append(parts, map[string]interface{}{"text": text.String()})
			}
		}
	}
	if len(parts) == 0 {
		parts = append(parts, map[string]interface{}{"text": ""})
	}
	return parts
}

func containsImage(content gjson.Result) bool {
	for _, item := range content.Array() {
		if item.Get("type").String() == "image_url" {
			return true
		}
	}
	return false
}

// buildImagePart converts an OpenAI image_url object into a Gemini
// inlineData part for data: URIs, or a fileData part for remote URLs.
func buildImagePart(imageURL gjson.Result) map[string]interface{} {
	url := imageURL.Get("url").String()
	if url == "" {
		url = imageURL.String()
	}
	if url == "" {
		return nil
	}

	if strings.HasPrefix(url, "data:") {
		mimeType, data := parseDataURI(url)
		if data == "" {
			return nil
		}
		return map[string]interface{}{
			"inlineData": map[string]interface{}{
				"mimeType": mimeType,
				"data":     data,
			},
		}
	}

	return map[string]interface{}{
		"fileData": map[string]interface{}{
			"mimeType": "application/octet-stream",
			"fileUri":  url,
		},
	}
}

// parseDataURI splits "data:<mime>;base64,<payload>" into its mime type
// and base64 payload. An unrecognized shape returns an empty payload.
func parseDataURI(uri string) (mimeType, payload string) {
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", ""
	}
	header := rest[:comma]
	payload = rest[comma+1:]
	mimeType = strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType, payload
}

// flattenContent implements the "flatten content" rule: a string content
// passes through, a missing/null content becomes empty, an array
// concatenates the text of elements that have one, and anything else is
// rendered as its string form.
func flattenContent(content gjson.Result) string {
	if !content.Exists() || content.Type == gjson.Null {
		return ""
	}
	if content.IsArray() {
		var b strings.Builder
		for _, item := range content.Array() {
			if text := item.Get("text"); text.Exists() {
				b.WriteString(text.String())
			}
		}
		return b.String()
	}
	if content.Type == gjson.String {
		return content.String()
	}
	return content.String()
}

// buildAssistantContent builds the model-role content for one assistant
// message: an optional text part followed by one function-call part per
// tool call. It returns nil when the resulting parts list is empty.
func buildAssistantContent(msg, content gjson.Result) map[string]interface{} {
	var parts []interface{}

	if text := flattenContent(content); text != "" {
		parts = append(parts, map[string]interface{}{"text": text})
	}

	toolCalls := msg.Get("tool_calls")
	if toolCalls.IsArray() {
		for _, tc := range toolCalls.Array() {
			if tc.Get("type").String() != "function" {
				continue
			}
			name := tc.Get("function.name").String()
			argsRaw := tc.Get("function.arguments").String()

			var args interface{}
			if err := json.Unmarshal([]byte(argsRaw), &args); err != nil {
				args = map[string]interface{}{}
			}
			parts = append(parts, map[string]interface{}{
				"functionCall": map[string]interface{}{
					"name": name,
					"args": args,
				},
			})
		}
	}

	if len(parts) == 0 {
		return nil
	}
	return map[string]interface{}{
		"role":  "model",
		"parts": parts,
	}
}

// buildToolContent builds the user-role function-response content for a
// tool message. Content that fails to parse as JSON is wrapped as
// {"result": <raw text>}.
func buildToolContent(msg, content gjson.Result) map[string]interface{} {
	raw := content.String()
	var response interface{}
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		response = map[string]interface{}{"result": raw}
	}

	return map[string]interface{}{
		"role": "user",
		"parts": []interface{}{
			map[string]interface{}{
				"functionResponse": map[string]interface{}{
					"name":     msg.Get("name").String(),
					"response": response,
				},
			},
		},
	}
}
