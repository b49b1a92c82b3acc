// Package convert implements the bidirectional translation between the
// OpenAI-compatible canonical wire format this gateway accepts and the
// upstream generative API's format, for both unary and streaming
// exchanges (spec.md §4.2).
package convert

import "encoding/json"

// ToUpstream converts a canonical chat-completion request body into an
// upstream generateContent/streamGenerateContent request body.
func ToUpstream(rawJSON []byte) ([]byte, error) {
	contents, systemParts := buildContents(rawJSON)

	upstream := make(map[string]interface{})
	upstream["contents"] = contents

	if len(systemParts) > 0 {
		upstream["systemInstruction"] = map[string]interface{}{
			"role":  "user",
			"parts": systemParts,
		}
	}

	if cfg := buildGenerationConfig(rawJSON); len(cfg) > 0 {
		upstream["generationConfig"] = cfg
	}

	tools, toolConfig := buildTools(rawJSON)
	if tools != nil {
		upstream["tools"] = tools
	}
	if toolConfig != nil {
		upstream["toolConfig"] = toolConfig
	}

	return json.Marshal(upstream)
}
