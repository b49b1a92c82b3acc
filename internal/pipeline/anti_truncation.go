package pipeline

import (
	"encoding/json"

	"geminigate/internal/constants"
)

// injectAntiTruncation appends the anti-truncation instruction to the
// upstream request's system instruction, synthesizing one if absent
// (spec.md §4.5).
func injectAntiTruncation(upstreamJSON []byte) []byte {
	var req map[string]interface{}
	if err := json.Unmarshal(upstreamJSON, &req); err != nil {
		return upstreamJSON
	}

	sysInstr, _ := req["systemInstruction"].(map[string]interface{})
	if sysInstr == nil {
		sysInstr = map[string]interface{}{"role": "user"}
	}
	parts, _ := sysInstr["parts"].([]interface{})

	if len(parts) > 0 {
		last, ok := parts[len(parts)-1].(map[string]interface{})
		if ok {
			text, _ := last["text"].(string)
			last["text"] = text + "\n\n" + constants.AntiTruncationInstruction
		} else {
			parts = append(parts, map[string]interface{}{"text": constants.AntiTruncationInstruction})
		}
	} else {
		parts = []interface{}{map[string]interface{}{"text": constants.AntiTruncationInstruction}}
	}

	sysInstr["parts"] = parts
	req["systemInstruction"] = sysInstr

	out, err := json.Marshal(req)
	if err != nil {
		return upstreamJSON
	}
	return out
}
