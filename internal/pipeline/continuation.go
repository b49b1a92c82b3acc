package pipeline

import (
	"encoding/json"
	"fmt"
)

// buildContinuation clones the upstream request and appends a "model"
// content carrying the collected text so far, then a "user" content
// asking for the remainder (spec.md §4.5, buildContinuation).
func buildContinuation(upstreamJSON []byte, collectedText string) []byte {
	var req map[string]interface{}
	if err := json.Unmarshal(upstreamJSON, &req); err != nil {
		return upstreamJSON
	}

	contents, _ := req["contents"].([]interface{})

	tail := collectedText
	if len(tail) > 100 {
		tail = tail[len(tail)-100:]
	}
	prompt := fmt.Sprintf(
		"Continue from where you left off. You have already output approximately %d characters ending with:\n\"...%s\"\n\nContinue:",
		len(collectedText), tail,
	)

	contents = append(contents,
		map[string]interface{}{
			"role":  "model",
			"parts": []interface{}{map[string]interface{}{"text": collectedText}},
		},
		map[string]interface{}{
			"role":  "user",
			"parts": []interface{}{map[string]interface{}{"text": prompt}},
		},
	)
	req["contents"] = contents

	out, err := json.Marshal(req)
	if err != nil {
		return upstreamJSON
	}
	return out
}
