package pipeline

import (
	"encoding/json"
	"strings"

	"geminigate/internal/constants"
)

// stripDoneMarker removes every occurrence of the anti-truncation marker
// from every text part of every candidate in an upstream response body,
// returning the cleaned body and whether the marker was found at all.
func stripDoneMarker(upstreamJSON []byte) (cleaned []byte, found bool) {
	var body map[string]interface{}
	if err := json.Unmarshal(upstreamJSON, &body); err != nil {
		return upstreamJSON, false
	}

	candidates, _ := body["candidates"].([]interface{})
	for _, c := range candidates {
		cand, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := cand["content"].(map[string]interface{})
		if !ok {
			continue
		}
		parts, ok := content["parts"].([]interface{})
		if !ok {
			continue
		}
		for _, p := range parts {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			text, ok := part["text"].(string)
			if !ok {
				continue
			}
			if strings.Contains(text, constants.DoneMarker) {
				found = true
				part["text"] = strings.ReplaceAll(text, constants.DoneMarker, "")
			}
		}
	}

	out, err := json.Marshal(body)
	if err != nil {
		return upstreamJSON, found
	}
	return out, found
}

// candidateText concatenates the text of every part across every
// candidate in an upstream chunk, used to track collected_text and to
// detect the done marker before conversion.
func candidateText(upstreamJSON []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(upstreamJSON, &body); err != nil {
		return ""
	}
	var b strings.Builder
	candidates, _ := body["candidates"].([]interface{})
	for _, c := range candidates {
		cand, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := cand["content"].(map[string]interface{})
		if !ok {
			continue
		}
		parts, ok := content["parts"].([]interface{})
		if !ok {
			continue
		}
		for _, p := range parts {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}

// candidateOutputTokens returns the candidatesTokenCount from an
// upstream chunk's usage metadata, or 0 if absent.
func candidateOutputTokens(upstreamJSON []byte) (int64, bool) {
	var body struct {
		UsageMetadata *struct {
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(upstreamJSON, &body); err != nil || body.UsageMetadata == nil {
		return 0, false
	}
	return body.UsageMetadata.CandidatesTokenCount, true
}
