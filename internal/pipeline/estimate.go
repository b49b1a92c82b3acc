package pipeline

import "github.com/tidwall/gjson"

// promptStats walks the canonical messages array and returns their
// concatenated flattened text plus the number of image_url content
// parts, both consumed by usage.EstimateInputTokens.
func promptStats(rawJSON []byte) (text string, imageCount int) {
	messages := gjson.GetBytes(rawJSON, "messages")
	var out []byte
	for _, msg := range messages.Array() {
		content := msg.Get("content")
		if content.IsArray() {
			for _, item := range content.Array() {
				if item.Get("type").String() == "image_url" {
					imageCount++
					continue
				}
				if t := item.Get("text"); t.Exists() {
					out = append(out, t.String()...)
				}
			}
			continue
		}
		out = append(out, content.String()...)
	}
	return string(out), imageCount
}
