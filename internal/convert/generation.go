package convert

import "github.com/tidwall/gjson"

// buildGenerationConfig includes only the options the caller actually set
// (spec.md §4.2). frequency_penalty, presence_penalty, n and seed are
// SPEC_FULL.md supplements passed through under the same
// present-then-rename rule.
func buildGenerationConfig(rawJSON []byte) map[string]interface{} {
	cfg := make(map[string]interface{})

	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		cfg["temperature"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		cfg["topP"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		cfg["maxOutputTokens"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "stop"); v.Exists() {
		cfg["stopSequences"] = collectStopSequences(v)
	}
	if v := gjson.GetBytes(rawJSON, "frequency_penalty"); v.Exists() {
		cfg["frequencyPenalty"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "presence_penalty"); v.Exists() {
		cfg["presencePenalty"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "n"); v.Exists() {
		cfg["candidateCount"] = v.Value()
	}
	if v := gjson.GetBytes(rawJSON, "seed"); v.Exists() {
		cfg["seed"] = v.Value()
	}

	return cfg
}

func collectStopSequences(stop gjson.Result) []string {
	if stop.IsArray() {
		var out []string
		for _, s := range stop.Array() {
			out = append(out, s.String())
		}
		return out
	}
	return []string{stop.String()}
}
