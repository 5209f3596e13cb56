// Helpers for pulling structured JSON out of free-form model output
package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models wrap JSON in markdown fences, label the fence with the wrong
// language, or prepend prose. The patterns are tried in order; the innermost
// capture is the candidate payload.
var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("```json\\s*([\\s\\S]*?)```"),
	regexp.MustCompile("```JSON\\s*([\\s\\S]*?)```"),
	regexp.MustCompile("```javascript\\s*([\\s\\S]*?)```"),
	regexp.MustCompile("```js\\s*([\\s\\S]*?)```"),
	regexp.MustCompile("```\\w*\\s*([\\s\\S]*?)```"),
	regexp.MustCompile("`([^`]+)`"),
}

var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

// ExtractJSONFromResponse pulls the first JSON object or array out of model
// output, looking inside markdown code fences first and then at bare balanced
// braces. The input is typically Message.GetText() of an assistant reply.
// When nothing extractable is found the text is returned unchanged.
func ExtractJSONFromResponse(text string) string {
	// Some models leak terminal color sequences into their output.
	text = strings.ReplaceAll(text, "\033[92m", "")
	text = strings.ReplaceAll(text, "\033[0m", "")
	text = strings.ReplaceAll(text, "[92m", "")
	text = strings.ReplaceAll(text, "[0m", "")
	text = strings.TrimSpace(text)

	for _, pattern := range fencePatterns {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) > 1 {
			if extracted, ok := recoverJSON(strings.TrimSpace(matches[1])); ok {
				return extracted
			}
		}
	}

	for _, candidate := range findJSONBlocks(text) {
		if extracted, ok := recoverJSON(strings.TrimSpace(candidate)); ok {
			return extracted
		}
	}

	if extracted, ok := recoverJSON(text); ok {
		return extracted
	}
	return text
}

// recoverJSON accepts a candidate as-is when it already parses, and otherwise
// tries to repair it by stripping comments and trailing commas.
func recoverJSON(candidate string) (string, bool) {
	if !isValidJSONStart(candidate) {
		return "", false
	}
	if isValidJSON(candidate) {
		return candidate, true
	}
	if cleaned := cleanJSON(candidate); cleaned != "" {
		return cleaned, true
	}
	return "", false
}

func isValidJSONStart(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")
}

func isValidJSON(text string) bool {
	var temp interface{}
	return json.Unmarshal([]byte(text), &temp) == nil
}

// findJSONBlocks collects every balanced {...} object and [...] array in
// text, outermost first.
func findJSONBlocks(text string) []string {
	var blocks []string
	for i := 0; i < len(text); i++ {
		var closer byte
		switch text[i] {
		case '{':
			closer = '}'
		case '[':
			closer = ']'
		default:
			continue
		}
		if end := matchedDelimiter(text[i:], text[i], closer); end >= 0 {
			blocks = append(blocks, text[i:i+end+1])
		}
	}
	return blocks
}

// matchedDelimiter returns the byte index of the delimiter balancing the
// opener at text[0], ignoring delimiters inside JSON strings, or -1 when the
// text ends unbalanced.
func matchedDelimiter(text string, opener, closer byte) int {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// cleanJSON strips line comments and trailing commas, the two repairs that
// most often turn almost-JSON into JSON. Returns "" when the result still
// does not parse.
func cleanJSON(jsonText string) string {
	var cleanedLines []string
	for _, line := range strings.Split(jsonText, "\n") {
		if idx := strings.Index(line, "//"); idx != -1 {
			line = line[:idx]
		}
		line = trailingCommaPattern.ReplaceAllString(line, "$1")
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	result := strings.Join(cleanedLines, "\n")
	if !isValidJSON(result) {
		return ""
	}
	return result
}

// RemoveBlocks deletes every <tag>...</tag> block from text, including the
// tags themselves. Useful for discarding reasoning sections such as
// <think>...</think> before the reply is shown or parsed.
func RemoveBlocks(text, tag string) string {
	pattern := fmt.Sprintf(`(?s)<%s>.*?</%s>`, regexp.QuoteMeta(tag), regexp.QuoteMeta(tag))
	return regexp.MustCompile(pattern).ReplaceAllString(text, "")
}

// ExtractAndValidateJSON extracts JSON from model output and, when a schema
// is given, validates the result against it. The extracted string is returned
// even when validation fails so callers can log what the model produced.
func ExtractAndValidateJSON(response string, schema interface{}) (string, error) {
	jsonStr := ExtractJSONFromResponse(response)

	if schema != nil {
		if err := ValidateAgainstSchema([]byte(jsonStr), schema); err != nil {
			return jsonStr, fmt.Errorf("response validation failed: %w", err)
		}
	}

	return jsonStr, nil
}

// ExtractJSONToStruct extracts JSON from model output and unmarshals it into
// out, which must be a non-nil pointer.
func ExtractJSONToStruct(response string, out interface{}) error {
	jsonStr := ExtractJSONFromResponse(response)
	return json.Unmarshal([]byte(jsonStr), out)
}

// ExtractAndValidateJSONToStruct combines schema validation with unmarshaling
// into out.
func ExtractAndValidateJSONToStruct(response string, out interface{}, schema interface{}) error {
	jsonStr, err := ExtractAndValidateJSON(response, schema)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(jsonStr), out)
}
