// Package vision defines the vision-provider error surface and the
// post-processing applied to raw model output before validation.
package vision

import "strings"

// StripFences removes a Markdown code fence wrapper from model output.
// Vision models routinely fence JSON as ```json ... ``` even when asked
// not to.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[7:]
	}
	if strings.HasPrefix(text, "```") {
		text = text[3:]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-3]
	}
	return strings.TrimSpace(text)
}

// ExtractJSON returns the outermost JSON object in text after fence
// stripping, or "" when no object is present. Keeps everything between
// the first '{' and the last '}', so prose before or after the object
// is discarded.
func ExtractJSON(text string) string {
	text = StripFences(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
