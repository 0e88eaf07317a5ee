package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StripCodeFences removes a leading ```json / ``` marker and a trailing ``` marker, plus surrounding whitespace.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "```json") {
		s = strings.TrimSpace(s[7:])
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	return s
}

// ExtractJSONObject returns the span from the first '{' to the last '}' after stripping code fences.
func ExtractJSONObject(outputText string) (string, error) {
	s := StripCodeFences(outputText)
	if s == "" {
		return "", io.ErrUnexpectedEOF
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	return s[start : end+1], nil
}

// DecodeModelJSON unmarshals a JSON object from a model response, tolerating code fences and
// prose around the object.
func DecodeModelJSON(outputText string, v any) error {
	s := StripCodeFences(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: the whole text is the object.
	if s[0] == '{' {
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return nil
		}
	}

	sub, err := ExtractJSONObject(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}
