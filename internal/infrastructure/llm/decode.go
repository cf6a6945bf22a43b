package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse marks completions that do not carry a decodable JSON document.
var ErrMalformedResponse = errors.New("malformed llm response")

// DecodeJSON extracts the JSON document from a completion (tolerating code
// fences and surrounding prose) and unmarshals it into out.
func DecodeJSON(content string, out any) error {
	payload := extractJSON(content)
	if payload == "" {
		return fmt.Errorf("%w: no json document", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return content[start : end+1]
}
