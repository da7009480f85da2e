package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/apexion-ai/iad/internal/provider"
)

var errSchema = errors.New("reply does not match the step schema")

// stepSchema is the strict JSON schema of a structured step reply.
func stepSchema(minOptions, maxOptions int) *provider.ResponseSchema {
	return &provider.ResponseSchema{
		Name:        "decision_step",
		Description: "A one-sentence restatement of the situation and the contrasting next-step options.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{
					"type":        "string",
					"description": "One-sentence restatement of the problem or chosen direction.",
				},
				// Item count is validated on our side; strict mode does not
				// accept minItems/maxItems on every OpenAI-compatible backend.
				"options": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": fmt.Sprintf("Between %d and %d contrasting next-step options.", minOptions, maxOptions),
				},
			},
			"required":             []string{"summary", "options"},
			"additionalProperties": false,
		},
	}
}

type stepReply struct {
	Summary *string   `json:"summary"`
	Options *[]string `json:"options"`
}

// parseStepReply extracts and strictly validates a step reply.
// Any deviation fails closed.
func parseStepReply(text string, minOptions, maxOptions int) (string, []string, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errSchema, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	var r stepReply
	if err := dec.Decode(&r); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errSchema, err)
	}
	if dec.More() {
		return "", nil, fmt.Errorf("%w: trailing data", errSchema)
	}

	if r.Summary == nil || strings.TrimSpace(*r.Summary) == "" {
		return "", nil, fmt.Errorf("%w: missing summary", errSchema)
	}
	if r.Options == nil {
		return "", nil, fmt.Errorf("%w: missing options", errSchema)
	}
	opts := *r.Options
	if len(opts) < minOptions || len(opts) > maxOptions {
		return "", nil, fmt.Errorf("%w: got %d options, want %d..%d", errSchema, len(opts), minOptions, maxOptions)
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" {
			return "", nil, fmt.Errorf("%w: option %d is empty", errSchema, i+1)
		}
		out[i] = o
	}
	return strings.TrimSpace(*r.Summary), out, nil
}

var codeBlockPattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// extractJSON finds the JSON object in a reply that may be wrapped in a
// markdown code block or surrounded by prose.
func extractJSON(text string) (string, error) {
	for _, m := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(m[2])
		if strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
			return content, nil
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return "", errors.New("no JSON object found")
	}
	if obj := matchBraces(text[start:]); obj != "" && json.Valid([]byte(obj)) {
		return obj, nil
	}
	return "", errors.New("no valid JSON object found")
}

// matchBraces returns the prefix of s up to the brace closing s[0].
func matchBraces(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
