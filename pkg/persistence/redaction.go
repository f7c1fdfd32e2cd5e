package persistence

import (
	"encoding/json"
	"fmt"
	"regexp"
)

type redactionCodec struct {
	next     Codec
	patterns []*regexp.Regexp
}

// NewRedaction creates a middleware that masks values of JSON object keys
// matching the patterns before the encoded state reaches the backend.
// The wrapped codec must produce JSON, so this layer belongs directly over
// the JSON codec, inside any encryption layer.
func NewRedaction(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next Codec) Codec {
		return &redactionCodec{next: next, patterns: patterns}
	}
}

func (c *redactionCodec) Marshal(v any) ([]byte, error) {
	data, err := c.next.Marshal(v)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("redaction requires a JSON-producing codec: %w", err)
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		// Scalar or array states carry no keys to mask.
		return data, nil
	}

	maskMap(obj, c.patterns)
	return json.Marshal(obj)
}

func (c *redactionCodec) Unmarshal(data []byte, v any) error {
	return c.next.Unmarshal(data, v)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		// Check key against patterns
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}

		// Recurse if map
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
