package jsonx

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Package jsonx pulls structured data out of LLM output. Model responses
// wrap JSON in markdown fences, prose, or nothing at all; every call site
// shares the same extraction chain so parse-failure policy lives in one
// place: fenced block first, then the first balanced object/array, then
// the trimmed input as-is.

var ErrNoJSON = errors.New("no JSON found in text")

// ExtractObject returns the first JSON object embedded in s.
func ExtractObject(s string) (string, error) {
	return extract(s, '{', '}')
}

// ExtractArray returns the first JSON array embedded in s.
func ExtractArray(s string) (string, error) {
	return extract(s, '[', ']')
}

func extract(s string, open, close byte) (string, error) {
	if fenced := stripFence(s); fenced != "" {
		if candidate := balanced(fenced, open, close); candidate != "" {
			return candidate, nil
		}
	}
	if candidate := balanced(s, open, close); candidate != "" {
		return candidate, nil
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 1 && trimmed[0] == open && trimmed[len(trimmed)-1] == close {
		return trimmed, nil
	}
	return "", ErrNoJSON
}

// stripFence returns the content of the first markdown code fence, with or
// without a json language tag, or "" when none is present.
func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// balanced scans for the first balanced open..close span, tracking string
// literals so braces inside values do not confuse the depth count.
func balanced(s string, open, close byte) string {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if gjson.Valid(candidate) {
						return candidate
					}
					start = -1
				}
			}
		}
	}
	return ""
}

// DecodeObject extracts the first JSON object from s and unmarshals it
// into v.
func DecodeObject(s string, v interface{}) error {
	raw, err := ExtractObject(s)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

// DecodeArray extracts the first JSON array from s and unmarshals it
// into v.
func DecodeArray(s string, v interface{}) error {
	raw, err := ExtractArray(s)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

// Field extracts a single field from the first JSON object in s, tolerating
// surrounding noise. Returns "" when the field is absent.
func Field(s, path string) string {
	raw, err := ExtractObject(s)
	if err != nil {
		return ""
	}
	return gjson.Get(raw, path).String()
}

// FieldBool extracts a boolean field, accepting quoted "true"/"false" as
// well as bare booleans. The second return reports presence.
func FieldBool(s, path string) (bool, bool) {
	raw, err := ExtractObject(s)
	if err != nil {
		return false, false
	}
	res := gjson.Get(raw, path)
	if !res.Exists() {
		return false, false
	}
	switch res.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(res.Str)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}
