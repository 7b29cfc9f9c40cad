// Package ai holds the model-facing pieces shared by every provider: JSON
// extraction from free-form replies, rubric decoding, retry and rate limiting.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON returns the first JSON object embedded in a model reply.
// Fenced code blocks are searched first; otherwise the reply is scanned for the
// first balanced {...} that decodes as an object. String literals are honored
// when balancing braces. A reply without any object yields a *domain.ParseError
// that keeps the raw text.
func ExtractJSON(raw string) (string, error) {
	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		if obj, ok := firstObject(m[1]); ok {
			return obj, nil
		}
	}
	if obj, ok := firstObject(raw); ok {
		return obj, nil
	}
	return "", &domain.ParseError{Raw: raw, Reason: "no JSON object found in model reply"}
}

func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end >= 0 {
			if obj, ok := asObject(s[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func asObject(candidate string) (string, bool) {
	var v map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &v); err == nil {
		return candidate, true
	}
	// Models often leave a trailing comma before a closing bracket.
	repaired := trailingComma.ReplaceAllString(candidate, "$1")
	if repaired != candidate {
		if err := json.Unmarshal([]byte(repaired), &v); err == nil {
			return repaired, true
		}
	}
	return "", false
}
