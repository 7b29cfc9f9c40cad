package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// Decoded is a model reply mapped onto a rubric.
type Decoded struct {
	Criteria []domain.CriterionScore
	Summary  string
}

type replyCriterion struct {
	Key      string          `json:"key"`
	Score    json.RawMessage `json:"score"`
	Feedback json.RawMessage `json:"feedback"`
}

type reply struct {
	Criteria       json.RawMessage `json:"criteria"`
	OverallSummary string          `json:"overall_summary"`
	Summary        string          `json:"summary"`
}

// DecodeEvaluation extracts the JSON object from raw and maps it onto r's
// criteria, in rubric order. Criteria may be an object keyed by criterion key
// or an array of {key, score, feedback}. Feedback given as a list is joined
// into "• item" lines. A missing criterion, a non-numeric score or a score
// outside the rubric scale is reported as *domain.ParseError carrying raw.
func DecodeEvaluation(raw string, r domain.Rubric) (Decoded, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return Decoded{}, err
	}
	fail := func(format string, args ...any) (Decoded, error) {
		return Decoded{}, &domain.ParseError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	var rep reply
	if err := json.Unmarshal([]byte(obj), &rep); err != nil {
		return fail("decode reply: %v", err)
	}
	byKey, err := criteriaByKey(rep.Criteria)
	if err != nil {
		return fail("%v", err)
	}

	out := Decoded{
		Criteria: make([]domain.CriterionScore, 0, len(r.Criteria)),
		Summary:  strings.TrimSpace(rep.OverallSummary),
	}
	if out.Summary == "" {
		out.Summary = strings.TrimSpace(rep.Summary)
	}
	for _, c := range r.Criteria {
		rc, ok := byKey[c.Key]
		if !ok {
			return fail("missing criterion %q", c.Key)
		}
		score, err := parseScore(rc.Score)
		if err != nil {
			return fail("criterion %q: %v", c.Key, err)
		}
		if score < r.Scale.Min || score > r.Scale.Max {
			return fail("criterion %q: score %d outside [%d,%d]", c.Key, score, r.Scale.Min, r.Scale.Max)
		}
		feedback, err := parseFeedback(rc.Feedback)
		if err != nil {
			return fail("criterion %q: %v", c.Key, err)
		}
		out.Criteria = append(out.Criteria, domain.CriterionScore{
			Key:      c.Key,
			Title:    c.Title,
			Score:    score,
			Feedback: feedback,
		})
	}
	return out, nil
}

func criteriaByKey(raw json.RawMessage) (map[string]replyCriterion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("reply has no criteria")
	}
	out := map[string]replyCriterion{}
	switch raw[0] {
	case '{':
		var m map[string]replyCriterion
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode criteria: %w", err)
		}
		for k, v := range m {
			out[strings.TrimSpace(k)] = v
		}
	case '[':
		var list []replyCriterion
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode criteria: %w", err)
		}
		for _, v := range list {
			out[strings.TrimSpace(v.Key)] = v
		}
	default:
		return nil, fmt.Errorf("criteria must be an object or array")
	}
	return out, nil
}

// parseScore accepts JSON numbers and numeric strings. Fractions round half away from zero.
func parseScore(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("score missing")
	}
	var f float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("score not numeric")
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("score %q not numeric", s)
		}
		f = v
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("score not numeric")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("score not finite")
	}
	return int(math.Round(f)), nil
}

func parseFeedback(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode feedback: %w", err)
		}
		return strings.TrimSpace(s), nil
	case '[':
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("feedback list must hold strings")
		}
		lines := make([]string, 0, len(items))
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				lines = append(lines, "• "+it)
			}
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("feedback must be a string or list of strings")
}
