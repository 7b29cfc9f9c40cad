// Package prompt renders rubric-driven evaluation prompts from submissions.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// NotProvided is rendered for absent or blank answers.
const NotProvided = "Not provided"

// Prompt is the system and user message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// Build renders the prompt for evaluating s against r. It is pure: the same
// rubric and submission always produce byte-identical output.
func Build(r domain.Rubric, s domain.Submission) Prompt {
	return Prompt{System: systemMessage(r), User: userMessage(r, s)}
}

func systemMessage(r domain.Rubric) string {
	var b strings.Builder
	persona := strings.TrimSpace(r.Persona)
	if persona == "" {
		persona = "You are an experienced startup investor reviewing founder applications."
	}
	b.WriteString(persona)
	b.WriteString("\nScore the application strictly against the rubric. Base every score only on the information given; missing information lowers the score.\n")
	b.WriteString("Respond with ONLY valid JSON. No markdown, no prose before or after the JSON.")
	return b.String()
}

func userMessage(r domain.Rubric, s domain.Submission) string {
	var b strings.Builder

	b.WriteString("Startup application\n\n")
	writeLine(&b, "Company", s.CompanyName)
	writeLine(&b, "Website", s.Website)
	b.WriteString("\n")

	covered := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		covered[f.Key] = struct{}{}
		writeSection(&b, f.Label, answerOrDefault(s, f.Key))
	}

	var extra []string
	for k := range s.Answers {
		if _, ok := covered[k]; ok {
			continue
		}
		if _, present := s.Answer(k); present {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		b.WriteString("Additional information:\n")
		for _, k := range extra {
			v, _ := s.Answer(k)
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Rubric (%s): score each criterion as an integer from %d to %d.\n", r.Name, r.Scale.Min, r.Scale.Max)
	for i, c := range r.Criteria {
		fmt.Fprintf(&b, "%d. %s [%s]: %s", i+1, c.Title, c.Key, c.Description)
		if len(c.Fields) > 0 {
			labels := make([]string, 0, len(c.Fields))
			for _, fk := range c.Fields {
				labels = append(labels, r.FieldLabel(fk))
			}
			fmt.Fprintf(&b, " (look at: %s)", strings.Join(labels, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(schema(r))
	return b.String()
}

func schema(r domain.Rubric) string {
	var b strings.Builder
	b.WriteString("Respond with JSON in exactly this shape:\n{\n  \"criteria\": {\n")
	for i, c := range r.Criteria {
		fmt.Fprintf(&b, "    %q: {\"score\": <integer %d-%d>, \"feedback\": \"<2-3 sentences>\"}", c.Key, r.Scale.Min, r.Scale.Max)
		if i < len(r.Criteria)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  },\n  \"overall_summary\": \"<3-5 sentence summary>\"\n}\n")
	b.WriteString("Rules:\n- Every criterion key above must be present\n- Scores are integers, never strings or decimals\n")
	return b.String()
}

func answerOrDefault(s domain.Submission, key string) string {
	if v, ok := s.Answer(key); ok {
		return v
	}
	return NotProvided
}

func writeLine(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = NotProvided
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func writeSection(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s:\n%s\n\n", label, value)
}
