package llm

import (
	"fmt"
	"strings"
)

// CandidateContext is the slice of a ranked record a prompt needs.
type CandidateContext struct {
	Date       string
	Category   string
	Content    string
	Similarity float64
}

func renderCandidates(candidates []CandidateContext) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s, %s, similarity %.2f] %s\n", i+1, c.Date, c.Category, c.Similarity, c.Content)
	}
	if b.Len() == 0 {
		b.WriteString("(no matching records)\n")
	}
	return b.String()
}

// SummarizePrompt asks for a plain-language explanation of why the retrieved
// records relate to the query. Non-diagnostic by instruction.
func SummarizePrompt(query string, candidates []CandidateContext) string {
	return fmt.Sprintf(`You are a medical history assistant. A patient asked:

"%s"

These prior records from the patient's own history were retrieved as relevant:

%s
Explain in plain language how these past records relate to the current question.
Rules:
- Do NOT diagnose. Never say the patient "has" a condition.
- Refer to records by their dates.
- Keep it under 150 words.
- Suggest discussing the history with a healthcare provider.`, query, renderCandidates(candidates))
}

// RecommendPrompt asks for actionable, non-diagnostic suggestions.
// The response is parsed one suggestion per line.
func RecommendPrompt(query string, candidates []CandidateContext, insights []string) string {
	insightBlock := "(none)"
	if len(insights) > 0 {
		insightBlock = strings.Join(insights, "\n")
	}

	return fmt.Sprintf(`You are a medical history assistant. A patient asked:

"%s"

Relevant prior records:

%s
Forgotten insights detected in older records:

%s

Suggest up to 5 concrete, non-diagnostic actions: questions to ask a doctor,
things to monitor, or follow-ups to schedule. One suggestion per line, no
numbering, no preamble. Never prescribe or diagnose.`, query, renderCandidates(candidates), insightBlock)
}

// ParseSuggestions splits an LLM response into one suggestion per line,
// stripping list markers the model may add anyway.
func ParseSuggestions(content string) []string {
	var suggestions []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		for i := 1; i <= 9; i++ {
			line = strings.TrimPrefix(line, fmt.Sprintf("%d. ", i))
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}
