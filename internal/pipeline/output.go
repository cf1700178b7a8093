package pipeline

import (
	"fmt"
	"strings"
)

// Disclaimer appended to every validated result.
const Disclaimer = "IMPORTANT: This is a decision support tool, not medical diagnosis. " +
	"All information should be discussed with your healthcare provider. " +
	"In case of emergency, contact emergency services immediately."

// Phrases that read as a diagnosis or prescription. Flagged, not removed —
// the caller decides what to do with flagged output, and evidence fields
// always survive validation intact.
var diagnosticPhrases = []string{
	"you have",
	"you are diagnosed",
	"this is definitely",
	"you suffer from",
	"take this medication",
	"prescribe",
}

// SafetyValidator is the standard output validator: appends the disclaimer
// and flags diagnostic language in generated text.
type SafetyValidator struct{}

// Validate sanitizes the result in place.
func (v *SafetyValidator) Validate(res *QueryResult) {
	res.Disclaimer = Disclaimer

	check := func(field, text string) {
		lower := strings.ToLower(text)
		for _, phrase := range diagnosticPhrases {
			if strings.Contains(lower, phrase) {
				res.SafetyFlags = append(res.SafetyFlags, fmt.Sprintf("%s contains diagnostic language: %q", field, phrase))
			}
		}
	}

	check("summary", res.Summary)
	for _, rec := range res.Recommendations {
		check("recommendation", rec)
	}
	for _, ins := range res.Insights {
		check("insight", ins)
	}
}
