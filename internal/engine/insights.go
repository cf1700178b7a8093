package engine

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Markers that flag content as carrying an unresolved action. Matching is
// purely lexical: this is a string-containment heuristic, not a semantic
// entailment check, and it will miss paraphrased follow-ups. Kept simple on
// purpose; precision is a product question, not a code one.
var defaultActionMarkers = []string{
	"recommended",
	"follow-up",
	"follow up",
	"suggested",
	"advised",
	"referral",
}

const maxInsights = 3

// DetectInsights surfaces forgotten insights: old candidates (past the
// recent window) that carry an unresolved-action marker and show no evidence
// of follow-through in any recent candidate or any record created after them.
func (e *Engine) DetectInsights(ownerID string, recent, old []RankedCandidate, now time.Time) ([]string, error) {
	if len(old) == 0 {
		return nil, nil
	}

	// Later records are the evidence pool for follow-through.
	records, err := e.snapshotOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner records: %w", err)
	}

	var insights []string
	for _, oc := range old {
		action := extractAction(oc.Record.Content)
		if action == "" {
			continue // no unresolved-action marker, no insight
		}

		followed := false
		actionTokens := tokenize(action)
		for _, rc := range recent {
			if mentionsAction(rc.Record.Content, actionTokens) {
				followed = true
				break
			}
		}
		if !followed {
			for _, rec := range records {
				if rec.CreatedAt <= oc.Record.CreatedAt || rec.ID == oc.Record.ID {
					continue
				}
				if mentionsAction(rec.Content, actionTokens) {
					followed = true
					break
				}
			}
		}
		if followed {
			continue
		}

		months := oc.AgeDays / 30
		insights = append(insights, fmt.Sprintf("Unfollowed recommendation from %d months ago: %s", months, action))
		log.Printf("insight: unfollowed action from %d months ago for owner %s", months, ownerID)

		if len(insights) >= maxInsights {
			break
		}
	}
	return insights, nil
}

// extractAction returns the action phrase following the first unresolved
// marker in the content, trimmed to the end of its sentence. Empty when the
// content carries no marker.
func extractAction(content string) string {
	lower := strings.ToLower(content)
	idx := -1
	markerLen := 0
	for _, m := range defaultActionMarkers {
		if i := strings.Index(lower, m); i >= 0 && (idx < 0 || i < idx) {
			idx = i
			markerLen = len(m)
		}
	}
	if idx < 0 {
		return ""
	}

	rest := content[idx+markerLen:]
	if end := strings.IndexAny(rest, ".;\n"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimLeft(rest, ": ,")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		// Marker with nothing after it — fall back to the sentence holding it.
		return strings.TrimSpace(content)
	}
	return rest
}

// mentionsAction reports whether content shares at least half of the action
// phrase's tokens. Cheap keyword overlap, same register as the markers.
func mentionsAction(content string, actionTokens []string) bool {
	if len(actionTokens) == 0 {
		return false
	}
	contentTokens := make(map[string]bool)
	for _, tok := range tokenize(content) {
		contentTokens[tok] = true
	}
	shared := 0
	for _, tok := range actionTokens {
		if contentTokens[tok] {
			shared++
		}
	}
	return shared*2 >= len(actionTokens)
}
