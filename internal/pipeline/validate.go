package pipeline

import (
	"strings"

	"github.com/careledger/careledger/internal/engine"
)

const maxQueryChars = 5000

// Patterns that indicate script injection attempts via the web surface.
var dangerousPatterns = []string{
	"<script",
	"javascript:",
	"onerror=",
	"onload=",
}

// ValidateQueryText rejects empty, oversized, or injection-bearing query
// text. Returns a ValidationError; no mutation has happened at this point.
func ValidateQueryText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &engine.ValidationError{Field: "query_text", Reason: "required"}
	}
	if len(trimmed) > maxQueryChars {
		return &engine.ValidationError{Field: "query_text", Reason: "too long (max 5000 characters)"}
	}
	lower := strings.ToLower(trimmed)
	for _, p := range dangerousPatterns {
		if strings.Contains(lower, p) {
			return &engine.ValidationError{Field: "query_text", Reason: "contains invalid characters"}
		}
	}
	return nil
}

// Emergency indicators short-circuit the pipeline into a fixed safety
// response — no retrieval, no LLM involvement.
var emergencyKeywords = []string{
	"chest pain",
	"can't breathe",
	"suicide",
	"severe bleeding",
	"unconscious",
	"stroke",
	"heart attack",
	"overdose",
	"severe pain",
	"can't move",
	"seizure",
}

const emergencyMessage = "EMERGENCY ALERT: Your message indicates a potential emergency. " +
	"Please contact emergency services immediately or go to the nearest " +
	"emergency room. Do not rely on this system for emergency care."

// CheckEmergency reports whether the text contains an emergency indicator
// and the fixed response to return when it does.
func CheckEmergency(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return true, emergencyMessage
		}
	}
	return false, ""
}
