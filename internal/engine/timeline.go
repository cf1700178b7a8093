package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/store"
)

// Timeline returns all records for an owner in chronological order.
func (e *Engine) Timeline(ownerID string) ([]store.Record, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	return e.DB.ListByOwner(ownerID)
}

// MemoryHealth scores the quality of an owner's history: how recent the
// records are, how many distinct categories they span, and how regular the
// updates have been.
type MemoryHealth struct {
	Status     string   `json:"status"`
	Score      float64  `json:"score"`
	Recency    float64  `json:"recency_score"`
	Diversity  float64  `json:"diversity_score"`
	Continuity float64  `json:"continuity_score"`
	Hints      []string `json:"hints,omitempty"`
}

// MemorySummary aggregates an owner's history for reporting.
type MemorySummary struct {
	OwnerID      string         `json:"owner_id"`
	TotalRecords int            `json:"total_records"`
	ByCategory   map[string]int `json:"by_category,omitempty"`
	EarliestMs   int64          `json:"earliest,omitempty"`
	LatestMs     int64          `json:"latest,omitempty"`
	SpanDays     int            `json:"span_days"`
	Health       *MemoryHealth  `json:"health,omitempty"`
}

// Summary builds the memory summary for one owner.
func (e *Engine) Summary(ownerID string, now time.Time) (*MemorySummary, error) {
	records, err := e.Timeline(ownerID)
	if err != nil {
		return nil, err
	}

	sum := &MemorySummary{OwnerID: ownerID, TotalRecords: len(records)}
	if len(records) == 0 {
		return sum, nil
	}

	sum.ByCategory = make(map[string]int)
	sum.EarliestMs = records[0].CreatedAt
	sum.LatestMs = records[len(records)-1].CreatedAt
	for _, rec := range records {
		sum.ByCategory[rec.Category]++
	}
	sum.SpanDays = int(time.UnixMilli(sum.LatestMs).Sub(time.UnixMilli(sum.EarliestMs)).Hours() / 24)
	sum.Health = assessHealth(records, now)
	return sum, nil
}

func assessHealth(records []store.Record, now time.Time) *MemoryHealth {
	total := len(records)

	recentCount := 0
	categories := make(map[string]bool)
	for _, rec := range records {
		if ageDays(rec.CreatedAt, now) <= 90 {
			recentCount++
		}
		categories[rec.Category] = true
	}

	// A third of the history being recent counts as fully fresh.
	recency := float64(recentCount) / (float64(total) * 0.3)
	if recency > 1 {
		recency = 1
	}

	// Five distinct categories is treated as full coverage.
	diversity := float64(len(categories)) / 5.0
	if diversity > 1 {
		diversity = 1
	}

	// Regular updates: six-month average gap or better is ideal.
	continuity := 0.5
	if total > 1 {
		gapDays := float64(ageDays(records[0].CreatedAt, time.UnixMilli(records[total-1].CreatedAt))) / float64(total-1)
		continuity = 1.0 - gapDays/180.0
		if continuity < 0 {
			continuity = 0
		}
	}

	score := recency*0.4 + diversity*0.3 + continuity*0.3

	status := "needs_improvement"
	switch {
	case score > 0.8:
		status = "excellent"
	case score > 0.6:
		status = "good"
	case score > 0.4:
		status = "fair"
	}

	var hints []string
	if recency < 0.5 {
		hints = append(hints, "Uploading recent records would improve retrieval accuracy")
	}
	if diversity < 0.4 {
		hints = append(hints, "Adding different record types (symptoms, scans, reports) gives better context")
	}
	if continuity < 0.4 {
		hints = append(hints, "Regular updates help identify patterns over time")
	}

	return &MemoryHealth{
		Status:     status,
		Score:      score,
		Recency:    recency,
		Diversity:  diversity,
		Continuity: continuity,
		Hints:      hints,
	}
}

// consolidationThreshold is how many same-category records inside the window
// count as a recurring pattern.
const consolidationThreshold = 3

// CategoryPattern is one recurring-category finding from a consolidation pass.
type CategoryPattern struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Pattern  string `json:"pattern"`
}

// Consolidation groups an owner's recent records by category to surface
// recurring patterns and reduce noise.
type Consolidation struct {
	WindowDays   int               `json:"window_days"`
	TotalRecords int               `json:"total_records"`
	Patterns     []CategoryPattern `json:"patterns"`
}

// Consolidate scans the owner's records inside the window and reports every
// category that recurs at the pattern threshold. Read-only; nothing is merged
// or deleted.
func (e *Engine) Consolidate(ownerID string, windowDays int, now time.Time) (*Consolidation, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	records, err := e.DB.ListByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner records: %w", err)
	}

	cutoff := now.AddDate(0, 0, -windowDays).UnixMilli()
	grouped := make(map[string]int)
	total := 0
	for _, rec := range records {
		if rec.CreatedAt < cutoff || rec.CreatedAt > now.UnixMilli() {
			continue
		}
		grouped[rec.Category]++
		total++
	}

	cons := &Consolidation{WindowDays: windowDays, TotalRecords: total}
	var categories []string
	for cat, count := range grouped {
		if count >= consolidationThreshold {
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)
	for _, cat := range categories {
		count := grouped[cat]
		cons.Patterns = append(cons.Patterns, CategoryPattern{
			Category: cat,
			Count:    count,
			Pattern:  fmt.Sprintf("Recurring %s records (%d occurrences in %d days)", cat, count, windowDays),
		})
	}
	return cons, nil
}

// Progression summarizes how often a term appears in an owner's records
// inside a time window.
type Progression struct {
	Term            string  `json:"term"`
	Occurrences     int     `json:"occurrences"`
	FirstMs         int64   `json:"first_occurrence,omitempty"`
	LatestMs        int64   `json:"latest_occurrence,omitempty"`
	AvgFrequencyDay float64 `json:"average_frequency_days"`
	Trend           string  `json:"trend"`
}

// Progression scans the owner's records for a term (case-insensitive
// containment) inside the window and labels the trend recurring when the
// term shows up three or more times.
func (e *Engine) Progression(ownerID, term string, windowDays int, now time.Time) (*Progression, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if term == "" {
		return nil, &ValidationError{Field: "term", Reason: "required"}
	}
	if windowDays <= 0 {
		windowDays = 365
	}

	records, err := e.DB.ListByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner records: %w", err)
	}

	cutoff := now.AddDate(0, 0, -windowDays).UnixMilli()
	needle := strings.ToLower(term)

	var stamps []int64
	for _, rec := range records {
		if rec.CreatedAt < cutoff || rec.CreatedAt > now.UnixMilli() {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Content), needle) {
			stamps = append(stamps, rec.CreatedAt)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	prog := &Progression{Term: term, Occurrences: len(stamps), Trend: "isolated"}
	if len(stamps) == 0 {
		return prog, nil
	}

	prog.FirstMs = stamps[0]
	prog.LatestMs = stamps[len(stamps)-1]
	if len(stamps) > 1 {
		spanDays := float64(prog.LatestMs-prog.FirstMs) / float64(24*time.Hour/time.Millisecond)
		prog.AvgFrequencyDay = spanDays / float64(len(stamps))
	}
	if len(stamps) >= 3 {
		prog.Trend = "recurring"
	}
	return prog, nil
}
