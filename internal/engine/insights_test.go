package engine

import (
	"strings"
	"testing"

	"github.com/careledger/careledger/internal/store"
)

// makeCandidate wraps a seeded record as a ranked candidate with its age.
func makeCandidate(rec *store.Record, ageDays int) RankedCandidate {
	return RankedCandidate{
		Record:  *rec,
		AgeDays: ageDays,
		Recent:  ageDays < RecentWindowDays,
	}
}

func TestDetectInsightsUnfollowedRecommendation(t *testing.T) {
	db := testDB(t)
	eng := New(db)

	old := seedRecord(t, db, "p1",
		"Orthopedic consult. Doctor recommended physical therapy for lower back pain.",
		[]float64{1}, testNow.AddDate(0, 0, -400))
	recent := seedRecord(t, db, "p1",
		"Mild knee discomfort after jogging.",
		[]float64{1}, testNow.AddDate(0, 0, -10))

	insights, err := eng.DetectInsights("p1",
		[]RankedCandidate{makeCandidate(recent, 10)},
		[]RankedCandidate{makeCandidate(old, 400)},
		testNow)
	if err != nil {
		t.Fatalf("DetectInsights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("got %d insights, want 1: %v", len(insights), insights)
	}
	if !strings.Contains(insights[0], "physical therapy") {
		t.Errorf("insight missing action phrase: %q", insights[0])
	}
	// 400 days is 13 whole months.
	if !strings.Contains(insights[0], "13 months") {
		t.Errorf("insight missing age: %q", insights[0])
	}
}

func TestDetectInsightsFollowedUp(t *testing.T) {
	db := testDB(t)
	eng := New(db)

	old := seedRecord(t, db, "p1",
		"Doctor recommended physical therapy for lower back pain.",
		[]float64{1}, testNow.AddDate(0, 0, -400))
	recent := seedRecord(t, db, "p1",
		"Started physical therapy sessions twice a week for the back.",
		[]float64{1}, testNow.AddDate(0, 0, -20))

	insights, err := eng.DetectInsights("p1",
		[]RankedCandidate{makeCandidate(recent, 20)},
		[]RankedCandidate{makeCandidate(old, 400)},
		testNow)
	if err != nil {
		t.Fatalf("DetectInsights: %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("got %v, want no insight for followed-up action", insights)
	}
}

func TestDetectInsightsFollowThroughOutsideCandidates(t *testing.T) {
	db := testDB(t)
	eng := New(db)

	old := seedRecord(t, db, "p1",
		"Cardiology visit. Advised a stress test within three months.",
		[]float64{1}, testNow.AddDate(0, 0, -400))
	// Follow-through exists in the history but was not retrieved as a candidate.
	seedRecord(t, db, "p1",
		"Completed the stress test, results within normal range.",
		[]float64{1}, testNow.AddDate(0, 0, -300))

	insights, err := eng.DetectInsights("p1",
		nil,
		[]RankedCandidate{makeCandidate(old, 400)},
		testNow)
	if err != nil {
		t.Fatalf("DetectInsights: %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("got %v, want none when a later record shows follow-through", insights)
	}
}

func TestDetectInsightsNoMarker(t *testing.T) {
	db := testDB(t)
	eng := New(db)

	old := seedRecord(t, db, "p1",
		"Routine blood panel, all values within range.",
		[]float64{1}, testNow.AddDate(0, 0, -400))

	insights, err := eng.DetectInsights("p1",
		nil,
		[]RankedCandidate{makeCandidate(old, 400)},
		testNow)
	if err != nil {
		t.Fatalf("DetectInsights: %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("got %v, want none without an action marker", insights)
	}
}

func TestDetectInsightsCapped(t *testing.T) {
	db := testDB(t)
	eng := New(db)

	var olds []RankedCandidate
	actions := []string{
		"Doctor recommended an eye exam for blurred vision.",
		"Dermatologist suggested a mole biopsy on the left shoulder.",
		"GP advised a colonoscopy screening given family history.",
		"ENT recommended a hearing test after repeated ear infections.",
	}
	for i, content := range actions {
		rec := seedRecord(t, db, "p1", content, []float64{1}, testNow.AddDate(0, 0, -400-i))
		olds = append(olds, makeCandidate(rec, 400+i))
	}

	insights, err := eng.DetectInsights("p1", nil, olds, testNow)
	if err != nil {
		t.Fatalf("DetectInsights: %v", err)
	}
	if len(insights) != 3 {
		t.Errorf("got %d insights, want cap of 3", len(insights))
	}
}

func TestExtractAction(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"Doctor recommended physical therapy. Pain persists.", "physical therapy"},
		{"Needs follow-up: MRI of the right knee; schedule soon.", "MRI of the right knee"},
		{"Routine checkup, nothing notable.", ""},
	}
	for _, tc := range cases {
		if got := extractAction(tc.content); got != tc.want {
			t.Errorf("extractAction(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}
