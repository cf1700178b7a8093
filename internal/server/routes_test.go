package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/pipeline"
	"github.com/careledger/careledger/internal/store"
)

// fixedEmbedder returns the same vector for every input.
type fixedEmbedder struct{}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0}, nil
}
func (f *fixedEmbedder) Model() string   { return "fixed" }
func (f *fixedEmbedder) Dimensions() int { return 2 }

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	return testServerMem(t, config.MemoryConfig{})
}

func testServerMem(t *testing.T, mem config.MemoryConfig) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db)
	eng.SetEmbedder(&fixedEmbedder{})
	pipe := pipeline.New(eng, nil, &pipeline.RuleRecommender{}, nil, time.Second)
	return New(db, eng, pipe, mem, "test"), db
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["db"] != true {
		t.Errorf("db = %v, want true", resp["db"])
	}
}

func TestIngestRecord(t *testing.T) {
	srv, db := testServer(t)

	body := `{"category":"symptom","content":"sharp pain in left knee","tags":["knee"]}`
	req := httptest.NewRequest("POST", "/api/owners/patient-1/records", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["record_id"] == "" {
		t.Fatal("expected record_id")
	}

	rec, err := db.GetRecord(resp["record_id"])
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.OwnerID != "patient-1" || rec.Category != "symptom" {
		t.Errorf("stored %+v", rec)
	}
}

func TestIngestInvalidOwner(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"content":"entry"}`
	req := httptest.NewRequest("POST", "/api/owners/bad!owner/records", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestIngestBadCreatedAt(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"content":"entry","created_at":"yesterday"}`
	req := httptest.NewRequest("POST", "/api/owners/p1/records", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQuery(t *testing.T) {
	srv, _ := testServer(t)

	ingest := `{"category":"symptom","content":"recurring migraine with aura"}`
	req := httptest.NewRequest("POST", "/api/owners/p1/records", strings.NewReader(ingest))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %s", w.Body.String())
	}

	query := `{"query_text":"migraine today"}`
	req = httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(query))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "accepted" {
		t.Errorf("status = %v, want accepted; body: %s", resp["status"], w.Body.String())
	}
	candidates, _ := resp["candidates"].([]any)
	if len(candidates) != 1 {
		t.Errorf("got %d candidates, want 1", len(candidates))
	}
	if resp["disclaimer"] == "" {
		t.Error("expected disclaimer")
	}
}

func TestQueryEmptyText(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(`{"query_text":""}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestQueryEmergency(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"query_text":"crushing chest pain right now"}`
	req := httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "rejected" {
		t.Errorf("status = %v, want rejected", resp["status"])
	}
}

func TestMaintainEmptyBody(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/owners/p1/maintain", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]int
	json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp["decayed_count"]; !ok {
		t.Errorf("missing decayed_count in %s", w.Body.String())
	}
}

func TestPurge(t *testing.T) {
	srv, db := testServer(t)

	rec := &store.Record{OwnerID: "p1", Content: "x", Embedding: []float64{1, 0}}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/owners/p1/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]int
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["deleted_count"] != 1 {
		t.Errorf("deleted_count = %d, want 1", resp["deleted_count"])
	}

	count, _ := db.CountByOwner("p1")
	if count != 0 {
		t.Errorf("records remain after purge: %d", count)
	}
}

func TestTimeline(t *testing.T) {
	srv, db := testServer(t)

	rec := &store.Record{OwnerID: "p1", Category: "symptom", Content: "headache", Embedding: []float64{1, 0}}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/owners/p1/timeline", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		Summary struct {
			TotalRecords int `json:"total_records"`
		} `json:"summary"`
		Events []map[string]any `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Summary.TotalRecords != 1 || len(resp.Events) != 1 {
		t.Errorf("summary/events mismatch: %s", w.Body.String())
	}
}

func TestQueryUsesConfiguredDefaults(t *testing.T) {
	srv, db := testServerMem(t, config.MemoryConfig{ResultLimit: 1})

	for i := 0; i < 2; i++ {
		rec := &store.Record{OwnerID: "p1", Content: "migraine episode", Embedding: []float64{1, 0}}
		if err := db.CreateRecord(rec); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
	}

	// Request leaves result_limit unset: the configured default applies.
	req := httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(`{"query_text":"migraine"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	candidates, _ := resp["candidates"].([]any)
	if len(candidates) != 1 {
		t.Errorf("got %d candidates, want configured limit 1", len(candidates))
	}

	// An explicit request value wins over the configured default.
	req = httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(`{"query_text":"migraine","result_limit":2}`))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	json.Unmarshal(w.Body.Bytes(), &resp)
	candidates, _ = resp["candidates"].([]any)
	if len(candidates) != 2 {
		t.Errorf("got %d candidates, want explicit limit 2", len(candidates))
	}
}

func TestQueryConfiguredFloorExcludes(t *testing.T) {
	// Floor above any reachable cosine score: nothing passes.
	srv, db := testServerMem(t, config.MemoryConfig{SimilarityFloor: 1.5})

	rec := &store.Record{OwnerID: "p1", Content: "migraine", Embedding: []float64{1, 0}}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/owners/p1/query", strings.NewReader(`{"query_text":"migraine"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	candidates, _ := resp["candidates"].([]any)
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0 under configured floor", len(candidates))
	}
}

func TestBatchIngest(t *testing.T) {
	srv, db := testServer(t)

	body := `{"records":[
		{"category":"symptom","content":"headache after screen time"},
		{"category":"report","content":"blood panel normal","created_at":"2024-03-01T00:00:00Z"},
		{"category":"symptom","content":""}
	]}`
	req := httptest.NewRequest("POST", "/api/owners/p1/records/batch", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Total        int `json:"total"`
		SuccessCount int `json:"success_count"`
		FailedCount  int `json:"failed_count"`
		Results      []struct {
			RecordID string `json:"record_id"`
			Error    string `json:"error"`
		} `json:"results"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || resp.SuccessCount != 2 || resp.FailedCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", resp.Total, resp.SuccessCount, resp.FailedCount)
	}
	if resp.Results[2].Error == "" {
		t.Error("empty-content item should report its error")
	}

	count, _ := db.CountByOwner("p1")
	if count != 2 {
		t.Errorf("stored %d records, want 2", count)
	}
}

func TestBatchIngestEmpty(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/owners/p1/records/batch", strings.NewReader(`{"records":[]}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestConsolidate(t *testing.T) {
	srv, db := testServer(t)

	now := time.Now()
	for i := 0; i < 3; i++ {
		rec := &store.Record{
			OwnerID:   "p1",
			Category:  "symptom",
			Content:   "migraine episode",
			Embedding: []float64{1, 0},
			CreatedAt: now.AddDate(0, 0, -i).UnixMilli(),
		}
		if err := db.CreateRecord(rec); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
	}
	one := &store.Record{OwnerID: "p1", Category: "report", Content: "x", Embedding: []float64{1, 0}, CreatedAt: now.UnixMilli()}
	if err := db.CreateRecord(one); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/owners/p1/consolidate?window_days=30", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TotalRecords int `json:"total_records"`
		Patterns     []struct {
			Category string `json:"category"`
			Count    int    `json:"count"`
		} `json:"patterns"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalRecords != 4 {
		t.Errorf("total = %d, want 4", resp.TotalRecords)
	}
	if len(resp.Patterns) != 1 || resp.Patterns[0].Category != "symptom" || resp.Patterns[0].Count != 3 {
		t.Errorf("patterns = %+v, want one symptom pattern of 3", resp.Patterns)
	}
}

func TestNotices(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/notices/consent", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "INFORMED CONSENT") {
		t.Errorf("consent notice: status %d body %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/notices/data-usage", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "DATA USAGE POLICY") {
		t.Errorf("data usage policy: status %d body %s", w.Code, w.Body.String())
	}
}

func TestTimelineTruncatesOnRuneBoundary(t *testing.T) {
	srv, db := testServer(t)

	// 250 two-byte runes: a byte-offset cut at 200 would split one.
	content := strings.Repeat("é", 250)
	rec := &store.Record{OwnerID: "p1", Category: "note", Content: content, Embedding: []float64{1, 0}}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/owners/p1/timeline", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Events []struct {
			Content string `json:"content"`
		} `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(resp.Events))
	}
	got := resp.Events[0].Content
	if !utf8.ValidString(got) || strings.ContainsRune(got, utf8.RuneError) {
		t.Errorf("truncated content is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Errorf("truncated to %d runes, want 200", n)
	}
}

func TestProgressionRequiresTerm(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/owners/p1/progression", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProgression(t *testing.T) {
	srv, db := testServer(t)

	rec := &store.Record{OwnerID: "p1", Content: "migraine episode", Embedding: []float64{1, 0}}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/owners/p1/progression?term=migraine", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["occurrences"] != float64(1) {
		t.Errorf("occurrences = %v, want 1", resp["occurrences"])
	}
}
