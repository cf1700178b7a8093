package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/pipeline"
)

// statusFor maps an error to an HTTP status: validation errors are the
// caller's fault, everything else is ours.
func statusFor(err error) int {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req struct {
		Category  string   `json:"category"`
		Content   string   `json:"content"`
		Tags      []string `json:"tags"`
		CreatedAt string   `json:"created_at"` // RFC 3339, optional
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var createdAt time.Time
	if req.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "created_at must be RFC 3339")
			return
		}
		createdAt = t
	}

	id, err := s.engine.Ingest(r.Context(), ownerID, req.Category, req.Content, req.Tags, createdAt)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"record_id": id})
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req struct {
		Records []struct {
			Category  string   `json:"category"`
			Content   string   `json:"content"`
			Tags      []string `json:"tags"`
			CreatedAt string   `json:"created_at"` // RFC 3339, optional
		} `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records is empty")
		return
	}

	type itemResult struct {
		RecordID string `json:"record_id,omitempty"`
		Error    string `json:"error,omitempty"`
	}

	// Per-item failures don't abort the batch; each item reports its own
	// outcome in order.
	results := make([]itemResult, len(req.Records))
	succeeded := 0
	for i, item := range req.Records {
		var createdAt time.Time
		if item.CreatedAt != "" {
			t, err := time.Parse(time.RFC3339, item.CreatedAt)
			if err != nil {
				results[i] = itemResult{Error: "created_at must be RFC 3339"}
				continue
			}
			createdAt = t
		}

		id, err := s.engine.Ingest(r.Context(), ownerID, item.Category, item.Content, item.Tags, createdAt)
		if err != nil {
			results[i] = itemResult{Error: err.Error()}
			continue
		}
		results[i] = itemResult{RecordID: id}
		succeeded++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":         len(req.Records),
		"success_count": succeeded,
		"failed_count":  len(req.Records) - succeeded,
		"results":       results,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req struct {
		QueryText       string  `json:"query_text"`
		ResultLimit     int     `json:"result_limit"`
		SimilarityFloor float64 `json:"similarity_floor"`
		TimeWeight      float64 `json:"time_weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// Request values win; unset ones fall back to the configured defaults.
	if req.ResultLimit == 0 {
		req.ResultLimit = s.memory.ResultLimit
	}
	if req.SimilarityFloor == 0 {
		req.SimilarityFloor = s.memory.SimilarityFloor
	}
	if req.TimeWeight == 0 {
		req.TimeWeight = s.memory.TimeWeight
	}

	result, err := s.pipeline.Run(r.Context(), pipeline.QueryRequest{
		OwnerID:    ownerID,
		QueryText:  req.QueryText,
		Limit:      req.ResultLimit,
		Floor:      req.SimilarityFloor,
		TimeWeight: req.TimeWeight,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMaintain(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	var req struct {
		AsOf string `json:"as_of"` // RFC 3339, optional
	}
	// An empty body is a valid maintain-now request.
	_ = json.NewDecoder(r.Body).Decode(&req)

	asOf := time.Now()
	if req.AsOf != "" {
		t, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be RFC 3339")
			return
		}
		asOf = t
	}

	result, err := s.engine.ApplyDecay(ownerID, asOf)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	if err := engine.ValidateOwnerID(ownerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.db.PurgeOwner(ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted_count": deleted})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	summary, err := s.engine.Summary(ownerID, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	records, err := s.engine.Timeline(ownerID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	type eventJSON struct {
		RecordID string   `json:"record_id"`
		Date     string   `json:"date"`
		Category string   `json:"category"`
		Content  string   `json:"content"`
		Tags     []string `json:"tags,omitempty"`
	}
	events := make([]eventJSON, len(records))
	for i, rec := range records {
		events[i] = eventJSON{
			RecordID: rec.ID,
			Date:     time.UnixMilli(rec.CreatedAt).Format("2006-01-02"),
			Category: rec.Category,
			Content:  truncateRunes(rec.Content, 200),
			Tags:     rec.Tags,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"events":  events,
	})
}

func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	term := r.URL.Query().Get("term")

	windowDays := 0
	if v := r.URL.Query().Get("window_days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowDays = n
		}
	}

	prog, err := s.engine.Progression(ownerID, term, windowDays, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	windowDays := 0
	if v := r.URL.Query().Get("window_days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowDays = n
		}
	}

	cons, err := s.engine.Consolidate(ownerID, windowDays, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cons)
}

func (s *Server) handleConsentNotice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"notice": pipeline.ConsentNotice})
}

func (s *Server) handleDataUsagePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"policy": pipeline.DataUsagePolicy})
}

// truncateRunes cuts s to at most n runes, never splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
