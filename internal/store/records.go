package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Record is one stored observation belonging to exactly one owner.
// owner_id and embedding never change after creation; memory evolution
// fields (access_count, memory_weight, reinforcement_level) are mutated
// only through UpdateWeights/SetMemoryWeight.
type Record struct {
	ID                 string
	OwnerID            string
	Category           string // symptom, report, scan, prescription, doctor_note, ...
	Content            string
	Tags               []string
	Embedding          []float64
	EmbeddingModel     string
	AccessCount        int
	MemoryWeight       float64
	ReinforcementLevel int
	LastAccessed       *int64
	CreatedAt          int64 // unix ms
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// CreateRecord inserts a new record. Assigns a UUID if the ID is empty and
// defaults created_at to now. Memory evolution fields always start at their
// initial values regardless of what the caller set.
func (db *DB) CreateRecord(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}

	_, err := db.Exec(`
		INSERT INTO records (id, owner_id, category, content, tags,
			embedding, embedding_model, dimensions,
			access_count, memory_weight, reinforcement_level, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 1.0, 0, NULL, ?)
	`, rec.ID, rec.OwnerID, rec.Category, rec.Content, encodeTags(rec.Tags),
		encodeEmbedding(rec.Embedding), rec.EmbeddingModel, len(rec.Embedding),
		rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	rec.AccessCount = 0
	rec.MemoryWeight = 1.0
	rec.ReinforcementLevel = 0
	rec.LastAccessed = nil
	return nil
}

const recordColumns = `id, owner_id, category, content, tags,
	embedding, embedding_model,
	access_count, memory_weight, reinforcement_level, last_accessed, created_at`

// GetRecord returns a record by ID, or nil if not found.
func (db *DB) GetRecord(id string) (*Record, error) {
	row := db.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListByOwner returns all records for an owner in chronological order.
func (db *DB) ListByOwner(ownerID string) ([]Record, error) {
	rows, err := db.Query(`
		SELECT `+recordColumns+` FROM records
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CountByOwner returns the number of records stored for an owner.
func (db *DB) CountByOwner(ownerID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM records WHERE owner_id = ?", ownerID).Scan(&count)
	return count, err
}

// AllContents returns the content of every stored record. Used to build the
// TF-IDF fallback embedder's corpus.
func (db *DB) AllContents() ([]string, error) {
	rows, err := db.Query("SELECT content FROM records")
	if err != nil {
		return nil, fmt.Errorf("all contents: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// UpdateWeights persists a reinforcement step: access count, memory weight,
// reinforcement level and last-accessed stamp in one statement.
func (db *DB) UpdateWeights(id string, accessCount int, weight float64, level int, lastAccessed int64) error {
	_, err := db.Exec(`
		UPDATE records
		SET access_count = ?, memory_weight = ?, reinforcement_level = ?, last_accessed = ?
		WHERE id = ?
	`, accessCount, weight, level, lastAccessed, id)
	if err != nil {
		return fmt.Errorf("update weights: %w", err)
	}
	return nil
}

// SetMemoryWeight persists a decay step. Counts and levels are untouched.
func (db *DB) SetMemoryWeight(id string, weight float64) error {
	_, err := db.Exec("UPDATE records SET memory_weight = ? WHERE id = ?", weight, id)
	if err != nil {
		return fmt.Errorf("set memory weight: %w", err)
	}
	return nil
}

// PurgeOwner hard-deletes all records for an owner and returns the count.
// Calling it again for the same owner deletes nothing and returns 0.
func (db *DB) PurgeOwner(ownerID string) (int, error) {
	result, err := db.Exec("DELETE FROM records WHERE owner_id = ?", ownerID)
	if err != nil {
		return 0, fmt.Errorf("purge owner: %w", err)
	}
	if _, err := db.Exec("DELETE FROM maintenance_runs WHERE owner_id = ?", ownerID); err != nil {
		return 0, fmt.Errorf("purge maintenance stamp: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// LastMaintenance returns the as-of stamp of the owner's last decay run,
// or 0 if decay has never run for this owner.
func (db *DB) LastMaintenance(ownerID string) (int64, error) {
	var asOf int64
	err := db.QueryRow("SELECT last_as_of FROM maintenance_runs WHERE owner_id = ?", ownerID).Scan(&asOf)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last maintenance: %w", err)
	}
	return asOf, nil
}

// RecordMaintenance stores the as-of stamp for a completed decay run.
func (db *DB) RecordMaintenance(ownerID string, asOf int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO maintenance_runs (owner_id, last_as_of, run_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET last_as_of = ?, run_at = ?
	`, ownerID, asOf, now, asOf, now)
	if err != nil {
		return fmt.Errorf("record maintenance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var tags string
	var blob []byte
	var lastAccessed sql.NullInt64
	err := row.Scan(&r.ID, &r.OwnerID, &r.Category, &r.Content, &tags,
		&blob, &r.EmbeddingModel,
		&r.AccessCount, &r.MemoryWeight, &r.ReinforcementLevel, &lastAccessed, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Tags = decodeTags(tags)
	r.Embedding = decodeEmbedding(blob)
	if lastAccessed.Valid {
		r.LastAccessed = &lastAccessed.Int64
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
