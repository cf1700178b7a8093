package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/careledger/careledger/internal/store"
)

// Engine owns retrieval ranking and memory evolution for stored records.
// All mutation of a record's memory fields goes through the per-owner lock,
// so reinforcement and decay for one owner never interleave.
type Engine struct {
	DB       *store.DB
	Embedder Embedder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Engine backed by the given store.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// ownerLock returns the mutex guarding one owner's memory state.
// Locks are never removed; owners are bounded in practice and a stale
// entry costs one mutex.
func (e *Engine) ownerLock(ownerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ownerID] = l
	}
	return l
}

// ValidationError reports malformed caller input. It surfaces to the caller
// verbatim and guarantees that no mutation has occurred.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var ownerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateOwnerID checks the owner identifier format: alphanumeric plus
// hyphen/underscore, at most 100 characters.
func ValidateOwnerID(ownerID string) error {
	if ownerID == "" {
		return &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if len(ownerID) > 100 {
		return &ValidationError{Field: "owner_id", Reason: "too long (max 100 characters)"}
	}
	if !ownerIDPattern.MatchString(ownerID) {
		return &ValidationError{Field: "owner_id", Reason: "contains invalid characters"}
	}
	return nil
}

// Ingest embeds the content synchronously and stores a new record.
// The record is not considered stored until the embedding exists.
func (e *Engine) Ingest(ctx context.Context, ownerID, category, content string, tags []string, createdAt time.Time) (string, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return "", err
	}
	if content == "" {
		return "", &ValidationError{Field: "content", Reason: "required"}
	}
	if e.Embedder == nil {
		return "", fmt.Errorf("no embedder configured")
	}

	vec, err := e.Embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}

	rec := &store.Record{
		OwnerID:        ownerID,
		Category:       category,
		Content:        content,
		Tags:           tags,
		Embedding:      vec,
		EmbeddingModel: e.Embedder.Model(),
	}
	if !createdAt.IsZero() {
		rec.CreatedAt = createdAt.UnixMilli()
	}

	if err := e.DB.CreateRecord(rec); err != nil {
		return "", fmt.Errorf("store record: %w", err)
	}
	return rec.ID, nil
}

// snapshotOwner loads a consistent view of one owner's records under the
// owner lock. Ranking must never score against half-updated weights.
func (e *Engine) snapshotOwner(ownerID string) ([]store.Record, error) {
	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()
	return e.DB.ListByOwner(ownerID)
}
