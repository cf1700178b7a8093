package engine

import (
	"fmt"
	"log"
	"time"
)

// Reinforcement parameters. Every access adds the base increment; each time
// the access count crosses a multiple of three, the bonus is added as well
// and the reinforcement level goes up one.
const (
	weightIncrement   = 0.05
	levelBonus        = 0.15
	reinforceInterval = 3
)

// Reinforce applies one access to a record: increments the access count,
// bumps the memory weight, and raises the reinforcement level on every
// third access. No upper bound is imposed on the weight here.
func (e *Engine) Reinforce(recordID string, now time.Time) error {
	rec, err := e.DB.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", recordID)
	}

	l := e.ownerLock(rec.OwnerID)
	l.Lock()
	defer l.Unlock()
	return e.reinforceLocked(recordID, now)
}

// reinforceLocked is the read-modify-write critical section. Callers must
// hold the owner lock.
func (e *Engine) reinforceLocked(recordID string, now time.Time) error {
	rec, err := e.DB.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", recordID)
	}

	rec.AccessCount++
	increment := weightIncrement
	if rec.AccessCount%reinforceInterval == 0 {
		increment += levelBonus
		rec.ReinforcementLevel++
	}
	rec.MemoryWeight += increment

	return e.DB.UpdateWeights(rec.ID, rec.AccessCount, rec.MemoryWeight, rec.ReinforcementLevel, now.UnixMilli())
}

// ReinforceCandidates reports a set of ranked candidates as accessed now.
// All applications for one owner run under the owner lock, so N concurrent
// retrievals of the same record produce exactly N reinforcements.
// Per-record failures are logged and skipped; a weight update must never
// abort an in-flight query.
func (e *Engine) ReinforceCandidates(ownerID string, candidates []RankedCandidate, now time.Time) int {
	if len(candidates) == 0 {
		return 0
	}

	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	applied := 0
	for _, c := range candidates {
		if err := e.reinforceLocked(c.Record.ID, now); err != nil {
			log.Printf("reinforce %s: %v", c.Record.ID, err)
			continue
		}
		applied++
	}
	return applied
}
