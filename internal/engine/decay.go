package engine

import (
	"fmt"
	"log"
	"time"
)

// Decay parameters. Records younger than the threshold never decay; older
// records lose weight linearly with age down to the minimum factor.
// Frequently accessed records are protected: their effective factor never
// drops below the protected floor.
const (
	DecayThresholdDays        = 365
	DecayScale                = 1000.0
	MinDecay                  = 0.3
	ProtectionAccessThreshold = 5
	ProtectedFloor            = 0.7
)

// MaintenanceResult summarizes one decay pass.
type MaintenanceResult struct {
	Decayed   int `json:"decayed_count"`
	Protected int `json:"protected_count"`
}

// ApplyDecay runs one maintenance pass over an owner's records as of the
// given time. It runs only on an explicit trigger — there is no background
// scheduler. Re-running with the same or an earlier as-of stamp is a no-op:
// the last stamp is recorded per owner, which makes retries safe.
//
// Decay only ever reduces memory_weight; access counts and reinforcement
// levels are untouched.
func (e *Engine) ApplyDecay(ownerID string, asOf time.Time) (MaintenanceResult, error) {
	var res MaintenanceResult

	if err := ValidateOwnerID(ownerID); err != nil {
		return res, err
	}

	l := e.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	last, err := e.DB.LastMaintenance(ownerID)
	if err != nil {
		return res, err
	}
	if asOf.UnixMilli() <= last {
		log.Printf("decay: skipping %s — already maintained through %s", ownerID, time.UnixMilli(last).Format("2006-01-02"))
		return res, nil
	}

	records, err := e.DB.ListByOwner(ownerID)
	if err != nil {
		return res, fmt.Errorf("load owner records: %w", err)
	}

	for _, rec := range records {
		age := ageDays(rec.CreatedAt, asOf)
		if age <= DecayThresholdDays {
			continue // too young to decay
		}

		factor := 1.0 - float64(age-DecayThresholdDays)/DecayScale
		if factor < MinDecay {
			factor = MinDecay
		}

		if rec.AccessCount >= ProtectionAccessThreshold {
			if factor < ProtectedFloor {
				factor = ProtectedFloor
			}
			res.Protected++
		}

		newWeight := rec.MemoryWeight * factor
		if err := e.DB.SetMemoryWeight(rec.ID, newWeight); err != nil {
			log.Printf("decay %s: %v", rec.ID, err)
			continue
		}
		res.Decayed++
		log.Printf("decay: record %s age %dd weight %.3f -> %.3f (accesses: %d)", rec.ID, age, rec.MemoryWeight, newWeight, rec.AccessCount)
	}

	if err := e.DB.RecordMaintenance(ownerID, asOf.UnixMilli()); err != nil {
		return res, err
	}
	return res, nil
}
