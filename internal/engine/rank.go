package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/careledger/careledger/internal/store"
)

// RecentWindowDays splits ranked candidates into recent and old partitions.
const RecentWindowDays = 180

// RankedCandidate is one scored retrieval result. It is ephemeral: scores
// are computed at ranking time and never persisted.
type RankedCandidate struct {
	Record            store.Record `json:"record"`
	Similarity        float64      `json:"similarity"`
	TimeWeightedScore float64      `json:"time_weighted_score"`
	FinalScore        float64      `json:"final_score"`
	AgeDays           int          `json:"age_days"`
	Recent            bool         `json:"recent"`
}

// RankOpts controls ranking behavior. Zero values select the defaults.
type RankOpts struct {
	Limit      int     // max results (default 10)
	Floor      float64 // minimum similarity (default 0.5); set negative to disable
	TimeWeight float64 // recency blend weight (default 0.3)
}

func (o RankOpts) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

func (o RankOpts) floor() float64 {
	if o.Floor == 0 {
		return 0.5
	}
	if o.Floor < 0 {
		return 0
	}
	return o.Floor
}

func (o RankOpts) timeWeight() float64 {
	if o.TimeWeight <= 0 || o.TimeWeight > 1 {
		return 0.3
	}
	return o.TimeWeight
}

// ageDays returns whole days elapsed between a created-at stamp and now.
func ageDays(createdAt int64, now time.Time) int {
	d := now.Sub(time.UnixMilli(createdAt))
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// Rank scores every record of the owner against the query vector and returns
// the top candidates: similarity gated by the floor, blended with recency,
// multiplied by the record's current memory weight.
//
// Rank itself does not mutate. Every returned candidate must be reported as
// accessed via ReinforceCandidates — the query pipeline does this in its
// reinforcement stage; a retrieval is also a write.
func (e *Engine) Rank(ownerID string, queryVec []float64, now time.Time, opts RankOpts) ([]RankedCandidate, error) {
	if err := ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	records, err := e.snapshotOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner records: %w", err)
	}
	if len(records) == 0 {
		// Owner with no history is an empty result, not an error.
		return nil, nil
	}

	floor := opts.floor()
	tw := opts.timeWeight()

	var candidates []RankedCandidate
	for _, rec := range records {
		sim := CosineSimilarity(queryVec, rec.Embedding)
		if sim < floor {
			continue
		}

		age := ageDays(rec.CreatedAt, now)
		recency := 1.0 / (1.0 + float64(age))
		tws := (1-tw)*sim + tw*recency

		candidates = append(candidates, RankedCandidate{
			Record:            rec,
			Similarity:        sim,
			TimeWeightedScore: tws,
			FinalScore:        tws * rec.MemoryWeight,
			AgeDays:           age,
			Recent:            age < RecentWindowDays,
		})
	}

	// Descending by final score; ties broken by more-recent creation,
	// then by record ID so identical inputs always produce identical order.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		if candidates[i].Record.CreatedAt != candidates[j].Record.CreatedAt {
			return candidates[i].Record.CreatedAt > candidates[j].Record.CreatedAt
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})

	if limit := opts.limit(); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Partition splits ranked candidates at the recent window boundary.
func Partition(candidates []RankedCandidate) (recent, old []RankedCandidate) {
	for _, c := range candidates {
		if c.Recent {
			recent = append(recent, c)
		} else {
			old = append(old, c)
		}
	}
	return recent, old
}
