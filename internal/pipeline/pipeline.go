package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/careledger/careledger/internal/engine"
)

// Status is the terminal disposition of a query run.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected" // input short-circuited by safety check
	StatusDegraded Status = "degraded" // partial result, see FailedStages
)

// Stage names the pipeline states, in their fixed order. There are no
// backward transitions: each state consumes only the previous state's
// output on the accumulating result.
type Stage string

const (
	StageValidateInput  Stage = "validate_input"
	StageRetrieve       Stage = "retrieve"
	StageReinforce      Stage = "reinforce"
	StageSummarize      Stage = "summarize"
	StageRecommend      Stage = "recommend"
	StageValidateOutput Stage = "validate_output"
)

// QueryRequest carries one owner-scoped retrieval query.
type QueryRequest struct {
	OwnerID    string
	QueryText  string
	Limit      int
	Floor      float64
	TimeWeight float64
	Now        time.Time // zero means time.Now()
}

// QueryResult is the accumulating result object. Absent fields are explicit:
// a failed stage appears in FailedStages and leaves its field empty — the
// caller can always distinguish "no data" from "partial failure" by the
// Degraded flag.
type QueryResult struct {
	Status          Status                   `json:"status"`
	Query           string                   `json:"query"`
	Candidates      []engine.RankedCandidate `json:"candidates"`
	Recent          []engine.RankedCandidate `json:"recent"`
	Old             []engine.RankedCandidate `json:"old"`
	Insights        []string                 `json:"insights"`
	Summary         string                   `json:"summary,omitempty"`
	Recommendations []string                 `json:"recommendations"`
	Disclaimer      string                   `json:"disclaimer"`
	SafetyFlags     []string                 `json:"safety_flags,omitempty"`
	Degraded        bool                     `json:"degraded"`
	FailedStages    []Stage                  `json:"failed_stages,omitempty"`
}

func (r *QueryResult) fail(stage Stage) {
	r.FailedStages = append(r.FailedStages, stage)
}

func (r *QueryResult) failed(stage Stage) bool {
	for _, s := range r.FailedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Summarizer produces a plain-language explanation of the ranked set.
type Summarizer interface {
	Summarize(ctx context.Context, query string, candidates []engine.RankedCandidate) (string, error)
}

// Recommender produces actionable suggestions from the ranked set and insights.
type Recommender interface {
	Recommend(ctx context.Context, query string, candidates []engine.RankedCandidate, insights []string) ([]string, error)
}

// OutputValidator sanitizes a result in place. It may append disclaimers and
// flag phrasing but never removes evidence fields.
type OutputValidator interface {
	Validate(res *QueryResult)
}

// Pipeline chains validation, retrieval, reinforcement, summarization,
// recommendation and output validation in fixed order. Collaborators are
// held as interfaces; there is no dynamic dispatch.
type Pipeline struct {
	Engine      *engine.Engine
	Summarizer  Summarizer
	Recommender Recommender
	Validator   OutputValidator
	Timeout     time.Duration // per collaborator call
}

// New creates a Pipeline. A nil validator gets the standard safety validator.
func New(eng *engine.Engine, sum Summarizer, rec Recommender, val OutputValidator, timeout time.Duration) *Pipeline {
	if val == nil {
		val = &SafetyValidator{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		Engine:      eng,
		Summarizer:  sum,
		Recommender: rec,
		Validator:   val,
		Timeout:     timeout,
	}
}

// Run executes the state machine for one query.
//
// A ValidationError is the only error returned to the caller, and it
// guarantees no mutation occurred. Everything else is absorbed into a
// Degraded result; the pipeline never returns an unvalidated output.
func (p *Pipeline) Run(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := &QueryResult{Status: StatusAccepted, Query: req.QueryText}

	// ValidateInput — fail fast, before any mutation.
	if err := engine.ValidateOwnerID(req.OwnerID); err != nil {
		return nil, err
	}
	if err := ValidateQueryText(req.QueryText); err != nil {
		return nil, err
	}
	if detected, msg := CheckEmergency(req.QueryText); detected {
		// Fixed safety response; every later state is bypassed except
		// output validation.
		res.Status = StatusRejected
		res.Recommendations = []string{msg}
		p.Validator.Validate(res)
		return res, nil
	}

	// Retrieve — embed the query, rank, partition, detect insights.
	candidates, err := p.retrieve(ctx, req, now)
	if err != nil {
		log.Printf("pipeline: retrieve failed for %s: %v", req.OwnerID, err)
		res.fail(StageRetrieve)
	} else {
		res.Candidates = candidates
		res.Recent, res.Old = engine.Partition(candidates)
		insights, ierr := p.Engine.DetectInsights(req.OwnerID, res.Recent, res.Old, now)
		if ierr != nil {
			// Insight detection is best-effort; the ranked set stands.
			log.Printf("pipeline: insight detection failed for %s: %v", req.OwnerID, ierr)
		}
		res.Insights = insights
	}

	// Reinforce — every returned candidate is reported as accessed now.
	// Per-record failures are logged inside the engine and never abort
	// the query; committed reinforcement is not rolled back later.
	if !res.failed(StageRetrieve) && len(res.Candidates) > 0 {
		p.Engine.ReinforceCandidates(req.OwnerID, res.Candidates, now)
	}

	// Summarize.
	if p.Summarizer != nil && !res.failed(StageRetrieve) {
		cctx, cancel := context.WithTimeout(ctx, p.Timeout)
		summary, err := p.Summarizer.Summarize(cctx, req.QueryText, res.Candidates)
		cancel()
		if err != nil {
			log.Printf("pipeline: summarize failed for %s: %v", req.OwnerID, err)
			res.fail(StageSummarize)
		} else {
			res.Summary = summary
		}
	}

	// Recommend.
	if p.Recommender != nil {
		cctx, cancel := context.WithTimeout(ctx, p.Timeout)
		recs, err := p.Recommender.Recommend(cctx, req.QueryText, res.Candidates, res.Insights)
		cancel()
		if err != nil {
			log.Printf("pipeline: recommend failed for %s: %v", req.OwnerID, err)
			res.fail(StageRecommend)
		} else {
			res.Recommendations = recs
		}
	}

	// ValidateOutput — runs on every non-rejected path, degraded or not.
	p.Validator.Validate(res)

	if len(res.FailedStages) > 0 {
		res.Status = StatusDegraded
		res.Degraded = true
	}
	return res, nil
}

// retrieve embeds the query under the collaborator timeout and ranks the
// owner's records against it.
func (p *Pipeline) retrieve(ctx context.Context, req QueryRequest, now time.Time) ([]engine.RankedCandidate, error) {
	if p.Engine.Embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	ectx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	queryVec, err := p.Engine.Embedder.Embed(ectx, req.QueryText)
	if err != nil {
		return nil, err
	}

	return p.Engine.Rank(req.OwnerID, queryVec, now, engine.RankOpts{
		Limit:      req.Limit,
		Floor:      req.Floor,
		TimeWeight: req.TimeWeight,
	})
}
