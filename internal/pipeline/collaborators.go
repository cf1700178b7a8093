package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/llm"
)

func candidateContexts(candidates []engine.RankedCandidate) []llm.CandidateContext {
	out := make([]llm.CandidateContext, len(candidates))
	for i, c := range candidates {
		out[i] = llm.CandidateContext{
			Date:       time.UnixMilli(c.Record.CreatedAt).Format("2006-01-02"),
			Category:   c.Record.Category,
			Content:    c.Record.Content,
			Similarity: c.Similarity,
		}
	}
	return out
}

// LLMSummarizer explains the ranked set through an LLM client.
type LLMSummarizer struct {
	Client llm.Client
}

func (s *LLMSummarizer) Summarize(ctx context.Context, query string, candidates []engine.RankedCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	resp, err := s.Client.Complete(ctx, llm.SummarizePrompt(query, candidateContexts(candidates)))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// LLMRecommender generates suggestions through an LLM client.
type LLMRecommender struct {
	Client llm.Client
}

func (r *LLMRecommender) Recommend(ctx context.Context, query string, candidates []engine.RankedCandidate, insights []string) ([]string, error) {
	resp, err := r.Client.Complete(ctx, llm.RecommendPrompt(query, candidateContexts(candidates), insights))
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	return llm.ParseSuggestions(resp.Content), nil
}

// RuleRecommender is the deterministic fallback when no LLM is configured.
// Suggestions mirror what the history actually shows; it never errors.
type RuleRecommender struct{}

func (r *RuleRecommender) Recommend(_ context.Context, query string, candidates []engine.RankedCandidate, insights []string) ([]string, error) {
	var recs []string

	recent, old := engine.Partition(candidates)
	if len(recent) > 0 {
		recs = append(recs, "Ask your doctor to review the pattern of similar episodes from the past 6 months.")
	}
	if len(insights) > 0 {
		recs = append(recs, "Discuss the earlier recommendation that was never followed up on.")
	}
	if len(old) > 0 {
		recs = append(recs, "Mention the older related records to your healthcare provider for historical context.")
	}
	if len(candidates) > 0 {
		recs = append(recs, "Keep a daily note of when and how the current issue occurs, to compare against your history.")
	} else {
		recs = append(recs, "No similar prior records were found; consider recording this as a new entry for future reference.")
	}
	return recs, nil
}
