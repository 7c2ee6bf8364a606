// Package oracle wraps the external classification/explanation service
// behind a batch request/response boundary. Responses are validated for
// alignment with the request; anything malformed is replaced by a
// deterministic fallback so the pipeline never fails on oracle output.
package oracle

import "context"

// ClassifyInput is one article submitted for classification.
type ClassifyInput struct {
	Index   int
	Title   string
	Content string
}

// ClassifyResult is the oracle's verdict for one article.
type ClassifyResult struct {
	Index          int      `json:"index"`
	ImpactScore    float64  `json:"impact_score"`
	Sentiment      float64  `json:"sentiment"`
	MatchedTickers []string `json:"matched_tickers"`
	Fallback       bool     `json:"-"`
}

// Event is one story submitted for explanation generation.
type Event struct {
	ID      string
	Title   string
	Summary string
	Tickers []string
}

// ExplanationResult is the generated payload for one event.
type ExplanationResult struct {
	Index    int    `json:"index"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
	Fallback bool   `json:"-"`
}

// Client is the oracle boundary. Both calls are batched: the response
// carries one entry per input, same order. Implementations must return
// a fully aligned result slice even when individual entries had to be
// replaced by fallbacks.
type Client interface {
	ClassifyBatch(ctx context.Context, inputs []ClassifyInput, tickers []string) ([]ClassifyResult, error)
	ExplainBatch(ctx context.Context, events []Event, holdings []string) ([]ExplanationResult, error)
}
