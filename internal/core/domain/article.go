// Package domain holds the core data model for the article pipeline:
// articles and their staged lifecycle, tracked holdings, investor
// profiles, and story groups.
package domain

import "time"

// Status is the lifecycle state of an article. Articles only move
// forward through statuses; Discarded is terminal and absorbing.
type Status string

const (
	StatusPending        Status = "pending"
	StatusTitleFiltered  Status = "title_filtered"
	StatusContentFetched Status = "content_fetched"
	StatusLLMProcessed   Status = "llm_processed"
	StatusPersonalized   Status = "personalized"
	StatusRanked         Status = "ranked"
	StatusDiscarded      Status = "discarded"
)

// statusOrder ranks statuses for monotonicity checks. Discarded is not
// ordered against the progression; it is terminal from any active state.
var statusOrder = map[Status]int{
	StatusPending:        0,
	StatusTitleFiltered:  1,
	StatusContentFetched: 2,
	StatusLLMProcessed:   3,
	StatusPersonalized:   4,
	StatusRanked:         5,
}

// CanAdvance reports whether a transition from one status to another is
// a legal forward move. Status never regresses.
func CanAdvance(from, to Status) bool {
	if from == StatusDiscarded {
		return false
	}

	if to == StatusDiscarded {
		// Discard is reachable up to the personalization decision;
		// personalized and ranked rows are never discarded.
		return statusOrder[from] <= statusOrder[StatusLLMProcessed]
	}

	fromRank, okFrom := statusOrder[from]
	toRank, okTo := statusOrder[to]

	return okFrom && okTo && toRank > fromRank
}

// Stage identifies one pipeline step.
type Stage string

const (
	StageIngest      Stage = "ingest"
	StageTriage      Stage = "triage"
	StageFetch       Stage = "fetch"
	StageClassify    Stage = "classify"
	StagePersonalize Stage = "personalize"
	StageRank        Stage = "rank"
)

// StageGate describes the selection predicate for one stage: rows are
// eligible when they carry the required status and the stage's own
// output column is still null. The null-check makes every stage rerun
// idempotent even if a status advance was interrupted mid-batch.
type StageGate struct {
	Stage        Stage
	FromStatus   Status
	ToStatus     Status
	OutputColumn string
}

// StageGates is the closed stage→eligibility table, declared once and
// shared by the storage layer and the stage runners.
var StageGates = map[Stage]StageGate{
	StageTriage: {
		Stage:        StageTriage,
		FromStatus:   StatusPending,
		ToStatus:     StatusTitleFiltered,
		OutputColumn: "title_relevance",
	},
	StageFetch: {
		Stage:        StageFetch,
		FromStatus:   StatusTitleFiltered,
		ToStatus:     StatusContentFetched,
		OutputColumn: "content",
	},
	StageClassify: {
		Stage:        StageClassify,
		FromStatus:   StatusContentFetched,
		ToStatus:     StatusLLMProcessed,
		OutputColumn: "impact_score",
	},
	StagePersonalize: {
		Stage:        StagePersonalize,
		FromStatus:   StatusLLMProcessed,
		ToStatus:     StatusPersonalized,
		OutputColumn: "profile_adjusted_score",
	},
	StageRank: {
		Stage:        StageRank,
		FromStatus:   StatusPersonalized,
		ToStatus:     StatusRanked,
		OutputColumn: "final_rank_score",
	},
}

// Article is one row per canonical URL.
type Article struct {
	URL          string
	CanonicalURL string
	Title        string
	Description  string
	Source       string
	Author       string
	PublishedAt  time.Time
	SearchedBy   []string
	Content      string

	Status        Status
	Attempts      int
	DiscardReason string

	TitleRelevance       *float64
	ImpactScore          *float64
	Sentiment            *float64
	MatchedTickers       []string
	HoldingRelevance     *float64
	ProfileType          string
	ProfileAdjustedScore *float64
	FinalRankScore       *float64
	ClusterID            string

	CreatedAt        time.Time
	TitleFilteredAt  *time.Time
	ContentFetchedAt *time.Time
	LLMProcessedAt   *time.Time
	PersonalizedAt   *time.Time
	RankedAt         *time.Time
}

// Holding is one tracked position. Holdings drive targeted ingest
// queries and relevance boosts during personalization.
type Holding struct {
	Ticker string
	Label  string
	Notes  string
}
