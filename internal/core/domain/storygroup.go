package domain

import "time"

// GroupScope scopes a story group globally or to a single ticker.
type GroupScope string

const (
	ScopeGlobal GroupScope = "GLOBAL"
	ScopeTicker GroupScope = "TICKER"
)

// ImpactLevel buckets a numeric impact score for display and grouping.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// ImpactLevelFor maps a 0-100 impact score onto a level.
func ImpactLevelFor(score float64) ImpactLevel {
	switch {
	case score >= 85:
		return ImpactCritical
	case score >= 60:
		return ImpactHigh
	case score >= 35:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// StoryGroup is a cluster of related articles about one underlying
// event. Groups are idempotently keyed by (scope, primary ticker,
// date bucket, title).
type StoryGroup struct {
	ID            string
	Scope         GroupScope
	PrimaryTicker string
	DateBucket    time.Time
	Title         string
	ImpactLevel   ImpactLevel
	Confidence    float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StoryGroupMember links an article into a group with its similarity
// to the cluster seed.
type StoryGroupMember struct {
	GroupID    string
	ArticleURL string
	Similarity float64
}

// Explanation is the generated payload attached to a story group.
type Explanation struct {
	GroupID   string
	Headline  string
	Body      string
	Fallback  bool
	CreatedAt time.Time
}
