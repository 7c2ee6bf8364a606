package oracle

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// impactKeywords maps signal words to a floor on the fallback impact
// score. The highest matching floor wins.
var impactKeywords = map[string]float64{
	"bankruptcy":  85,
	"acquisition": 70,
	"merger":      70,
	"buyout":      70,
	"sec":         65,
	"lawsuit":     60,
	"recall":      60,
	"earnings":    55,
	"guidance":    55,
	"downgrade":   50,
	"upgrade":     50,
	"layoffs":     50,
	"dividend":    45,
	"partnership": 40,
}

var positiveWords = []string{"beats", "surge", "record", "upgrade", "growth", "profit", "wins", "approval"}

var negativeWords = []string{"misses", "plunge", "lawsuit", "downgrade", "loss", "recall", "bankruptcy", "cuts"}

const fallbackBaseImpact = 25.0

// FallbackClassify is the deterministic replacement for a missing or
// invalid oracle classification: keyword floors for impact, word counts
// for sentiment, literal ticker mentions for matches.
func FallbackClassify(in ClassifyInput, tickers []string) ClassifyResult {
	text := strings.ToLower(in.Title + " " + in.Content)

	impact := fallbackBaseImpact

	for word, floor := range impactKeywords {
		if strings.Contains(text, word) && floor > impact {
			impact = floor
		}
	}

	sentiment := 0.0

	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			sentiment += 0.25
		}
	}

	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			sentiment -= 0.25
		}
	}

	sentiment = clamp(sentiment, -1, 1)

	matched := make([]string, 0)

	for _, t := range tickers {
		if t == "" {
			continue
		}

		if strings.Contains(text, strings.ToLower(t)) {
			matched = append(matched, strings.ToUpper(t))
		}
	}

	return ClassifyResult{
		Index:          in.Index,
		ImpactScore:    impact,
		Sentiment:      sentiment,
		MatchedTickers: matched,
		Fallback:       true,
	}
}

// FallbackExplain is the deterministic replacement for a missing or
// invalid explanation entry.
func FallbackExplain(ev Event, holdings []string) ExplanationResult {
	titler := cases.Title(language.English)

	headline := strings.TrimSpace(ev.Title)
	if headline == "" {
		headline = "Market Event"
	}

	body := fmt.Sprintf("%s.", titler.String(headline))

	if len(ev.Tickers) > 0 {
		body += fmt.Sprintf(" Related positions: %s.", strings.Join(ev.Tickers, ", "))
	} else if len(holdings) > 0 {
		body += " No direct position match; monitor for portfolio-wide effects."
	}

	return ExplanationResult{
		Headline: headline,
		Body:     body,
		Fallback: true,
	}
}

func fallbackClassifyAll(inputs []ClassifyInput, tickers []string) []ClassifyResult {
	results := make([]ClassifyResult, 0, len(inputs))
	for _, in := range inputs {
		results = append(results, FallbackClassify(in, tickers))
	}

	return results
}

func fallbackExplainAll(events []Event, holdings []string) []ExplanationResult {
	results := make([]ExplanationResult, 0, len(events))

	for i, ev := range events {
		r := FallbackExplain(ev, holdings)
		r.Index = i
		results = append(results, r)
	}

	return results
}

// fallbackClient serves deployments without oracle credentials: every
// request takes the deterministic path.
type fallbackClient struct{}

// NewFallback returns a Client that always generates deterministic
// results locally.
func NewFallback() Client {
	return fallbackClient{}
}

func (fallbackClient) ClassifyBatch(_ context.Context, inputs []ClassifyInput, tickers []string) ([]ClassifyResult, error) {
	return fallbackClassifyAll(inputs, tickers), nil
}

func (fallbackClient) ExplainBatch(_ context.Context, events []Event, holdings []string) ([]ExplanationResult, error) {
	return fallbackExplainAll(events, holdings), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
