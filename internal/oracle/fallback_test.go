package oracle

import (
	"context"
	"testing"
)

func TestFallbackClassify(t *testing.T) {
	tickers := []string{"AAPL", "MSFT"}

	tests := []struct {
		name          string
		input         ClassifyInput
		wantImpact    float64
		wantSentiment float64
		wantMatched   []string
	}{
		{
			name:       "plain article gets base impact",
			input:      ClassifyInput{Title: "Company releases newsletter"},
			wantImpact: fallbackBaseImpact,
		},
		{
			name:          "bankruptcy keyword dominates",
			input:         ClassifyInput{Title: "Supplier files for bankruptcy", Content: "earnings were weak"},
			wantImpact:    85,
			wantSentiment: -0.25,
		},
		{
			name:          "negative words push sentiment down",
			input:         ClassifyInput{Title: "Shares plunge after recall and lawsuit"},
			wantImpact:    60,
			wantSentiment: -0.75,
		},
		{
			name:          "positive words push sentiment up",
			input:         ClassifyInput{Title: "Record profit, beats estimates"},
			wantImpact:    fallbackBaseImpact,
			wantSentiment: 0.75,
		},
		{
			name:          "ticker mention matched and uppercased",
			input:         ClassifyInput{Title: "aapl wins approval for new device"},
			wantImpact:    fallbackBaseImpact,
			wantSentiment: 0.5,
			wantMatched:   []string{"AAPL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackClassify(tt.input, tickers)

			if !got.Fallback {
				t.Error("fallback result not flagged as fallback")
			}

			if got.ImpactScore != tt.wantImpact {
				t.Errorf("impact = %v, want %v", got.ImpactScore, tt.wantImpact)
			}

			if got.Sentiment != tt.wantSentiment {
				t.Errorf("sentiment = %v, want %v", got.Sentiment, tt.wantSentiment)
			}

			if len(got.MatchedTickers) != len(tt.wantMatched) {
				t.Fatalf("matched = %v, want %v", got.MatchedTickers, tt.wantMatched)
			}

			for i, want := range tt.wantMatched {
				if got.MatchedTickers[i] != want {
					t.Errorf("matched[%d] = %q, want %q", i, got.MatchedTickers[i], want)
				}
			}
		})
	}
}

func TestFallbackExplain(t *testing.T) {
	res := FallbackExplain(Event{Title: "fed raises rates", Tickers: []string{"AAPL"}}, []string{"AAPL", "MSFT"})

	if !res.Fallback {
		t.Error("fallback explanation not flagged")
	}

	if res.Headline != "fed raises rates" {
		t.Errorf("headline = %q", res.Headline)
	}

	if res.Body == "" {
		t.Error("body is empty")
	}
}

func TestFallbackExplainEmptyTitle(t *testing.T) {
	res := FallbackExplain(Event{}, nil)

	if res.Headline == "" || res.Body == "" {
		t.Errorf("empty event must still produce a payload, got %+v", res)
	}
}

func TestFallbackClientAlignment(t *testing.T) {
	client := NewFallback()

	inputs := []ClassifyInput{
		{Index: 0, Title: "first"},
		{Index: 1, Title: "second"},
		{Index: 2, Title: "third"},
	}

	results, err := client.ClassifyBatch(context.Background(), inputs, nil)
	if err != nil {
		t.Fatalf("ClassifyBatch() error = %v", err)
	}

	if len(results) != len(inputs) {
		t.Fatalf("got %d results, want %d", len(results), len(inputs))
	}

	for i, r := range results {
		if r.Index != inputs[i].Index {
			t.Errorf("result %d has index %d, out of order", i, r.Index)
		}
	}
}

func TestIntersectTickers(t *testing.T) {
	got := intersectTickers([]string{"aapl", "GOOG", " msft "}, []string{"AAPL", "MSFT"})

	want := []string{"AAPL", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("intersectTickers() = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intersectTickers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
