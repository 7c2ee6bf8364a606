package triage

import (
	"testing"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

func TestRelevance(t *testing.T) {
	holdings := []domain.Holding{
		{Ticker: "AAPL", Label: "Apple"},
		{Ticker: "MSFT", Label: "Microsoft"},
	}
	macro := []string{"fed rate decision", "inflation report"}

	tests := []struct {
		name    string
		article domain.Article
		want    float64
	}{
		{
			name:    "ticker in title",
			article: domain.Article{Title: "AAPL shares jump on earnings"},
			want:    0.6,
		},
		{
			name:    "label in title",
			article: domain.Article{Title: "Apple unveils new chip"},
			want:    0.4,
		},
		{
			name:    "targeted query tag only",
			article: domain.Article{Title: "Supplier roundup", SearchedBy: []string{"AAPL"}},
			want:    0.2,
		},
		{
			name:    "macro keyword",
			article: domain.Article{Title: "Inflation cools to 2.9 percent"},
			want:    0.15,
		},
		{
			name:    "ticker plus macro",
			article: domain.Article{Title: "MSFT outlook ahead of rate decision"},
			want:    0.75,
		},
		{
			name:    "nothing matches",
			article: domain.Article{Title: "Local sports results"},
			want:    0,
		},
		{
			name:    "ticker must match on word boundary",
			article: domain.Article{Title: "NAAPLE industries expands"},
			want:    0,
		},
		{
			name: "score capped at one",
			article: domain.Article{
				Title:      "AAPL and MSFT react to fed rate decision and inflation report",
				SearchedBy: []string{"AAPL", "MSFT"},
			},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relevance(&tt.article, holdings, macro)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Relevance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text string
		word string
		want bool
	}{
		{text: "aapl shares jump", word: "aapl", want: true},
		{text: "shares of aapl", word: "aapl", want: true},
		{text: "naaple industries", word: "aapl", want: false},
		{text: "aapl2 release", word: "aapl", want: false},
		{text: "buy aapl, sell msft", word: "aapl", want: true},
		{text: "", word: "aapl", want: false},
	}

	for _, tt := range tests {
		if got := containsWord(tt.text, tt.word); got != tt.want {
			t.Errorf("containsWord(%q, %q) = %v, want %v", tt.text, tt.word, got, tt.want)
		}
	}
}
