package ingest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/core/domain"
	"github.com/tickwatch/tickwatch/internal/platform/config"
)

func newTestIngestor(macroCap int) *Ingestor {
	nop := zerolog.Nop()

	return &Ingestor{
		cfg:    &config.Config{MacroCap: macroCap},
		logger: &nop,
	}
}

// fakeResolver maps raw URLs to canonical ones; unmapped URLs resolve
// to themselves.
type fakeResolver struct {
	canonical map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, rawURL string) string {
	if c, ok := f.canonical[rawURL]; ok {
		return c
	}

	return rawURL
}

func newMergeIngestor(r urlResolver) *Ingestor {
	nop := zerolog.Nop()

	return &Ingestor{
		cfg:      &config.Config{ResolveTimeout: time.Second},
		resolver: r,
		filter:   NewDomainFilter("", "", false),
		logger:   &nop,
	}
}

func TestMergeResultsOverlappingURL(t *testing.T) {
	// Two sources, three records, one URL found by both: two merged
	// entries, the overlapping one carrying both tags.
	jobs := []sourceJob{
		{tag: "AAPL", bucket: bucketHoldings},
		{tag: "macro:jobs report", bucket: bucketMacro},
	}

	results := [][]RawArticle{
		{
			{URL: "https://news.example.com/a", Title: "Apple cuts guidance"},
			{URL: "https://news.example.com/b", Title: "Jobs report beats"},
		},
		{
			{URL: "https://news.example.com/a", Title: "Apple cuts guidance"},
		},
	}

	in := newMergeIngestor(&fakeResolver{})

	merged, order := in.mergeResults(jobs, results)

	if len(merged) != 2 {
		t.Fatalf("got %d merged entries, want 2", len(merged))
	}

	wantOrder := []string{"https://news.example.com/a", "https://news.example.com/b"}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Errorf("order = %v, want %v", order, wantOrder)
	}

	a := merged["https://news.example.com/a"]

	wantTags := []string{"AAPL", "macro:jobs report"}
	if !reflect.DeepEqual(a.SearchedBy, wantTags) {
		t.Errorf("searched_by = %v, want %v", a.SearchedBy, wantTags)
	}
}

func TestMergeResultsCanonicalDedup(t *testing.T) {
	// Two mirror URLs resolving to the same publisher page collapse
	// into one entry keyed by the canonical URL.
	const publisher = "https://publisher.example.com/story"

	jobs := []sourceJob{
		{tag: "AAPL", bucket: bucketHoldings},
		{tag: "MSFT", bucket: bucketHoldings},
	}

	results := [][]RawArticle{
		{{URL: "https://mirror-one.example.com/x", Title: "Chipmakers rally"}},
		{{URL: "https://mirror-two.example.com/y", Title: "Chipmakers rally"}},
	}

	in := newMergeIngestor(&fakeResolver{canonical: map[string]string{
		"https://mirror-one.example.com/x": publisher,
		"https://mirror-two.example.com/y": publisher,
	}})

	merged, order := in.mergeResults(jobs, results)

	if len(merged) != 1 {
		t.Fatalf("got %d merged entries, want 1", len(merged))
	}

	if !reflect.DeepEqual(order, []string{publisher}) {
		t.Errorf("order = %v, want [%s]", order, publisher)
	}

	a := merged[publisher]

	if a.URL != "https://mirror-one.example.com/x" {
		t.Errorf("url = %q, want the first-seen mirror", a.URL)
	}

	if a.CanonicalURL != publisher {
		t.Errorf("canonical_url = %q, want %q", a.CanonicalURL, publisher)
	}

	wantTags := []string{"AAPL", "MSFT"}
	if !reflect.DeepEqual(a.SearchedBy, wantTags) {
		t.Errorf("searched_by = %v, want %v", a.SearchedBy, wantTags)
	}
}

func TestRunNoProvidersAvailable(t *testing.T) {
	nop := zerolog.Nop()

	in := &Ingestor{
		cfg:      &config.Config{},
		registry: NewRegistry(),
		logger:   &nop,
	}

	n, err := in.Run(context.Background())
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Fatalf("Run() error = %v, want ErrNoProvidersAvailable", err)
	}

	if n != 0 {
		t.Errorf("Run() count = %d, want 0", n)
	}
}

func TestApplyMacroCap(t *testing.T) {
	merged := map[string]domain.Article{
		"u1": {URL: "u1", SearchedBy: []string{"macro:fed rate decision"}},
		"u2": {URL: "u2", SearchedBy: []string{"AAPL"}},
		"u3": {URL: "u3", SearchedBy: []string{"macro:inflation report"}},
		"u4": {URL: "u4", SearchedBy: []string{"macro:jobs report", "MSFT"}},
		"u5": {URL: "u5", SearchedBy: []string{"macro:jobs report"}},
	}
	order := []string{"u1", "u2", "u3", "u4", "u5"}

	tests := []struct {
		name     string
		macroCap int
		want     []string
	}{
		{
			// Ties break by collection order: u1 and u3 are the first
			// two macro-only articles, u5 is dropped. u4 carries a
			// holdings tag and is exempt.
			name:     "cap drops later macro-only articles",
			macroCap: 2,
			want:     []string{"u1", "u2", "u3", "u4"},
		},
		{
			name:     "cap of one",
			macroCap: 1,
			want:     []string{"u1", "u2", "u4"},
		},
		{
			name:     "zero cap disables limit",
			macroCap: 0,
			want:     []string{"u1", "u2", "u3", "u4", "u5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newTestIngestor(tt.macroCap)
			if got := in.applyMacroCap(merged, order); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("applyMacroCap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMacroOnly(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{name: "single macro tag", tags: []string{"macro:fed rate decision"}, want: true},
		{name: "multiple macro tags", tags: []string{"macro:a", "macro:b"}, want: true},
		{name: "mixed tags", tags: []string{"macro:a", "AAPL"}, want: false},
		{name: "holdings only", tags: []string{"AAPL"}, want: false},
		{name: "no tags", tags: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := domain.Article{SearchedBy: tt.tags}
			if got := macroOnly(a); got != tt.want {
				t.Errorf("macroOnly(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}
