package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const googleNewsBaseURL = "https://news.google.com/rss/search"

// SearchProvider serves the query buckets (holdings-targeted and macro)
// through a news search feed. One instance handles any query.
type SearchProvider struct {
	name    string
	baseURL string
	parser  *gofeed.Parser
	limiter *rate.Limiter
}

// NewGoogleNewsProvider builds a search provider backed by the Google
// News RSS search endpoint.
func NewGoogleNewsProvider(rps float64, timeout time.Duration) *SearchProvider {
	return NewSearchProvider("google-news", googleNewsBaseURL, rps, timeout)
}

func NewSearchProvider(name, baseURL string, rps float64, timeout time.Duration) *SearchProvider {
	parser := gofeed.NewParser()
	parser.Client = newHTTPClient(timeout)

	if rps <= 0 {
		rps = 1
	}

	return &SearchProvider{
		name:    name,
		baseURL: baseURL,
		parser:  parser,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *SearchProvider) Name() string { return p.name }

func (p *SearchProvider) Fetch(ctx context.Context, query string, limit int) ([]RawArticle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search limiter: %w", err)
	}

	feedURL := fmt.Sprintf("%s?q=%s&hl=en-US&gl=US&ceid=US:en", p.baseURL, url.QueryEscape(query))

	feed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}

		return nil, fmt.Errorf("search %s: %w", p.name, err)
	}

	articles := make([]RawArticle, 0, limit)

	for _, item := range feed.Items {
		if len(articles) >= limit {
			break
		}

		articles = append(articles, RawArticle{
			URL:         item.Link,
			Title:       item.Title,
			Description: item.Description,
			Author:      itemAuthor(item),
			PublishedAt: itemPublished(item),
		})
	}

	return articles, nil
}
