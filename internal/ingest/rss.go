package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

// FeedProvider serves the direct-feed bucket: one RSS/Atom feed per
// provider instance. The query argument is ignored; the feed URL is
// fixed at construction.
type FeedProvider struct {
	name    string
	feedURL string
	parser  *gofeed.Parser
	limiter *rate.Limiter
}

func NewFeedProvider(feedURL string, rps float64, timeout time.Duration) *FeedProvider {
	parser := gofeed.NewParser()
	parser.Client = newHTTPClient(timeout)

	if rps <= 0 {
		rps = 1
	}

	return &FeedProvider{
		name:    feedName(feedURL),
		feedURL: feedURL,
		parser:  parser,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *FeedProvider) Name() string { return p.name }

func (p *FeedProvider) Fetch(ctx context.Context, _ string, limit int) ([]RawArticle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed limiter: %w", err)
	}

	feed, err := p.parser.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", p.feedURL, err)
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
			Source:      feed.Title,
			Author:      itemAuthor(item),
			PublishedAt: itemPublished(item),
			Content:     item.Content,
		})
	}

	return articles, nil
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}

	return ""
}

// itemPublished takes the parsed timestamp when gofeed produced one and
// otherwise retries the raw string with dateparse, which handles the
// nonstandard formats some feeds emit.
func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}

	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t
		}
	}

	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}

	return time.Time{}
}

func feedName(feedURL string) string {
	parsed, err := url.Parse(feedURL)
	if err != nil || parsed.Host == "" {
		return feedURL
	}

	return "feed:" + parsed.Host
}
