package ingest

import (
	"net/url"
	"strings"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

const maxFieldLength = 2000

// Normalize converts an untrusted provider record into a pending
// article tagged with the query that found it. Returns false when the
// record lacks the minimum identity (URL and title).
func Normalize(raw RawArticle, tag string) (domain.Article, bool) {
	rawURL := strings.TrimSpace(raw.URL)
	title := clampField(raw.Title)

	if rawURL == "" || title == "" {
		return domain.Article{}, false
	}

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return domain.Article{}, false
	}

	source := clampField(raw.Source)
	if source == "" {
		source = domainOf(rawURL)
	}

	return domain.Article{
		URL:         rawURL,
		Title:       title,
		Description: clampField(raw.Description),
		Source:      source,
		Author:      clampField(raw.Author),
		PublishedAt: raw.PublishedAt,
		SearchedBy:  []string{tag},
		Status:      domain.StatusPending,
	}, true
}

func clampField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLength {
		s = s[:maxFieldLength]
	}

	return s
}
