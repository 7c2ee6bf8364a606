package ingest

import (
	"sort"
	"strings"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

// Merge combines an existing article with an incoming record for the
// same URL. The policy is union-without-overwrite: searched_by becomes
// the tag union, empty ingestion fields are backfilled from the
// incoming record, and everything the existing row already carries —
// derived scores, status, timestamps — is left untouched.
func Merge(existing, incoming domain.Article) domain.Article {
	merged := existing
	merged.SearchedBy = unionTags(existing.SearchedBy, incoming.SearchedBy)

	if merged.Title == "" {
		merged.Title = incoming.Title
	}

	if merged.Description == "" {
		merged.Description = incoming.Description
	}

	if merged.Source == "" {
		merged.Source = incoming.Source
	}

	if merged.Author == "" {
		merged.Author = incoming.Author
	}

	if merged.PublishedAt.IsZero() {
		merged.PublishedAt = incoming.PublishedAt
	}

	if merged.CanonicalURL == "" {
		merged.CanonicalURL = incoming.CanonicalURL
	}

	return merged
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))

	for _, tags := range [][]string{a, b} {
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}

			seen[tag] = true
			union = append(union, tag)
		}
	}

	sort.Strings(union)

	return union
}
