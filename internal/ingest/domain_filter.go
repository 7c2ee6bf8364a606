package ingest

import (
	"net/url"
	"strings"
)

// Verdict is the outcome of the domain check on a resolved URL.
type Verdict int

const (
	// VerdictAllow passes the resolved URL through unchanged.
	VerdictAllow Verdict = iota

	// VerdictUseOriginal keeps the article but reverts to the original
	// URL because the resolved domain is blocked.
	VerdictUseOriginal

	// VerdictWarn passes a non-allowlisted domain through in permissive
	// mode; the caller logs a warning.
	VerdictWarn

	// VerdictReject drops the article: non-allowlisted domain in strict
	// mode.
	VerdictReject
)

// DomainFilter applies the allow/block check on resolved URLs. Strict
// mode rejects domains outside the allowlist; permissive mode passes
// them with a warning. The mode is a configuration toggle, not a stage
// decision.
type DomainFilter struct {
	allowlist map[string]bool
	blocklist map[string]bool
	strict    bool
}

func NewDomainFilter(allowlistStr, blocklistStr string, strict bool) *DomainFilter {
	return &DomainFilter{
		allowlist: parseDomainList(allowlistStr),
		blocklist: parseDomainList(blocklistStr),
		strict:    strict,
	}
}

// Check classifies the resolved URL's domain.
func (f *DomainFilter) Check(resolvedURL string) Verdict {
	domain := domainOf(resolvedURL)
	if domain == "" {
		return VerdictUseOriginal
	}

	if matchesList(domain, f.blocklist) {
		return VerdictUseOriginal
	}

	if len(f.allowlist) == 0 || matchesList(domain, f.allowlist) {
		return VerdictAllow
	}

	if f.strict {
		return VerdictReject
	}

	return VerdictWarn
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return normalizeDomain(parsed.Host)
}

// matchesList checks exact and subdomain suffix matches
// (e.g. "example.com" matches "news.example.com").
func matchesList(domain string, list map[string]bool) bool {
	if list[domain] {
		return true
	}

	for d := range list {
		if strings.HasSuffix(domain, "."+d) {
			return true
		}
	}

	return false
}

func parseDomainList(s string) map[string]bool {
	if s == "" {
		return nil
	}

	result := make(map[string]bool)

	for _, domain := range strings.Split(s, ",") {
		domain = normalizeDomain(domain)
		if domain != "" {
			result[domain] = true
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	domain = strings.TrimPrefix(domain, "www.")

	return domain
}
