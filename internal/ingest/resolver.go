package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const maxRedirects = 10

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}

			return nil
		},
	}
}

// Resolver resolves aggregator and shortener URLs to the final
// publisher URL so cross-mirror duplicates share one canonical
// identity.
type Resolver struct {
	client *http.Client
	logger *zerolog.Logger
}

func NewResolver(timeout time.Duration, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		client: newHTTPClient(timeout),
		logger: logger,
	}
}

// Resolve follows redirects and returns the final URL. Any failure
// falls back to the original URL; resolution is best-effort and never
// blocks ingestion.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", rawURL).Msg("redirect resolution failed, keeping original URL")

		return rawURL
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}

	return rawURL
}
