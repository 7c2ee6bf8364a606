package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/tickwatch/tickwatch/internal/platform/config"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute

	maxContentChars = 4000

	taskClassify = "classify"
	taskExplain  = "explain"
)

type openaiClient struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAI builds the oracle client. When no API key is configured the
// caller should use NewFallback instead; this constructor assumes a
// reachable upstream.
func NewOpenAI(cfg *config.Config, logger *zerolog.Logger) Client {
	clientCfg := openai.DefaultConfig(cfg.OracleAPIKey)
	if cfg.OracleBaseURL != "" {
		clientCfg.BaseURL = cfg.OracleBaseURL
	}

	return &openaiClient{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.ProviderRPS), 5),
	}
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("circuit breaker is open until %v", c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("oracle circuit breaker opened")
	}
}

// ClassifyBatch submits all inputs in one request and returns one
// result per input, same order. Invalid or missing entries in the
// response are replaced by the deterministic fallback classifier.
func (c *openaiClient) ClassifyBatch(ctx context.Context, inputs []ClassifyInput, tickers []string) ([]ClassifyResult, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(classifyPrompt, len(inputs), len(inputs), strings.Join(tickers, ", ")))

	for _, in := range inputs {
		sb.WriteString(fmt.Sprintf("[ID: %d] %s\n%s\n\n", in.Index, in.Title, truncate(in.Content, maxContentChars)))
	}

	var parsed struct {
		Results []ClassifyResult `json:"results"`
	}

	if err := c.complete(ctx, taskClassify, sb.String(), &parsed); err != nil {
		c.logger.Warn().Err(err).Int("batch", len(inputs)).Msg("oracle classify failed, using fallback for whole batch")

		return fallbackClassifyAll(inputs, tickers), nil
	}

	byIndex := make(map[int]ClassifyResult, len(parsed.Results))
	for _, r := range parsed.Results {
		byIndex[r.Index] = r
	}

	results := make([]ClassifyResult, 0, len(inputs))

	for _, in := range inputs {
		r, ok := byIndex[in.Index]
		if !ok || !validClassify(r) {
			observability.OracleFallbacks.WithLabelValues(taskClassify).Inc()
			c.logger.Warn().Int("index", in.Index).Msg("oracle classify entry missing or invalid, using fallback")

			r = FallbackClassify(in, tickers)
		} else {
			r.MatchedTickers = intersectTickers(r.MatchedTickers, tickers)
		}

		r.Index = in.Index
		results = append(results, r)
	}

	return results, nil
}

// ExplainBatch generates one explanation per event, same order.
// Malformed entries fall back to the deterministic generator.
func (c *openaiClient) ExplainBatch(ctx context.Context, events []Event, holdings []string) ([]ExplanationResult, error) {
	if len(events) == 0 {
		return nil, nil
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(explainPrompt, len(events), len(events), strings.Join(holdings, ", ")))

	for i, ev := range events {
		sb.WriteString(fmt.Sprintf("[ID: %d] %s (%s)\n%s\n\n", i, ev.Title, strings.Join(ev.Tickers, ", "), truncate(ev.Summary, maxContentChars)))
	}

	var parsed struct {
		Results []ExplanationResult `json:"results"`
	}

	if err := c.complete(ctx, taskExplain, sb.String(), &parsed); err != nil {
		c.logger.Warn().Err(err).Int("batch", len(events)).Msg("oracle explain failed, using fallback for whole batch")

		return fallbackExplainAll(events, holdings), nil
	}

	byIndex := make(map[int]ExplanationResult, len(parsed.Results))
	for _, r := range parsed.Results {
		byIndex[r.Index] = r
	}

	results := make([]ExplanationResult, 0, len(events))

	for i, ev := range events {
		r, ok := byIndex[i]
		if !ok || strings.TrimSpace(r.Headline) == "" || strings.TrimSpace(r.Body) == "" {
			observability.OracleFallbacks.WithLabelValues(taskExplain).Inc()

			r = FallbackExplain(ev, holdings)
		}

		r.Index = i
		results = append(results, r)
	}

	return results, nil
}

func (c *openaiClient) complete(ctx context.Context, task, prompt string, out any) error {
	if err := c.checkCircuit(); err != nil {
		return err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OracleTimeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.OracleModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observability.OracleRequestDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordFailure()

		return fmt.Errorf("chat completion: %w", err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return fmt.Errorf("chat completion returned no choices")
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("unmarshal oracle response: %w", err)
	}

	return nil
}

func validClassify(r ClassifyResult) bool {
	return r.ImpactScore >= 0 && r.ImpactScore <= 100 && r.Sentiment >= -1 && r.Sentiment <= 1
}

func intersectTickers(matched, allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		allowedSet[strings.ToUpper(strings.TrimSpace(t))] = true
	}

	kept := make([]string, 0, len(matched))

	for _, t := range matched {
		t = strings.ToUpper(strings.TrimSpace(t))
		if allowedSet[t] {
			kept = append(kept, t)
		}
	}

	return kept
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit]
}
