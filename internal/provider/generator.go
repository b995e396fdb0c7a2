package provider

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"novabot/internal/domain"
)

// fallbackReply is returned when every attempt against the model fails.
// The conversation keeps going; the failure is only visible in the logs.
const fallbackReply = "I'm having trouble generating a response right now. Please try again in a moment."

// Generator wraps a domain.Model with retries and a fallback reply so
// callers always get text back. Rate-limit failures back off
// exponentially (1s, 2s, 4s); other failures wait a flat second before
// the next attempt.
type Generator struct {
	model    domain.Model
	retries  int
	fallback string
	sleep    func(ctx context.Context, d time.Duration)
	logger   *slog.Logger

	calls     atomic.Int64
	estTokens atomic.Int64
}

type GeneratorConfig struct {
	Model    domain.Model
	Retries  int    // attempts per Generate call, default 3
	Fallback string // reply when all attempts fail
	Logger   *slog.Logger

	// Sleep overrides the backoff wait, for tests.
	Sleep func(ctx context.Context, d time.Duration)
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Fallback == "" {
		cfg.Fallback = fallbackReply
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		}
	}
	return &Generator{
		model:    cfg.Model,
		retries:  cfg.Retries,
		fallback: cfg.Fallback,
		sleep:    cfg.Sleep,
		logger:   cfg.Logger,
	}
}

// Generate returns the model's completion for prompt, or the fallback
// reply when every attempt fails. It never returns an error.
func (g *Generator) Generate(ctx context.Context, prompt string) string {
	g.calls.Add(1)
	g.estTokens.Add(int64(domain.EstimateTokens(prompt)))

	for attempt := 0; attempt < g.retries; attempt++ {
		reply, err := g.model.Complete(ctx, prompt)
		if err == nil {
			g.estTokens.Add(int64(domain.EstimateTokens(reply)))
			return reply
		}

		last := attempt == g.retries-1
		if isRateLimited(err) {
			wait := time.Duration(1<<attempt) * time.Second
			g.logger.Warn("model rate limited",
				"model", g.model.Name(), "attempt", attempt+1, "backoff", wait, "error", err)
			if !last {
				g.sleep(ctx, wait)
			}
		} else {
			g.logger.Warn("model call failed",
				"model", g.model.Name(), "attempt", attempt+1, "error", err)
			if !last {
				g.sleep(ctx, time.Second)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	g.logger.Error("all generation attempts failed, using fallback", "model", g.model.Name())
	return g.fallback
}

// Usage reports call and approximate token counts since the last Reset.
func (g *Generator) Usage() domain.UsageStats {
	return domain.UsageStats{
		Calls:           g.calls.Load(),
		EstimatedTokens: g.estTokens.Load(),
	}
}

// Reset zeroes the usage counters.
func (g *Generator) Reset() {
	g.calls.Store(0)
	g.estTokens.Store(0)
}

// isRateLimited detects quota and rate-limit failures, which deserve a
// longer backoff than transient errors.
func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "rate_limit", "quota", "resource_exhausted", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
