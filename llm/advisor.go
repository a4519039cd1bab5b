package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"billtrack/cache"
	"billtrack/logger"
	"billtrack/recurring"
)

// ChatCompleter is the part of Client the advisor needs
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
}

// SplitAdvisor asks the model whether a merchant's clusters are separate
// bills. It implements recurring.ClusterSplitAdvisor and is meant to sit
// behind recurring.FallbackAdvisor, which supplies timeout and fallback.
type SplitAdvisor struct {
	chat    ChatCompleter
	cache   *cache.VerdictCache
	limiter *rate.Limiter
}

// NewSplitAdvisor wires a chat client with an optional verdict cache and
// limiter. A nil limiter means unlimited calls.
func NewSplitAdvisor(chat ChatCompleter, verdicts *cache.VerdictCache, limiter *rate.Limiter) *SplitAdvisor {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &SplitAdvisor{chat: chat, cache: verdicts, limiter: limiter}
}

// NewLimiter converts a calls-per-minute budget into a token bucket
func NewLimiter(callsPerMinute, burst int) *rate.Limiter {
	if callsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), burst)
}

// AdviseSplit implements recurring.ClusterSplitAdvisor
func (a *SplitAdvisor) AdviseSplit(ctx context.Context, merchant string, clusters []recurring.Cluster) (recurring.SplitVerdict, error) {
	log := logger.FromContext(ctx)

	hash := cache.GenerateDataHash(struct {
		Merchant string
		Clusters []recurring.Cluster
	}{merchant, clusters})
	if v, ok := a.cache.GetVerdict(ctx, merchant, hash); ok {
		if err := v.Validate(clusters); err == nil {
			log.Debug().Str("merchant", merchant).Msg("split verdict served from cache")
			return v, nil
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return recurring.SplitVerdict{}, fmt.Errorf("rate limiter: %w", err)
	}

	content, err := a.chat.ChatCompletion(ctx, []Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: FormatSplitPrompt(merchant, clusters)},
	})
	if err != nil {
		return recurring.SplitVerdict{}, fmt.Errorf("split completion: %w", err)
	}

	v, err := ParseVerdict(content, clusters)
	if err != nil {
		return recurring.SplitVerdict{}, err
	}

	if err := a.cache.SetVerdict(ctx, merchant, hash, v); err != nil && !errors.Is(err, cache.ErrNotInitialized) {
		log.Warn().Err(err).Str("merchant", merchant).Msg("failed to cache split verdict")
	}
	return v, nil
}
