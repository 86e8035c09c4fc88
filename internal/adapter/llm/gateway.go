package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Gateway routes model calls to provider adapters and owns the retry policy.
// Clients are built lazily, once per model id, and live as long as the
// gateway.
type Gateway struct {
	factory  ClientFactory
	cfg      config.GatewayConfig
	logger   *zap.Logger
	clients  sync.Map // model id -> ChatClient
	sfGroup  singleflight.Group
	limiters map[ProviderKind]*rate.Limiter
	inFlight *semaphore.Weighted
}

// NewGateway wires the retry, rate-limit and concurrency settings around
// factory. A provider with requests_per_minute <= 0 is not rate limited.
func NewGateway(factory ClientFactory, gwCfg config.GatewayConfig, providers config.ProvidersConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gwCfg.MaxAttempts < 1 {
		gwCfg.MaxAttempts = 1
	}

	limiters := make(map[ProviderKind]*rate.Limiter)
	for _, kind := range []ProviderKind{ProviderOpenAI, ProviderDeepSeek, ProviderQwen, ProviderGoogle, ProviderAnthropic, ProviderOllama} {
		rpm := providerSettings(providers, kind).RequestsPerMinute
		if rpm > 0 {
			limiters[kind] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}

	g := &Gateway{
		factory:  factory,
		cfg:      gwCfg,
		logger:   logger,
		limiters: limiters,
	}
	if gwCfg.MaxInFlight > 0 {
		g.inFlight = semaphore.NewWeighted(int64(gwCfg.MaxInFlight))
	}
	return g
}

var _ domain.Gateway = (*Gateway)(nil)

// Invoke sends messages to model. Transient failures are retried with
// randomized exponential backoff; once attempts run out the last failure is
// returned inside a *domain.RetryExhaustedError. Configuration errors and
// context cancellation are returned immediately.
func (g *Gateway) Invoke(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	kind, err := ClassifyModel(model)
	if err != nil {
		return "", err
	}
	client, err := g.client(kind, model)
	if err != nil {
		return "", err
	}

	start := time.Now()
	var (
		text     string
		attempts int
	)
	operation := func() error {
		attempts++
		out, err := g.call(ctx, kind, client, messages, temperature)
		if err != nil {
			if domain.IsFatalError(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("Model call failed, retrying",
			zap.String("model", model),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, g.newBackOff(ctx), notify); err != nil {
		if domain.IsFatalError(err) {
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.logger.Error("Model call exhausted retries",
			zap.String("model", model),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return "", &domain.RetryExhaustedError{Model: model, Attempts: attempts, Err: err}
	}

	g.logger.Debug("Model response received",
		zap.String("model", model),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

func (g *Gateway) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if g.cfg.InitialBackoff > 0 {
		exp.InitialInterval = g.cfg.InitialBackoff
	}
	if g.cfg.MaxBackoff > 0 {
		exp.MaxInterval = g.cfg.MaxBackoff
	}
	exp.RandomizationFactor = 0.5
	// attempts are bounded by count, not elapsed time
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.cfg.MaxAttempts-1)), ctx)
}

// call performs a single attempt under the provider rate limit, the global
// in-flight cap and the per-call timeout.
func (g *Gateway) call(ctx context.Context, kind ProviderKind, client ChatClient, messages []domain.Message, temperature float64) (string, error) {
	if limiter, ok := g.limiters[kind]; ok {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			// the next token is due after the deadline
			return "", fmt.Errorf("%w: %v", domain.ErrDeadlineTooClose, err)
		}
	}
	if g.inFlight != nil {
		if err := g.inFlight.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer g.inFlight.Release(1)
	}

	callCtx := ctx
	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
	}
	return client.Complete(callCtx, messages, temperature)
}

func (g *Gateway) client(kind ProviderKind, model string) (ChatClient, error) {
	if c, ok := g.clients.Load(model); ok {
		return c.(ChatClient), nil
	}

	v, err, _ := g.sfGroup.Do(model, func() (interface{}, error) {
		if c, ok := g.clients.Load(model); ok {
			return c, nil
		}
		c, err := g.factory(kind, model)
		if err != nil {
			return nil, err
		}
		g.clients.Store(model, c)
		g.logger.Info("Created model client", zap.String("model", model), zap.String("provider", string(kind)))
		return c, nil
	})
	if err != nil {
		var missing *domain.MissingConfigError
		if errors.As(err, &missing) {
			g.logger.Error("Model client misconfigured", zap.String("model", model), zap.Error(err))
		}
		return nil, err
	}
	return v.(ChatClient), nil
}
