package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/parser"
	"mathquiz-forge/internal/prompt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GeneratorPolicy controls what a generator model failure does to its seed.
type GeneratorPolicy struct {
	// ContinueOnModelError keeps the other models' output when one model
	// fails. By default the failure cancels the seed's remaining calls and is
	// returned.
	ContinueOnModelError bool
}

// CandidateGenerator asks every generator model for incorrect variants of a
// seed and keeps a bounded random sample of each model's output.
type CandidateGenerator struct {
	gateway     domain.Gateway
	temperature float64
	policy      GeneratorPolicy
	logger      *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCandidateGenerator(gateway domain.Gateway, temperature float64, rng *rand.Rand, policy GeneratorPolicy, logger *zap.Logger) *CandidateGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &CandidateGenerator{
		gateway:     gateway,
		temperature: temperature,
		policy:      policy,
		logger:      logger,
		rng:         rng,
	}
}

// Generate returns the sampled candidates of every model, grouped by model
// in the order of models, with ids {seed}_gen_{i}.
func (g *CandidateGenerator) Generate(ctx context.Context, seed domain.SeedItem, models []string, perModelCap int) ([]domain.CandidateItem, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	if perModelCap < 1 {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("items per model cap must be >= 1, got %d", perModelCap))
	}

	messages := prompt.GenerationMessages(seed)
	sampled := make([][]string, len(models))

	eg, egctx := errgroup.WithContext(ctx)
	for i, model := range models {
		eg.Go(func() error {
			response, err := g.gateway.Invoke(egctx, model, messages, g.temperature)
			if err != nil {
				if g.policy.ContinueOnModelError && !domain.IsFatalError(err) && egctx.Err() == nil {
					g.logger.Warn("Generator model failed, continuing without it",
						zap.String("seed_id", seed.ID),
						zap.String("model", model),
						zap.Error(err))
					return nil
				}
				return fmt.Errorf("generating for seed %s with %s: %w", seed.ID, model, err)
			}

			items := parser.ParseGeneratedItems(response)
			sampled[i] = g.sample(items, perModelCap)
			g.logger.Info("Generator model produced items",
				zap.String("seed_id", seed.ID),
				zap.String("model", model),
				zap.Int("parsed", len(items)),
				zap.Int("kept", len(sampled[i])))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.CandidateItem
	for i, model := range models {
		for _, body := range sampled[i] {
			candidates = append(candidates, domain.CandidateItem{
				ID:              domain.GeneratedID(seed.ID, len(candidates)),
				Content:         seed.Content.WithBody(seed.Type, body),
				GroundTruth:     domain.Wrong,
				GeneratingModel: model,
			})
		}
	}
	return candidates, nil
}

// sample draws up to n items without replacement, returned in their original
// order.
func (g *CandidateGenerator) sample(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	g.mu.Lock()
	picks := g.rng.Perm(len(items))[:n]
	g.mu.Unlock()

	sort.Ints(picks)
	out := make([]string, 0, n)
	for _, idx := range picks {
		out = append(out, items[idx])
	}
	return out
}
