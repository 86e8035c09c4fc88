package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"mathquiz-forge/internal/cache"
	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/util"

	"go.uber.org/zap"
)

// ScoreCheckpoint stores aggregate scores so a rerun of the filter stage can
// skip items it already judged with the same models, runs, temperature and
// mode. Cache
// failures are logged and treated as misses.
type ScoreCheckpoint struct {
	cache  domain.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewScoreCheckpoint(c domain.Cache, ttl time.Duration, logger *zap.Logger) *ScoreCheckpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreCheckpoint{cache: c, ttl: ttl, logger: logger}
}

// Key identifies a request by the content judged and every parameter that
// changes its score.
func (s *ScoreCheckpoint) Key(req AggregateRequest) string {
	c := req.Item.Content
	contentHash := util.HashParts(string(req.Type), c.Text, c.Proposition, c.Proof, string(req.Item.GroundTruth))
	paramsHash := util.HashParts(
		strings.Join(req.FilterModels, ","),
		strconv.Itoa(req.RunsPerModel),
		req.FallbackModel,
		strconv.FormatFloat(req.Temperature, 'g', -1, 64),
	)
	return cache.ScoreKey(contentHash, req.Mode.String(), paramsHash[:16])
}

func (s *ScoreCheckpoint) Load(ctx context.Context, req AggregateRequest) (int, bool) {
	key := s.Key(req)
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("Score checkpoint read failed", zap.String("item_id", req.Item.ID), zap.Error(err))
		}
		return 0, false
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("Corrupt score checkpoint, ignoring", zap.String("key", key), zap.String("value", raw))
		return 0, false
	}
	return score, true
}

func (s *ScoreCheckpoint) Store(ctx context.Context, req AggregateRequest, score int) {
	if err := s.cache.Set(ctx, s.Key(req), strconv.Itoa(score), s.ttl); err != nil {
		s.logger.Warn("Score checkpoint write failed", zap.String("item_id", req.Item.ID), zap.Error(err))
	}
}
