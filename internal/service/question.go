package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mathquiz-forge/internal/cache"
	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/dto"

	"go.uber.org/zap"
)

// QuestionService serves exported questions to the API.
type QuestionService interface {
	GetRecentQuestions(ctx context.Context, limit int) (*dto.QuestionListResponse, error)
	GetRunQuestions(ctx context.Context, runID string) (*dto.RunQuestionsResponse, error)
}

type questionService struct {
	repo     domain.QuestionRepository
	cache    domain.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewQuestionService caches whole runs, which never change once exported.
// A nil cache disables caching.
func NewQuestionService(repo domain.QuestionRepository, c domain.Cache, cacheTTL time.Duration, logger *zap.Logger) QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &questionService{repo: repo, cache: c, cacheTTL: cacheTTL, logger: logger}
}

func (s *questionService) GetRecentQuestions(ctx context.Context, limit int) (*dto.QuestionListResponse, error) {
	questions, err := s.repo.ListRecentQuestions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent questions: %w", err)
	}
	return &dto.QuestionListResponse{
		Questions: dto.NewQuestionResponses(questions),
		Count:     len(questions),
	}, nil
}

func (s *questionService) GetRunQuestions(ctx context.Context, runID string) (*dto.RunQuestionsResponse, error) {
	key := cache.GenerateCacheKey("api", "run_questions", runID)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("run %s not found", runID))
	}
	questions, err := s.repo.ListQuestionsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions of run %s: %w", runID, err)
	}

	resp := &dto.RunQuestionsResponse{
		Run: dto.RunResponse{
			ID:            run.ID,
			QuestionCount: run.QuestionCount,
			CreatedAt:     run.CreatedAt,
		},
		Questions: dto.NewQuestionResponses(questions),
	}
	s.store(ctx, key, resp)
	return resp, nil
}

func (s *questionService) cached(ctx context.Context, key string) (*dto.RunQuestionsResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("Run cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var resp dto.RunQuestionsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		s.logger.Warn("Corrupt run cache entry, ignoring", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (s *questionService) store(ctx context.Context, key string, resp *dto.RunQuestionsResponse) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("Failed to encode run for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.logger.Warn("Run cache write failed", zap.String("key", key), zap.Error(err))
	}
}
