package service

import (
	"context"
	"strings"
	"sync"

	"mathquiz-forge/internal/domain"

	"github.com/stretchr/testify/mock"
)

// fakeGateway answers from a function and records every call.
type fakeGateway struct {
	mu      sync.Mutex
	respond func(model string, messages []domain.Message, temperature float64) (string, error)
	calls   map[string]int
	temps   map[string][]float64
}

func newFakeGateway(respond func(model string, messages []domain.Message, temperature float64) (string, error)) *fakeGateway {
	return &fakeGateway{
		respond: respond,
		calls:   make(map[string]int),
		temps:   make(map[string][]float64),
	}
}

func (f *fakeGateway) Invoke(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	f.mu.Lock()
	f.calls[model]++
	f.temps[model] = append(f.temps[model], temperature)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.respond(model, messages, temperature)
}

func (f *fakeGateway) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func (f *fakeGateway) temperatures(model string) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.temps[model]...)
}

func lastContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}

func contains(messages []domain.Message, s string) bool {
	return strings.Contains(lastContent(messages), s)
}

// MockGateway is the testify flavour for tests that assert exact calls.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Invoke(ctx context.Context, model string, messages []domain.Message, temperature float64) (string, error) {
	args := m.Called(ctx, model, messages, temperature)
	return args.String(0), args.Error(1)
}

type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) SaveRun(ctx context.Context, run domain.PipelineRun, questions []domain.MultipleChoiceQuestion) error {
	args := m.Called(ctx, run, questions)
	return args.Error(0)
}

func (m *MockQuestionRepository) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PipelineRun), args.Error(1)
}

func (m *MockQuestionRepository) ListQuestionsByRun(ctx context.Context, runID string) ([]domain.MultipleChoiceQuestion, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MultipleChoiceQuestion), args.Error(1)
}

func (m *MockQuestionRepository) ListRecentQuestions(ctx context.Context, limit int) ([]domain.MultipleChoiceQuestion, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MultipleChoiceQuestion), args.Error(1)
}
