package domain

import (
	"context"
	"time"
)

// PipelineRun records one export of assembled questions.
type PipelineRun struct {
	ID            string    `json:"id"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionRepository persists assembled questions grouped by pipeline run.
type QuestionRepository interface {
	SaveRun(ctx context.Context, run PipelineRun, questions []MultipleChoiceQuestion) error
	GetRun(ctx context.Context, runID string) (*PipelineRun, error)
	ListQuestionsByRun(ctx context.Context, runID string) ([]MultipleChoiceQuestion, error)
	ListRecentQuestions(ctx context.Context, limit int) ([]MultipleChoiceQuestion, error)
}

// TransactionManager runs fn inside one database transaction. Repositories
// pick the transaction up from the context fn receives.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
