package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/repository/models"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Oracle folds unquoted identifiers to upper case; the quoted aliases keep
// the db tags matching.
var (
	runColumns = []string{
		`id "id"`,
		`question_count "question_count"`,
		`created_at "created_at"`,
	}
	questionColumns = []string{
		`id "id"`,
		`run_id "run_id"`,
		`position "position"`,
		`item_type "item_type"`,
		`options "options"`,
		`answer "answer"`,
		`created_at "created_at"`,
	}
)

// QuestionDatabaseAdapter implements domain.QuestionRepository on Oracle.
type QuestionDatabaseAdapter struct {
	db        *sqlx.DB
	txManager domain.TransactionManager
	logger    *zap.Logger
}

func NewQuestionDatabaseAdapter(db *sqlx.DB, logger *zap.Logger) domain.QuestionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionDatabaseAdapter{
		db:        db,
		txManager: NewTransactionManagerAdapter(db, logger),
		logger:    logger,
	}
}

// SaveRun inserts the run and its questions in one transaction. Oracle has
// no multi-row VALUES, so every question is its own INSERT.
func (a *QuestionDatabaseAdapter) SaveRun(ctx context.Context, run domain.PipelineRun, questions []domain.MultipleChoiceQuestion) error {
	return a.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, a.db)

		query, args, err := psql.Insert(models.PipelineRun{}.TableName()).
			Columns("id", "question_count", "created_at").
			Values(run.ID, run.QuestionCount, run.CreatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build run insert: %w", err)
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}

		for i, q := range questions {
			row := models.FromDomainQuestion(run.ID, i, q, run.CreatedAt)
			options, err := row.Options.Value()
			if err != nil {
				return fmt.Errorf("failed to encode options of question %s: %w", q.ID, err)
			}
			answer, err := row.Answer.Value()
			if err != nil {
				return fmt.Errorf("failed to encode answer of question %s: %w", q.ID, err)
			}

			query, args, err := psql.Insert(row.TableName()).
				Columns("id", "run_id", "position", "item_type", "options", "answer", "created_at").
				Values(row.ID, row.RunID, row.Position, row.ItemType, options, answer, row.CreatedAt).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build question insert: %w", err)
			}
			if _, err := exec.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to save question %s: %w", q.ID, err)
			}
		}

		a.logger.Debug("Saved pipeline run", zap.String("run_id", run.ID), zap.Int("questions", len(questions)))
		return nil
	})
}

// GetRun returns nil, nil when the run does not exist.
func (a *QuestionDatabaseAdapter) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	query, args, err := psql.Select(runColumns...).
		From(models.PipelineRun{}.TableName()).
		Where(squirrel.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}

	var row models.PipelineRun
	if err := GetExecutor(ctx, a.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return models.ToDomainRun(&row), nil
}

// ListQuestionsByRun returns the run's questions in assembly order.
func (a *QuestionDatabaseAdapter) ListQuestionsByRun(ctx context.Context, runID string) ([]domain.MultipleChoiceQuestion, error) {
	builder := psql.Select(questionColumns...).
		From(models.Question{}.TableName()).
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("position")
	return a.selectQuestions(ctx, builder)
}

// ListRecentQuestions returns up to limit questions, newest run first.
func (a *QuestionDatabaseAdapter) ListRecentQuestions(ctx context.Context, limit int) ([]domain.MultipleChoiceQuestion, error) {
	if limit < 1 {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("limit must be >= 1, got %d", limit))
	}
	builder := psql.Select(questionColumns...).
		From(models.Question{}.TableName()).
		OrderBy("created_at DESC", "position").
		Suffix("FETCH FIRST ? ROWS ONLY", limit)
	return a.selectQuestions(ctx, builder)
}

func (a *QuestionDatabaseAdapter) selectQuestions(ctx context.Context, builder squirrel.SelectBuilder) ([]domain.MultipleChoiceQuestion, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build question query: %w", err)
	}

	var rows []models.Question
	if err := GetExecutor(ctx, a.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	questions := make([]domain.MultipleChoiceQuestion, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, models.ToDomainQuestion(row))
	}
	return questions, nil
}
