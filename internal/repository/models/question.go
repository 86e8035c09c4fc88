package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mathquiz-forge/internal/domain"
)

// JSONList stores a slice as a JSON array in a single CLOB column.
type JSONList[T any] []T

// Value encodes the list as a JSON string. go-ora binds strings to CLOB
// columns but not []byte.
func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]T(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes a JSON array. NULL and empty values become an empty list.
func (l *JSONList[T]) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = JSONList[T]{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("JSONList Scan: unsupported type " + fmt.Sprintf("%T", value))
	}
	if len(raw) == 0 || string(raw) == "null" {
		*l = JSONList[T]{}
		return nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// PipelineRun is a row of pipeline_runs.
type PipelineRun struct {
	ID            string    `db:"id"`
	QuestionCount int       `db:"question_count"`
	CreatedAt     time.Time `db:"created_at"`
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// Question is a row of mc_questions. Options and Answer are JSON arrays.
type Question struct {
	ID        string                         `db:"id"`
	RunID     string                         `db:"run_id"`
	Position  int                            `db:"position"`
	ItemType  string                         `db:"item_type"`
	Options   JSONList[domain.LabeledOption] `db:"options"`
	Answer    JSONList[string]               `db:"answer"`
	CreatedAt time.Time                      `db:"created_at"`
}

func (Question) TableName() string {
	return "mc_questions"
}

func ToDomainRun(m *PipelineRun) *domain.PipelineRun {
	if m == nil {
		return nil
	}
	return &domain.PipelineRun{
		ID:            m.ID,
		QuestionCount: m.QuestionCount,
		CreatedAt:     m.CreatedAt,
	}
}

func FromDomainQuestion(runID string, position int, q domain.MultipleChoiceQuestion, createdAt time.Time) Question {
	return Question{
		ID:        q.ID,
		RunID:     runID,
		Position:  position,
		ItemType:  string(q.Type),
		Options:   q.Options,
		Answer:    q.Answer,
		CreatedAt: createdAt,
	}
}

func ToDomainQuestion(m Question) domain.MultipleChoiceQuestion {
	return domain.MultipleChoiceQuestion{
		ID:      m.ID,
		Type:    domain.ItemType(m.ItemType),
		Options: m.Options,
		Answer:  m.Answer,
	}
}
