package dto

import (
	"time"

	"mathquiz-forge/internal/domain"
)

type OptionResponse struct {
	Label       string         `json:"label"`
	ItemID      string         `json:"item_id"`
	Content     domain.Content `json:"content"`
	GroundTruth string         `json:"ground_truth"`
}

type QuestionResponse struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Options []OptionResponse `json:"options"`
	Answer  []string         `json:"answer"`
}

type QuestionListResponse struct {
	Questions []QuestionResponse `json:"questions"`
	Count     int                `json:"count"`
}

type RunResponse struct {
	ID            string    `json:"id"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type RunQuestionsResponse struct {
	Run       RunResponse        `json:"run"`
	Questions []QuestionResponse `json:"questions"`
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func NewQuestionResponse(q domain.MultipleChoiceQuestion) QuestionResponse {
	options := make([]OptionResponse, len(q.Options))
	for i, o := range q.Options {
		options[i] = OptionResponse{
			Label:       o.Label,
			ItemID:      o.Item.ID,
			Content:     o.Item.Content,
			GroundTruth: string(o.Item.GroundTruth),
		}
	}
	answer := q.Answer
	if answer == nil {
		answer = []string{}
	}
	return QuestionResponse{ID: q.ID, Type: string(q.Type), Options: options, Answer: answer}
}

func NewQuestionResponses(questions []domain.MultipleChoiceQuestion) []QuestionResponse {
	out := make([]QuestionResponse, len(questions))
	for i, q := range questions {
		out[i] = NewQuestionResponse(q)
	}
	return out
}
