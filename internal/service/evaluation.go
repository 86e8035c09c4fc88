package service

import (
	"context"
	"fmt"

	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/parser"
	"mathquiz-forge/internal/prompt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QuestionResult is one test model's answer to one question.
type QuestionResult struct {
	QuestionID string   `json:"question_id"`
	Model      string   `json:"model"`
	Expected   []string `json:"expected"`
	Given      []string `json:"given,omitempty"`
	Correct    bool     `json:"correct"`
	Error      string   `json:"error,omitempty"`
}

type ModelAccuracy struct {
	Model    string  `json:"model"`
	Total    int     `json:"total"`
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

type EvaluationReport struct {
	Models  []ModelAccuracy  `json:"models"`
	Results []QuestionResult `json:"results"`
}

// EvaluationService replays assembled questions against test models. An
// answer scores only when its label set equals the answer set exactly.
type EvaluationService struct {
	gateway     domain.Gateway
	temperature float64
	logger      *zap.Logger
}

func NewEvaluationService(gateway domain.Gateway, temperature float64, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{gateway: gateway, temperature: temperature, logger: logger}
}

// Evaluate asks every model every question concurrently. Failed calls and
// unreadable answers count as wrong; configuration errors abort.
func (e *EvaluationService) Evaluate(ctx context.Context, questions []domain.MultipleChoiceQuestion, models []string) (*EvaluationReport, error) {
	results := make([]QuestionResult, len(models)*len(questions))

	g, gctx := errgroup.WithContext(ctx)
	for mi, model := range models {
		for qi, q := range questions {
			slot := mi*len(questions) + qi
			g.Go(func() error {
				res, err := e.answer(gctx, model, q)
				results[slot] = res
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &EvaluationReport{Results: results}
	for mi, model := range models {
		acc := ModelAccuracy{Model: model, Total: len(questions)}
		for _, r := range results[mi*len(questions) : (mi+1)*len(questions)] {
			if r.Error == "" {
				acc.Answered++
			}
			if r.Correct {
				acc.Correct++
			}
		}
		if acc.Total > 0 {
			acc.Accuracy = float64(acc.Correct) / float64(acc.Total)
		}
		report.Models = append(report.Models, acc)
		e.logger.Info("Test model accuracy",
			zap.String("model", model),
			zap.Int("correct", acc.Correct),
			zap.Int("total", acc.Total),
			zap.Float64("accuracy", acc.Accuracy))
	}
	return report, nil
}

func (e *EvaluationService) answer(ctx context.Context, model string, q domain.MultipleChoiceQuestion) (QuestionResult, error) {
	res := QuestionResult{QuestionID: q.ID, Model: model, Expected: q.Answer}

	response, err := e.gateway.Invoke(ctx, model, prompt.ChoiceMessages(q.Type, q), e.temperature)
	if err != nil {
		if domain.IsFatalError(err) {
			return res, fmt.Errorf("evaluating %s with %s: %w", q.ID, model, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		e.logger.Warn("Test model call failed",
			zap.String("stage", "evaluate"),
			zap.String("question_id", q.ID),
			zap.String("model", model),
			zap.Error(err))
		res.Error = err.Error()
		return res, nil
	}

	given, ok := parser.ParseChoiceAnswer(response)
	if !ok {
		e.logger.Warn("No answer found in test model response",
			zap.String("stage", "evaluate"),
			zap.String("question_id", q.ID),
			zap.String("model", model))
		res.Error = "no boxed answer"
		return res, nil
	}
	res.Given = given
	res.Correct = sameLabels(given, q.Answer)
	return res, nil
}

// sameLabels reports whether a and b hold the same set of labels.
func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]struct{}, len(b))
	for _, l := range b {
		want[l] = struct{}{}
	}
	for _, l := range a {
		if _, ok := want[l]; !ok {
			return false
		}
	}
	return true
}
