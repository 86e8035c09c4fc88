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

// ScoreMode selects how a single verdict contributes to an aggregate score.
type ScoreMode int

const (
	// ScoreWrongDetected counts F verdicts. Used when filtering generated
	// candidates: a high score means the judges caught the mistake.
	ScoreWrongDetected ScoreMode = iota
	// ScoreGroundTruth counts verdicts that agree with the item's label.
	ScoreGroundTruth
)

func (m ScoreMode) String() string {
	if m == ScoreGroundTruth {
		return "ground_truth"
	}
	return "wrong_detected"
}

// AggregateRequest describes one item to judge.
type AggregateRequest struct {
	Item          domain.CandidateItem
	Type          domain.ItemType
	FilterModels  []string
	RunsPerModel  int
	FallbackModel string
	// Temperature applies to the filter models; the fallback judge runs at 0.
	Temperature float64
	Mode        ScoreMode
	// Stage only labels log lines.
	Stage string
}

// JudgmentOutcome is one model's verdict on the item in one run.
type JudgmentOutcome struct {
	Model        string
	Run          int
	RawResponse  string
	Verdict      domain.Verdict
	Parsed       bool
	Escalated    bool
	Contribution int
	Err          error
}

type JudgmentResult struct {
	Score    int
	MaxScore int
	Outcomes []JudgmentOutcome
}

// JudgmentAggregator fans one evaluation prompt out to every
// (filter model, run) pair and sums the contributions.
type JudgmentAggregator struct {
	gateway domain.Gateway
	logger  *zap.Logger
}

func NewJudgmentAggregator(gateway domain.Gateway, logger *zap.Logger) *JudgmentAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JudgmentAggregator{
		gateway: gateway,
		logger:  logger,
	}
}

// Aggregate runs len(FilterModels)*RunsPerModel judgments concurrently.
// A judgment whose call fails, or whose verdict cannot be read even after
// the fallback judge, contributes 0. Only configuration errors and
// cancellation of ctx abort the aggregation.
func (a *JudgmentAggregator) Aggregate(ctx context.Context, req AggregateRequest) (*JudgmentResult, error) {
	if len(req.FilterModels) == 0 {
		return nil, domain.NewInvalidInputError("at least one filter model is required")
	}
	if req.RunsPerModel < 1 {
		return nil, domain.NewInvalidInputError(fmt.Sprintf("runs per model must be >= 1, got %d", req.RunsPerModel))
	}

	messages := prompt.EvalMessages(req.Type, req.Item.Content)
	total := len(req.FilterModels) * req.RunsPerModel
	outcomes := make([]JudgmentOutcome, total)

	g, gctx := errgroup.WithContext(ctx)
	for i, model := range req.FilterModels {
		for run := 0; run < req.RunsPerModel; run++ {
			slot := i*req.RunsPerModel + run
			g.Go(func() error {
				outcome, err := a.judgeOnce(gctx, req, model, run, messages)
				outcomes[slot] = outcome
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &JudgmentResult{MaxScore: total, Outcomes: outcomes}
	for _, o := range outcomes {
		result.Score += o.Contribution
	}

	a.logger.Info("Judged item",
		zap.String("stage", req.Stage),
		zap.String("item_id", req.Item.ID),
		zap.String("mode", req.Mode.String()),
		zap.Int("score", result.Score),
		zap.Int("max_score", result.MaxScore))
	return result, nil
}

func (a *JudgmentAggregator) judgeOnce(ctx context.Context, req AggregateRequest, model string, run int, messages []domain.Message) (JudgmentOutcome, error) {
	outcome := JudgmentOutcome{Model: model, Run: run, Verdict: domain.VerdictUnparsed}
	fields := []zap.Field{
		zap.String("stage", req.Stage),
		zap.String("item_id", req.Item.ID),
		zap.String("model", model),
		zap.Int("run", run),
	}

	response, err := a.gateway.Invoke(ctx, model, messages, req.Temperature)
	if err != nil {
		if fatal := a.fatal(ctx, err); fatal != nil {
			return outcome, fmt.Errorf("judging %s with %s: %w", req.Item.ID, model, fatal)
		}
		a.logger.Warn("Judgment call failed, counting as 0", append(fields, zap.Error(err))...)
		outcome.Err = err
		return outcome, nil
	}
	outcome.RawResponse = response

	verdict, ok := parser.ParseEvalResult(response)
	if !ok && req.FallbackModel != "" {
		outcome.Escalated = true
		a.logger.Warn("No verdict in judgment response, escalating to fallback judge",
			append(fields, zap.String("fallback_model", req.FallbackModel))...)

		judged, err := a.gateway.Invoke(ctx, req.FallbackModel, prompt.JudgeMessages(req.Type, response), 0)
		if err != nil {
			if fatal := a.fatal(ctx, err); fatal != nil {
				return outcome, fmt.Errorf("fallback judging %s with %s: %w", req.Item.ID, req.FallbackModel, fatal)
			}
			a.logger.Warn("Fallback judge call failed, counting as 0", append(fields, zap.Error(err))...)
			outcome.Err = err
			return outcome, nil
		}
		verdict, ok = parser.ParseEvalResult(judged)
	}
	if !ok {
		a.logger.Error("Hard parse failure, counting as 0", fields...)
		return outcome, nil
	}

	outcome.Verdict = verdict
	outcome.Parsed = true
	outcome.Contribution = contribution(req.Mode, verdict, req.Item.GroundTruth)
	return outcome, nil
}

// fatal returns the error that must abort the aggregation, or nil when err
// only costs this judgment its weight.
func (a *JudgmentAggregator) fatal(ctx context.Context, err error) error {
	if domain.IsFatalError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func contribution(mode ScoreMode, verdict domain.Verdict, truth domain.GroundTruth) int {
	switch mode {
	case ScoreGroundTruth:
		if verdict == truth.Expected() {
			return 1
		}
	default:
		if verdict == domain.VerdictFalse {
			return 1
		}
	}
	return 0
}

// Admit reports whether score lies in the inclusive band [min, max].
func Admit(score, min, max int) bool {
	return min <= score && score <= max
}
