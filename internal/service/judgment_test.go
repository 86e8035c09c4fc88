package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"mathquiz-forge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var wrongDefinition = domain.CandidateItem{
	ID:              "def_001_gen_0",
	Content:         domain.Content{Text: "A function f is injective if f(x)=f(y) for some x=y"},
	GroundTruth:     domain.Wrong,
	GeneratingModel: "gen-a",
}

func aggregateRequest(item domain.CandidateItem, models []string, runs int, mode ScoreMode) AggregateRequest {
	return AggregateRequest{
		Item:          item,
		Type:          domain.ItemTypeDefinition,
		FilterModels:  models,
		RunsPerModel:  runs,
		FallbackModel: "judge",
		Temperature:   0.5,
		Mode:          mode,
		Stage:         "filter",
	}
}

func TestAggregate_CountsWrongDetected(t *testing.T) {
	models := []string{"m1", "m2", "m3"}

	allF := newFakeGateway(func(string, []domain.Message, float64) (string, error) { return `\boxed{F}`, nil })
	res, err := NewJudgmentAggregator(allF, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, models, 3, ScoreWrongDetected))
	require.NoError(t, err)
	assert.Equal(t, 9, res.Score)
	assert.Equal(t, 9, res.MaxScore)
	require.Len(t, res.Outcomes, 9)
	for _, m := range models {
		assert.Equal(t, 3, allF.callCount(m))
	}

	allT := newFakeGateway(func(string, []domain.Message, float64) (string, error) { return `\boxed{T}`, nil })
	res, err = NewJudgmentAggregator(allT, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, models, 3, ScoreWrongDetected))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}

func TestAggregate_OutcomesKeepTaskOrder(t *testing.T) {
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		if model == "m2" {
			return `\boxed{T}`, nil
		}
		return `\boxed{F}`, nil
	})
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2"}, 2, ScoreWrongDetected))
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, "m1", res.Outcomes[0].Model)
	assert.Equal(t, 1, res.Outcomes[1].Run)
	assert.Equal(t, "m2", res.Outcomes[2].Model)
	assert.Equal(t, domain.VerdictTrue, res.Outcomes[3].Verdict)
	assert.Equal(t, 2, res.Score)
}

func TestAggregate_GroundTruthMode(t *testing.T) {
	original := domain.CandidateItem{ID: "def_001_original", Content: domain.Content{Text: "ok"}, GroundTruth: domain.Correct}
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		if model == "m1" {
			return `\boxed{T}`, nil
		}
		return `\boxed{F}`, nil
	})
	agg := NewJudgmentAggregator(gw, zap.NewNop())

	res, err := agg.Aggregate(context.Background(), aggregateRequest(original, []string{"m1", "m2"}, 2, ScoreGroundTruth))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score, "only m1 agrees that the original is correct")

	res, err = agg.Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2"}, 2, ScoreGroundTruth))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score, "only m2 agrees that the candidate is wrong")
}

func TestAggregate_FallbackJudgeRecoversVerdict(t *testing.T) {
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		if model == "judge" {
			return `The response concludes it is wrong: \boxed{F}`, nil
		}
		return "I think the definition is flawed.", nil
	})
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1"}, 3, ScoreWrongDetected))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 3, gw.callCount("judge"), "one escalation per unparsable judgment")
	for _, temp := range gw.temperatures("judge") {
		assert.Equal(t, 0.0, temp)
	}
	for _, o := range res.Outcomes {
		assert.True(t, o.Escalated)
		assert.True(t, o.Parsed)
	}
}

func TestAggregate_HardParseFailureCountsZero(t *testing.T) {
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		return "no idea", nil
	})
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2"}, 2, ScoreWrongDetected))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 4, gw.callCount("judge"))
	for _, o := range res.Outcomes {
		assert.False(t, o.Parsed)
		assert.Equal(t, domain.VerdictUnparsed, o.Verdict)
	}
}

func TestAggregate_FailedCallsCostOnlyTheirWeight(t *testing.T) {
	exhausted := &domain.RetryExhaustedError{Model: "m2", Attempts: 6, Err: errors.New("503")}
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		switch model {
		case "m2":
			return "", exhausted
		case "judge":
			return "", exhausted
		case "m3":
			return "unclear", nil
		}
		return `\boxed{F}`, nil
	})
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2", "m3"}, 2, ScoreWrongDetected))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 6, res.MaxScore)
	assert.Equal(t, 2, gw.callCount("judge"), "only the unparsable runs of m3 escalate")

	failed := 0
	for _, o := range res.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 4, failed)
}

func TestAggregate_ConfigErrorAborts(t *testing.T) {
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		if model == "claude-x" {
			return "", &domain.MissingConfigError{Provider: "anthropic", Setting: "api_key"}
		}
		return `\boxed{F}`, nil
	})
	_, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "claude-x"}, 2, ScoreWrongDetected))
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
}

func TestAggregate_DeadlineTooCloseAborts(t *testing.T) {
	gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
		if model == "m2" {
			return "", fmt.Errorf("%w: rate: Wait(n=1) would exceed context deadline", domain.ErrDeadlineTooClose)
		}
		return `\boxed{F}`, nil
	})
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2"}, 2, ScoreWrongDetected))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res, "calls that never ran must not yield a deflated score")
}

func TestAggregate_UsesRequestTemperature(t *testing.T) {
	gw := newFakeGateway(func(string, []domain.Message, float64) (string, error) { return `\boxed{F}`, nil })
	req := aggregateRequest(wrongDefinition, []string{"m1"}, 2, ScoreWrongDetected)
	req.Temperature = 0.8
	_, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8, 0.8}, gw.temps["m1"])
}

func TestAggregate_CancelledContextAborts(t *testing.T) {
	gw := newFakeGateway(func(string, []domain.Message, float64) (string, error) { return `\boxed{F}`, nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(ctx, aggregateRequest(wrongDefinition, []string{"m1"}, 2, ScoreWrongDetected))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_ScoreIndependentOfCompletionOrder(t *testing.T) {
	verdicts := map[string]string{"m1": `\boxed{F}`, "m2": `\boxed{T}`, "m3": `\boxed{F}`, "m4": "?"}
	var want int
	for trial := 0; trial < 10; trial++ {
		rng := rand.New(rand.NewSource(int64(trial)))
		delays := map[string]time.Duration{}
		for m := range verdicts {
			delays[m] = time.Duration(rng.Intn(3)) * time.Millisecond
		}
		gw := newFakeGateway(func(model string, _ []domain.Message, _ float64) (string, error) {
			if model == "judge" {
				return `\boxed{T}`, nil
			}
			time.Sleep(delays[model])
			return verdicts[model], nil
		})
		res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1", "m2", "m3", "m4"}, 3, ScoreWrongDetected))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Score, 0)
		assert.LessOrEqual(t, res.Score, res.MaxScore)
		if trial == 0 {
			want = res.Score
		}
		assert.Equal(t, want, res.Score)
	}
	assert.Equal(t, 6, want)
}

func TestAggregate_RejectsEmptyRequest(t *testing.T) {
	agg := NewJudgmentAggregator(new(MockGateway), zap.NewNop())
	_, err := agg.Aggregate(context.Background(), aggregateRequest(wrongDefinition, nil, 3, ScoreWrongDetected))
	assert.Error(t, err)
	_, err = agg.Aggregate(context.Background(), aggregateRequest(wrongDefinition, []string{"m1"}, 0, ScoreWrongDetected))
	assert.Error(t, err)
}

func TestAggregate_NoFallbackModelMeansNoEscalation(t *testing.T) {
	gw := new(MockGateway)
	gw.On("Invoke", mock.Anything, "m1", mock.Anything, 0.5).Return("no verdict here", nil).Twice()

	req := aggregateRequest(wrongDefinition, []string{"m1"}, 2, ScoreWrongDetected)
	req.FallbackModel = ""
	res, err := NewJudgmentAggregator(gw, zap.NewNop()).Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	gw.AssertExpectations(t)
	gw.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestAdmit(t *testing.T) {
	for score := 0; score <= 9; score++ {
		want := score >= 4 && score <= 7
		assert.Equal(t, want, Admit(score, 4, 7), "score %d", score)
	}
	assert.True(t, Admit(3, 3, 3))
	assert.False(t, Admit(0, 1, 0))
}
