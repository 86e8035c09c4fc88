package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageAll        Stage = "all"
	StageSeedFilter Stage = "seed-filter"
	StageGenerate   Stage = "generate"
	StageDedup      Stage = "dedup"
	StageFilter     Stage = "filter"
	StageAssemble   Stage = "assemble"
	StageEvaluate   Stage = "evaluate"
)

var stages = []Stage{StageAll, StageSeedFilter, StageGenerate, StageDedup, StageFilter, StageAssemble, StageEvaluate}

func ParseStage(s string) (Stage, error) {
	for _, st := range stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", domain.NewInvalidInputError(fmt.Sprintf("unknown stage %q", s))
}

// StageStore loads and saves the named stage files.
type StageStore interface {
	Load(name string, v interface{}) error
	Save(name string, v interface{}) error
}

// RunSummary counts what each executed stage produced.
type RunSummary struct {
	RunID      string
	Seeds      int
	Packets    int
	Candidates int
	Duplicates int
	Qualified  int
	Questions  int
	Evaluation *EvaluationReport
}

// PipelineService drives the stages. Seeds and packets are processed one
// after another; the candidates of one packet are judged concurrently.
type PipelineService struct {
	cfg        *config.Config
	store      StageStore
	generator  *CandidateGenerator
	aggregator *JudgmentAggregator
	assembler  *QuestionAssembler
	evaluator  *EvaluationService
	checkpoint *ScoreCheckpoint
	repo       domain.QuestionRepository
	newRunID   func() string
	logger     *zap.Logger
}

func NewPipelineService(cfg *config.Config, store StageStore, gateway domain.Gateway, logger *zap.Logger) *PipelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Pipeline.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	// the generator and assembler each own a stream so one stage's draws do
	// not shift the other's
	genRng := rand.New(rand.NewSource(rng.Int63()))
	asmRng := rand.New(rand.NewSource(rng.Int63()))

	temperature := cfg.Gateway.DefaultTemperature
	return &PipelineService{
		cfg:   cfg,
		store: store,
		generator: NewCandidateGenerator(gateway, temperature, genRng,
			GeneratorPolicy{ContinueOnModelError: cfg.Pipeline.ContinueOnGeneratorError}, logger),
		aggregator: NewJudgmentAggregator(gateway, logger),
		assembler:  NewQuestionAssembler(asmRng, util.NewULID, logger),
		evaluator:  NewEvaluationService(gateway, temperature, logger),
		newRunID:   util.NewULID,
		logger:     logger,
	}
}

// WithCheckpoint enables score reuse across filter reruns.
func (p *PipelineService) WithCheckpoint(cp *ScoreCheckpoint) *PipelineService {
	p.checkpoint = cp
	return p
}

// WithRepository exports assembled questions after the assemble stage.
func (p *PipelineService) WithRepository(repo domain.QuestionRepository) *PipelineService {
	p.repo = repo
	return p
}

// Run executes stage, or every stage in order for StageAll. Each stage reads
// the previous stage's file, so single stages can be rerun.
func (p *PipelineService) Run(ctx context.Context, stage Stage) (*RunSummary, error) {
	if p.cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.Timeout)
		defer cancel()
	}

	summary := &RunSummary{RunID: p.newRunID()}
	p.logger.Info("Pipeline run started", zap.String("run_id", summary.RunID), zap.String("stage", string(stage)))

	var steps []Stage
	switch stage {
	case StageAll:
		if p.cfg.Pipeline.SeedFilter.Enabled {
			steps = append(steps, StageSeedFilter)
		}
		steps = append(steps, StageGenerate, StageDedup, StageFilter, StageAssemble)
		if len(p.cfg.Pipeline.TestModels) > 0 {
			steps = append(steps, StageEvaluate)
		}
	default:
		steps = []Stage{stage}
	}

	for _, step := range steps {
		start := time.Now()
		var err error
		switch step {
		case StageSeedFilter:
			err = p.runSeedFilter(ctx, summary)
		case StageGenerate:
			err = p.runGenerate(ctx, summary)
		case StageDedup:
			err = p.runDedup(summary)
		case StageFilter:
			err = p.runFilter(ctx, summary)
		case StageAssemble:
			err = p.runAssemble(ctx, summary)
		case StageEvaluate:
			err = p.runEvaluate(ctx, summary)
		default:
			err = domain.NewInvalidInputError(fmt.Sprintf("unknown stage %q", step))
		}
		if err != nil {
			p.logger.Error("Pipeline stage failed", zap.String("run_id", summary.RunID), zap.String("stage", string(step)), zap.Error(err))
			return summary, fmt.Errorf("stage %s: %w", step, err)
		}
		p.logger.Info("Pipeline stage finished",
			zap.String("run_id", summary.RunID),
			zap.String("stage", string(step)),
			zap.Duration("elapsed", time.Since(start)))
	}
	return summary, nil
}

func (p *PipelineService) runSeedFilter(ctx context.Context, summary *RunSummary) error {
	var seeds []domain.SeedItem
	if err := p.store.Load(p.cfg.Data.SeedFile, &seeds); err != nil {
		return err
	}
	kept, err := p.FilterSeeds(ctx, seeds)
	if err != nil {
		return err
	}
	summary.Seeds = len(kept)
	return p.store.Save(p.cfg.Data.FilteredSeedFile, kept)
}

func (p *PipelineService) runGenerate(ctx context.Context, summary *RunSummary) error {
	seedFile := p.cfg.Data.SeedFile
	if p.cfg.Pipeline.SeedFilter.Enabled {
		seedFile = p.cfg.Data.FilteredSeedFile
	}
	var seeds []domain.SeedItem
	if err := p.store.Load(seedFile, &seeds); err != nil {
		return err
	}
	if len(seeds) == 0 {
		return domain.NewInvalidInputError(fmt.Sprintf("no seeds in %s", seedFile))
	}

	packets, err := p.GeneratePackets(ctx, seeds)
	if err != nil {
		return err
	}
	summary.Seeds = len(seeds)
	summary.Packets = len(packets)
	for _, pk := range packets {
		summary.Candidates += len(pk.Candidates)
	}
	return p.store.Save(p.cfg.Data.GeneratedFile, packets)
}

func (p *PipelineService) runDedup(summary *RunSummary) error {
	var packets []domain.Packet
	if err := p.store.Load(p.cfg.Data.GeneratedFile, &packets); err != nil {
		return err
	}
	deduped, dropped := p.DedupPackets(packets)
	summary.Duplicates = dropped
	return p.store.Save(p.cfg.Data.DeduplicatedFile, deduped)
}

func (p *PipelineService) runFilter(ctx context.Context, summary *RunSummary) error {
	var packets []domain.Packet
	if err := p.store.Load(p.cfg.Data.DeduplicatedFile, &packets); err != nil {
		return err
	}
	qualified, err := p.FilterPackets(ctx, packets)
	if err != nil {
		return err
	}
	summary.Packets = len(qualified)
	for _, pk := range qualified {
		summary.Qualified += len(pk.Candidates)
	}
	return p.store.Save(p.cfg.Data.QualifiedFile, qualified)
}

func (p *PipelineService) runAssemble(ctx context.Context, summary *RunSummary) error {
	var packets []domain.Packet
	if err := p.store.Load(p.cfg.Data.QualifiedFile, &packets); err != nil {
		return err
	}
	questions, err := p.AssembleQuestions(packets)
	if err != nil {
		return err
	}
	summary.Questions = len(questions)
	if err := p.store.Save(p.cfg.Data.QuestionsFile, questions); err != nil {
		return err
	}

	if p.repo == nil {
		return nil
	}
	run := domain.PipelineRun{ID: summary.RunID, QuestionCount: len(questions), CreatedAt: time.Now().UTC()}
	if err := p.repo.SaveRun(ctx, run, questions); err != nil {
		return fmt.Errorf("failed to export questions: %w", err)
	}
	p.logger.Info("Exported questions", zap.String("run_id", run.ID), zap.Int("questions", len(questions)))
	return nil
}

func (p *PipelineService) runEvaluate(ctx context.Context, summary *RunSummary) error {
	if len(p.cfg.Pipeline.TestModels) == 0 {
		return domain.NewInvalidInputError("pipeline.test_models is empty")
	}
	var questions []domain.MultipleChoiceQuestion
	if err := p.store.Load(p.cfg.Data.QuestionsFile, &questions); err != nil {
		return err
	}
	report, err := p.evaluator.Evaluate(ctx, questions, p.cfg.Pipeline.TestModels)
	if err != nil {
		return err
	}
	summary.Evaluation = report
	return p.store.Save(p.cfg.Data.EvaluationFile, report)
}

// FilterSeeds keeps the seeds whose original the filter models judge
// correctly often enough, scored against ground truth.
func (p *PipelineService) FilterSeeds(ctx context.Context, seeds []domain.SeedItem) ([]domain.SeedItem, error) {
	band := p.cfg.Pipeline.SeedFilter
	kept := make([]domain.SeedItem, 0, len(seeds))
	for _, seed := range seeds {
		if err := seed.Validate(); err != nil {
			p.logger.Warn("Skipping invalid seed", zap.String("stage", string(StageSeedFilter)), zap.String("seed_id", seed.ID), zap.Error(err))
			continue
		}
		score, err := p.score(ctx, p.judgeRequest(seed.OriginalCandidate(), seed.Type, ScoreGroundTruth, StageSeedFilter))
		if err != nil {
			return nil, err
		}
		if !Admit(score, band.MinScore, band.MaxScore) {
			p.logger.Info("Seed rejected", zap.String("seed_id", seed.ID), zap.Int("score", score))
			continue
		}
		kept = append(kept, seed)
	}
	return kept, nil
}

// GeneratePackets builds one packet per seed. A seed whose generation fails
// is logged and skipped; configuration errors and cancellation abort.
func (p *PipelineService) GeneratePackets(ctx context.Context, seeds []domain.SeedItem) ([]domain.Packet, error) {
	packets := make([]domain.Packet, 0, len(seeds))
	for _, seed := range seeds {
		candidates, err := p.generator.Generate(ctx, seed, p.cfg.Pipeline.GeneratorModels, p.cfg.Pipeline.SamplesPerGeneratorModel)
		if err != nil {
			if abort(ctx, err) {
				return nil, err
			}
			p.logger.Error("Skipping seed after generation failure",
				zap.String("stage", string(StageGenerate)),
				zap.String("seed_id", seed.ID),
				zap.Error(err))
			continue
		}
		packets = append(packets, domain.Packet{
			SeedID:     seed.ID,
			Type:       seed.Type,
			Original:   seed.OriginalCandidate(),
			Candidates: candidates,
		})
		p.logger.Info("Generated candidates", zap.String("seed_id", seed.ID), zap.Int("count", len(candidates)))
	}
	return packets, nil
}

// DedupPackets returns the deduplicated packets and the number of dropped
// candidates.
func (p *PipelineService) DedupPackets(packets []domain.Packet) ([]domain.Packet, int) {
	out := make([]domain.Packet, 0, len(packets))
	total := 0
	for _, pk := range packets {
		deduped, dropped := Deduplicate(pk)
		for _, d := range dropped {
			p.logger.Warn("Discarding duplicate candidate",
				zap.String("stage", string(StageDedup)),
				zap.String("item_id", d.ID),
				zap.String("model", d.GeneratingModel))
		}
		total += len(dropped)
		out = append(out, deduped)
	}
	return out, total
}

// FilterPackets scores every candidate and keeps those inside the
// qualification band. A packet survives only if at least one candidate does.
func (p *PipelineService) FilterPackets(ctx context.Context, packets []domain.Packet) ([]domain.Packet, error) {
	kept := []domain.Packet{}
	for _, pk := range packets {
		filtered, ok, err := p.filterPacket(ctx, pk)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Info("Packet discarded, no candidate qualified", zap.String("seed_id", pk.SeedID))
			continue
		}
		p.logger.Info("Packet kept", zap.String("seed_id", pk.SeedID), zap.Int("qualified", len(filtered.Candidates)))
		kept = append(kept, filtered)
	}
	return kept, nil
}

func (p *PipelineService) filterPacket(ctx context.Context, pk domain.Packet) (domain.Packet, bool, error) {
	band := p.cfg.Pipeline
	survivors := make([]*domain.CandidateItem, len(pk.Candidates))
	original := pk.Original

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range pk.Candidates {
		g.Go(func() error {
			score, err := p.score(gctx, p.judgeRequest(c, pk.Type, ScoreWrongDetected, StageFilter))
			if err != nil {
				return err
			}
			if !Admit(score, band.QualifiedScoreMin, band.QualifiedScoreMax) {
				p.logger.Info("Candidate discarded",
					zap.String("stage", string(StageFilter)),
					zap.String("item_id", c.ID),
					zap.String("model", c.GeneratingModel),
					zap.Int("score", score))
				return nil
			}
			scored := c.WithScore(score)
			survivors[i] = &scored
			return nil
		})
	}
	if band.FilterIncludeOriginal {
		g.Go(func() error {
			score, err := p.score(gctx, p.judgeRequest(pk.Original, pk.Type, ScoreGroundTruth, StageFilter))
			if err != nil {
				return err
			}
			original = pk.Original.WithScore(score)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pk, false, err
	}

	out := pk
	out.Original = original
	out.Candidates = nil
	for _, s := range survivors {
		if s != nil {
			out.Candidates = append(out.Candidates, *s)
		}
	}
	return out, len(out.Candidates) > 0, nil
}

// AssembleQuestions assembles each item type separately so a question never
// mixes definitions with proofs.
func (p *PipelineService) AssembleQuestions(packets []domain.Packet) ([]domain.MultipleChoiceQuestion, error) {
	mode, err := ParseAnswerMode(p.cfg.Pipeline.AnswerMode)
	if err != nil {
		return nil, err
	}
	policy := AnswerPolicy{Mode: mode, Required: p.cfg.Pipeline.RequiredCorrect}

	byType := make(map[domain.ItemType][]domain.Packet)
	for _, pk := range packets {
		byType[pk.Type] = append(byType[pk.Type], pk)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	questions := []domain.MultipleChoiceQuestion{}
	for _, t := range types {
		itemType := domain.ItemType(t)
		pools := p.assembler.BuildPools(byType[itemType])
		assembled := p.assembler.Assemble(pools, p.cfg.Pipeline.OptionsPerQuestion, policy)
		for i := range assembled {
			assembled[i].Type = itemType
		}
		p.logger.Info("Assembled questions", zap.String("type", t), zap.Int("count", len(assembled)))
		questions = append(questions, assembled...)
	}
	return questions, nil
}

func (p *PipelineService) judgeRequest(item domain.CandidateItem, t domain.ItemType, mode ScoreMode, stage Stage) AggregateRequest {
	return AggregateRequest{
		Item:          item,
		Type:          t,
		FilterModels:  p.cfg.Pipeline.FilterModels,
		RunsPerModel:  p.cfg.Pipeline.RunsPerModel,
		FallbackModel: p.cfg.Pipeline.JudgeModel,
		Temperature:   p.cfg.Gateway.DefaultTemperature,
		Mode:          mode,
		Stage:         string(stage),
	}
}

func (p *PipelineService) score(ctx context.Context, req AggregateRequest) (int, error) {
	if p.checkpoint != nil {
		if score, ok := p.checkpoint.Load(ctx, req); ok {
			p.logger.Debug("Reusing checkpointed score", zap.String("item_id", req.Item.ID), zap.Int("score", score))
			return score, nil
		}
	}
	res, err := p.aggregator.Aggregate(ctx, req)
	if err != nil {
		return 0, err
	}
	if p.checkpoint != nil {
		p.checkpoint.Store(ctx, req, res.Score)
	}
	return res.Score, nil
}

// abort reports whether err must stop the whole run rather than one item.
func abort(ctx context.Context, err error) bool {
	return domain.IsFatalError(err) || ctx.Err() != nil
}
