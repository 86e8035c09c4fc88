package service

import (
	"math/rand"
	"sort"
	"time"

	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/util"

	"go.uber.org/zap"
)

type AnswerMode int

const (
	// AnswerFixed requires Required correct options per question and marks
	// exactly that many of them as the answer.
	AnswerFixed AnswerMode = iota
	// AnswerRandomized ignores ground truth and draws a random answer set.
	// Only meant for ablation runs.
	AnswerRandomized
)

// ParseAnswerMode maps the config spelling to an AnswerMode.
func ParseAnswerMode(s string) (AnswerMode, error) {
	switch s {
	case "", "fixed":
		return AnswerFixed, nil
	case "randomized":
		return AnswerRandomized, nil
	}
	return AnswerFixed, domain.NewInvalidInputError("unknown answer mode: " + s)
}

type AnswerPolicy struct {
	Mode     AnswerMode
	Required int
}

// QuestionAssembler draws options from distinct seed groups without reuse.
type QuestionAssembler struct {
	rng    *rand.Rand
	newID  func() string
	logger *zap.Logger
}

// NewQuestionAssembler uses rng for every draw so a fixed seed reproduces the
// same questions. newID defaults to ULIDs.
func NewQuestionAssembler(rng *rand.Rand, newID func() string, logger *zap.Logger) *QuestionAssembler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if newID == nil {
		newID = util.NewULID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionAssembler{rng: rng, newID: newID, logger: logger}
}

// GroupKey derives the seed group of an item from its id.
func GroupKey(itemID string) (string, bool) {
	return domain.SeedIDOf(itemID)
}

// BuildPools groups the original and every candidate of packets by seed id.
// Items whose id does not follow the naming convention are skipped.
func (a *QuestionAssembler) BuildPools(packets []domain.Packet) map[string][]domain.CandidateItem {
	pools := make(map[string][]domain.CandidateItem)
	for _, p := range packets {
		for _, item := range p.Items() {
			key, ok := GroupKey(item.ID)
			if !ok {
				a.logger.Warn("Skipping item with unrecognised id",
					zap.String("stage", "assemble"),
					zap.String("seed_id", p.SeedID),
					zap.String("item_id", item.ID))
				continue
			}
			pools[key] = append(pools[key], item)
		}
	}
	return pools
}

// Assemble builds questions until fewer than optionsPerQuestion non-empty
// groups remain. pools is consumed: every drawn item is removed, and empty
// groups are deleted, whether or not the draw became a question.
func (a *QuestionAssembler) Assemble(pools map[string][]domain.CandidateItem, optionsPerQuestion int, policy AnswerPolicy) []domain.MultipleChoiceQuestion {
	var questions []domain.MultipleChoiceQuestion
	if optionsPerQuestion < 1 {
		return questions
	}

	for {
		keys := nonEmptyGroups(pools)
		if len(keys) < optionsPerQuestion {
			if len(keys) > 0 {
				a.logger.Info("Discarding remainder smaller than a question",
					zap.Int("groups_left", len(keys)),
					zap.Int("options_per_question", optionsPerQuestion))
			}
			return questions
		}

		groups := a.rng.Perm(len(keys))[:optionsPerQuestion]
		options := make([]domain.LabeledOption, optionsPerQuestion)
		var correct []int
		for pos, g := range groups {
			key := keys[g]
			item := a.pop(pools, key)
			options[pos] = domain.LabeledOption{Label: OptionLabel(pos), Item: item}
			if item.GroundTruth == domain.Correct {
				correct = append(correct, pos)
			}
		}

		var answerIdx []int
		switch policy.Mode {
		case AnswerRandomized:
			size := 1 + a.rng.Intn(optionsPerQuestion)
			answerIdx = a.rng.Perm(optionsPerQuestion)[:size]
		default:
			if policy.Required < 1 || len(correct) < policy.Required {
				a.logger.Info("Discarding draw without enough correct options",
					zap.String("stage", "assemble"),
					zap.Int("correct", len(correct)),
					zap.Int("required", policy.Required),
					zap.Strings("item_ids", optionIDs(options)))
				continue
			}
			for _, i := range a.rng.Perm(len(correct))[:policy.Required] {
				answerIdx = append(answerIdx, correct[i])
			}
		}

		sort.Ints(answerIdx)
		answer := make([]string, 0, len(answerIdx))
		for _, i := range answerIdx {
			answer = append(answer, options[i].Label)
		}

		questions = append(questions, domain.MultipleChoiceQuestion{
			ID:      a.newID(),
			Options: options,
			Answer:  answer,
		})
	}
}

// pop removes a uniformly chosen item from the group.
func (a *QuestionAssembler) pop(pools map[string][]domain.CandidateItem, key string) domain.CandidateItem {
	pool := pools[key]
	i := a.rng.Intn(len(pool))
	item := pool[i]
	pool[i] = pool[len(pool)-1]
	pool = pool[:len(pool)-1]
	if len(pool) == 0 {
		delete(pools, key)
	} else {
		pools[key] = pool
	}
	return item
}

func nonEmptyGroups(pools map[string][]domain.CandidateItem) []string {
	keys := make([]string, 0, len(pools))
	for k, v := range pools {
		if len(v) == 0 {
			delete(pools, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func optionIDs(options []domain.LabeledOption) []string {
	ids := make([]string, len(options))
	for i, o := range options {
		ids[i] = o.Item.ID
	}
	return ids
}

// OptionLabel returns A..Z, then AA, AB, and so on.
func OptionLabel(pos int) string {
	label := ""
	for pos >= 0 {
		label = string(rune('A'+pos%26)) + label
		pos = pos/26 - 1
	}
	return label
}
