package service

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"mathquiz-forge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("q%d", n)
	}
}

// singletonPools returns one group per seed, the first holding the correct
// original and the rest one wrong candidate each.
func singletonPools(groups int) map[string][]domain.CandidateItem {
	pools := make(map[string][]domain.CandidateItem, groups)
	for i := 0; i < groups; i++ {
		seed := fmt.Sprintf("def_%03d", i)
		item := domain.CandidateItem{ID: domain.GeneratedID(seed, 0), GroundTruth: domain.Wrong}
		if i == 0 {
			item = domain.CandidateItem{ID: domain.OriginalID(seed), GroundTruth: domain.Correct}
		}
		pools[seed] = []domain.CandidateItem{item}
	}
	return pools
}

func TestAssemble_SingleQuestionFromSixGroups(t *testing.T) {
	a := NewQuestionAssembler(rand.New(rand.NewSource(7)), sequentialIDs(), zap.NewNop())
	pools := singletonPools(6)

	questions := a.Assemble(pools, 6, AnswerPolicy{Mode: AnswerFixed, Required: 1})
	require.Len(t, questions, 1)
	q := questions[0]
	assert.Equal(t, "q1", q.ID)
	require.Len(t, q.Options, 6)
	require.Len(t, q.Answer, 1)

	groups := map[string]bool{}
	for i, o := range q.Options {
		assert.Equal(t, OptionLabel(i), o.Label)
		seed, ok := GroupKey(o.Item.ID)
		require.True(t, ok)
		assert.False(t, groups[seed], "options must come from distinct groups")
		groups[seed] = true
	}
	item, ok := q.Option(q.Answer[0])
	require.True(t, ok)
	assert.Equal(t, domain.Correct, item.GroundTruth)
	assert.Empty(t, pools, "every drawn item is consumed")

	assert.Empty(t, a.Assemble(pools, 6, AnswerPolicy{Mode: AnswerFixed, Required: 1}))
}

func TestAssemble_EveryOptionCorrect(t *testing.T) {
	a := NewQuestionAssembler(rand.New(rand.NewSource(3)), sequentialIDs(), zap.NewNop())
	pools := make(map[string][]domain.CandidateItem, 4)
	for i := 0; i < 4; i++ {
		seed := fmt.Sprintf("def_%03d", i)
		pools[seed] = []domain.CandidateItem{{ID: domain.OriginalID(seed), GroundTruth: domain.Correct}}
	}

	questions := a.Assemble(pools, 4, AnswerPolicy{Mode: AnswerFixed, Required: 4})
	require.Len(t, questions, 1)
	assert.Equal(t, []string{"A", "B", "C", "D"}, questions[0].Answer)
}

func TestAssemble_DiscardsDrawWithoutEnoughCorrect(t *testing.T) {
	a := NewQuestionAssembler(rand.New(rand.NewSource(1)), sequentialIDs(), zap.NewNop())
	pools := singletonPools(5)
	delete(pools, "def_000")

	questions := a.Assemble(pools, 4, AnswerPolicy{Mode: AnswerFixed, Required: 1})
	assert.Empty(t, questions)
	assert.Empty(t, pools, "a discarded draw still consumes its items")
}

func TestAssemble_FixedModePicksExactlyRequired(t *testing.T) {
	pools := map[string][]domain.CandidateItem{}
	for i := 0; i < 4; i++ {
		seed := fmt.Sprintf("def_%03d", i)
		pools[seed] = []domain.CandidateItem{{ID: domain.OriginalID(seed), GroundTruth: domain.Correct}}
	}
	a := NewQuestionAssembler(rand.New(rand.NewSource(3)), sequentialIDs(), zap.NewNop())

	questions := a.Assemble(pools, 4, AnswerPolicy{Mode: AnswerFixed, Required: 2})
	require.Len(t, questions, 1)
	assert.Len(t, questions[0].Answer, 2)
	assert.True(t, sort.StringsAreSorted(questions[0].Answer))
}

func TestAssemble_ExhaustsPoolsWithoutReuse(t *testing.T) {
	pools := map[string][]domain.CandidateItem{}
	total := 0
	for i := 0; i < 8; i++ {
		seed := fmt.Sprintf("def_%03d", i)
		pools[seed] = append(pools[seed], domain.CandidateItem{ID: domain.OriginalID(seed), GroundTruth: domain.Correct})
		for j := 0; j < 3; j++ {
			pools[seed] = append(pools[seed], domain.CandidateItem{ID: domain.GeneratedID(seed, j), GroundTruth: domain.Wrong})
		}
		total += 4
	}
	a := NewQuestionAssembler(rand.New(rand.NewSource(11)), sequentialIDs(), zap.NewNop())

	questions := a.Assemble(pools, 4, AnswerPolicy{Mode: AnswerFixed, Required: 1})
	require.NotEmpty(t, questions)

	used := map[string]bool{}
	for _, q := range questions {
		require.Len(t, q.Options, 4)
		require.Len(t, q.Answer, 1)
		for _, o := range q.Options {
			assert.False(t, used[o.Item.ID], "item %s reused", o.Item.ID)
			used[o.Item.ID] = true
		}
		item, _ := q.Option(q.Answer[0])
		assert.Equal(t, domain.Correct, item.GroundTruth)
	}
	assert.LessOrEqual(t, len(used), total)
	assert.Less(t, len(nonEmptyGroups(pools)), 4)
}

func TestAssemble_RandomizedMode(t *testing.T) {
	a := NewQuestionAssembler(rand.New(rand.NewSource(5)), sequentialIDs(), zap.NewNop())
	pools := map[string][]domain.CandidateItem{}
	for i := 0; i < 40; i++ {
		seed := fmt.Sprintf("def_%03d", i)
		pools[seed] = []domain.CandidateItem{{ID: domain.GeneratedID(seed, 0), GroundTruth: domain.Wrong}}
	}

	questions := a.Assemble(pools, 4, AnswerPolicy{Mode: AnswerRandomized})
	require.Len(t, questions, 10, "ground truth is ignored, so no draw is discarded")
	for _, q := range questions {
		assert.GreaterOrEqual(t, len(q.Answer), 1)
		assert.LessOrEqual(t, len(q.Answer), 4)
		assert.True(t, sort.StringsAreSorted(q.Answer))
		for _, label := range q.Answer {
			_, ok := q.Option(label)
			assert.True(t, ok)
		}
	}
}

func TestAssemble_SameSeedSameQuestions(t *testing.T) {
	packets := []domain.Packet{}
	for i := 0; i < 6; i++ {
		seed := domain.SeedItem{ID: fmt.Sprintf("def_%03d", i), Type: domain.ItemTypeDefinition, Content: domain.Content{Text: "x"}}
		packets = append(packets, domain.Packet{
			SeedID:   seed.ID,
			Type:     seed.Type,
			Original: seed.OriginalCandidate(),
			Candidates: []domain.CandidateItem{
				{ID: domain.GeneratedID(seed.ID, 0), GroundTruth: domain.Wrong},
				{ID: domain.GeneratedID(seed.ID, 1), GroundTruth: domain.Wrong},
			},
		})
	}
	run := func() []domain.MultipleChoiceQuestion {
		a := NewQuestionAssembler(rand.New(rand.NewSource(99)), sequentialIDs(), zap.NewNop())
		return a.Assemble(a.BuildPools(packets), 3, AnswerPolicy{Mode: AnswerFixed, Required: 1})
	}
	assert.Equal(t, run(), run())
}

func TestBuildPools_SkipsUnknownIDs(t *testing.T) {
	a := NewQuestionAssembler(nil, nil, zap.NewNop())
	pools := a.BuildPools([]domain.Packet{{
		SeedID:   "def_001",
		Original: domain.CandidateItem{ID: "def_001_original", GroundTruth: domain.Correct},
		Candidates: []domain.CandidateItem{
			{ID: "def_001_gen_0"},
			{ID: "def_001_gen_x"},
			{ID: "mystery"},
		},
	}})
	require.Len(t, pools, 1)
	assert.Len(t, pools["def_001"], 2)
}

func TestOptionLabel(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"}
	for pos, want := range cases {
		assert.Equal(t, want, OptionLabel(pos), "pos %d", pos)
	}
}

func TestParseAnswerMode(t *testing.T) {
	mode, err := ParseAnswerMode("")
	require.NoError(t, err)
	assert.Equal(t, AnswerFixed, mode)

	mode, err = ParseAnswerMode("randomized")
	require.NoError(t, err)
	assert.Equal(t, AnswerRandomized, mode)

	_, err = ParseAnswerMode("sometimes")
	assert.Error(t, err)
}
