package domain

import (
	"fmt"
	"strings"
)

// ItemType distinguishes the two shapes of seed content.
type ItemType string

const (
	ItemTypeDefinition       ItemType = "definition"
	ItemTypePropositionProof ItemType = "proposition-proof"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t == ItemTypeDefinition || t == ItemTypePropositionProof
}

// Noun is the word prompts use for the judged part of an item.
func (t ItemType) Noun() string {
	if t == ItemTypePropositionProof {
		return "proof"
	}
	return "definition"
}

// GroundTruth is the declared label of a candidate.
type GroundTruth string

const (
	Correct GroundTruth = "Correct"
	Wrong   GroundTruth = "Wrong"
)

// Content holds either {Text} for definitions or {Proposition, Proof} for
// proposition-proof items.
type Content struct {
	Text        string `json:"text,omitempty"`
	Proposition string `json:"proposition,omitempty"`
	Proof       string `json:"proof,omitempty"`
}

// Validate checks that the populated fields match the item type.
func (c Content) Validate(t ItemType) error {
	switch t {
	case ItemTypeDefinition:
		if strings.TrimSpace(c.Text) == "" {
			return NewInvalidInputError("definition content requires text")
		}
		if c.Proposition != "" || c.Proof != "" {
			return NewInvalidInputError("definition content must not carry proposition or proof")
		}
	case ItemTypePropositionProof:
		if strings.TrimSpace(c.Proposition) == "" || strings.TrimSpace(c.Proof) == "" {
			return NewInvalidInputError("proposition-proof content requires proposition and proof")
		}
		if c.Text != "" {
			return NewInvalidInputError("proposition-proof content must not carry text")
		}
	default:
		return NewInvalidInputError(fmt.Sprintf("unknown item type %q", t))
	}
	return nil
}

// WithBody returns a copy of c whose judged part is replaced by body. The
// proposition of a proof item is kept.
func (c Content) WithBody(t ItemType, body string) Content {
	if t == ItemTypePropositionProof {
		return Content{Proposition: c.Proposition, Proof: body}
	}
	return Content{Text: body}
}

// SeedItem is a ground-truth definition or proposition-proof pair.
type SeedItem struct {
	ID      string   `json:"id"`
	Type    ItemType `json:"type"`
	Content Content  `json:"content"`
}

func (s SeedItem) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return NewInvalidInputError("seed id is empty")
	}
	if !s.Type.Valid() {
		return NewInvalidInputError(fmt.Sprintf("seed %s has unknown type %q", s.ID, s.Type))
	}
	if err := s.Content.Validate(s.Type); err != nil {
		return fmt.Errorf("seed %s: %w", s.ID, err)
	}
	return nil
}

// OriginalCandidate wraps the seed itself as the Correct candidate of its group.
func (s SeedItem) OriginalCandidate() CandidateItem {
	return CandidateItem{
		ID:          OriginalID(s.ID),
		Content:     s.Content,
		GroundTruth: Correct,
	}
}

// CandidateItem is an original or generated text awaiting judgment.
type CandidateItem struct {
	ID              string      `json:"id"`
	Content         Content     `json:"content"`
	GroundTruth     GroundTruth `json:"ground_truth"`
	GeneratingModel string      `json:"generating_model,omitempty"`
	FilterScore     *int        `json:"filter_score,omitempty"`
}

// WithScore returns a copy of the candidate carrying score.
func (c CandidateItem) WithScore(score int) CandidateItem {
	s := score
	c.FilterScore = &s
	return c
}

// Packet groups a seed's original with the candidates derived from it.
type Packet struct {
	SeedID     string          `json:"seed_id"`
	Type       ItemType        `json:"type"`
	Original   CandidateItem   `json:"original_correct"`
	Candidates []CandidateItem `json:"generated_incorrect"`
}

// Items returns the original followed by every candidate.
func (p Packet) Items() []CandidateItem {
	items := make([]CandidateItem, 0, len(p.Candidates)+1)
	items = append(items, p.Original)
	return append(items, p.Candidates...)
}

// LabeledOption is one answer option of a question.
type LabeledOption struct {
	Label string        `json:"label"`
	Item  CandidateItem `json:"item"`
}

// MultipleChoiceQuestion keeps its options in assembly order. Options is the
// label to item mapping encoded as an ordered list of {label, item} pairs.
type MultipleChoiceQuestion struct {
	ID      string          `json:"id"`
	Type    ItemType        `json:"type"`
	Options []LabeledOption `json:"options"`
	Answer  []string        `json:"answer"`
}

// Option returns the item behind label.
func (q MultipleChoiceQuestion) Option(label string) (CandidateItem, bool) {
	for _, o := range q.Options {
		if o.Label == label {
			return o.Item, true
		}
	}
	return CandidateItem{}, false
}

const (
	originalSuffix = "_original"
	generatedInfix = "_gen_"
)

func OriginalID(seedID string) string {
	return seedID + originalSuffix
}

func GeneratedID(seedID string, i int) string {
	return fmt.Sprintf("%s%s%d", seedID, generatedInfix, i)
}

// SeedIDOf recovers the seed id from an original or generated item id.
func SeedIDOf(itemID string) (string, bool) {
	if strings.HasSuffix(itemID, originalSuffix) {
		seed := strings.TrimSuffix(itemID, originalSuffix)
		return seed, seed != ""
	}
	idx := strings.LastIndex(itemID, generatedInfix)
	if idx <= 0 {
		return "", false
	}
	suffix := itemID[idx+len(generatedInfix):]
	if suffix == "" {
		return "", false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return itemID[:idx], true
}
