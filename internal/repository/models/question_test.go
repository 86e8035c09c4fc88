package models

import (
	"database/sql/driver"
	"testing"
	"time"

	"mathquiz-forge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONList_Value(t *testing.T) {
	tests := []struct {
		name    string
		list    JSONList[string]
		wantVal driver.Value
	}{
		{"nil list", nil, "[]"},
		{"empty list", JSONList[string]{}, "[]"},
		{"labels", JSONList[string]{"A", "C"}, `["A","C"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.list.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.wantVal, got)
		})
	}
}

func TestJSONList_Scan(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    JSONList[string]
		wantErr bool
	}{
		{"NULL", nil, JSONList[string]{}, false},
		{"empty string", "", JSONList[string]{}, false},
		{"json null", []byte("null"), JSONList[string]{}, false},
		{"string", `["B"]`, JSONList[string]{"B"}, false},
		{"bytes", []byte(`["A","D"]`), JSONList[string]{"A", "D"}, false},
		{"not json", "A|||B", nil, true},
		{"unsupported type", 42, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got JSONList[string]
			err := got.Scan(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuestionConversion(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := domain.MultipleChoiceQuestion{
		ID:   "01J0000000000000000000000A",
		Type: domain.ItemTypePropositionProof,
		Options: []domain.LabeledOption{
			{Label: "A", Item: domain.CandidateItem{ID: "proof_001_original", GroundTruth: domain.Correct, Content: domain.Content{Proposition: "p", Proof: "q"}}},
			{Label: "B", Item: domain.CandidateItem{ID: "proof_002_gen_1", GroundTruth: domain.Wrong, Content: domain.Content{Proposition: "r", Proof: "s"}}},
		},
		Answer: []string{"A"},
	}

	row := FromDomainQuestion("run-1", 3, q, now)
	assert.Equal(t, "run-1", row.RunID)
	assert.Equal(t, 3, row.Position)
	assert.Equal(t, "proposition-proof", row.ItemType)

	raw, err := row.Options.Value()
	require.NoError(t, err)
	var scanned JSONList[domain.LabeledOption]
	require.NoError(t, scanned.Scan(raw))
	row.Options = scanned

	assert.Equal(t, q, ToDomainQuestion(row))
}
