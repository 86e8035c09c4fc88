package validation

import (
	"strconv"
	"strings"

	"mathquiz-forge/internal/domain"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRunID accepts run ids minted by the pipeline, which are ULIDs.
func (v *Validator) ValidateRunID(runID string) domain.ValidationErrors {
	if strings.TrimSpace(runID) == "" {
		return domain.ValidationErrors{domain.NewMissingFieldError("run_id")}
	}
	if _, err := ulid.ParseStrict(runID); err != nil {
		return domain.ValidationErrors{domain.NewInvalidFormatError("run_id", runID)}
	}
	return nil
}

// ParseLimit reads an optional limit query value, defaulting to DefaultLimit.
func (v *Validator) ParseLimit(raw string) (int, domain.ValidationErrors) {
	if strings.TrimSpace(raw) == "" {
		return DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationErrors{domain.NewInvalidFormatError("limit", raw)}
	}
	if limit < 1 || limit > MaxLimit {
		return 0, domain.ValidationErrors{domain.NewOutOfRangeError("limit", limit, 1, MaxLimit)}
	}
	return limit, nil
}
