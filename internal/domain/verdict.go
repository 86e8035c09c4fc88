package domain

// Verdict is a judge's decision on an item: T for correct, F for incorrect.
type Verdict string

const (
	VerdictTrue  Verdict = "T"
	VerdictFalse Verdict = "F"
)

// VerdictUnparsed is only used when reporting an outcome whose response held
// no verdict. Parsers never return it as a successful value.
const VerdictUnparsed Verdict = "Error"

// Expected returns the verdict a perfect judge would give an item labelled g.
func (g GroundTruth) Expected() Verdict {
	if g == Correct {
		return VerdictTrue
	}
	return VerdictFalse
}
