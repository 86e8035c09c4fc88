package service

import (
	"encoding/json"
	"strings"

	"mathquiz-forge/internal/domain"
)

// Deduplicate drops generated candidates whose content equals the original,
// or an earlier candidate, once all whitespace is removed. It returns the
// packet with the survivors and the discarded candidates.
func Deduplicate(packet domain.Packet) (domain.Packet, []domain.CandidateItem) {
	seen := map[string]struct{}{contentKey(packet.Original.Content): {}}
	kept := make([]domain.CandidateItem, 0, len(packet.Candidates))
	var dropped []domain.CandidateItem

	for _, c := range packet.Candidates {
		key := contentKey(c.Content)
		if _, dup := seen[key]; dup {
			dropped = append(dropped, c)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}

	packet.Candidates = kept
	return packet, dropped
}

// contentKey is the canonical JSON of the whitespace-stripped fields. Map keys
// marshal sorted, so field order never matters.
func contentKey(c domain.Content) string {
	fields := map[string]string{}
	if c.Text != "" {
		fields["text"] = stripWhitespace(c.Text)
	}
	if c.Proposition != "" {
		fields["proposition"] = stripWhitespace(c.Proposition)
	}
	if c.Proof != "" {
		fields["proof"] = stripWhitespace(c.Proof)
	}
	raw, _ := json.Marshal(fields)
	return string(raw)
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
