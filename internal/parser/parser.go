// Package parser extracts structured results from free-text model output.
// Every function is pure and tolerates arbitrary surrounding prose.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"mathquiz-forge/internal/domain"
)

var generatedStartRe = regexp.MustCompile(`\[incorrect_(proof|definition)_(\d+)-start\]`)

// ParseGeneratedItems returns the trimmed bodies of every
// [incorrect_<kind>_<i>-start] ... [incorrect_<kind>_<i>-end] pair in
// document order. A start marker without its matching end marker is ignored.
func ParseGeneratedItems(text string) []string {
	items := []string{}
	pos := 0
	for pos < len(text) {
		loc := generatedStartRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		kind := text[pos+loc[2] : pos+loc[3]]
		index := text[pos+loc[4] : pos+loc[5]]
		bodyStart := pos + loc[1]

		endMarker := fmt.Sprintf("[incorrect_%s_%s-end]", kind, index)
		end := strings.Index(text[bodyStart:], endMarker)
		if end < 0 {
			pos = bodyStart
			continue
		}
		if body := strings.TrimSpace(text[bodyStart : bodyStart+end]); body != "" {
			items = append(items, body)
		}
		pos = bodyStart + end + len(endMarker)
	}
	return items
}

const boxedOpen = `\boxed{`

// boxedContents returns the content of every \boxed{...} token, honouring
// nested braces. An unterminated token runs to the end of the text.
func boxedContents(text string) []string {
	var out []string
	pos := 0
	for {
		idx := strings.Index(text[pos:], boxedOpen)
		if idx < 0 {
			return out
		}
		start := pos + idx + len(boxedOpen)
		depth := 1
		i := start
		for ; i < len(text) && depth > 0; i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		if depth == 0 {
			out = append(out, text[start:i-1])
		} else {
			out = append(out, text[start:])
		}
		pos = start
	}
}

// ParseEvalResult returns the verdict of the last \boxed token whose content
// holds exactly one of the letters T and F. ok is false when no token
// qualifies; callers must escalate rather than count that as a verdict.
func ParseEvalResult(text string) (domain.Verdict, bool) {
	contents := boxedContents(text)
	for i := len(contents) - 1; i >= 0; i-- {
		hasT := strings.Contains(contents[i], "T")
		hasF := strings.Contains(contents[i], "F")
		switch {
		case hasT && !hasF:
			return domain.VerdictTrue, true
		case hasF && !hasT:
			return domain.VerdictFalse, true
		}
	}
	return "", false
}

// ParseChoiceAnswer reads option labels from the last \boxed token that
// names at least one, e.g. `\boxed{A, C}`. Labels come back sorted and
// de-duplicated.
func ParseChoiceAnswer(text string) ([]string, bool) {
	contents := boxedContents(text)
	for i := len(contents) - 1; i >= 0; i-- {
		if labels := choiceLabels(contents[i]); len(labels) > 0 {
			return labels, true
		}
	}
	return nil, false
}

func choiceLabels(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]struct{})
	var labels []string
	for _, f := range fields {
		if len(f) != 1 || f[0] < 'A' || f[0] > 'Z' {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		labels = append(labels, f)
	}
	sort.Strings(labels)
	return labels
}
