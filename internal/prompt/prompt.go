// Package prompt holds the text templates sent to models. It contains no
// control logic.
package prompt

import (
	"fmt"
	"strings"

	"mathquiz-forge/internal/domain"
)

const evalInstructions = `Below is a mathematical %[1]s. Think step by step and decide whether %[2]s is correct. "Correct" means mathematically correct: judge only the mathematics and the logic, and ignore non-mathematical details such as the contents of a \ref{} or the number of a cited lemma.

Output format: end your answer with your final judgement inside \boxed{}. Return \boxed{T} if you think the %[3]s is correct and \boxed{F} if you think it is incorrect.

`

const generationInstructions = `You are an expert mathematician. You will be given a mathematical %[1]s. Produce 6 similar but incorrect %[2]ss by changing 1 to 3 places of the original. You may, for example, replace keywords or conditions with similar but wrong ones, or alter formulas slightly; other methods are welcome.
Only make mathematical changes. Do not touch references, such as the contents of a \ref{} or the number of a cited lemma.
The incorrect versions must be hard for a non-expert to tell apart from a correct one, so keep every change as subtle as possible, and double check that each version really is incorrect.

Output format: output only the 6 incorrect %[2]ss, with no explanations. Wrap each one in [incorrect_%[2]s_i-start] and [incorrect_%[2]s_i-end]:
[incorrect_%[2]s_1-start]
first incorrect %[2]s
[incorrect_%[2]s_1-end]
[incorrect_%[2]s_2-start]
second incorrect %[2]s
[incorrect_%[2]s_2-end]
...
[incorrect_%[2]s_6-start]
sixth incorrect %[2]s
[incorrect_%[2]s_6-end]`

const judgeInstructions = `Another model was asked whether a mathematical %[1]s is correct, but its final answer could not be read automatically. Read its response below and report the verdict it reached.

Return \boxed{T} if the response concludes the %[1]s is correct and \boxed{F} if it concludes the %[1]s is incorrect. Output nothing else.

Response:
%[2]s`

const choiceInstructions = `Each option below is a mathematical %[1]s. Some are correct and the rest contain subtle mistakes. Identify every correct option.

Think step by step, then end your answer with the labels of all correct options inside \boxed{}, separated by commas, for example \boxed{A, C}.

`

// Body renders content the way every prompt presents it.
func Body(t domain.ItemType, c domain.Content) string {
	if t == domain.ItemTypePropositionProof {
		return fmt.Sprintf("Proposition:\n\n%s\n\n\nProof:\n\n%s", c.Proposition, c.Proof)
	}
	return c.Text
}

// EvalPrompt asks a filter model for a T/F verdict on one item.
func EvalPrompt(t domain.ItemType, c domain.Content) string {
	subject := "definition"
	target := "the definition"
	if t == domain.ItemTypePropositionProof {
		subject = "proposition and its proof"
		target = "the proof"
	}
	return fmt.Sprintf(evalInstructions, subject, target, t.Noun()) + Body(t, c)
}

func EvalMessages(t domain.ItemType, c domain.Content) []domain.Message {
	return []domain.Message{domain.UserMessage(EvalPrompt(t, c))}
}

// GenerationMessages asks a generator model for incorrect variants of seed.
func GenerationMessages(seed domain.SeedItem) []domain.Message {
	subject := "definition"
	if seed.Type == domain.ItemTypePropositionProof {
		subject = "proposition and its proof"
	}
	system := fmt.Sprintf(generationInstructions, subject, seed.Type.Noun())
	return []domain.Message{
		domain.SystemMessage(system),
		domain.UserMessage(Body(seed.Type, seed.Content)),
	}
}

// JudgeMessages asks the fallback judge to read the verdict out of an
// unparsable filter response.
func JudgeMessages(t domain.ItemType, response string) []domain.Message {
	return []domain.Message{domain.UserMessage(fmt.Sprintf(judgeInstructions, t.Noun(), response))}
}

// ChoiceMessages presents a question to a test model.
func ChoiceMessages(t domain.ItemType, q domain.MultipleChoiceQuestion) []domain.Message {
	var b strings.Builder
	fmt.Fprintf(&b, choiceInstructions, t.Noun())
	for _, opt := range q.Options {
		fmt.Fprintf(&b, "(%s)\n%s\n\n", opt.Label, Body(t, opt.Item.Content))
	}
	return []domain.Message{domain.UserMessage(strings.TrimRight(b.String(), "\n"))}
}
