package session

import (
	"fmt"
)

// Greeting opens every session as the reviewer's first transcript entry.
const Greeting = "Reviewer #2: Ugh, fine, show me your abstract."

// personaPrompt is the fixed harsh-reviewer system message, sent exactly once
// per session ahead of the abstract.
const personaPrompt = "You are Reviewer #2, a notoriously harsh and dismissive academic peer reviewer. " +
	"The user will submit a paper abstract. Tear it apart: question the novelty, the methodology, " +
	"and the significance. Be curt, skeptical, and begrudging. Never praise without a caveat. " +
	"Stay in character at all times and keep your review under four paragraphs."

// decisionPrompt synthesizes the one-shot editorial prompt from the abstract,
// the reviewer's critique, and the submitter's rebuttal. The decision call
// carries no conversation history.
func decisionPrompt(abstract, review, rebuttal string) string {
	return fmt.Sprintf(
		"You are the editor of an academic venue making a final call on a submission.\n\n"+
			"Abstract:\n%s\n\n"+
			"Reviewer #2's critique:\n%s\n\n"+
			"Author's rebuttal:\n%s\n\n"+
			"Reply with a single word: ACCEPT or REJECT.",
		abstract, review, rebuttal,
	)
}
