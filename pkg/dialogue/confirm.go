package dialogue

import "strings"

// Confirmation is the tri-state answer to the confirmation question.
type Confirmation string

const (
	// ConfirmationUnclear means neither an affirmative nor a negative keyword
	// was found, or the question has not been answered yet.
	ConfirmationUnclear Confirmation = ""

	ConfirmationYes Confirmation = "yes"
	ConfirmationNo  Confirmation = "no"
)

var (
	affirmativeWords = []string{"yes", "yeah", "sure", "yep", "correct", "ok"}
	negativeWords    = []string{"no", "nope", "not", "wrong", "never"}
)

// Classify decides whether utterance confirms or rejects the proposal.
//
// Matching is by substring on the lowercased utterance, so "okay" is
// affirmative and "not really" is negative. Affirmative keywords are checked
// first: an utterance containing both kinds ("yes, no") is classified as yes.
// TODO(dialogue): the yes-before-no precedence comes from check order only;
// revisit once product decides how mixed answers should be treated.
func Classify(utterance string) Confirmation {
	u := strings.ToLower(utterance)
	if containsAny(u, affirmativeWords) {
		return ConfirmationYes
	}
	if containsAny(u, negativeWords) {
		return ConfirmationNo
	}
	return ConfirmationUnclear
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
