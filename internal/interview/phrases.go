package interview

import "strings"

// Matching is plain case-insensitive containment, so an answer that merely
// contains "sorry" counts as a repeat request.
var (
	terminationPhrases = []string{
		"quit",
		"stop",
		"end the interview",
		"i want to quit",
		"i don't want to continue",
	}

	repeatPhrases = []string{
		"repeat",
		"say that again",
		"can you repeat",
		"what was the question",
		"pardon",
		"sorry",
	}
)

// IsTermination reports whether text asks to end the interview.
func IsTermination(text string) bool {
	return containsAny(text, terminationPhrases)
}

// IsRepeat reports whether text asks for the last question again.
func IsRepeat(text string) bool {
	return containsAny(text, repeatPhrases)
}

func containsAny(text string, phrases []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
