package services

import "unicode"

// CountTokens is the deterministic tokenizer applied to every outgoing user
// message. Runs of letters or digits count as one token each; every other
// non-space rune counts on its own. No truncation, no limits.
func CountTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		default:
			count++
			inWord = false
		}
	}
	return count
}
