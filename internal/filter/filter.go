// Package filter implements the deterministic text predicates used by a
// RecognitionSession to reject or clean up repetition-driven recognizer
// hallucinations and to collapse repeated phrases in partial transcripts.
//
// Go's regexp package (RE2) has no backreference support, so the
// repetition checks below are hand-rolled scans rather than the
// backreference patterns a PCRE-flavored regex engine would use for the
// same rule.
package filter

import (
	"regexp"
	"strings"
)

var (
	wordRe          = regexp.MustCompile(`\w+`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

// minTruncatedLen is the shortest truncated prefix worth keeping once a
// repetition run has been cut away; anything shorter is pure noise.
const minTruncatedLen = 10

// Clean rejects text that looks like a repetition-driven hallucination and
// otherwise truncates it before the first repeated run. ok is false when the
// text should be dropped entirely.
func Clean(text string) (cleaned string, ok bool) {
	if len(strings.TrimSpace(text)) < 2 {
		return "", false
	}

	if hasRepeatedRune(text, 6) {
		return "", false
	}

	if cut, found := firstRepeatedSubstring(text, 2, 8, 4); found {
		return truncateOrReject(text, cut)
	}

	if cut, found := firstRepeatedWordRun(text, 1, 5); found {
		return truncateOrReject(text, cut)
	}

	if cut, found := firstRepeatedWordRun(text, 2, 4); found {
		return truncateOrReject(text, cut)
	}

	if hasRepeatedSentence(text) {
		return "", false
	}

	if isMostlyNonASCII(text) {
		return "", false
	}

	return text, true
}

func truncateOrReject(text string, cutAt int) (string, bool) {
	truncated := strings.TrimSpace(text[:cutAt])
	if len(truncated) >= minTruncatedLen {
		return truncated, true
	}
	return "", false
}

// hasRepeatedRune reports whether any single rune repeats consecutively at
// least minRun times.
func hasRepeatedRune(text string, minRun int) bool {
	var prev rune
	run := 0
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		prev = r
		if run >= minRun {
			return true
		}
	}
	return false
}

// firstRepeatedSubstring finds the earliest position in text where a
// substring of length in [minLen, maxLen] repeats immediately, consecutively,
// at least minRepeats times (the first occurrence counts as one repeat).
// Returns the byte offset of that position.
func firstRepeatedSubstring(text string, minLen, maxLen, minRepeats int) (int, bool) {
	runes := []rune(text)
	n := len(runes)
	for i := 0; i < n; i++ {
		for length := maxLen; length >= minLen; length-- {
			if i+length > n {
				continue
			}
			if countRuneRepeats(runes, i, length) >= minRepeats {
				return runeIndexToByteOffset(text, i), true
			}
		}
	}
	return 0, false
}

func countRuneRepeats(runes []rune, start, length int) int {
	count := 1
	pos := start + length
	for pos+length <= len(runes) {
		if !runeSliceEqual(runes[start:start+length], runes[pos:pos+length]) {
			break
		}
		count++
		pos += length
	}
	return count
}

func runeSliceEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func runeIndexToByteOffset(text string, runeIdx int) int {
	count := 0
	for i := range text {
		if count == runeIdx {
			return i
		}
		count++
	}
	return len(text)
}

// firstRepeatedWordRun finds the earliest run of phraseLen consecutive
// words (\w+ runs, case-insensitive) repeating at least
// minRepeats times, and returns the byte offset where that run starts.
func firstRepeatedWordRun(text string, phraseLen, minRepeats int) (int, bool) {
	spans := wordRe.FindAllStringIndex(text, -1)
	if len(spans) < phraseLen*minRepeats {
		return 0, false
	}
	tokens := make([]string, len(spans))
	for i, s := range spans {
		tokens[i] = strings.ToLower(text[s[0]:s[1]])
	}

	for i := 0; i+phraseLen <= len(tokens); i++ {
		if countWordRepeats(tokens, i, phraseLen) >= minRepeats {
			return spans[i][0], true
		}
	}
	return 0, false
}

func countWordRepeats(tokens []string, start, phraseLen int) int {
	phrase := strings.Join(tokens[start:start+phraseLen], " ")
	count := 1
	pos := start + phraseLen
	for pos+phraseLen <= len(tokens) {
		if strings.Join(tokens[pos:pos+phraseLen], " ") != phrase {
			break
		}
		count++
		pos += phraseLen
	}
	return count
}

func hasRepeatedSentence(text string) bool {
	parts := sentenceSplitRe.Split(text, -1)
	counts := make(map[string]int, len(parts))
	total := 0
	for _, p := range parts {
		s := strings.ToLower(strings.TrimSpace(p))
		if len(s) <= 10 {
			continue
		}
		counts[s]++
		total++
	}
	if total < 3 {
		return false
	}
	for _, c := range counts {
		if c >= 3 {
			return true
		}
	}
	return false
}

// isMostlyNonASCII reports whether text is long enough and has a low enough
// fraction of ASCII bytes to suggest a wrong-language hallucination. The
// ratio is computed over bytes, not runes.
func isMostlyNonASCII(text string) bool {
	if len(text) <= 10 {
		return false
	}
	ascii := 0
	for i := 0; i < len(text); i++ {
		if text[i] < 128 {
			ascii++
		}
	}
	return float64(ascii)/float64(len(text)) < 0.10
}

// DedupPhrases collapses a run of a repeated word or short phrase in a
// partial transcript. It scans words left to right; at each position it
// tries phrase lengths 1..min(3, remaining/2) and, on finding more than
// maxRepeats consecutive repetitions, truncates at the first occurrence of
// the phrase. The result is always a prefix of the input by word split.
func DedupPhrases(text string, maxRepeats int) string {
	words := strings.Fields(text)
	if len(words) <= maxRepeats {
		return text
	}

	for i := 0; i < len(words); i++ {
		maxLen := min(3, (len(words)-i)/2)
		for phraseLen := 1; phraseLen <= maxLen; phraseLen++ {
			repeats := countConsecutiveRepeats(words, i, phraseLen)
			if repeats > maxRepeats {
				return strings.Join(words[:i+phraseLen], " ")
			}
		}
	}
	return text
}

func countConsecutiveRepeats(words []string, i, phraseLen int) int {
	phrase := strings.Join(words[i:i+phraseLen], " ")
	count := 1
	pos := i + phraseLen
	for pos+phraseLen <= len(words) {
		next := strings.Join(words[pos:pos+phraseLen], " ")
		if next != phrase {
			break
		}
		count++
		pos += phraseLen
	}
	return count
}
