// Package textnorm holds the deterministic cleanup passes applied to extracted
// text before chunking and to retrieved chunks before they are returned.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean prepares extracted or raw text for chunking.
//
// An immediately repeated ASCII letter is collapsed to one ("aa" -> "a") to undo
// PDF extraction doubling. Real doubled letters ("see") are collapsed as well;
// the heuristic is lossy and kept that way on purpose.
func Clean(text string) string {
	text = collapseDoubledLetters(text)
	text = norm.NFKD.String(text)
	return collapseSpace(text)
}

// CleanResult is the retrieval-side pass. It is idempotent.
func CleanResult(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	// covers "..." -> "." and ",," -> "," as well
	text = collapseRuns(text, ",;:.!?")
	text = collapseSpace(text)
	text = collapseRuns(text, "•")
	text = collapseDuplicateWords(text)
	text = collapseRuns(text, "<>=")
	return strings.TrimSpace(text)
}

// collapseDoubledLetters scans left to right without overlap, so "aaa" becomes "aa".
func collapseDoubledLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if isASCIILetter(c) && i+1 < len(s) && s[i+1] == c {
			i++
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// collapseRuns replaces a run of the same rune from set with a single rune.
func collapseRuns(s, set string) string {
	var b strings.Builder
	b.Grow(len(s))
	var last rune = -1
	for _, r := range s {
		if r == last && strings.ContainsRune(set, r) {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// splitWords cuts s into alternating maximal runs of word and non-word runes.
func splitWords(s string) []string {
	var tokens []string
	start := 0
	inWord := false
	for i, r := range s {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			tokens = append(tokens, s[start:i])
			start = i
			inWord = w
		}
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

// collapseDuplicateWords drops a whole word repeated right after itself with a
// single space in between, ignoring case. Only single words are collapsed,
// repeated phrases stay untouched.
func collapseDuplicateWords(s string) string {
	tokens := splitWords(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		b.WriteString(tok)
		if !isWordRune(firstRune(tok)) {
			continue
		}
		for i+2 < len(tokens) && tokens[i+1] == " " && strings.EqualFold(tokens[i+2], tok) {
			i += 2
		}
	}
	return b.String()
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return -1
}
