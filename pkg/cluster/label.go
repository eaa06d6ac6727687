package cluster

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	labelSeparator   = " / "
	unnamedLabel     = "unnamed"
	labelPunctuation = ".,;:!?\"'()-/[]{}#@$%^&*_+=~`<>|\\"
)

// Label names a group of texts by its most widespread keywords. Words are
// ranked by the number of texts containing them, ties going to the word seen
// first. Only alphabetic words longer than three letters that are not in
// stop qualify. Texts without any qualifying word are labelled "unnamed".
func Label(texts []string, maxWords int, stop StopSet) string {
	if maxWords <= 0 {
		return unnamedLabel
	}

	freq := map[string]int{}
	var order []string

	for _, text := range texts {
		seen := map[string]bool{}
		for _, field := range strings.Fields(strings.ToLower(text)) {
			word := strings.Trim(field, labelPunctuation)
			if seen[word] || !keyword(word, stop) {
				continue
			}
			seen[word] = true
			if freq[word] == 0 {
				order = append(order, word)
			}
			freq[word]++
		}
	}

	if len(order) == 0 {
		return unnamedLabel
	}

	// Stable selection keeps first-seen order among equal frequencies.
	top := make([]string, 0, maxWords)
	used := map[string]bool{}
	for len(top) < maxWords && len(top) < len(order) {
		best := ""
		for _, w := range order {
			if !used[w] && (best == "" || freq[w] > freq[best]) {
				best = w
			}
		}
		used[best] = true
		top = append(top, best)
	}
	return strings.Join(top, labelSeparator)
}

func keyword(word string, stop StopSet) bool {
	if utf8.RuneCountInString(word) <= 3 || stop.Contains(word) {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
