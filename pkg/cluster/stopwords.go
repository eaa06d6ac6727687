package cluster

import "strings"

// Common English function words plus the filler and backchannel vocabulary
// of spoken transcripts. Only words longer than three letters matter for
// labels, but short ones are kept so the list reads naturally.
var defaultStopWords = strings.Fields(`
	a about above after again against all also always am an and another any
	anything anyway are around as at back be been before being below between
	both but by can could did do does doing done down during each else even
	ever every everything few first for from further had has have having he
	her here him his how however i if in into is it its just last like long
	many may maybe me might more most much must my never next no nor not
	nothing now of off on once only or other our out over own perhaps same
	shall she should since so some something still such than that the their
	them then there these they this those though through to too under until
	up very was we were what when where which while who whom why will with
	within without would yet you your

	actually anyway basically certainly clearly definitely exactly frankly
	honestly literally obviously probably really simply truly

	yeah yes okay right sure well gonna wanna gotta kinda sorta hmm uhm umm
	mean kind sort thing things stuff bunch couple whole

	able asked asking came come comes doing getting give gave goes going got
	happen happened keep kept know look looking made make need people said
	say says seem seemed seems start started take talk talking tell think
	told took tried trying want went work worked working feel felt guess
	believe

	answer awesome cool different fine good great interesting little nice
	part point pretty question
`)

// StopSet is a set of lowercase words excluded from cluster labels.
type StopSet map[string]struct{}

// NewStopSet returns the default stop words plus extra, typically the names
// of frequent speakers.
func NewStopSet(extra ...string) StopSet {
	s := make(StopSet, len(defaultStopWords)+len(extra))
	for _, w := range defaultStopWords {
		s[w] = struct{}{}
	}
	for _, w := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			s[w] = struct{}{}
		}
	}
	return s
}

func (s StopSet) Contains(word string) bool {
	_, ok := s[word]
	return ok
}
