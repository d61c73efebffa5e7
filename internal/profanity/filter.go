// Package profanity screens outgoing chat text against a word list. A match
// causes the message to be rejected back to its sender without broadcast.
package profanity

import (
	"strings"
	"unicode"
)

// defaultWords mirrors the common word-list filters used by chat frontends.
// Matching is whole-word and case-insensitive, so "bass" never trips "ass".
var defaultWords = []string{
	"ass",
	"asshole",
	"bastard",
	"bitch",
	"bollocks",
	"crap",
	"cunt",
	"damn",
	"dick",
	"fuck",
	"fucker",
	"fucking",
	"piss",
	"prick",
	"shit",
	"slut",
	"twat",
	"wanker",
	"whore",
}

// Filter reports whether text contains a blocked word.
type Filter struct {
	words map[string]struct{}
}

// NewFilter creates a filter with the default word list plus any extra words,
// typically supplied through configuration.
func NewFilter(extra ...string) *Filter {
	words := make(map[string]struct{}, len(defaultWords)+len(extra))
	for _, w := range defaultWords {
		words[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range extra {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return &Filter{words: words}
}

// IsProfane reports whether any whole word of text, compared
// case-insensitively, is on the block list.
func (f *Filter) IsProfane(text string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, token := range tokens {
		if _, blocked := f.words[token]; blocked {
			return true
		}
	}
	return false
}
