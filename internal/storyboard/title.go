package storyboard

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxDerivedTitleWords = 6

// DeriveTitle builds a display name for a document from its generation
// prompt. Punctuation collapses to spaces, the result is truncated to a few
// words and title-cased.
func DeriveTitle(prompt string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range prompt {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == ',':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	words := strings.Fields(cleaned.String())
	if len(words) == 0 {
		return "Untitled Storyboard"
	}
	if len(words) > maxDerivedTitleWords {
		words = words[:maxDerivedTitleWords]
	}
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// DefaultClipName returns the display name for a scene at the given index
// when the backend supplies none.
func DefaultClipName(index int) string {
	return fmt.Sprintf("Scene %d", index+1)
}
