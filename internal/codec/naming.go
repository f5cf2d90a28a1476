package codec

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WireType converts a PascalCase message tag to its dash-separated,
// lower-case wire type name.
//
//	OrderPlaced    -> order-placed
//	HTTPServer     -> http-server
//	Item2Received  -> item2-received
//
// The conversion is deterministic but not injective; it is only ever applied
// to the closed set of tags a codec registers.
func WireType(tag string) string {
	words := splitWords(tag)
	if len(words) == 0 {
		return tag
	}
	lower := cases.Lower(language.Und)
	for i, w := range words {
		words[i] = lower.String(w)
	}
	return strings.Join(words, "-")
}

// splitWords segments a camel or Pascal case identifier. Runs of two or more
// upper-case letters form one word (an acronym) unless the last of them
// starts a capitalised word; letters may be followed by digits.
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsUpper(r):
			if end, ok := acronymEnd(runes, i); ok {
				words = append(words, string(runes[i:end]))
				i = end
				continue
			}
			end := i + 1
			for end < len(runes) && unicode.IsLower(runes[end]) {
				end++
			}
			if end > i+1 {
				end = skipDigits(runes, end)
			}
			words = append(words, string(runes[i:end]))
			i = end

		case unicode.IsLower(r):
			end := i
			for end < len(runes) && unicode.IsLower(runes[end]) {
				end++
			}
			end = skipDigits(runes, end)
			words = append(words, string(runes[i:end]))
			i = end

		case unicode.IsDigit(r):
			end := skipDigits(runes, i)
			words = append(words, string(runes[i:end]))
			i = end

		default:
			// separators are dropped
			i++
		}
	}
	return words
}

func acronymEnd(runes []rune, start int) (int, bool) {
	end := start
	for end < len(runes) && unicode.IsUpper(runes[end]) {
		end++
	}
	switch {
	case end == len(runes):
	case unicode.IsLower(runes[end]):
		end--
	case unicode.IsLetter(runes[end]) || unicode.IsDigit(runes[end]):
		return 0, false
	}
	return end, end-start >= 2
}

func skipDigits(runes []rune, i int) int {
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	return i
}
