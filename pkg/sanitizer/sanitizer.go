package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

// Pipeline applies strategies in order.
type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	serviceNamePipeline = Pipeline{TrimAndNormalize}
	identifierPipeline  = Pipeline{strings.TrimSpace, stripControl}
	sessionIDPipeline   = Pipeline{strings.TrimSpace, stripControl, strings.ToLower}
)

// TrimAndNormalize trims the string and collapses inner whitespace runs to a
// single space.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeServiceName normalizes the service name a caller asks a robot for.
func SanitizeServiceName(input string) string {
	return serviceNamePipeline.Apply(input)
}

// SanitizeSessionID normalizes a session ID taken from a header or body.
// Session IDs are lowercase UUIDs.
func SanitizeSessionID(input string) string {
	return sessionIDPipeline.Apply(input)
}

// SanitizeSignature trims a base58 transaction signature. Base58 is case
// sensitive, so case is preserved.
func SanitizeSignature(input string) string {
	return identifierPipeline.Apply(input)
}
