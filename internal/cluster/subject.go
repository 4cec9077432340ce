package cluster

import (
	"regexp"
	"strings"
)

var (
	replyPrefixes = []string{"re:", "fwd:", "fw:"}

	// Opaque tracking tokens: long alphanumeric runs carrying at least one
	// digit, as found in order references and campaign ids.
	trackingTokenRe = regexp.MustCompile(`\b[a-z0-9_-]{16,}\b`)
	digitRunRe      = regexp.MustCompile(`[0-9]{3,}`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeSubject collapses a subject line to its series fingerprint:
// lowercase, reply/forward prefixes removed, tracking tokens dropped, digit
// runs replaced with a placeholder, whitespace runs collapsed. The function
// is idempotent: normalizing a normalized subject is a no-op.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))

	// Handles stacked prefixes ("Re: Fwd: Re: hello").
	for {
		stripped := false
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	s = trackingTokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		if strings.ContainsAny(tok, "0123456789") {
			return ""
		}
		return tok
	})
	s = digitRunRe.ReplaceAllString(s, "#")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
