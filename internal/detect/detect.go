// internal/detect/detect.go

// Package detect classifies page content against keyword vocabularies: does
// the page show a verification gate (2FA, email confirmation) or an inline
// login error?
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// verificationTerms mark pages that demand out-of-band confirmation a bot
// cannot provide on its own.
var verificationTerms = []string{
	"two-factor",
	"two factor",
	"2fa",
	"verification code",
	"verify your identity",
	"verify your email",
	"confirm your email",
	"check your email",
	"we sent you",
	"we've sent",
	"magic link",
	"confirmation code",
	"one-time",
	"authenticator app",
	"security code",
}

// errorTerms mark inline credential failures.
var errorTerms = []string{
	"incorrect password",
	"wrong password",
	"incorrect email",
	"invalid email",
	"invalid password",
	"invalid credentials",
	"account not found",
	"no account",
	"doesn't match",
	"does not match",
	"login failed",
	"try again",
}

// Policy matches text against a fixed term list.
type Policy struct {
	terms []string
}

// Match returns the first term found in the text.
func (p Policy) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, term := range p.terms {
		if strings.Contains(lowered, term) {
			return term, true
		}
	}
	return "", false
}

// Detector classifies pages during authentication.
type Detector struct {
	verification Policy
	errors       Policy
}

// New creates a Detector with the default vocabularies.
func New() *Detector {
	return &Detector{
		verification: Policy{terms: verificationTerms},
		errors:       Policy{terms: errorTerms},
	}
}

// VerificationGate reports whether the page demands human-side verification.
// The document text, title, and URL all participate: many gates only reveal
// themselves in the URL path (e.g. /two-factor).
func (d *Detector) VerificationGate(html, title, url string) (string, bool) {
	if term, ok := d.verification.Match(VisibleText(html)); ok {
		return term, true
	}
	if term, ok := d.verification.Match(title); ok {
		return term, true
	}
	return d.verification.Match(url)
}

// InlineError reports whether the page shows a credential failure message.
func (d *Detector) InlineError(html string) (string, bool) {
	return d.errors.Match(VisibleText(html))
}

// VisibleText extracts the rendered text of an HTML document, with script
// and style content stripped and whitespace collapsed. Unparsable input
// falls back to the raw string.
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
