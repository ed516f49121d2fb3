// Package textnorm canonicalizes free-text transaction descriptions so that
// statement text and manually entered text can be compared and learned from.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Point-of-sale, payment and transfer jargon plus reference markers.
	noiseWords = regexp.MustCompile(`\b(?:compras?|pagos?|pse|transferencias?|transf|trf|pos|datafono|debito|credito|automatico|ref|referencia|aut|autorizacion|nro|cus|purchase|payment|transfer)\b`)
	dateParts  = regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}(?:[/.-]\d{2,4})?\b`)
	nonAlnum   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Normalize joins the non-empty fragments and reduces them to lowercase
// ASCII-folded words with noise tokens, date fragments and punctuation removed.
func Normalize(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	s := strings.ToLower(FoldDiacritics(strings.Join(kept, " ")))
	s = noiseWords.ReplaceAllString(s, " ")
	s = dateParts.ReplaceAllString(s, " ")
	s = nonAlnum.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FoldDiacritics decomposes s and drops combining marks ("Bogotá" -> "Bogota").
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens returns the distinct words of an already normalized string.
func Tokens(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
