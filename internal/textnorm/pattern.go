package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPatternLength is the shortest merchant pattern considered specific
// enough to learn a category rule from.
const MinPatternLength = 3

var (
	leadingPhrase = regexp.MustCompile(`^(?:compras?(?:\s+(?:en|de))?|pagos?(?:\s+(?:en|de|a))?|pse|transferencias?(?:\s+(?:a|de|desde))?|transf|retiros?(?:\s+(?:en|de))?|abonos?(?:\s+(?:a|de))?|depositos?|consignacion(?:es)?|purchase|payment|transfer|withdrawal|deposit)(?:\s+|$)`)
	taxID         = regexp.MustCompile(`\bnit\.?\s*:?\s*[\d.\-]+`)
	longDigits    = regexp.MustCompile(`\d{4,}`)
	cityNames     = regexp.MustCompile(`\b(?:bogota|medellin|cali|barranquilla|cartagena|bucaramanga|pereira|manizales|cucuta|santa marta|ibague|villavicencio|pasto|monteria|neiva|armenia|popayan|tunja)\b`)
	countryCodes  = regexp.MustCompile(`\b(?:col|co|usa|us)\b`)
	asterisks     = regexp.MustCompile(`\*+`)
)

// ExtractPattern derives a merchant fingerprint from the first non-empty of
// merchant name, clean description and raw description. The boolean is false
// when nothing specific enough remains.
func ExtractPattern(merchant, clean, raw string) (string, bool) {
	var src string
	for _, s := range []string{merchant, clean, raw} {
		if s = strings.TrimSpace(s); s != "" {
			src = s
			break
		}
	}
	if src == "" {
		return "", false
	}

	s := strings.ToLower(FoldDiacritics(src))
	for {
		next := strings.TrimSpace(leadingPhrase.ReplaceAllString(s, ""))
		if next == s {
			break
		}
		s = next
	}
	s = taxID.ReplaceAllString(s, " ")
	s = dateParts.ReplaceAllString(s, " ")
	s = longDigits.ReplaceAllString(s, " ")
	s = cityNames.ReplaceAllString(s, " ")
	s = countryCodes.ReplaceAllString(s, " ")
	s = asterisks.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))

	if utf8.RuneCountInString(s) < MinPatternLength {
		return "", false
	}
	return s, true
}
