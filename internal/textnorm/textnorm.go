// Package textnorm canonicalizes free-text spreadsheet labels (KPI names,
// segments, subchannels, tribes) so that spelling, accent, dash and spacing
// differences do not break equality checks.
package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dashes lists the dash variants folded into a plain hyphen-minus.
var dashes = strings.NewReplacer(
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2015", "-", // horizontal bar
	"\u2212", "-", // minus sign
	"\ufe63", "-", // small hyphen-minus
	"\uff0d", "-", // fullwidth hyphen-minus
)

// invisible characters that spreadsheets leak into labels.
var invisible = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "", // byte order mark
	"\u00ad", "", // soft hyphen
)

// Normalize returns the comparison key for v: lowercase, accents stripped,
// dash variants folded to "-", whitespace collapsed and trimmed, and no
// spaces around hyphens ("7.1 - Transações" and "7.1-Transacoes" share a key).
// nil yields "". Normalize is idempotent.
func Normalize(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	if s == "" {
		return ""
	}

	s = strings.ToValidUTF8(s, "\uFFFD")
	s = invisible.Replace(s)
	s = dashes.Replace(s)
	s = strings.ToLower(s)
	s = stripMarks(s)

	// strings.Fields splits on unicode.IsSpace, which covers NBSP and the
	// other White_Space code points.
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " -", "-")
	s = strings.ReplaceAll(s, "- ", "-")
	return s
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b any) bool {
	return Normalize(a) == Normalize(b)
}

// Tokens splits a label into normalized word tokens. Letters, digits and
// interior dots are kept together, so "7.1 - Transações" yields
// ["7.1", "transacoes"] and "6-Acessos" yields ["6", "acessos"].
func Tokens(v any) []string {
	fields := strings.FieldsFunc(Normalize(v), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// HasToken reports whether the label contains tok as a standalone token.
func HasToken(v any, tok string) bool {
	want := Normalize(tok)
	for _, t := range Tokens(v) {
		if t == want {
			return true
		}
	}
	return false
}

// stripMarks removes nonspacing marks after canonical decomposition.
// The transformer chain is stateful, so one is built per call.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
