// Package normalize provides Unicode normalization for sandbox output before
// heuristic classification. Captured terminal output is hostile input: a
// payload that executed can hide its evidence behind zero-width characters,
// homoglyphs, or stray control bytes, and a sanitizer under test may emit any
// of those legitimately. Every classifier rule matches against the normalized
// form produced here.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// InvisibleRanges defines Unicode ranges stripped before rule matching:
// zero-width characters, bidi controls, variation selectors, and the Tags
// block. Any of these inside captured output is evasion, not content.
var InvisibleRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00AD, Hi: 0x00AD, Stride: 1}, // soft hyphen
		{Lo: 0x200B, Hi: 0x200F, Stride: 1}, // zero-width space through RTL mark
		{Lo: 0x202A, Hi: 0x202E, Stride: 1}, // bidi embedding controls
		{Lo: 0x2060, Hi: 0x2064, Stride: 1}, // word joiner through invisible plus
		{Lo: 0x2066, Hi: 0x2069, Stride: 1}, // bidi isolate controls
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors 1-16
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1}, // BOM / ZWNBSP
		{Lo: 0xFFF9, Hi: 0xFFFB, Stride: 1}, // interlinear annotation anchors
	},
	R32: []unicode.Range32{
		{Lo: 0xE0000, Hi: 0xE007F, Stride: 1}, // Tags block
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1}, // variation selectors supplement
	},
}

// confusableMap maps non-Latin characters that are visually identical to
// Latin letters. NFKC does NOT fold cross-script confusables — Cyrillic а
// (U+0430) stays а, not Latin a — so they are mapped explicitly. Focused on
// characters that appear in shell commands and credential markers.
var confusableMap = map[rune]rune{
	// Cyrillic uppercase → Latin
	'А': 'A', 'В': 'B', 'С': 'C', 'Е': 'E',
	'Н': 'H', 'І': 'I', 'Ј': 'J', 'К': 'K',
	'М': 'M', 'О': 'O', 'Р': 'P', 'Ѕ': 'S',
	'Т': 'T', 'Х': 'X',

	// Cyrillic lowercase → Latin
	'а': 'a', 'в': 'v', 'е': 'e', 'н': 'h',
	'і': 'i', 'к': 'k', 'м': 'm', 'о': 'o',
	'р': 'p', 'с': 'c', 'т': 't', 'у': 'y',
	'х': 'x', 'ј': 'j', 'ѕ': 's',

	// Greek uppercase → Latin
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z',
	'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T',
	'Υ': 'Y', 'Χ': 'X',

	// Greek lowercase → Latin
	'α': 'a', 'ε': 'e', 'ι': 'i', 'κ': 'k',
	'ν': 'v', 'ο': 'o',
}

// StripInvisible removes ASCII control characters (except \t, \n, \r) and
// Unicode zero-width/invisible characters. Whitespace controls are preserved
// because rule patterns use \s+ to match across line breaks in pane captures.
func StripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == 0x7F {
			return -1
		}
		if r >= 0x80 && r <= 0x9F {
			return -1
		}
		if unicode.Is(InvisibleRanges, r) {
			return -1
		}
		return r
	}, s)
}

// ConfusableToASCII folds visually identical non-Latin characters to their
// Latin equivalents. Applied after NFKC to catch the cross-script homoglyphs
// NFKC leaves alone.
func ConfusableToASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if mapped, ok := confusableMap[r]; ok {
			return mapped
		}
		return r
	}, s)
}

// StripCombiningMarks removes combining marks (category Mn) that survive
// NFKC. NFD decomposition reverses NFKC composition first so the marks can
// be dropped.
func StripCombiningMarks(s string) string {
	s = norm.NFD.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
}

// ForOutput applies the full classification pipeline to captured sandbox
// output: strip invisibles (preserving whitespace), NFKC, confusable
// folding, combining-mark removal. All classifier rules match against this
// form.
func ForOutput(s string) string {
	s = StripInvisible(s)
	s = norm.NFKC.String(s)
	s = ConfusableToASCII(s)
	s = StripCombiningMarks(s)
	return s
}
