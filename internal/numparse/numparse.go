/*
Package numparse turns short recognized price text into a number.

Recognizer output for a rendered price is a handful of characters, so a fixed rule set is used
instead of general number parsing: known character confusions are substituted first, then the
separator layout decides which separator (if any) is the decimal point.
*/
package numparse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// confusions maps characters the recognizer is known to misread onto the digit or separator
// they stand for. It is a closed table, not spelling correction.
var confusions = strings.NewReplacer(
	"O", "0", "o", "0",
	"l", "1", "I", "1", "|", "1",
	"S", "5", "s", "5",
	"Z", "2", "z", "2",
	"B", "8",
	// Arabic-Indic digits and separators.
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".", "٬", ",",
)

// ThousandsGroup is the digit count after a lone separator that marks it as a thousands
// separator. Quoted prices never carry more than two decimals.
const ThousandsGroup = 3

func isSeparator(r rune) bool { return r == '.' || r == ',' }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// Correct applies the confusion table.
func Correct(text string) string {
	return confusions.Replace(text)
}

// Normalize reduces raw text to a canonical decimal string (digits and at most one '.').
// It returns "" when nothing numeric remains.
func Normalize(text string) string {
	text = Correct(text)

	// Keep digits and separators only. Separators at either end belong to surrounding noise
	// such as a currency abbreviation, not to the number.
	var kept strings.Builder
	for _, r := range text {
		if isDigit(r) || isSeparator(r) {
			kept.WriteRune(r)
		}
	}
	s := strings.TrimFunc(kept.String(), isSeparator)
	if s == "" {
		return ""
	}

	seps := strings.IndexFunc(s, isSeparator)
	if seps < 0 {
		return s
	}
	count := strings.Count(s, ".") + strings.Count(s, ",")
	last := strings.LastIndexFunc(s, isSeparator)

	if count == 1 {
		if len(s)-last-1 == ThousandsGroup {
			return s[:last] + s[last+1:]
		}
		return s[:last] + "." + s[last+1:]
	}

	// Several separators: only the last one is decimal.
	head := strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, s[:last])
	return head + "." + s[last+1:]
}

// Parse converts recognized text into a number. ok is false when the text holds no number.
func Parse(text string) (value float64, ok bool) {
	s := Normalize(text)
	if s == "" || s == "." {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
