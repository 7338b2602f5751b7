// Package format normalizes money and dates between the import service's
// wire representation and what reviewers read.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DisplayDateLayout is the day-first layout reviewers see.
const DisplayDateLayout = "02/01/2006"

// wireLayouts are the timestamp shapes the import service emits, most specific
// first. Naive timestamps are read as UTC.
var wireLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102150405",
	"20060102",
	DisplayDateLayout,
}

// Money renders decimal amounts for a locale with a fixed currency symbol.
type Money struct {
	printer  *message.Printer
	symbol   string
	fraction string
}

// NewMoney creates a formatter for the given BCP 47 locale and symbol.
func NewMoney(locale, symbol string) (*Money, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	printer := message.NewPrinter(tag)
	return &Money{
		printer:  printer,
		symbol:   symbol,
		fraction: fractionSeparator(printer),
	}, nil
}

// fractionSeparator learns the locale's decimal mark from a sample number.
func fractionSeparator(p *message.Printer) string {
	sample := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	for i := len(sample) - 1; i >= 0; i-- {
		if !unicode.IsDigit(sample[i]) {
			return string(sample[i])
		}
	}
	return "."
}

// Format renders amount with two fraction digits, e.g. "R$ -1.234,50" for
// pt-BR. Digits come from the decimal string, never from a float.
func (m *Money) Format(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	whole, cents, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")

	grouped := whole
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		grouped = m.printer.Sprint(number.Decimal(n))
	}

	value := grouped + m.fraction + cents
	if rounded.IsNegative() {
		value = "-" + value
	}
	if m.symbol == "" {
		return value
	}
	return m.symbol + " " + value
}

// ParseAmount parses a decimal amount, accepting either "." or "," as the
// decimal separator when only one of them is present.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		// The rightmost separator is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseDate parses the timestamp shapes the import service produces.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Date renders t day-first.
func Date(t time.Time) string {
	return t.Format(DisplayDateLayout)
}

// DayKey truncates t to its UTC calendar day, so timestamps carrying
// different offsets compare on one calendar.
func DayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	days := int(DayKey(b).Sub(DayKey(a)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
