package billing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	sourceDateLayout = "02/01/2006"
	isoDateLayout    = "2006-01-02"
)

// Candidate is one line item of the document as seen by the parsers.
type Candidate struct {
	// Text is the trimmed text of the whole line.
	Text string
	// Cells holds the trimmed text of every cell when the line is a table row.
	Cells []string
	// Href is the target of the first anchor of the line, empty when it has none.
	Href string
}

// Fields are the billing values read off a line.
type Fields struct {
	StartDate time.Time
	EndDate   time.Time
	Amount    float64
	Currency  string
}

// FieldPattern finds the raw date, amount and currency tokens of a line.
type FieldPattern interface {
	Match(c Candidate) (start, end, amount, currency string, ok bool)
}

// InlineFields reads both dates, the amount and the currency off the text of the
// line. Pattern must have four groups in that order.
type InlineFields struct {
	Pattern *regexp.Regexp
}

// DefaultInlinePattern matches "du 01/01/2020 au 31/01/2020 9,99 €".
// \s does not cover non-breaking spaces, \p{Zs} does.
var DefaultInlinePattern = regexp.MustCompile(
	`(?s)(\d\d/\d\d/\d\d\d\d).*?(\d\d/\d\d/\d\d\d\d).*?(\d+,\d\d)[\s\p{Zs}]+([^\s\p{Zs}]+)`,
)

func (f InlineFields) Match(c Candidate) (string, string, string, string, bool) {
	groups := f.Pattern.FindStringSubmatch(c.Text)
	if len(groups) < 5 {
		return "", "", "", "", false
	}
	return groups[1], groups[2], groups[3], groups[4], true
}

// CellFields reads the dates off the text of the row and the amount and currency
// off a single cell, where they are the first two whitespace separated tokens.
type CellFields struct {
	Dates      *regexp.Regexp
	AmountCell int
}

// DefaultDatesPattern matches the first two dates of a text.
var DefaultDatesPattern = regexp.MustCompile(`(?s)(\d\d/\d\d/\d\d\d\d).*?(\d\d/\d\d/\d\d\d\d)`)

func (f CellFields) Match(c Candidate) (string, string, string, string, bool) {
	groups := f.Dates.FindStringSubmatch(c.Text)
	if len(groups) < 3 {
		return "", "", "", "", false
	}
	if f.AmountCell < 0 || f.AmountCell >= len(c.Cells) {
		return "", "", "", "", false
	}
	// strings.Fields splits on unicode.IsSpace which includes U+00A0
	tokens := strings.Fields(c.Cells[f.AmountCell])
	if len(tokens) < 2 {
		return "", "", "", "", false
	}
	return groups[1], groups[2], tokens[0], tokens[1], true
}

// FieldParser tries each of its patterns in order, the first one to match wins.
type FieldParser []FieldPattern

func (p FieldParser) Parse(c Candidate) (Fields, error) {
	for _, pattern := range p {
		start, end, amount, currency, ok := pattern.Match(c)
		if !ok {
			continue
		}
		return normalizeFields(start, end, amount, currency)
	}
	return Fields{}, fmt.Errorf("%w: no pattern matches %q", ErrUnparseableLine, c.Text)
}

func normalizeFields(start, end, amount, currency string) (Fields, error) {
	startDate, err := ParseDate(start)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: start date: %s", ErrUnparseableLine, err.Error())
	}
	endDate, err := ParseDate(end)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: end date: %s", ErrUnparseableLine, err.Error())
	}
	if endDate.Before(startDate) {
		return Fields{}, fmt.Errorf(
			"%w: period ends (%s) before it starts (%s)",
			ErrUnparseableLine, FormatDate(endDate), FormatDate(startDate),
		)
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: amount: %s", ErrUnparseableLine, err.Error())
	}
	if currency == "" {
		return Fields{}, fmt.Errorf("%w: empty currency", ErrUnparseableLine)
	}
	return Fields{
		StartDate: startDate,
		EndDate:   endDate,
		Amount:    value,
		Currency:  currency,
	}, nil
}

// ParseDate parses a DD/MM/YYYY date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(sourceDateLayout, s)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(isoDateLayout)
}

var amountRegex = regexp.MustCompile(`^\d+(,\d+)?$`)

// ParseAmount parses an amount written with a comma as decimal separator.
func ParseAmount(s string) (float64, error) {
	if !amountRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}
