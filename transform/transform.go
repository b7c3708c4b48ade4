// Package transform implements the Inline XBRL transformation registries.
//
// iXBRL lets filers tag display text like "1,234.50" or "17th of January
// 2022"; the format attribute names a transformation rule that maps the
// display text to the canonical XBRL value. Registries are keyed by
// namespace; SEC EDGAR accepts registries 2 through 4 plus its own.
package transform

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Registry namespaces accepted by Apply.
const (
	NSIXT2008 = "http://www.xbrl.org/2008/inlineXBRL/transformation"
	NSIXT2010 = "http://www.xbrl.org/inlineXBRL/transformation/2010-04-20"
	NSIXT2    = "http://www.xbrl.org/inlineXBRL/transformation/2011-07-31"
	NSIXT3    = "http://www.xbrl.org/inlineXBRL/transformation/2015-02-26"
	NSIXT4    = "http://www.xbrl.org/inlineXBRL/transformation/2020-02-12"
	NSIXTSEC  = "http://www.sec.gov/inlineXBRL/transformation/2015-08-31"
)

// UnknownFormatError reports a format that no supported registry implements.
// Unknown transforms fail loudly; silently passing the display text through
// corrupts downstream numerics.
type UnknownFormatError struct {
	Registry string
	Format   string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("transform: unknown rule %q in registry %s", e.Format, e.Registry)
}

// ParseError reports display text a known rule could not normalize.
type ParseError struct {
	Format string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transform: cannot apply %s to %q: %s", e.Format, e.Value, e.Reason)
}

type rule func(string) (string, error)

// Apply normalizes display text using the named rule of the registry bound
// to namespace.
func Apply(namespace, format, value string) (string, error) {
	table, ok := registries[namespace]
	if !ok {
		return "", &UnknownFormatError{Registry: namespace, Format: format}
	}
	fn, ok := table[format]
	if !ok {
		return "", &UnknownFormatError{Registry: namespace, Format: format}
	}
	return fn(strings.ToLower(strings.TrimSpace(value)))
}

// Supported reports whether the (namespace, format) pair is implemented.
func Supported(namespace, format string) bool {
	table, ok := registries[namespace]
	if !ok {
		return false
	}
	_, ok = table[format]
	return ok
}

var registries map[string]map[string]rule

func init() {
	// Inline XBRL Part 1 Specification 1.0 rules (2008/2010 documents share
	// the table).
	ixt1 := map[string]rule{
		"datedoteu":           dateDayMonthYear,
		"datedotus":           dateMonthDayYear,
		"datelonguk":          dateDayMonthYearEN,
		"datelongus":          dateMonthDayYearEN,
		"dateshortuk":         dateDayMonthYearEN,
		"dateshortus":         dateMonthDayYearEN,
		"dateslasheu":         dateDayMonthYear,
		"dateslashus":         dateMonthDayYear,
		"datelongdaymonthuk":  dateDayMonthEN,
		"datelongmonthdayus":  dateMonthDayEN,
		"dateshortdaymonthuk": dateDayMonthEN,
		"dateshortmonthdayus": dateMonthDayEN,
		"dateslashdaymontheu": dateDayMonth,
		"dateslashmonthdayus": dateMonthDay,
		"datelongyearmonth":   dateYearMonthEN,
		"dateshortyearmonth":  dateYearMonthEN,
		"datelongmonthyear":   dateMonthYearEN,
		"dateshortmonthyear":  dateMonthYearEN,
		"numcomma":            numCommaDecimal,
		"numcommadot":         numDotDecimal,
		"numdash":             fixed("0"),
		"numdotcomma":         numCommaDecimal,
		"numspacecomma":       numCommaDecimal,
		"numspacedot":         numDotDecimal,
	}

	ixt2 := map[string]rule{
		"booleanfalse":       fixed("false"),
		"booleantrue":        fixed("true"),
		"datedaymonth":       dateDayMonth,
		"datedaymonthen":     dateDayMonthEN,
		"datedaymonthyear":   dateDayMonthYear,
		"datedaymonthyearen": dateDayMonthYearEN,
		"datemonthday":       dateMonthDay,
		"datemonthdayen":     dateMonthDayEN,
		"datemonthdayyear":   dateMonthDayYear,
		"datemonthdayyearen": dateMonthDayYearEN,
		"datemonthyearen":    dateMonthYearEN,
		"dateyearmonthen":    dateYearMonthEN,
		"nocontent":          fixed(""),
		"numcommadecimal":    numCommaDecimal,
		"numdotdecimal":      numDotDecimal,
		"zerodash":           fixed("0"),
	}

	ixt3 := map[string]rule{
		"booleanfalse":       fixed("false"),
		"booleantrue":        fixed("true"),
		"datedaymonth":       dateDayMonth,
		"datedaymonthen":     dateDayMonthEN,
		"datedaymonthyear":   dateDayMonthYear,
		"datedaymonthyearen": dateDayMonthYearEN,
		"datemonthday":       dateMonthDay,
		"datemonthdayen":     dateMonthDayEN,
		"datemonthdayyear":   dateMonthDayYear,
		"datemonthdayyearen": dateMonthDayYearEN,
		"datemonthyear":      dateMonthYear,
		"datemonthyearen":    dateMonthYearEN,
		"dateyearmonthday":   dateYearMonthDay,
		"dateyearmonthen":    dateYearMonthEN,
		"nocontent":          fixed(""),
		"numcommadecimal":    numCommaDecimal,
		"numdotdecimal":      numDotDecimal,
		"zerodash":           fixed("0"),
	}

	ixt4 := map[string]rule{
		"date-day-month":             dateDayMonth,
		"date-day-month-year":        dateDayMonthYear,
		"date-day-monthname-en":      dateDayMonthEN,
		"date-day-monthname-year-en": dateDayMonthYearEN,
		"date-month-day":             dateMonthDay,
		"date-month-day-year":        dateMonthDayYear,
		"date-month-year":            dateMonthYear,
		"date-monthname-day-en":      dateMonthDayEN,
		"date-monthname-day-year-en": dateMonthDayYearEN,
		"date-year-month":            dateYearMonth,
		"date-year-month-day":        dateYearMonthDay,
		"date-year-monthname-en":     dateYearMonthEN,
		"fixed-empty":                fixed(""),
		"fixed-false":                fixed("false"),
		"fixed-true":                 fixed("true"),
		"fixed-zero":                 fixed("0"),
		"num-comma-decimal":          numCommaDecimal,
		"num-dot-decimal":            numDotDecimal,
	}

	// SEC-specific registry, edgarfm-vol2.
	ixtSEC := map[string]rule{
		"duryear":              durYear,
		"durmonth":             durMonth,
		"durwordsen":           durWordsEN,
		"numwordsen":           numWordsEN,
		"boolballotbox":        ballotBox,
		"exchnameen":           exchNameEN,
		"stateprovnameen":      stateNameEN,
		"entityfilercategoryen": filerCategoryEN,
	}

	registries = map[string]map[string]rule{
		NSIXT2008: ixt1,
		NSIXT2010: ixt1,
		NSIXT2:    ixt2,
		NSIXT3:    ixt3,
		NSIXT4:    ixt4,
		NSIXTSEC:  ixtSEC,
	}
}

func fixed(out string) rule {
	return func(string) (string, error) { return out, nil }
}

var (
	digitSplit = regexp.MustCompile(`[^\d]+`)
	wordSplit  = regexp.MustCompile(`[^\d\p{L}]+`)
)

var monthNorm = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05",
	"jun": "06", "jul": "07", "aug": "08", "sep": "09", "sept": "09",
	"oct": "10", "nov": "11", "dec": "12",
	"january": "01", "february": "02", "march": "03", "april": "04",
	"june": "06", "july": "07", "august": "08", "september": "09",
	"october": "10", "november": "11", "december": "12",
}

func month(format, name string) (string, error) {
	if m, ok := monthNorm[name]; ok {
		return m, nil
	}
	return "", &ParseError{Format: format, Value: name, Reason: "unknown month name"}
}

func yearNorm(format, year string) (string, error) {
	switch len(year) {
	case 4:
		return year, nil
	case 2:
		// Two-digit years pivot at 55, matching the registry's convention.
		if year > "55" {
			return "19" + year, nil
		}
		return "20" + year, nil
	}
	return "", &ParseError{Format: format, Value: year, Reason: "not a year"}
}

func segments(format, value string, re *regexp.Regexp, want int) ([]string, error) {
	seg := re.Split(strings.Trim(value, " \t\n.,"), -1)
	var out []string
	for _, s := range seg {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) < want {
		return nil, &ParseError{Format: format, Value: value, Reason: fmt.Sprintf("expected %d segments", want)}
	}
	return out, nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func dateDayMonth(v string) (string, error) {
	seg, err := segments("datedaymonth", v, digitSplit, 2)
	if err != nil {
		return "", err
	}
	return "--" + pad2(seg[1]) + "-" + pad2(seg[0]), nil
}

func dateDayMonthEN(v string) (string, error) {
	seg, err := segments("datedaymonthen", v, wordSplit, 2)
	if err != nil {
		return "", err
	}
	m, err := month("datedaymonthen", seg[1])
	if err != nil {
		return "", err
	}
	return "--" + m + "-" + pad2(seg[0]), nil
}

func dateDayMonthYear(v string) (string, error) {
	seg, err := segments("datedaymonthyear", v, digitSplit, 3)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datedaymonthyear", seg[2])
	if err != nil {
		return "", err
	}
	return y + "-" + pad2(seg[1]) + "-" + pad2(seg[0]), nil
}

func dateDayMonthYearEN(v string) (string, error) {
	seg, err := segments("datedaymonthyearen", v, wordSplit, 3)
	if err != nil {
		return "", err
	}
	m, err := month("datedaymonthyearen", seg[1])
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datedaymonthyearen", seg[2])
	if err != nil {
		return "", err
	}
	return y + "-" + m + "-" + pad2(seg[0]), nil
}

func dateMonthDay(v string) (string, error) {
	seg, err := segments("datemonthday", v, digitSplit, 2)
	if err != nil {
		return "", err
	}
	return "--" + pad2(seg[0]) + "-" + pad2(seg[1]), nil
}

func dateMonthDayEN(v string) (string, error) {
	seg, err := segments("datemonthdayen", v, wordSplit, 2)
	if err != nil {
		return "", err
	}
	m, err := month("datemonthdayen", seg[0])
	if err != nil {
		return "", err
	}
	return "--" + m + "-" + pad2(seg[1]), nil
}

func dateMonthDayYear(v string) (string, error) {
	seg, err := segments("datemonthdayyear", v, digitSplit, 3)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datemonthdayyear", seg[2])
	if err != nil {
		return "", err
	}
	return y + "-" + pad2(seg[0]) + "-" + pad2(seg[1]), nil
}

func dateMonthDayYearEN(v string) (string, error) {
	seg, err := segments("datemonthdayyearen", v, wordSplit, 3)
	if err != nil {
		return "", err
	}
	m, err := month("datemonthdayyearen", seg[0])
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datemonthdayyearen", seg[2])
	if err != nil {
		return "", err
	}
	return y + "-" + m + "-" + pad2(seg[1]), nil
}

func dateMonthYear(v string) (string, error) {
	seg, err := segments("datemonthyear", v, digitSplit, 2)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datemonthyear", seg[1])
	if err != nil {
		return "", err
	}
	return y + "-" + pad2(seg[0]), nil
}

func dateMonthYearEN(v string) (string, error) {
	seg, err := segments("datemonthyearen", v, wordSplit, 2)
	if err != nil {
		return "", err
	}
	m, err := month("datemonthyearen", seg[0])
	if err != nil {
		return "", err
	}
	y, err := yearNorm("datemonthyearen", seg[1])
	if err != nil {
		return "", err
	}
	return y + "-" + m, nil
}

func dateYearMonth(v string) (string, error) {
	seg, err := segments("dateyearmonth", v, digitSplit, 2)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("dateyearmonth", seg[0])
	if err != nil {
		return "", err
	}
	return y + "-" + pad2(seg[1]), nil
}

func dateYearMonthEN(v string) (string, error) {
	seg, err := segments("dateyearmonthen", v, wordSplit, 2)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("dateyearmonthen", seg[0])
	if err != nil {
		return "", err
	}
	m, err := month("dateyearmonthen", seg[1])
	if err != nil {
		return "", err
	}
	return y + "-" + m, nil
}

func dateYearMonthDay(v string) (string, error) {
	seg, err := segments("dateyearmonthday", v, digitSplit, 3)
	if err != nil {
		return "", err
	}
	y, err := yearNorm("dateyearmonthday", seg[0])
	if err != nil {
		return "", err
	}
	return y + "-" + pad2(seg[1]) + "-" + pad2(seg[2]), nil
}

var (
	notDigitComma = regexp.MustCompile(`[^\d,]+`)
	notDigitDot   = regexp.MustCompile(`[^\d.]+`)
)

func numCommaDecimal(v string) (string, error) {
	out := notDigitComma.ReplaceAllString(v, "")
	out = strings.ReplaceAll(out, ",", ".")
	if out == "" {
		return "", &ParseError{Format: "numcommadecimal", Value: v, Reason: "no digits"}
	}
	return out, nil
}

func numDotDecimal(v string) (string, error) {
	out := notDigitDot.ReplaceAllString(v, "")
	if out == "" {
		return "", &ParseError{Format: "numdotdecimal", Value: v, Reason: "no digits"}
	}
	return out, nil
}

func durYear(v string) (string, error) {
	f, err := parseFloat("duryear", v)
	if err != nil {
		return "", err
	}
	neg := f < 0
	f = math.Abs(f)
	years := int(math.Floor(f))
	days := int(math.Round((f - float64(years)) * 365.25))
	months := int(math.Floor(float64(days) / 30.437))
	rem := int(math.Round(float64(days) - float64(months)*30.437))
	return durString(neg, fmt.Sprintf("%dY%dM%dD", years, months, rem)), nil
}

func durMonth(v string) (string, error) {
	f, err := parseFloat("durmonth", v)
	if err != nil {
		return "", err
	}
	neg := f < 0
	f = math.Abs(f)
	months := int(math.Floor(f))
	days := int(math.Round((f - float64(months)) * 30))
	return durString(neg, fmt.Sprintf("%dM%dD", months, days)), nil
}

func durWordsEN(v string) (string, error) {
	words := strings.Fields(replaceTextNumbers(v))
	years, months, days := 0, 0, 0
	for i := 0; i < len(words)-1; i++ {
		n, ok := atoi(words[i])
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(words[i+1], "year"):
			years = n
		case strings.HasPrefix(words[i+1], "month"):
			months = n
		case strings.HasPrefix(words[i+1], "day"):
			days = n
		}
	}
	return fmt.Sprintf("P%dY%dM%dD", years, months, days), nil
}

func numWordsEN(v string) (string, error) {
	switch v {
	case "no", "none", "nil":
		return "0", nil
	}
	n, err := textToNumber(strings.ReplaceAll(v, " and ", " "))
	if err != nil {
		return "", &ParseError{Format: "numwordsen", Value: v, Reason: err.Error()}
	}
	return fmt.Sprintf("%d", n), nil
}

func ballotBox(v string) (string, error) {
	switch v {
	case "&#9744;", "☐":
		return "false", nil
	case "&#9745;", "☑", "&#9746;", "☒":
		return "true", nil
	}
	return "", &ParseError{Format: "boolballotbox", Value: v, Reason: "not a ballot box glyph"}
}

func filerCategoryEN(v string) (string, error) {
	switch v {
	case "large accelerated filer":
		return "Large Accelerated Filer", nil
	case "accelerated filer":
		return "Accelerated Filer", nil
	case "non-accelerated filer":
		return "Non-accelerated Filer", nil
	}
	return "", &ParseError{Format: "entityfilercategoryen", Value: v, Reason: "unknown filer category"}
}

func durString(neg bool, body string) string {
	if neg {
		return "-P" + body
	}
	return "P" + body
}

func parseFloat(format, v string) (float64, error) {
	var f float64
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err != nil {
		return 0, &ParseError{Format: format, Value: v, Reason: "not a number"}
	}
	return f, nil
}

func atoi(s string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
