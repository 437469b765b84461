package core

// convert.go turns raw cell text into typed Values.
//
// These functions handle the messy reality of user-provided tabular data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//
// Every To* function returns Missing for empty input and reports ok=false
// when non-empty input cannot be represented in the target type.

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Timestamp layouts, tried in order. Date-times come first so that a full
// timestamp is never truncated to its date.
var (
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
	}
)

// Coerce converts raw to the type declared by spec.
//
// Empty cells and any of nullTokens yield Missing with ok=true; they are
// absent values, not failures. A non-empty cell that cannot be converted
// yields Missing with ok=false.
func Coerce(raw string, spec FieldSpec, nullTokens []string) (Value, bool) {
	s := strings.TrimSpace(raw)
	if spec.Normalizer != nil && s != "" {
		s = spec.Normalizer(s)
	}
	if s == "" || slices.Contains(nullTokens, s) {
		return Missing, true
	}

	switch spec.Type {
	case FieldInteger:
		return ToInteger(s)
	case FieldFloat:
		return ToFloat(s)
	case FieldBool:
		return ToBool(s)
	case FieldTimestamp:
		if spec.Layout != "" {
			t, err := time.Parse(spec.Layout, s)
			if err != nil {
				return Missing, false
			}
			return Timestamp(t), true
		}
		return ToTimestamp(s)
	case FieldCategorical:
		if len(spec.Categories) > 0 {
			for _, c := range spec.Categories {
				if strings.EqualFold(c, s) {
					return Text(c), true
				}
			}
			return Missing, false
		}
		return Text(s), true
	default:
		return Text(s), true
	}
}

// cleanNumeric strips currency symbols and thousands separators and turns
// accounting negatives "(123.45)" into "-123.45".
func cleanNumeric(s string) string {
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}
	return s
}

// ToFloat converts a string to a float Value.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
func ToFloat(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing, true
	}
	s = cleanNumeric(s)
	if !numericRegex.MatchString(s) {
		return Missing, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Missing, false
	}
	return Float(f), true
}

// ToInteger converts a string to an integer Value.
// Floats with an integral value ("1e3", "10.0") are accepted.
func ToInteger(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing, true
	}
	s = cleanNumeric(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), true
	}
	if !numericRegex.MatchString(s) {
		return Missing, false
	}
	// "123.000" keeps full int64 precision.
	if whole, frac, found := strings.Cut(s, "."); found && whole != "" && strings.Trim(frac, "0") == "" {
		if i, err := strconv.ParseInt(whole, 10, 64); err == nil {
			return Int(i), true
		}
	}
	// Floats are exact integers only up to 2^53.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactFloatInt {
		return Missing, false
	}
	return Int(int64(f)), true
}

const maxExactFloatInt = 1 << 53

// ToBool converts a string to a boolean Value.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ToBool(s string) (Value, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Missing, true
	}

	switch s {
	case "true", "t", "yes", "y", "1":
		return Bool(true), true
	case "false", "f", "no", "n", "0":
		return Bool(false), true
	default:
		return Missing, false
	}
}

// ToTimestamp converts a string to a timestamp Value.
// Supports RFC3339 and common date-time layouts, multiple date formats,
// and 2-digit years with a pivot.
func ToTimestamp(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing, true
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp(t), true
		}
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp(t), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return Timestamp(t), true
		}
	}

	return Missing, false
}

// InferType guesses the narrowest type that fits every non-empty sample.
// The order tried is integer, float, bool, timestamp, then text.
func InferType(samples []string, nullTokens []string) FieldType {
	present := samples[:0:0]
	for _, s := range samples {
		if v, _ := Coerce(s, FieldSpec{Type: FieldText}, nullTokens); !v.IsMissing() {
			present = append(present, s)
		}
	}
	if len(present) == 0 {
		return FieldText
	}

	for _, ft := range []FieldType{FieldInteger, FieldFloat, FieldBool, FieldTimestamp} {
		fits := true
		for _, s := range present {
			if _, ok := Coerce(s, FieldSpec{Type: ft}, nullTokens); !ok {
				fits = false
				break
			}
		}
		if fits {
			return ft
		}
	}
	return FieldText
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
