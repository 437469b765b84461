package core

import (
	"math"
	"strconv"
	"time"
)

// Value is a single table cell. The zero Value is the missing-value marker,
// which is distinct from a valid zero, false or empty string.
//
// The payload is int64, float64, string, bool or time.Time depending on
// the column's FieldType.
type Value struct {
	v     any
	valid bool
}

// Missing is the missing-value marker.
var Missing = Value{}

// Int returns a valid integer Value.
func Int(i int64) Value { return Value{v: i, valid: true} }

// Float returns a valid float Value.
func Float(f float64) Value { return Value{v: f, valid: true} }

// Text returns a valid string Value.
func Text(s string) Value { return Value{v: s, valid: true} }

// Bool returns a valid boolean Value.
func Bool(b bool) Value { return Value{v: b, valid: true} }

// Timestamp returns a valid timestamp Value.
func Timestamp(t time.Time) Value { return Value{v: t, valid: true} }

// IsMissing reports whether v is the missing-value marker.
func (v Value) IsMissing() bool { return !v.valid }

// Any returns the payload, or nil when missing.
func (v Value) Any() any {
	if !v.valid {
		return nil
	}
	return v.v
}

// Int64 returns the integer payload.
func (v Value) Int64() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok && v.valid
}

// Float64 returns the payload as a float. Integers are widened.
func (v Value) Float64() (float64, bool) {
	if !v.valid {
		return 0, false
	}
	switch x := v.v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Str returns the string payload.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok && v.valid
}

// Boolean returns the boolean payload.
func (v Value) Boolean() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.valid
}

// Time returns the timestamp payload.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok && v.valid
}

// Equal reports whether two values hold the same payload.
// Two missing values are equal to each other.
func (v Value) Equal(o Value) bool {
	if v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch x := v.v.(type) {
	case time.Time:
		y, ok := o.v.(time.Time)
		return ok && x.Equal(y)
	case float64:
		y, ok := o.v.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	default:
		return v.v == o.v
	}
}

// String formats the value for display. Missing renders as "<NA>".
func (v Value) String() string {
	if !v.valid {
		return DefaultMissingText
	}
	return formatPayload(v.v)
}

// DefaultMissingText is how Missing is rendered unless overridden.
const DefaultMissingText = "<NA>"

func formatPayload(p any) string {
	switch x := p.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return ""
	}
}

// compare orders two non-missing values of the same kind.
// Missing sorts after everything else.
func compare(a, b Value) int {
	switch {
	case !a.valid && !b.valid:
		return 0
	case !a.valid:
		return 1
	case !b.valid:
		return -1
	}
	if af, ok := a.Float64(); ok {
		if bf, ok := b.Float64(); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	switch x := a.v.(type) {
	case time.Time:
		if y, ok := b.v.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.v.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}
