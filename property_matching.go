package posthog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative-date expressions: optional leading minus, digits, then a unit of
// hours, days, weeks, months or years.
var relativeDateRegex = regexp.MustCompile(`^-?([0-9]+)([hdwmy])$`)

// Magnitudes at or above this are rejected as "not a relative expression"
// so the offset can never overflow when applied to the current instant.
const maxRelativeDateMagnitude = 10000

// matchProperty evaluates a single person/group targeting condition against
// the subject's property bag. It returns an InconclusiveMatchError when the
// bag lacks the condition's key or when the comparison cannot be decided
// client-side.
func matchProperty(property FlagProperty, properties map[string]interface{}) (bool, error) {
	key := property.Key
	operator := property.Operator
	if operator == "" {
		operator = "exact"
	}
	value := property.Value

	override, ok := properties[key]
	if !ok {
		return false, &InconclusiveMatchError{"can't match properties without a given property value"}
	}
	if operator == "is_not_set" {
		return false, &InconclusiveMatchError{"can't match properties with operator is_not_set"}
	}

	switch operator {
	case "exact", "is_not":
		match := computeExactMatch(value, override)
		if operator == "is_not" {
			return !match, nil
		}
		return match, nil
	case "is_set":
		return true, nil
	case "icontains", "not_icontains":
		match := strings.Contains(
			strings.ToLower(interfaceToString(override)),
			strings.ToLower(interfaceToString(value)),
		)
		if operator == "not_icontains" {
			return !match, nil
		}
		return match, nil
	case "regex", "not_regex":
		pattern, err := regexp.Compile(interfaceToString(value))
		if err != nil {
			// Invalid patterns never match, for either polarity.
			return false, nil
		}
		match := pattern.MatchString(interfaceToString(override))
		if operator == "not_regex" {
			return !match, nil
		}
		return match, nil
	case "gt", "gte", "lt", "lte":
		return compareOrdered(override, value, operator), nil
	case "is_date_before", "is_date_after":
		return matchDateProperty(operator, value, override)
	default:
		return false, &InconclusiveMatchError{fmt.Sprintf("unknown operator: %s", operator)}
	}
}

// computeExactMatch stringifies both sides and compares case-insensitively,
// the same normalization the PostHog server applies. A list value matches
// when the override equals any member.
func computeExactMatch(value, override interface{}) bool {
	if list, ok := value.([]interface{}); ok {
		for _, item := range list {
			if strings.EqualFold(interfaceToString(item), interfaceToString(override)) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(interfaceToString(value), interfaceToString(override))
}

// compareOrdered compares numerically when both sides look numeric and
// falls back to lexicographic string comparison otherwise. Mixed types
// degrading to string comparison is deliberate cross-SDK behavior, not a
// bug to fix.
func compareOrdered(override, value interface{}, operator string) bool {
	overrideNum, okOverride := getNumericValue(override)
	valueNum, okValue := getNumericValue(value)
	if okOverride && okValue {
		switch operator {
		case "gt":
			return overrideNum > valueNum
		case "gte":
			return overrideNum >= valueNum
		case "lt":
			return overrideNum < valueNum
		case "lte":
			return overrideNum <= valueNum
		}
		return false
	}

	overrideStr := interfaceToString(override)
	valueStr := interfaceToString(value)
	switch operator {
	case "gt":
		return overrideStr > valueStr
	case "gte":
		return overrideStr >= valueStr
	case "lt":
		return overrideStr < valueStr
	case "lte":
		return overrideStr <= valueStr
	}
	return false
}

func getNumericValue(a interface{}) (float64, bool) {
	switch a := a.(type) {
	case int:
		return float64(a), true
	case int32:
		return float64(a), true
	case int64:
		return float64(a), true
	case uint64:
		return float64(a), true
	case float32:
		return float64(a), true
	case float64:
		return a, true
	case string:
		f, err := strconv.ParseFloat(a, 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func interfaceToString(a interface{}) string {
	return fmt.Sprintf("%v", a)
}

// matchDateProperty handles is_date_before / is_date_after. The flag-side
// value is parsed first as a relative-offset expression and then as an
// absolute date; a malformed absolute date is a hard error. The bag-side
// value must be a time.Time or a parseable date string, anything else is
// inconclusive.
func matchDateProperty(operator string, value, override interface{}) (bool, error) {
	parsedDate, ok := parseRelativeDate(interfaceToString(value), now().UTC())
	if !ok {
		var err error
		parsedDate, err = parseAbsoluteDate(interfaceToString(value))
		if err != nil {
			return false, &InvalidDateError{"the date set on the flag is not a valid format"}
		}
	}

	var overrideDate time.Time
	switch o := override.(type) {
	case time.Time:
		overrideDate = o.UTC()
	case string:
		var err error
		overrideDate, err = parseAbsoluteDate(o)
		if err != nil {
			return false, &InconclusiveMatchError{"the date provided is not a valid format"}
		}
	default:
		return false, &InconclusiveMatchError{"the date provided must be a string or a time.Time"}
	}

	if operator == "is_date_before" {
		return overrideDate.Before(parsedDate), nil
	}
	return overrideDate.After(parsedDate), nil
}

// parseRelativeDate resolves expressions like "-30d" or "6h" to an instant
// relative to ref. Malformed expressions (wrong unit, embedded non-digits,
// magnitude >= maxRelativeDateMagnitude) report !ok so the caller can try
// absolute-date parsing instead.
func parseRelativeDate(value string, ref time.Time) (time.Time, bool) {
	match := relativeDateRegex.FindStringSubmatch(value)
	if match == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n >= maxRelativeDateMagnitude {
		return time.Time{}, false
	}
	switch match[2] {
	case "h":
		return ref.Add(-time.Duration(n) * time.Hour), true
	case "d":
		return ref.AddDate(0, 0, -n), true
	case "w":
		return ref.AddDate(0, 0, -7*n), true
	case "m":
		return ref.AddDate(0, -n, 0), true
	case "y":
		return ref.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

var absoluteDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseAbsoluteDate accepts RFC 3339 timestamps and calendar dates.
// Date-only input resolves to midnight UTC, so comparisons without an
// explicit time component are calendar-date comparisons.
func parseAbsoluteDate(value string) (time.Time, error) {
	for _, format := range absoluteDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &InvalidDateError{fmt.Sprintf("could not parse date: %s", value)}
}
