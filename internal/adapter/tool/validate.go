package tool

import (
	"fmt"
	"strings"
	"time"
)

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return Invalid("'%s' is required", name)
	}
	return nil
}

// RequireFields validates multiple required string fields at once.
// keys and values must alternate.
func RequireFields(kvs ...string) error {
	if len(kvs)%2 != 0 {
		return fmt.Errorf("RequireFields: odd number of arguments")
	}
	for i := 0; i < len(kvs); i += 2 {
		if err := RequireField(kvs[i], kvs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRange checks that value is within [min, max].
func ValidateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return Invalid("%s must be %d-%d", name, min, max)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// isoLayouts are accepted for datetime arguments. Values without an offset are UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDateTime parses an ISO 8601 datetime argument and normalizes it to UTC.
func ParseDateTime(name, value string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, Invalid("'%s' must be an ISO 8601 datetime (e.g. 2025-01-01T10:00:00Z), got %q", name, value)
}

// ParseOptionalDateTime is ParseDateTime for nil-able update fields.
func ParseOptionalDateTime(name string, value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	ts, err := ParseDateTime(name, *value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// ValidateSpan checks that end is not before start.
func ValidateSpan(start, end time.Time) error {
	if end.Before(start) {
		return Invalid("end_datetime must not be before start_datetime")
	}
	return nil
}

// ValidateClock checks an HH:MM wall-clock time.
func ValidateClock(name, value string) error {
	if _, err := time.Parse("15:04", value); err != nil {
		return Invalid("'%s' must be a time in HH:MM format, got %q", name, value)
	}
	return nil
}
