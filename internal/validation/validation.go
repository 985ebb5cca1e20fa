package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"labcafe/internal/domain"
)

// Violations maps a field name to the first rule it broke.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) add(field, reason string) {
	if _, exists := v[field]; !exists {
		v[field] = reason
	}
}

// Err is nil when nothing was violated, otherwise a VALIDATION_ERROR carrying the map.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return domain.ErrValidation.WithDetails(map[string]string(v))
}

func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "required")
	}
}

func MaxLen(field, value string, max int, v Violations) {
	if utf8.RuneCountInString(value) > max {
		v.add(field, "too_long")
	}
}

func NoControlChars(field, value string, v Violations) {
	for _, r := range value {
		if unicode.IsControl(r) {
			v.add(field, "control_characters")
			return
		}
	}
}

func PositiveInt(field string, val int, v Violations) {
	if val <= 0 {
		v.add(field, "must_be_positive")
	}
}

func NonNegative(field string, val int64, v Violations) {
	if val < 0 {
		v.add(field, "must_not_be_negative")
	}
}

func AtMost(field string, val, maxVal int64, v Violations) {
	if val > maxVal {
		v.add(field, "too_large")
	}
}

func NonZero(field string, val int64, v Violations) {
	if val == 0 {
		v.add(field, "must_not_be_zero")
	}
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v.add(field, "out_of_range")
	}
}

func RangeInt64(field string, val, minVal, maxVal int64, v Violations) {
	if val < minVal || val > maxVal {
		v.add(field, "out_of_range")
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, candidate := range allowed {
		if value == candidate {
			return
		}
	}
	v.add(field, "invalid_choice")
}
