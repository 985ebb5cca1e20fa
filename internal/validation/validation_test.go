package validation

import (
	"errors"
	"testing"

	"labcafe/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationsCollectFirstReasonPerField(t *testing.T) {
	v := Violations{}
	Required("name", "  ", v)
	MaxLen("name", "a very long name", 3, v)
	PositiveInt("quantity", 0, v)
	NonNegative("price", -1, v)
	NonZero("amount", 0, v)
	NoControlChars("description", "line\nbreak", v)
	OneOf("category", "GIFT", []string{"RECEIPT", "OTHER"}, v)
	RangeInt("days", 400, 1, 366, v)
	AtMost("unit_cost_cents", 1<<62, 1_000_000, v)
	AtMost("misc_cost_cents", 1_000_000, 1_000_000, v)
	RangeInt64("amount_cents", -1<<40, -1<<30, 1<<30, v)

	assert.Equal(t, Violations{
		"name":            "required",
		"quantity":        "must_be_positive",
		"price":           "must_not_be_negative",
		"amount":          "must_not_be_zero",
		"description":     "control_characters",
		"category":        "invalid_choice",
		"days":            "out_of_range",
		"unit_cost_cents": "too_large",
		"amount_cents":    "out_of_range",
	}, v)
}

func TestViolationsErr(t *testing.T) {
	v := Violations{}
	Required("name", "Cold Brew", v)
	PositiveInt("quantity", 2, v)
	NoControlChars("note", "mis-click", v)
	require.NoError(t, v.Err())

	PositiveInt("quantity", -2, v)
	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"quantity": "must_be_positive"}, de.Details)
}
