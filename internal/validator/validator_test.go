package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typedIDRequest struct {
	ID string `json:"id" validate:"card_id"`
}

func TestValidator_CardID(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateCardID("A1"))
	assert.NoError(t, v.ValidateCardID("kartu 07"))

	for _, bad := range []string{"", "   ", "A1\n", strings.Repeat("x", 65)} {
		err := v.ValidateCardID(bad)
		require.Error(t, err, "%q", bad)

		var errs ValidationErrors
		require.ErrorAs(t, err, &errs)
		assert.Equal(t, "id", errs[0].Field)
		assert.Equal(t, "card_id", errs[0].Rule)
		assert.Equal(t, bad, errs[0].Value)
	}
}

func TestValidator_StructUsesJSONNames(t *testing.T) {
	err := New().ValidateStruct(&typedIDRequest{ID: " "})
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, "id", errs[0].Field)
	assert.Equal(t, "must be a printable card ID of at most 64 characters", errs[0].Message)
}
