package identifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idlookup/pkg/domain-errors"
)

// TestDecompose_Rejections validates the format invariant:
// "an identifier is 11 digits, not a repeated digit, not in region 000"
//
// Justification: Decompose is the trust boundary for caller input; nothing
// downstream re-validates.
func TestDecompose_Rejections(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"too short":          "0012345678",
		"too long":           "001234567890",
		"letters":            "00A23456785",
		"all zeros":          "00000000000",
		"all nines":          "99999999999",
		"reserved region":    "00012345678",
		"misplaced hyphens":  "0012-345678-5",
		"spaces inside":      "001 2345678 5",
		"hyphenated too few": "001-234567-5",
		"trailing garbage":   "00123456785x",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decompose(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFormat))
		})
	}
}

func TestDecompose_AcceptedShapes(t *testing.T) {
	t.Run("contiguous digits", func(t *testing.T) {
		id, err := Decompose("00123456782")
		require.NoError(t, err)
		assert.Equal(t, "001", id.Region())
		assert.Equal(t, "2345678", id.Sequence())
		assert.Equal(t, "2", id.CheckDigit())
		assert.True(t, id.CheckDigitValid())
	})

	t.Run("hyphenated", func(t *testing.T) {
		id, err := Decompose("001-2345678-2")
		require.NoError(t, err)
		assert.Equal(t, "00123456782", id.Normalized())
		assert.Equal(t, "001-2345678-2", id.Raw())
	})

	t.Run("surrounding whitespace is trimmed", func(t *testing.T) {
		id, err := Decompose("  00123456782\n")
		require.NoError(t, err)
		assert.Equal(t, "00123456782", id.Normalized())
	})

	t.Run("check digit mismatch decomposes but is flagged", func(t *testing.T) {
		id, err := Decompose("00123456785")
		require.NoError(t, err)
		assert.False(t, id.CheckDigitValid())
		assert.Equal(t, "5", id.CheckDigit())
	})
}

func TestFormattedAndMasked(t *testing.T) {
	id := MustDecompose("00123456782")

	assert.Equal(t, "001-2345678-2", id.Formatted())
	assert.Equal(t, "001-*****-2", id.Masked())
	assert.Equal(t, id.Masked(), id.String())
	assert.NotContains(t, id.Masked(), id.Sequence())

	var zero Identifier
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.Formatted())
	assert.Empty(t, zero.Masked())
}

func TestRoundTrip(t *testing.T) {
	for _, raw := range []string{"00123456782", "00112345673", "40212345670", "22300000001"} {
		t.Run(raw, func(t *testing.T) {
			id, err := Decompose(raw)
			require.NoError(t, err)

			again, err := Decompose(id.Formatted())
			require.NoError(t, err)
			assert.Equal(t, id.Normalized(), again.Normalized())
			assert.Equal(t, id.CheckDigitValid(), again.CheckDigitValid())
		})
	}
}

func TestComputeCheckDigit(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		assert.Equal(t, 2, ComputeCheckDigit("0012345678"))
		assert.Equal(t, 3, ComputeCheckDigit("0011234567"))
		assert.Equal(t, 9, ComputeCheckDigit("0010000000"))
	})

	t.Run("ignores the trailing digit", func(t *testing.T) {
		assert.Equal(t, ComputeCheckDigit("00123456780"), ComputeCheckDigit("00123456789"))
	})

	t.Run("deterministic", func(t *testing.T) {
		first := ComputeCheckDigit("4021234567")
		for range 10 {
			assert.Equal(t, first, ComputeCheckDigit("4021234567"))
		}
	})

	t.Run("rejects short or non-digit input", func(t *testing.T) {
		assert.Equal(t, -1, ComputeCheckDigit("123"))
		assert.Equal(t, -1, ComputeCheckDigit("00123x5678"))
	})
}

func TestVerifyCheckDigit(t *testing.T) {
	assert.True(t, VerifyCheckDigit("00123456782"))
	assert.False(t, VerifyCheckDigit("00123456785"))
	assert.False(t, VerifyCheckDigit("0012345678"))
}

func TestValidationInfo(t *testing.T) {
	info := MustDecompose("001-2345678-5").ValidationInfo()

	assert.True(t, info.FormatValid)
	assert.False(t, info.CheckDigitValid)
	assert.Equal(t, "001", info.Region)
	assert.Equal(t, "2345678", info.Sequence)
	assert.Equal(t, "5", info.CheckDigit)
	assert.Equal(t, "001-2345678-5", info.Formatted)
	assert.Equal(t, "00123456785", Normalize(info.Formatted))

	// Cached and persisted results are stored as JSON; nothing may be lost.
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	var decoded ValidationInfo
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, info, decoded)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "00123456785", Normalize(" 001-2345678-5 "))
	assert.Equal(t, "", Normalize("abc"))
}
