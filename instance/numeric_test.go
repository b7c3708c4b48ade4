package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyScaleSign(t *testing.T) {
	tests := []struct {
		name  string
		value string
		scale int
		sign  string
		want  string
	}{
		{"s5 fixture", "1234.50", 6, "-", "-1234500000"},
		{"no scale", "323888000000", 0, "", "323888000000"},
		{"millions", "323888", 6, "", "323888000000"},
		{"negative scale", "1234500", -2, "", "12345"},
		{"negative scale fraction", "1234", -6, "", "0.001234"},
		{"fractional stays exact", "0.5", 0, "", "0.5"},
		{"sign only", "42", 0, "-", "-42"},
		{"already negative", "-42", 0, "", "-42"},
		{"sign flips negative", "-42", 0, "-", "42"},
		{"zero never signed", "0", 3, "-", "0"},
		{"trailing zeros trimmed", "1.500", 2, "", "150"},
		{"plus prefix", "+7", 0, "", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyScaleSign(tt.value, tt.scale, tt.sign)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyScaleSignRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "12a3", "1.2.3", "--5", "NaN"} {
		_, err := applyScaleSign(v, 0, "")
		assert.Error(t, err, "value %q", v)
	}
}
