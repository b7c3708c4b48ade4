package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyIXT4(t *testing.T) {
	tests := []struct {
		format string
		in     string
		want   string
	}{
		{"num-dot-decimal", "1,234.50", "1234.50"},
		{"num-dot-decimal", " 1,234,567 ", "1234567"},
		{"num-comma-decimal", "1.234.567,89", "1234567.89"},
		{"fixed-zero", "-", "0"},
		{"fixed-empty", "whatever", ""},
		{"fixed-true", "x", "true"},
		{"fixed-false", "x", "false"},
		{"date-monthname-day-year-en", "September 26, 2020", "2020-09-26"},
		{"date-day-monthname-year-en", "26 September 2020", "2020-09-26"},
		{"date-year-month-day", "2020-09-26", "2020-09-26"},
		{"date-year-month-day", "2020/9/6", "2020-09-06"},
		{"date-month-day-year", "9/26/2020", "2020-09-26"},
		{"date-day-month-year", "26.09.2020", "2020-09-26"},
		{"date-monthname-day-en", "January 5", "--01-05"},
		{"date-year-month", "2020-09", "2020-09"},
	}
	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.in, func(t *testing.T) {
			got, err := Apply(NSIXT4, tt.format, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyIXT3Aliases(t *testing.T) {
	got, err := Apply(NSIXT3, "numdotdecimal", "12,345.6")
	require.NoError(t, err)
	assert.Equal(t, "12345.6", got)

	got, err = Apply(NSIXT3, "zerodash", "—")
	require.NoError(t, err)
	assert.Equal(t, "0", got)

	got, err = Apply(NSIXT3, "booleantrue", "yes")
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	got, err = Apply(NSIXT2, "nocontent", "ignored text")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = Apply(NSIXT3, "datedaymonthyearen", "17 January 2022")
	require.NoError(t, err)
	assert.Equal(t, "2022-01-17", got)
}

func TestApplyTwoDigitYearPivot(t *testing.T) {
	got, err := Apply(NSIXT3, "datemonthdayyear", "9/26/20")
	require.NoError(t, err)
	assert.Equal(t, "2020-09-26", got)

	got, err = Apply(NSIXT3, "datemonthdayyear", "9/26/99")
	require.NoError(t, err)
	assert.Equal(t, "1999-09-26", got)
}

func TestApplySECRegistry(t *testing.T) {
	got, err := Apply(NSIXTSEC, "numwordsen", "one million and two")
	require.NoError(t, err)
	assert.Equal(t, "1000002", got)

	got, err = Apply(NSIXTSEC, "numwordsen", "none")
	require.NoError(t, err)
	assert.Equal(t, "0", got)

	got, err = Apply(NSIXTSEC, "durwordsen", "three years and six months")
	require.NoError(t, err)
	assert.Equal(t, "P3Y6M0D", got)

	got, err = Apply(NSIXTSEC, "boolballotbox", "☒")
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	got, err = Apply(NSIXTSEC, "stateprovnameen", "Kentucky")
	require.NoError(t, err)
	assert.Equal(t, "KY", got)

	got, err = Apply(NSIXTSEC, "exchnameen", "The New York Stock Exchange")
	require.NoError(t, err)
	assert.Equal(t, "NYSE", got)

	got, err = Apply(NSIXTSEC, "entityfilercategoryen", "Large Accelerated Filer")
	require.NoError(t, err)
	assert.Equal(t, "Large Accelerated Filer", got)

	got, err = Apply(NSIXTSEC, "durmonth", "22.5")
	require.NoError(t, err)
	assert.Equal(t, "P22M15D", got)
}

func TestApplyUnknownFormat(t *testing.T) {
	_, err := Apply(NSIXT4, "num-unit-decimal-made-up", "5 shares")
	var ufe *UnknownFormatError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, NSIXT4, ufe.Registry)

	_, err = Apply("http://unknown.registry/2030", "num-dot-decimal", "1")
	require.ErrorAs(t, err, &ufe)
}

func TestApplyParseError(t *testing.T) {
	_, err := Apply(NSIXT4, "date-monthname-day-year-en", "Notamonth 99, 2020")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	_, err = Apply(NSIXT4, "num-dot-decimal", "no digits here")
	require.ErrorAs(t, err, &pe)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(NSIXT4, "num-dot-decimal"))
	assert.False(t, Supported(NSIXT4, "made-up"))
	assert.False(t, Supported("urn:none", "num-dot-decimal"))
}
