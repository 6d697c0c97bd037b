package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlicer(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		args  []interface{}
		want  string
	}{
		{"drop unit suffix", "22.5 1", []interface{}{-2}, "22.5"},
		{"stop only", "RCT digital", []interface{}{3}, "RCT"},
		{"start and stop", "OUT_SP_1 40", []interface{}{9, nil}, "40"},
		{"negative start", "status: OK", []interface{}{-2, nil}, "OK"},
		{"step", "abcdef", []interface{}{nil, nil, 2}, "ace"},
		{"reverse", "abc", []interface{}{nil, nil, -1}, "cba"},
		{"clamped", "abc", []interface{}{-10, 10}, "abc"},
		{"empty range", "abc", []interface{}{2, 1}, ""},
		{"float index from yaml", "22.5 1", []interface{}{float64(-2)}, "22.5"},
		{"runes", "25°C", []interface{}{-2}, "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slicer(tt.reply, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlicerInvalid(t *testing.T) {
	_, err := Slicer("abc")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = Slicer("abc", 0, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = Slicer("abc", "1")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = Slicer("abc", 1.5)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestResearcher(t *testing.T) {
	match, err := Researcher("PV: 41.3 C", `([0-9.]+) C`)
	require.NoError(t, err)
	assert.Equal(t, []string{"41.3 C", "41.3"}, match)

	match, err = Researcher("ERR", `[0-9]+`)
	require.NoError(t, err)
	assert.Nil(t, match)

	_, err = Researcher("x", `(`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestStripper(t *testing.T) {
	assert.Equal(t, "22.5", Stripper("IN 22.5\r\n", "IN ", "\r\n"))
	// whole substrings only, not character sets
	assert.Equal(t, "\r22.5", Stripper("\r22.5\n", "\n", "\n"))
	assert.Equal(t, "22.5\r", Stripper("22.5\r", "", "\r\n"))
	assert.Equal(t, "OK", Stripper("OK", "", ""))
}
