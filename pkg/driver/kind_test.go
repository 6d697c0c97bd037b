package driver

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCast(t *testing.T) {
	tests := []struct {
		kind Kind
		in   interface{}
		want interface{}
	}{
		{KindString, "RCT", "RCT"},
		{KindString, 42.5, "42.5"},
		{KindString, 7, "7"},
		{KindInt, 300, int64(300)},
		{KindInt, "300", int64(300)},
		{KindInt, 299.9, int64(299)},
		{KindInt, true, int64(1)},
		{KindFloat, "22.5", 22.5},
		{KindFloat, 22, 22.0},
		{KindBool, "on", true},
		{KindBool, "0", false},
		{KindBool, 1, true},
		{KindBool, 0.0, false},
		{KindDecimal, "0.1", decimal.RequireFromString("0.1")},
	}

	for _, tt := range tests {
		got, err := tt.kind.Cast(tt.in)
		require.NoError(t, err, "%s(%v)", tt.kind, tt.in)
		if d, ok := tt.want.(decimal.Decimal); ok {
			assert.True(t, d.Equal(got.(decimal.Decimal)))
			continue
		}
		assert.Equal(t, tt.want, got, "%s(%v)", tt.kind, tt.in)
	}
}

func TestKindCastFailures(t *testing.T) {
	_, err := KindInt.Cast("abc")
	assert.Error(t, err)

	_, err = KindInt.Cast("2.5")
	assert.Error(t, err)

	_, err = KindFloat.Cast("warm")
	assert.Error(t, err)

	_, err = KindBool.Cast("maybe")
	assert.Error(t, err)

	_, err = KindDecimal.Cast("1,5")
	assert.Error(t, err)

	_, err = Kind("complex").Cast(1)
	assert.Error(t, err)
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindString, KindInt, KindFloat, KindBool, KindDecimal} {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("list").Valid())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1", FormatValue(true))
	assert.Equal(t, "0", FormatValue(false))
	assert.Equal(t, "40", FormatValue(int64(40)))
	assert.Equal(t, "40.5", FormatValue(40.5))
	assert.Equal(t, "0.30", FormatValue(decimal.RequireFromString("0.30")))
	assert.Equal(t, "RCT", FormatValue("RCT"))
}
