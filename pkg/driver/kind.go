// pkg/driver/kind.go
package driver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the value type of a command argument or reply
type Kind string

const (
	KindString  Kind = "str"
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindBool    Kind = "bool"
	KindDecimal Kind = "decimal"
)

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindDecimal:
		return true
	}
	return false
}

// Cast converts v to the Go type for k: string, int64, float64, bool or
// decimal.Decimal
func (k Kind) Cast(v interface{}) (interface{}, error) {
	switch k {
	case KindString:
		return castString(v), nil
	case KindInt:
		return castInt(v)
	case KindFloat:
		return castFloat(v)
	case KindBool:
		return castBool(v)
	case KindDecimal:
		return ToDecimal(v)
	}
	return nil, fmt.Errorf("unknown kind %q", k)
}

func castString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func castInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int", t)
		}
		return int64(t), nil
	case float32:
		return int64(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%v is not a finite number", t)
		}
		return int64(t), nil
	case decimal.Decimal:
		return t.IntPart(), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	}
	return 0, fmt.Errorf("can't convert %T to int", v)
}

func castFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case decimal.Decimal:
		f, _ := t.Float64()
		return f, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	i, err := castInt(v)
	if err != nil {
		return 0, fmt.Errorf("can't convert %T to float", v)
	}
	return float64(i), nil
}

func castBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "on", "yes":
			return true, nil
		case "false", "0", "off", "no":
			return false, nil
		}
		return false, fmt.Errorf("can't convert %q to bool", t)
	}
	f, err := castFloat(v)
	if err != nil {
		return false, fmt.Errorf("can't convert %T to bool", v)
	}
	return f != 0, nil
}

// ToDecimal converts any numeric value or numeric string to a decimal
func ToDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case bool:
		if t {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}
	i, err := castInt(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("can't convert %T to decimal", v)
	}
	return decimal.NewFromInt(i), nil
}

// FormatValue renders a cast value the way it goes on the wire
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "1"
		}
		return "0"
	case decimal.Decimal:
		return t.String()
	}
	return castString(v)
}
