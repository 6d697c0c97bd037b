// internal/parser/parser.go
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidArgs is returned when a parser is called with arguments it can't use
var ErrInvalidArgs = errors.New("invalid parser arguments")

// Slicer returns a rune slice of reply. args follow the stop / start, stop /
// start, stop, step forms: negative indices count from the end, nil leaves a
// bound open, out-of-range bounds clamp.
func Slicer(reply string, args ...interface{}) (string, error) {
	if len(args) == 0 || len(args) > 3 {
		return "", fmt.Errorf("%w: slicer takes 1 to 3 arguments, got %d", ErrInvalidArgs, len(args))
	}

	var start, stop, step *int
	var err error
	switch len(args) {
	case 1:
		stop, err = sliceIndex(args[0])
	case 2, 3:
		if start, err = sliceIndex(args[0]); err != nil {
			break
		}
		if stop, err = sliceIndex(args[1]); err != nil {
			break
		}
		if len(args) == 3 {
			step, err = sliceIndex(args[2])
		}
	}
	if err != nil {
		return "", err
	}

	runes := []rune(reply)
	stride := 1
	if step != nil {
		stride = *step
	}
	if stride == 0 {
		return "", fmt.Errorf("%w: slice step cannot be zero", ErrInvalidArgs)
	}

	lo, hi := sliceBounds(len(runes), start, stop, stride)

	var b strings.Builder
	if stride > 0 {
		for i := lo; i < hi; i += stride {
			b.WriteRune(runes[i])
		}
	} else {
		for i := lo; i > hi; i += stride {
			b.WriteRune(runes[i])
		}
	}
	return b.String(), nil
}

// sliceBounds resolves optional bounds the way sequence slicing does
func sliceBounds(length int, start, stop *int, step int) (int, int) {
	clamp := func(idx, lower, upper int) int {
		if idx < 0 {
			idx += length
			if idx < lower {
				return lower
			}
			return idx
		}
		if idx > upper {
			return upper
		}
		return idx
	}

	if step > 0 {
		lo, hi := 0, length
		if start != nil {
			lo = clamp(*start, 0, length)
		}
		if stop != nil {
			hi = clamp(*stop, 0, length)
		}
		return lo, hi
	}

	lo, hi := length-1, -1
	if start != nil {
		lo = clamp(*start, -1, length-1)
	}
	if stop != nil {
		hi = clamp(*stop, -1, length-1)
	}
	return lo, hi
}

func sliceIndex(arg interface{}) (*int, error) {
	var idx int
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case int:
		idx = v
	case int64:
		idx = int(v)
	case float64:
		if v != float64(int(v)) {
			return nil, fmt.Errorf("%w: slice index %v is not an integer", ErrInvalidArgs, v)
		}
		idx = int(v)
	default:
		return nil, fmt.Errorf("%w: slice index %v (%T) is not an integer", ErrInvalidArgs, arg, arg)
	}
	return &idx, nil
}

// Researcher runs a regular expression search over reply. It returns the
// leftmost match followed by its submatches, or nil if nothing matched.
func Researcher(reply string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidArgs, pattern, err)
	}
	return re.FindStringSubmatch(reply), nil
}

// Stripper removes prefix from the start and suffix from the end of reply,
// each only when present as a whole
func Stripper(reply, prefix, suffix string) string {
	if prefix != "" {
		reply = strings.TrimPrefix(reply, prefix)
	}
	if suffix != "" {
		reply = strings.TrimSuffix(reply, suffix)
	}
	return reply
}
