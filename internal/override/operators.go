package override

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"confhub/internal/types"
	"confhub/internal/value"
)

// MatchFunc decides whether the context value satisfies a leaf condition.
// expected is the already resolved comparison value.
type MatchFunc func(actual, expected value.Value, cond types.Condition) bool

var builtinOperators = map[types.Operator]MatchFunc{
	types.OperatorEquals:    matchEquals,
	types.OperatorNotEquals: func(a, e value.Value, c types.Condition) bool { return !matchEquals(a, e, c) },
	types.OperatorIn:        matchIn,
	types.OperatorNotIn: func(a, e value.Value, c types.Condition) bool {
		return e.Kind() == value.KindArray && !matchIn(a, e, c)
	},
	types.OperatorLessThan:           compareWith(func(r int) bool { return r < 0 }),
	types.OperatorLessThanOrEqual:    compareWith(func(r int) bool { return r <= 0 }),
	types.OperatorGreaterThan:        compareWith(func(r int) bool { return r > 0 }),
	types.OperatorGreaterThanOrEqual: compareWith(func(r int) bool { return r >= 0 }),
	types.OperatorContains:           matchContains,
	types.OperatorStartsWith:         stringOp(strings.HasPrefix),
	types.OperatorEndsWith:           stringOp(strings.HasSuffix),
	types.OperatorMatches:            matchRegexp,
	types.OperatorSegmentation:       matchSegment,
}

func matchEquals(actual, expected value.Value, _ types.Condition) bool {
	return value.Equal(actual, coerce(expected, actual.Kind()))
}

func matchIn(actual, expected value.Value, _ types.Condition) bool {
	for _, item := range expected.Items() {
		if value.Equal(actual, coerce(item, actual.Kind())) {
			return true
		}
	}
	return false
}

func compareWith(accept func(int) bool) MatchFunc {
	return func(actual, expected value.Value, _ types.Condition) bool {
		r, ok := value.Compare(actual, coerce(expected, actual.Kind()))
		return ok && accept(r)
	}
}

func matchContains(actual, expected value.Value, _ types.Condition) bool {
	switch actual.Kind() {
	case value.KindString:
		s, _ := actual.AsString()
		sub, ok := coerce(expected, value.KindString).AsString()
		return ok && strings.Contains(s, sub)
	case value.KindArray:
		for _, item := range actual.Items() {
			if value.Equal(item, coerce(expected, item.Kind())) {
				return true
			}
		}
	}
	return false
}

func stringOp(fn func(s, part string) bool) MatchFunc {
	return func(actual, expected value.Value, _ types.Condition) bool {
		s, ok := actual.AsString()
		if !ok {
			return false
		}
		part, ok := coerce(expected, value.KindString).AsString()
		return ok && fn(s, part)
	}
}

var patterns sync.Map

func compilePattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patterns.Store(expr, re)
	return re, nil
}

func matchRegexp(actual, expected value.Value, _ types.Condition) bool {
	s, ok := scalarString(actual)
	if !ok {
		return false
	}
	expr, ok := expected.AsString()
	if !ok {
		return false
	}
	re, err := compilePattern(expr)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// Bucket maps seed and key to a stable position in [0, 100)
func Bucket(seed, key string) float64 {
	h := xxhash.Sum64String(seed + ":" + key)
	return float64(h%10000) / 100
}

// SegmentRange reads the {"from": x, "to": y} percentage range of a segmentation condition
func SegmentRange(v value.Value) (from, to float64, ok bool) {
	fv, ok1 := v.Get("from")
	tv, ok2 := v.Get("to")
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	from, ok1 = fv.AsNumber()
	to, ok2 = tv.AsNumber()
	if !ok1 || !ok2 || from < 0 || to > 100 || from > to {
		return 0, 0, false
	}
	return from, to, true
}

func matchSegment(actual, expected value.Value, cond types.Condition) bool {
	key, ok := scalarString(actual)
	if !ok {
		return false
	}
	from, to, ok := SegmentRange(expected)
	if !ok {
		return false
	}
	b := Bucket(cond.Seed, key)
	return b >= from && b < to
}

func scalarString(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return s, true
	case value.KindNumber:
		n, _ := v.AsNumber()
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case value.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), true
	}
	return "", false
}

// coerce converts a scalar literal to kind when a lossless conversion exists,
// so a "10" literal compares equal to a numeric 10 in the context.
func coerce(v value.Value, kind value.Kind) value.Value {
	if v.Kind() == kind {
		return v
	}
	switch kind {
	case value.KindString:
		if s, ok := scalarString(v); ok {
			return value.String(s)
		}
	case value.KindNumber:
		if s, ok := v.AsString(); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return value.Number(n)
			}
		}
	case value.KindBool:
		if s, ok := v.AsString(); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return value.Bool(b)
			}
		}
	}
	return v
}
