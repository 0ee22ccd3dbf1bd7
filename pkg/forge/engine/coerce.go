package engine

import (
	"math"
	"strconv"
	"strings"
)

// toNumber coerces a value for numeric contexts. Booleans count as 1/0,
// dates as their serial, blanks as zero, and numeric-looking text parses.
func toNumber(v Value) (float64, *Error) {
	switch val := v.(type) {
	case *Number:
		return val.Value, nil
	case *Boolean:
		if val.Value {
			return 1, nil
		}
		return 0, nil
	case *Date:
		return val.Serial, nil
	case *Blank:
		return 0, nil
	case *Text:
		s := strings.TrimSpace(val.Value)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return 0, newError(ErrValue, "cannot convert %q to a number", val.Value)
	case *Error:
		return 0, val
	}
	return 0, newError(ErrValue, "cannot convert %s to a number", v.Type())
}

// toText coerces a value for text contexts.
func toText(v Value) (string, *Error) {
	switch val := v.(type) {
	case *Text:
		return val.Value, nil
	case *Number:
		return formatNumber(val.Value), nil
	case *Boolean:
		if val.Value {
			return "TRUE", nil
		}
		return "FALSE", nil
	case *Date:
		return val.Time().Format("2006-01-02"), nil
	case *Blank:
		return "", nil
	case *Error:
		return "", val
	}
	return "", newError(ErrValue, "cannot convert %s to text", v.Type())
}

// toBool coerces a value for condition contexts. Nonzero numbers are true;
// only the literal words TRUE and FALSE convert from text.
func toBool(v Value) (bool, *Error) {
	switch val := v.(type) {
	case *Boolean:
		return val.Value, nil
	case *Number:
		return val.Value != 0, nil
	case *Date:
		return val.Serial != 0, nil
	case *Blank:
		return false, nil
	case *Text:
		switch strings.ToUpper(strings.TrimSpace(val.Value)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, newError(ErrValue, "cannot convert %q to a boolean", val.Value)
	case *Error:
		return false, val
	}
	return false, newError(ErrValue, "cannot convert %s to a boolean", v.Type())
}

// formatNumber renders a float the way general spreadsheet display does:
// integers without a decimal point, everything else at shortest round-trip
// precision.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// checkNumeric maps NaN and infinities from a computation back to in-band
// errors before they can contaminate downstream cells.
func checkNumeric(f float64) Value {
	if math.IsNaN(f) {
		return newError(ErrNum, "result is not a number")
	}
	if math.IsInf(f, 0) {
		return newError(ErrNum, "result overflows")
	}
	return &Number{Value: f}
}

// broadcast1 lifts a scalar operation elementwise over arrays.
func broadcast1(v Value, f func(Value) Value) Value {
	arr, ok := v.(*Array)
	if !ok {
		return f(v)
	}
	out := make([]Value, len(arr.Elements))
	for i, el := range arr.Elements {
		out[i] = broadcast1(el, f)
	}
	return &Array{Elements: out}
}

// broadcast2 lifts a scalar operation over array operands. Array against
// scalar repeats the scalar; array against array pairs elements and
// mismatched lengths produce a value error.
func broadcast2(l, r Value, f func(Value, Value) Value) Value {
	la, lok := l.(*Array)
	ra, rok := r.(*Array)
	switch {
	case lok && rok:
		if len(la.Elements) != len(ra.Elements) {
			return newError(ErrValue, "array length mismatch: %d vs %d", len(la.Elements), len(ra.Elements))
		}
		out := make([]Value, len(la.Elements))
		for i := range la.Elements {
			out[i] = broadcast2(la.Elements[i], ra.Elements[i], f)
		}
		return &Array{Elements: out}
	case lok:
		out := make([]Value, len(la.Elements))
		for i, el := range la.Elements {
			out[i] = broadcast2(el, r, f)
		}
		return &Array{Elements: out}
	case rok:
		out := make([]Value, len(ra.Elements))
		for i, el := range ra.Elements {
			out[i] = broadcast2(l, el, f)
		}
		return &Array{Elements: out}
	}
	return f(l, r)
}

// flatten expands arrays depth-first into a flat value list.
func flatten(vals ...Value) []Value {
	var out []Value
	for _, v := range vals {
		if arr, ok := v.(*Array); ok {
			out = append(out, flatten(arr.Elements...)...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// numericOperands flattens arguments and keeps the numbers, propagating the
// first in-band error. Text and booleans are skipped, the way range
// aggregates ignore them.
func numericOperands(args []Value) ([]float64, *Error) {
	var nums []float64
	for _, v := range flatten(args...) {
		switch val := v.(type) {
		case *Number:
			nums = append(nums, val.Value)
		case *Date:
			nums = append(nums, val.Serial)
		case *Error:
			return nil, val
		}
	}
	return nums, nil
}

// strictNumericOperands flattens arguments coercing every element,
// propagating the first error. Used by functions whose arguments are all
// required to be numeric.
func strictNumericOperands(args []Value) ([]float64, *Error) {
	flat := flatten(args...)
	nums := make([]float64, 0, len(flat))
	for _, v := range flat {
		f, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		nums = append(nums, f)
	}
	return nums, nil
}

// firstError returns the first in-band error among values, descending into
// arrays.
func firstError(vals ...Value) *Error {
	for _, v := range flatten(vals...) {
		if e, ok := v.(*Error); ok {
			return e
		}
	}
	return nil
}
