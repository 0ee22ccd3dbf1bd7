package engine

import (
	"math"
	"strings"
)

func init() {
	register(&Builtin{Name: "SUM", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		nums, err := numericOperands(args)
		if err != nil {
			return err
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return checkNumeric(total)
	}})

	register(&Builtin{Name: "AVERAGE", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		nums, err := numericOperands(args)
		if err != nil {
			return err
		}
		if len(nums) == 0 {
			return newError(ErrDiv0, "AVERAGE of no numbers")
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return checkNumeric(total / float64(len(nums)))
	}})

	register(&Builtin{Name: "MIN", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		nums, err := numericOperands(args)
		if err != nil {
			return err
		}
		if len(nums) == 0 {
			return &Number{Value: 0}
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Min(m, n)
		}
		return &Number{Value: m}
	}})

	register(&Builtin{Name: "MAX", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		nums, err := numericOperands(args)
		if err != nil {
			return err
		}
		if len(nums) == 0 {
			return &Number{Value: 0}
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Max(m, n)
		}
		return &Number{Value: m}
	}})

	register(&Builtin{Name: "PRODUCT", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		nums, err := numericOperands(args)
		if err != nil {
			return err
		}
		if len(nums) == 0 {
			return &Number{Value: 0}
		}
		p := 1.0
		for _, n := range nums {
			p *= n
		}
		return checkNumeric(p)
	}})

	// The COUNT family counts by qualifying type and never propagates
	// error elements; an error is simply a non-blank, non-numeric entry.
	register(&Builtin{Name: "COUNT", MinArgs: 1, MaxArgs: -1, AcceptsErrors: true, Fn: func(args []Value) Value {
		n := 0
		for _, v := range flatten(args...) {
			switch v.(type) {
			case *Number, *Date:
				n++
			}
		}
		return &Number{Value: float64(n)}
	}})

	register(&Builtin{Name: "COUNTA", MinArgs: 1, MaxArgs: -1, AcceptsErrors: true, Fn: func(args []Value) Value {
		n := 0
		for _, v := range flatten(args...) {
			if _, blank := v.(*Blank); !blank {
				n++
			}
		}
		return &Number{Value: float64(n)}
	}})

	register(&Builtin{Name: "COUNTBLANK", MinArgs: 1, MaxArgs: -1, AcceptsErrors: true, Fn: func(args []Value) Value {
		n := 0
		for _, v := range flatten(args...) {
			if _, blank := v.(*Blank); blank {
				n++
			}
		}
		return &Number{Value: float64(n)}
	}})

	register(&Builtin{Name: "COUNTIF", MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		match := parseCriteria(args[1])
		n := 0
		for _, v := range flatten(args[0]) {
			if match(v) {
				n++
			}
		}
		return &Number{Value: float64(n)}
	}})

	register(&Builtin{Name: "SUMIF", MinArgs: 2, MaxArgs: 3, Fn: fnSumIf})
	register(&Builtin{Name: "AVERAGEIF", MinArgs: 2, MaxArgs: 3, Fn: fnAverageIf})
	register(&Builtin{Name: "SUMPRODUCT", MinArgs: 1, MaxArgs: -1, Fn: fnSumProduct})
}

func fnSumIf(args []Value) Value {
	rng := flatten(args[0])
	match := parseCriteria(args[1])
	sumRng := rng
	if len(args) == 3 {
		sumRng = flatten(args[2])
		if len(sumRng) != len(rng) {
			return newError(ErrValue, "SUMIF ranges differ in length")
		}
	}
	total := 0.0
	for i, v := range rng {
		if !match(v) {
			continue
		}
		if e, ok := sumRng[i].(*Error); ok {
			return e
		}
		if n, ok := asNumber(sumRng[i]); ok {
			total += n
		}
	}
	return checkNumeric(total)
}

func fnAverageIf(args []Value) Value {
	rng := flatten(args[0])
	match := parseCriteria(args[1])
	avgRng := rng
	if len(args) == 3 {
		avgRng = flatten(args[2])
		if len(avgRng) != len(rng) {
			return newError(ErrValue, "AVERAGEIF ranges differ in length")
		}
	}
	total, count := 0.0, 0
	for i, v := range rng {
		if !match(v) {
			continue
		}
		if e, ok := avgRng[i].(*Error); ok {
			return e
		}
		if n, ok := asNumber(avgRng[i]); ok {
			total += n
			count++
		}
	}
	if count == 0 {
		return newError(ErrDiv0, "AVERAGEIF matched no numbers")
	}
	return checkNumeric(total / float64(count))
}

func fnSumProduct(args []Value) Value {
	arrays := make([][]Value, len(args))
	for i, a := range args {
		arrays[i] = flatten(a)
		if len(arrays[i]) != len(arrays[0]) {
			return newError(ErrValue, "SUMPRODUCT arrays differ in length")
		}
	}
	total := 0.0
	for row := range arrays[0] {
		p := 1.0
		for _, arr := range arrays {
			if e, ok := arr[row].(*Error); ok {
				return e
			}
			// Non-numeric entries multiply as zero.
			n, ok := asNumber(arr[row])
			if !ok {
				n = 0
			}
			p *= n
		}
		total += p
	}
	return checkNumeric(total)
}

// asNumber extracts a numeric value without coercing text or booleans, the
// way range aggregation treats cells.
func asNumber(v Value) (float64, bool) {
	switch val := v.(type) {
	case *Number:
		return val.Value, true
	case *Date:
		return val.Serial, true
	}
	return 0, false
}

// parseCriteria compiles a COUNTIF/SUMIF criteria value into a predicate.
// Text starting with a comparison operator compares; anything else tests
// equality under the usual comparison rules.
func parseCriteria(criteria Value) func(Value) bool {
	if t, ok := criteria.(*Text); ok {
		for _, op := range []string{">=", "<=", "<>", "=", ">", "<"} {
			rest, found := strings.CutPrefix(t.Value, op)
			if !found {
				continue
			}
			operand := criteriaOperand(rest)
			return func(v Value) bool {
				cmp, err := compareValues(v, operand)
				if err != nil {
					return false
				}
				switch op {
				case ">=":
					return cmp >= 0
				case "<=":
					return cmp <= 0
				case "<>":
					return cmp != 0
				case "=":
					return cmp == 0
				case ">":
					return cmp > 0
				default:
					return cmp < 0
				}
			}
		}
	}
	return func(v Value) bool {
		cmp, err := compareValues(v, criteria)
		return err == nil && cmp == 0
	}
}

// criteriaOperand interprets the text after a criteria operator as a number
// when it parses as one, otherwise as text.
func criteriaOperand(s string) Value {
	probe := &Text{Value: s}
	if n, err := toNumber(probe); err == nil && s != "" {
		return &Number{Value: n}
	}
	return probe
}
