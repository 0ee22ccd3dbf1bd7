package engine

func init() {
	register(&Builtin{Name: "INDEX", MinArgs: 2, MaxArgs: 2, Fn: fnIndex})
	register(&Builtin{Name: "MATCH", MinArgs: 2, MaxArgs: 3, Fn: fnMatch})
	register(&Builtin{Name: "XLOOKUP", MinArgs: 3, MaxArgs: 5, AcceptsErrors: true, Fn: fnXLookup})
	register(&Builtin{Name: "CHOOSE", MinArgs: 2, MaxArgs: -1, AcceptsErrors: true, Fn: fnChoose})
}

func fnIndex(args []Value) Value {
	arr := flatten(args[0])
	n, err := toNumber(args[1])
	if err != nil {
		return err
	}
	i := int(n)
	if i < 1 || i > len(arr) {
		return newError(ErrRef, "INDEX position %d out of range 1..%d", i, len(arr))
	}
	return arr[i-1]
}

func fnMatch(args []Value) Value {
	arr := flatten(args[1])
	mode := 1.0
	if len(args) == 3 {
		m, err := toNumber(args[2])
		if err != nil {
			return err
		}
		mode = m
	}

	switch {
	case mode == 0:
		for i, v := range arr {
			if cmp, err := compareValues(args[0], v); err == nil && cmp == 0 {
				return &Number{Value: float64(i + 1)}
			}
		}
	case mode > 0:
		// Largest value <= lookup; assumes ascending order.
		best := -1
		for i, v := range arr {
			cmp, err := compareValues(v, args[0])
			if err != nil {
				continue
			}
			if cmp <= 0 {
				best = i
			} else {
				break
			}
		}
		if best >= 0 {
			return &Number{Value: float64(best + 1)}
		}
	default:
		// Smallest value >= lookup; assumes descending order.
		best := -1
		for i, v := range arr {
			cmp, err := compareValues(v, args[0])
			if err != nil {
				continue
			}
			if cmp >= 0 {
				best = i
			} else {
				break
			}
		}
		if best >= 0 {
			return &Number{Value: float64(best + 1)}
		}
	}
	return newError(ErrNA, "no match for %s", args[0].Inspect())
}

func fnXLookup(args []Value) Value {
	lookup := args[0]
	if e, ok := lookup.(*Error); ok {
		return e
	}
	keys := flatten(args[1])
	results := flatten(args[2])
	if len(keys) != len(results) {
		return newError(ErrValue, "XLOOKUP arrays differ in length")
	}
	matchMode := 0.0
	if len(args) == 5 {
		m, err := toNumber(args[4])
		if err != nil {
			return err
		}
		matchMode = m
	}

	exact := -1
	nearest := -1
	for i, k := range keys {
		cmp, err := compareValues(k, lookup)
		if err != nil {
			continue
		}
		if cmp == 0 {
			exact = i
			break
		}
		switch {
		case matchMode < 0 && cmp < 0:
			// Next smaller: keep the largest key below the lookup.
			if nearest < 0 || mustCompare(keys[i], keys[nearest]) > 0 {
				nearest = i
			}
		case matchMode > 0 && cmp > 0:
			// Next larger: keep the smallest key above the lookup.
			if nearest < 0 || mustCompare(keys[i], keys[nearest]) < 0 {
				nearest = i
			}
		}
	}

	switch {
	case exact >= 0:
		return results[exact]
	case matchMode != 0 && nearest >= 0:
		return results[nearest]
	case len(args) >= 4:
		return args[3]
	}
	return newError(ErrNA, "no match for %s", lookup.Inspect())
}

// mustCompare orders two comparable values, treating incomparable pairs as
// equal. Used only for nearest-match bookkeeping.
func mustCompare(a, b Value) int {
	cmp, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return cmp
}

func fnChoose(args []Value) Value {
	n, err := toNumber(args[0])
	if err != nil {
		return err
	}
	i := int(n)
	if i < 1 || i > len(args)-1 {
		return newError(ErrValue, "CHOOSE index %d out of range 1..%d", i, len(args)-1)
	}
	return args[i]
}