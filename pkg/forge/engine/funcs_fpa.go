package engine

import "math"

// Planning and analysis helpers. These are engine natives, not spreadsheet
// imports; their formulas are fixed here:
//
//	VARIANCE(actual, budget)             = actual - budget
//	VARIANCE_PCT(actual, budget)         = (actual - budget) / |budget|
//	BREAKEVEN_UNITS(fixed, price, unit)  = fixed / (price - unit)
//	BREAKEVEN_REVENUE(fixed, price, unit) = BREAKEVEN_UNITS * price
//
// All four broadcast elementwise over column arguments.
func init() {
	register(numeric2("VARIANCE", func(actual, budget float64) Value {
		return checkNumeric(actual - budget)
	}))

	register(numeric2("VARIANCE_PCT", func(actual, budget float64) Value {
		if budget == 0 {
			return newError(ErrDiv0, "variance against a zero budget")
		}
		// Dividing by the magnitude keeps the sign of the percentage
		// aligned with the sign of the variance when budget is negative.
		return checkNumeric((actual - budget) / math.Abs(budget))
	}))

	register(&Builtin{Name: "BREAKEVEN_UNITS", MinArgs: 3, MaxArgs: 3, Fn: breakevenUnits})

	register(&Builtin{Name: "BREAKEVEN_REVENUE", MinArgs: 3, MaxArgs: 3, Fn: func(args []Value) Value {
		return broadcast2(breakevenUnits(args), args[1], func(u, p Value) Value {
			units, err := toNumber(u)
			if err != nil {
				return err
			}
			price, err := toNumber(p)
			if err != nil {
				return err
			}
			return checkNumeric(units * price)
		})
	}})
}

func breakevenUnits(args []Value) Value {
	return broadcast2(args[0], broadcast2(args[1], args[2], func(p, u Value) Value {
		price, err := toNumber(p)
		if err != nil {
			return err
		}
		unitCost, err := toNumber(u)
		if err != nil {
			return err
		}
		return &Number{Value: price - unitCost}
	}), func(f, margin Value) Value {
		fixed, err := toNumber(f)
		if err != nil {
			return err
		}
		m, err := toNumber(margin)
		if err != nil {
			return err
		}
		if m <= 0 {
			return newError(ErrNum, "nonpositive unit contribution margin")
		}
		return checkNumeric(fixed / m)
	})
}
