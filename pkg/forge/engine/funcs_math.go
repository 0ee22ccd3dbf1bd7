package engine

import "math"

// numeric1 builds a one-argument numeric builtin that broadcasts over
// arrays.
func numeric1(name string, f func(float64) Value) *Builtin {
	return &Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Fn: func(args []Value) Value {
		return broadcast1(args[0], func(v Value) Value {
			x, err := toNumber(v)
			if err != nil {
				return err
			}
			return f(x)
		})
	}}
}

// numeric2 builds a two-argument numeric builtin that broadcasts over
// arrays.
func numeric2(name string, f func(float64, float64) Value) *Builtin {
	return &Builtin{Name: name, MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		return broadcast2(args[0], args[1], func(a, b Value) Value {
			x, err := toNumber(a)
			if err != nil {
				return err
			}
			y, err := toNumber(b)
			if err != nil {
				return err
			}
			return f(x, y)
		})
	}}
}

func init() {
	register(numeric1("ABS", func(x float64) Value {
		return &Number{Value: math.Abs(x)}
	}))
	register(numeric1("SIGN", func(x float64) Value {
		switch {
		case x > 0:
			return &Number{Value: 1}
		case x < 0:
			return &Number{Value: -1}
		}
		return &Number{Value: 0}
	}))
	register(numeric1("SQRT", func(x float64) Value {
		if x < 0 {
			return newError(ErrNum, "SQRT of a negative number")
		}
		return checkNumeric(math.Sqrt(x))
	}))
	register(numeric2("POWER", func(x, y float64) Value {
		if x == 0 && y < 0 {
			return newError(ErrDiv0, "zero raised to a negative power")
		}
		return checkNumeric(math.Pow(x, y))
	}))
	register(numeric1("EXP", func(x float64) Value {
		return checkNumeric(math.Exp(x))
	}))
	register(numeric1("LN", func(x float64) Value {
		if x <= 0 {
			return newError(ErrNum, "LN requires a positive number")
		}
		return checkNumeric(math.Log(x))
	}))
	register(numeric1("LOG10", func(x float64) Value {
		if x <= 0 {
			return newError(ErrNum, "LOG10 requires a positive number")
		}
		return checkNumeric(math.Log10(x))
	}))
	register(&Builtin{Name: "LOG", MinArgs: 1, MaxArgs: 2, Fn: fnLog})
	register(numeric2("MOD", func(x, y float64) Value {
		if y == 0 {
			return newError(ErrDiv0, "MOD with zero divisor")
		}
		// The result carries the divisor's sign, per spreadsheet MOD.
		r := x - y*math.Floor(x/y)
		return checkNumeric(r)
	}))
	register(numeric1("INT", func(x float64) Value {
		return &Number{Value: math.Floor(x)}
	}))
	register(numeric2("ROUND", func(x, d float64) Value {
		return checkNumeric(roundAway(x, int(d)))
	}))
	register(numeric2("ROUNDUP", func(x, d float64) Value {
		return checkNumeric(roundDir(x, int(d), true))
	}))
	register(numeric2("ROUNDDOWN", func(x, d float64) Value {
		return checkNumeric(roundDir(x, int(d), false))
	}))
	register(&Builtin{Name: "TRUNC", MinArgs: 1, MaxArgs: 2, Fn: func(args []Value) Value {
		digits := 0.0
		if len(args) == 2 {
			d, err := toNumber(args[1])
			if err != nil {
				return err
			}
			digits = d
		}
		return broadcast1(args[0], func(v Value) Value {
			x, err := toNumber(v)
			if err != nil {
				return err
			}
			return checkNumeric(roundDir(x, int(digits), false))
		})
	}})
	register(numeric2("CEILING", func(x, sig float64) Value {
		return ceilingFloor(x, sig, true)
	}))
	register(numeric2("FLOOR", func(x, sig float64) Value {
		return ceilingFloor(x, sig, false)
	}))
	register(&Builtin{Name: "PI", MinArgs: 0, MaxArgs: 0, Fn: func([]Value) Value {
		return &Number{Value: math.Pi}
	}})
}

func fnLog(args []Value) Value {
	base := 10.0
	if len(args) == 2 {
		b, err := toNumber(args[1])
		if err != nil {
			return err
		}
		base = b
	}
	if base <= 0 || base == 1 {
		return newError(ErrNum, "invalid LOG base %g", base)
	}
	return broadcast1(args[0], func(v Value) Value {
		x, err := toNumber(v)
		if err != nil {
			return err
		}
		if x <= 0 {
			return newError(ErrNum, "LOG requires a positive number")
		}
		return checkNumeric(math.Log(x) / math.Log(base))
	})
}

// roundAway rounds half away from zero at the given decimal digit, matching
// spreadsheet ROUND rather than banker's rounding.
func roundAway(x float64, digits int) float64 {
	shift := math.Pow(10, float64(digits))
	scaled := x * shift
	if scaled < 0 {
		return -math.Floor(-scaled+0.5) / shift
	}
	return math.Floor(scaled+0.5) / shift
}

// roundDir rounds away from zero (up) or toward zero (down) at the given
// digit.
func roundDir(x float64, digits int, away bool) float64 {
	shift := math.Pow(10, float64(digits))
	scaled := x * shift
	var r float64
	if away {
		if scaled < 0 {
			r = math.Floor(scaled)
		} else {
			r = math.Ceil(scaled)
		}
	} else {
		r = math.Trunc(scaled)
	}
	return r / shift
}

func ceilingFloor(x, sig float64, up bool) Value {
	if sig == 0 {
		return &Number{Value: 0}
	}
	if x > 0 && sig < 0 {
		return newError(ErrNum, "significance sign mismatch")
	}
	q := x / sig
	if up {
		return checkNumeric(math.Ceil(q) * sig)
	}
	return checkNumeric(math.Floor(q) * sig)
}
