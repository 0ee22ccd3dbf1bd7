package engine

import "math"

func init() {
	register(&Builtin{Name: "NPV", MinArgs: 2, MaxArgs: -1, Fn: fnNPV})
	register(&Builtin{Name: "IRR", MinArgs: 1, MaxArgs: 2, Fn: fnIRR})
	register(&Builtin{Name: "PMT", MinArgs: 3, MaxArgs: 5, Fn: fnPMT})
	register(&Builtin{Name: "IPMT", MinArgs: 4, MaxArgs: 6, Fn: fnIPMT})
	register(&Builtin{Name: "PPMT", MinArgs: 4, MaxArgs: 6, Fn: fnPPMT})
	register(&Builtin{Name: "FV", MinArgs: 3, MaxArgs: 5, Fn: fnFV})
	register(&Builtin{Name: "PV", MinArgs: 3, MaxArgs: 5, Fn: fnPV})
	register(&Builtin{Name: "NPER", MinArgs: 3, MaxArgs: 5, Fn: fnNPER})
	register(&Builtin{Name: "RATE", MinArgs: 3, MaxArgs: 6, Fn: fnRATE})
}

// fnNPV discounts cash flows one period each, the first flow at the end of
// period one.
func fnNPV(args []Value) Value {
	rate, err := toNumber(args[0])
	if err != nil {
		return err
	}
	if rate == -1 {
		return newError(ErrDiv0, "NPV rate of -100%%")
	}
	flows, err := strictNumericOperands(args[1:])
	if err != nil {
		return err
	}
	total := 0.0
	for i, cf := range flows {
		total += cf / math.Pow(1+rate, float64(i+1))
	}
	return checkNumeric(total)
}

// fnIRR solves NPV(rate, flows) = 0 with Newton iteration, falling back to
// bisection when Newton diverges. Flows are at period ends, the first at
// time zero.
func fnIRR(args []Value) Value {
	flows, err := strictNumericOperands(args[:1])
	if err != nil {
		return err
	}
	guess := 0.1
	if len(args) == 2 {
		guess, err = toNumber(args[1])
		if err != nil {
			return err
		}
	}

	hasPos, hasNeg := false, false
	for _, cf := range flows {
		hasPos = hasPos || cf > 0
		hasNeg = hasNeg || cf < 0
	}
	if !hasPos || !hasNeg {
		return newError(ErrNum, "IRR needs both inflows and outflows")
	}

	npvAt := func(r float64) float64 {
		total := 0.0
		for i, cf := range flows {
			total += cf / math.Pow(1+r, float64(i))
		}
		return total
	}

	// Newton with a numeric derivative.
	r := guess
	for i := 0; i < 60; i++ {
		f := npvAt(r)
		if math.Abs(f) < 1e-9 {
			return checkNumeric(r)
		}
		const h = 1e-6
		df := (npvAt(r+h) - npvAt(r-h)) / (2 * h)
		if df == 0 || math.IsNaN(df) {
			break
		}
		next := r - f/df
		if next <= -1 {
			break
		}
		if math.Abs(next-r) < 1e-12 {
			return checkNumeric(next)
		}
		r = next
	}

	// Bisection over a sign change scanned in coarse steps.
	lo, hi := -0.9999, -0.9999
	prev := npvAt(lo)
	found := false
	for x := -0.99; x <= 10; x += 0.01 {
		cur := npvAt(x)
		if prev*cur <= 0 && !math.IsNaN(cur) {
			hi = x
			found = true
			break
		}
		lo, prev = x, cur
	}
	if !found {
		return newError(ErrNum, "IRR did not converge")
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if npvAt(lo)*npvAt(mid) <= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return checkNumeric((lo + hi) / 2)
}

// annuityArgs unpacks (rate, nper, pv, [fv], [type]) style argument lists
// starting at args[from].
func annuityArgs(args []Value, from int) ([]float64, *Error) {
	out := make([]float64, 0, len(args)-from)
	for _, a := range args[from:] {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func optArg(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// pmtValue computes the periodic payment with the standard signed cash-flow
// convention: money paid out is negative.
func pmtValue(rate, nper, pv, fv, typ float64) (float64, *Error) {
	if nper == 0 {
		return 0, newError(ErrNum, "zero payment periods")
	}
	if rate == 0 {
		return -(pv + fv) / nper, nil
	}
	growth := math.Pow(1+rate, nper)
	return -(pv*growth + fv) * rate / ((1 + rate*typ) * (growth - 1)), nil
}

func fvValue(rate, nper, pmt, pv, typ float64) float64 {
	if rate == 0 {
		return -(pv + pmt*nper)
	}
	growth := math.Pow(1+rate, nper)
	return -(pv*growth + pmt*(1+rate*typ)*(growth-1)/rate)
}

func fnPMT(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	p, perr := pmtValue(v[0], v[1], v[2], optArg(v, 3), optArg(v, 4))
	if perr != nil {
		return perr
	}
	return checkNumeric(p)
}

func ipmtValue(rate, per, nper, pv, fv, typ float64) (float64, *Error) {
	if per < 1 || per > nper {
		return 0, newError(ErrNum, "period %g outside 1..%g", per, nper)
	}
	pmt, err := pmtValue(rate, nper, pv, fv, typ)
	if err != nil {
		return 0, err
	}
	if typ != 0 && per == 1 {
		return 0, nil
	}
	// Interest accrues on the balance remaining after per-1 payments.
	balance := fvValue(rate, per-1, pmt, pv, typ)
	interest := balance * rate
	if typ != 0 {
		interest /= 1 + rate
	}
	return interest, nil
}

func fnIPMT(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	i, ierr := ipmtValue(v[0], v[1], v[2], v[3], optArg(v, 4), optArg(v, 5))
	if ierr != nil {
		return ierr
	}
	return checkNumeric(i)
}

func fnPPMT(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	rate, per, nper, pv := v[0], v[1], v[2], v[3]
	fv, typ := optArg(v, 4), optArg(v, 5)
	pmt, perr := pmtValue(rate, nper, pv, fv, typ)
	if perr != nil {
		return perr
	}
	interest, perr := ipmtValue(rate, per, nper, pv, fv, typ)
	if perr != nil {
		return perr
	}
	return checkNumeric(pmt - interest)
}

func fnFV(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	return checkNumeric(fvValue(v[0], v[1], v[2], optArg(v, 3), optArg(v, 4)))
}

func fnPV(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	rate, nper, pmt := v[0], v[1], v[2]
	fv, typ := optArg(v, 3), optArg(v, 4)
	if rate == 0 {
		return checkNumeric(-(fv + pmt*nper))
	}
	growth := math.Pow(1+rate, nper)
	return checkNumeric(-(fv + pmt*(1+rate*typ)*(growth-1)/rate) / growth)
}

func fnNPER(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	rate, pmt, pv := v[0], v[1], v[2]
	fv, typ := optArg(v, 3), optArg(v, 4)
	if rate == 0 {
		if pmt == 0 {
			return newError(ErrNum, "NPER with zero rate and zero payment")
		}
		return checkNumeric(-(pv + fv) / pmt)
	}
	adj := pmt * (1 + rate*typ) / rate
	num := adj - fv
	den := adj + pv
	if den == 0 || num/den <= 0 {
		return newError(ErrNum, "NPER has no solution")
	}
	return checkNumeric(math.Log(num/den) / math.Log(1+rate))
}

// fnRATE solves the annuity equation for the periodic rate with Newton
// iteration on a numeric derivative.
func fnRATE(args []Value) Value {
	v, err := annuityArgs(args, 0)
	if err != nil {
		return err
	}
	nper, pmt, pv := v[0], v[1], v[2]
	fv, typ := optArg(v, 3), optArg(v, 4)
	guess := 0.1
	if len(v) == 6 {
		guess = v[5]
	}

	residual := func(r float64) float64 {
		if r == 0 {
			return pv + pmt*nper + fv
		}
		growth := math.Pow(1+r, nper)
		return pv*growth + pmt*(1+r*typ)*(growth-1)/r + fv
	}

	r := guess
	for i := 0; i < 100; i++ {
		f := residual(r)
		if math.Abs(f) < 1e-9 {
			return checkNumeric(r)
		}
		const h = 1e-6
		df := (residual(r+h) - residual(r-h)) / (2 * h)
		if df == 0 || math.IsNaN(df) {
			break
		}
		next := r - f/df
		if next <= -1 {
			next = (r - 1) / 2 // pull back inside the domain
		}
		if math.Abs(next-r) < 1e-12 {
			return checkNumeric(next)
		}
		r = next
	}
	return newError(ErrNum, "RATE did not converge")
}
