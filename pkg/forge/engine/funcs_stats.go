package engine

import (
	"math"
	"sort"
)

func init() {
	register(&Builtin{Name: "MEDIAN", MinArgs: 1, MaxArgs: -1, Fn: fnMedian})
	register(&Builtin{Name: "MODE", MinArgs: 1, MaxArgs: -1, Fn: fnMode})
	register(&Builtin{Name: "STDEV", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		return dispersion(args, true, true)
	}})
	register(&Builtin{Name: "STDEVP", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		return dispersion(args, false, true)
	}})
	register(&Builtin{Name: "VAR", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		return dispersion(args, true, false)
	}})
	register(&Builtin{Name: "VARP", MinArgs: 1, MaxArgs: -1, Fn: func(args []Value) Value {
		return dispersion(args, false, false)
	}})
	register(&Builtin{Name: "PERCENTILE", MinArgs: 2, MaxArgs: 2, Fn: fnPercentile})
	register(&Builtin{Name: "QUARTILE", MinArgs: 2, MaxArgs: 2, Fn: fnQuartile})
	register(&Builtin{Name: "LARGE", MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		return kth(args, false)
	}})
	register(&Builtin{Name: "SMALL", MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		return kth(args, true)
	}})
	register(&Builtin{Name: "RANK", MinArgs: 2, MaxArgs: 3, Fn: fnRank})
	register(&Builtin{Name: "CORREL", MinArgs: 2, MaxArgs: 2, Fn: fnCorrel})
}

func fnMedian(args []Value) Value {
	nums, err := numericOperands(args)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return newError(ErrNum, "MEDIAN of no numbers")
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return &Number{Value: nums[mid]}
	}
	return &Number{Value: (nums[mid-1] + nums[mid]) / 2}
}

// fnMode returns the most frequent value; ties go to the smallest so the
// result never depends on argument ordering.
func fnMode(args []Value) Value {
	nums, err := numericOperands(args)
	if err != nil {
		return err
	}
	counts := make(map[float64]int)
	for _, n := range nums {
		counts[n]++
	}
	best, bestCount := 0.0, 1
	for n, c := range counts {
		if c > bestCount || (c == bestCount && c > 1 && n < best) {
			best, bestCount = n, c
		}
	}
	if bestCount < 2 {
		return newError(ErrNA, "no repeated value")
	}
	return &Number{Value: best}
}

func dispersion(args []Value, sample, root bool) Value {
	nums, err := numericOperands(args)
	if err != nil {
		return err
	}
	minCount := 1
	if sample {
		minCount = 2
	}
	if len(nums) < minCount {
		return newError(ErrDiv0, "not enough numbers")
	}
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	ss := 0.0
	for _, n := range nums {
		ss += (n - mean) * (n - mean)
	}
	div := float64(len(nums))
	if sample {
		div--
	}
	v := ss / div
	if root {
		v = math.Sqrt(v)
	}
	return checkNumeric(v)
}

// percentileOf interpolates linearly between closest ranks, the inclusive
// definition spreadsheets use.
func percentileOf(nums []float64, k float64) Value {
	if len(nums) == 0 {
		return newError(ErrNum, "PERCENTILE of no numbers")
	}
	if k < 0 || k > 1 {
		return newError(ErrNum, "percentile %g outside 0..1", k)
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	pos := k * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return &Number{Value: sorted[lo]}
	}
	frac := pos - float64(lo)
	return checkNumeric(sorted[lo] + frac*(sorted[hi]-sorted[lo]))
}

func fnPercentile(args []Value) Value {
	nums, err := numericOperands(args[:1])
	if err != nil {
		return err
	}
	k, err := toNumber(args[1])
	if err != nil {
		return err
	}
	return percentileOf(nums, k)
}

func fnQuartile(args []Value) Value {
	nums, err := numericOperands(args[:1])
	if err != nil {
		return err
	}
	q, err := toNumber(args[1])
	if err != nil {
		return err
	}
	if q != math.Trunc(q) || q < 0 || q > 4 {
		return newError(ErrNum, "quartile %g outside 0..4", q)
	}
	return percentileOf(nums, q/4)
}

func kth(args []Value, ascending bool) Value {
	nums, err := numericOperands(args[:1])
	if err != nil {
		return err
	}
	k, err := toNumber(args[1])
	if err != nil {
		return err
	}
	if k < 1 || int(k) > len(nums) {
		return newError(ErrNum, "k %g outside 1..%d", k, len(nums))
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	if ascending {
		return &Number{Value: sorted[int(k)-1]}
	}
	return &Number{Value: sorted[len(sorted)-int(k)]}
}

// fnRank ranks a value within a set; duplicates share the best rank.
// Order 0 (default) ranks descending, nonzero ascending.
func fnRank(args []Value) Value {
	x, err := toNumber(args[0])
	if err != nil {
		return err
	}
	nums, err := numericOperands(args[1:2])
	if err != nil {
		return err
	}
	ascending := false
	if len(args) == 3 {
		o, oerr := toNumber(args[2])
		if oerr != nil {
			return oerr
		}
		ascending = o != 0
	}
	present := false
	better := 0
	for _, n := range nums {
		if n == x {
			present = true
		}
		if (ascending && n < x) || (!ascending && n > x) {
			better++
		}
	}
	if !present {
		return newError(ErrNA, "value %g not in set", x)
	}
	return &Number{Value: float64(better + 1)}
}

func fnCorrel(args []Value) Value {
	xs, err := numericOperands(args[:1])
	if err != nil {
		return err
	}
	ys, err := numericOperands(args[1:2])
	if err != nil {
		return err
	}
	if len(xs) != len(ys) {
		return newError(ErrNA, "CORREL arrays differ in length")
	}
	if len(xs) < 2 {
		return newError(ErrDiv0, "CORREL needs at least two pairs")
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(len(xs))
	my /= float64(len(ys))
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return newError(ErrDiv0, "CORREL of a constant series")
	}
	return checkNumeric(sxy / math.Sqrt(sxx*syy))
}
