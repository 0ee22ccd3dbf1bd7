package engine

import (
	"math"
	"time"

	"github.com/araddon/dateparse"
)

func init() {
	register(&Builtin{Name: "DATE", MinArgs: 3, MaxArgs: 3, Fn: fnDate})
	register(date1("YEAR", func(t time.Time) Value {
		return &Number{Value: float64(t.Year())}
	}))
	register(date1("MONTH", func(t time.Time) Value {
		return &Number{Value: float64(t.Month())}
	}))
	register(date1("DAY", func(t time.Time) Value {
		return &Number{Value: float64(t.Day())}
	}))
	register(&Builtin{Name: "WEEKDAY", MinArgs: 1, MaxArgs: 2, Fn: fnWeekday})
	register(&Builtin{Name: "EOMONTH", MinArgs: 2, MaxArgs: 2, Fn: fnEOMonth})
	register(&Builtin{Name: "EDATE", MinArgs: 2, MaxArgs: 2, Fn: fnEDate})
	register(&Builtin{Name: "DAYS", MinArgs: 2, MaxArgs: 2, Fn: fnDays})
	register(&Builtin{Name: "DATEDIF", MinArgs: 3, MaxArgs: 3, Fn: fnDateDif})
	register(&Builtin{Name: "DATEVALUE", MinArgs: 1, MaxArgs: 1, Fn: fnDateValue})
}

// toDate coerces dates, serial numbers, and parseable text to a Date.
func toDate(v Value) (*Date, *Error) {
	switch val := v.(type) {
	case *Date:
		return val, nil
	case *Number:
		return &Date{Serial: val.Value}, nil
	case *Text:
		t, err := dateparse.ParseAny(val.Value)
		if err != nil {
			return nil, newError(ErrValue, "cannot parse %q as a date", val.Value)
		}
		return DateFromTime(t), nil
	case *Error:
		return nil, val
	}
	return nil, newError(ErrValue, "cannot convert %s to a date", v.Type())
}

func date1(name string, f func(time.Time) Value) *Builtin {
	return &Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Fn: func(args []Value) Value {
		return broadcast1(args[0], func(v Value) Value {
			d, err := toDate(v)
			if err != nil {
				return err
			}
			return f(d.Time())
		})
	}}
}

func fnDate(args []Value) Value {
	nums, err := strictNumericOperands(args)
	if err != nil {
		return err
	}
	y, m, d := int(nums[0]), int(nums[1]), int(nums[2])
	if y < 0 || y > 9999 {
		return newError(ErrNum, "year %d out of range", y)
	}
	// Out-of-range month and day roll over, spreadsheet style:
	// DATE(2024, 13, 1) is 2025-01-01.
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return DateFromTime(t)
}

func fnWeekday(args []Value) Value {
	d, err := toDate(args[0])
	if err != nil {
		return err
	}
	mode := 1.0
	if len(args) == 2 {
		mode, err = toNumber(args[1])
		if err != nil {
			return err
		}
	}
	wd := int(d.Time().Weekday()) // Sunday=0
	switch int(mode) {
	case 1:
		return &Number{Value: float64(wd + 1)}
	case 2:
		return &Number{Value: float64((wd+6)%7 + 1)}
	case 3:
		return &Number{Value: float64((wd + 6) % 7)}
	}
	return newError(ErrNum, "invalid WEEKDAY mode %d", int(mode))
}

func fnEOMonth(args []Value) Value {
	d, err := toDate(args[0])
	if err != nil {
		return err
	}
	months, err := toNumber(args[1])
	if err != nil {
		return err
	}
	t := d.Time()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := first.AddDate(0, int(months)+1, -1)
	return DateFromTime(end)
}

func fnEDate(args []Value) Value {
	d, err := toDate(args[0])
	if err != nil {
		return err
	}
	months, err := toNumber(args[1])
	if err != nil {
		return err
	}
	return DateFromTime(shiftMonthsClamped(d.Time(), int(months)))
}

// shiftMonthsClamped moves by whole months clamping the day to the target
// month's length, so Jan 31 + 1 month is Feb 29/28, not Mar 2.
func shiftMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	shifted := first.AddDate(0, months, 0)
	lastDay := shifted.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(shifted.Year(), shifted.Month(), day, 0, 0, 0, 0, time.UTC)
}

func fnDays(args []Value) Value {
	end, err := toDate(args[0])
	if err != nil {
		return err
	}
	start, err := toDate(args[1])
	if err != nil {
		return err
	}
	return &Number{Value: end.Serial - start.Serial}
}

func fnDateDif(args []Value) Value {
	start, err := toDate(args[0])
	if err != nil {
		return err
	}
	end, err := toDate(args[1])
	if err != nil {
		return err
	}
	unit, err := toText(args[2])
	if err != nil {
		return err
	}
	if end.Serial < start.Serial {
		return newError(ErrNum, "DATEDIF start after end")
	}
	s, e := start.Time(), end.Time()

	wholeMonths := (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month())
	if e.Day() < s.Day() {
		wholeMonths--
	}

	switch unit {
	case "D", "d":
		return &Number{Value: end.Serial - start.Serial}
	case "M", "m":
		return &Number{Value: float64(wholeMonths)}
	case "Y", "y":
		return &Number{Value: math.Floor(float64(wholeMonths) / 12)}
	case "MD", "md":
		// Day difference ignoring months and years.
		anchor := shiftMonthsClamped(s, wholeMonths)
		return &Number{Value: DateFromTime(e).Serial - DateFromTime(anchor).Serial}
	case "YM", "ym":
		return &Number{Value: float64(wholeMonths % 12)}
	case "YD", "yd":
		// Day difference ignoring years.
		years := wholeMonths / 12
		anchor := shiftMonthsClamped(s, years*12)
		return &Number{Value: DateFromTime(e).Serial - DateFromTime(anchor).Serial}
	}
	return newError(ErrNum, "invalid DATEDIF unit %q", unit)
}

func fnDateValue(args []Value) Value {
	s, err := toText(args[0])
	if err != nil {
		return err
	}
	t, perr := dateparse.ParseAny(s)
	if perr != nil {
		return newError(ErrValue, "cannot parse %q as a date", s)
	}
	return DateFromTime(t)
}
