package engine

import (
	"strconv"
	"strings"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	register(&Builtin{Name: "CONCAT", MinArgs: 1, MaxArgs: -1, Fn: fnConcat})
	register(&Builtin{Name: "CONCATENATE", MinArgs: 1, MaxArgs: -1, Fn: fnConcat})

	register(&Builtin{Name: "LEFT", MinArgs: 1, MaxArgs: 2, Fn: func(args []Value) Value {
		s, n, err := textAndCount(args)
		if err != nil {
			return err
		}
		r := []rune(s)
		if n > len(r) {
			n = len(r)
		}
		return &Text{Value: string(r[:n])}
	}})

	register(&Builtin{Name: "RIGHT", MinArgs: 1, MaxArgs: 2, Fn: func(args []Value) Value {
		s, n, err := textAndCount(args)
		if err != nil {
			return err
		}
		r := []rune(s)
		if n > len(r) {
			n = len(r)
		}
		return &Text{Value: string(r[len(r)-n:])}
	}})

	register(&Builtin{Name: "MID", MinArgs: 3, MaxArgs: 3, Fn: fnMid})

	register(&Builtin{Name: "LEN", MinArgs: 1, MaxArgs: 1, Fn: func(args []Value) Value {
		return broadcast1(args[0], func(v Value) Value {
			s, err := toText(v)
			if err != nil {
				return err
			}
			return &Number{Value: float64(len([]rune(s)))}
		})
	}})

	register(text1("LOWER", strings.ToLower))
	register(text1("UPPER", strings.ToUpper))
	register(text1("PROPER", properCase))
	register(text1("TRIM", func(s string) string {
		// Spreadsheet TRIM also collapses runs of interior spaces.
		return strings.Join(strings.Fields(s), " ")
	}))

	register(&Builtin{Name: "REPT", MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		s, err := toText(args[0])
		if err != nil {
			return err
		}
		n, nerr := toNumber(args[1])
		if nerr != nil {
			return nerr
		}
		if n < 0 || n > 32767 {
			return newError(ErrValue, "REPT count out of range")
		}
		return &Text{Value: strings.Repeat(s, int(n))}
	}})

	register(&Builtin{Name: "EXACT", MinArgs: 2, MaxArgs: 2, Fn: func(args []Value) Value {
		a, err := toText(args[0])
		if err != nil {
			return err
		}
		b, err := toText(args[1])
		if err != nil {
			return err
		}
		return &Boolean{Value: a == b}
	}})

	register(&Builtin{Name: "FIND", MinArgs: 2, MaxArgs: 3, Fn: func(args []Value) Value {
		return findIn(args, false)
	}})
	register(&Builtin{Name: "SEARCH", MinArgs: 2, MaxArgs: 3, Fn: func(args []Value) Value {
		return findIn(args, true)
	}})

	register(&Builtin{Name: "SUBSTITUTE", MinArgs: 3, MaxArgs: 4, Fn: fnSubstitute})
	register(&Builtin{Name: "REPLACE", MinArgs: 4, MaxArgs: 4, Fn: fnReplace})
	register(&Builtin{Name: "VALUE", MinArgs: 1, MaxArgs: 1, Fn: fnValue})
	register(&Builtin{Name: "TEXT", MinArgs: 2, MaxArgs: 3, Fn: fnText})
	register(&Builtin{Name: "TEXTJOIN", MinArgs: 3, MaxArgs: -1, Fn: fnTextJoin})
}

func text1(name string, f func(string) string) *Builtin {
	return &Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Fn: func(args []Value) Value {
		return broadcast1(args[0], func(v Value) Value {
			s, err := toText(v)
			if err != nil {
				return err
			}
			return &Text{Value: f(s)}
		})
	}}
}

func fnConcat(args []Value) Value {
	var sb strings.Builder
	for _, v := range flatten(args...) {
		s, err := toText(v)
		if err != nil {
			return err
		}
		sb.WriteString(s)
	}
	return &Text{Value: sb.String()}
}

func textAndCount(args []Value) (string, int, *Error) {
	s, err := toText(args[0])
	if err != nil {
		return "", 0, err
	}
	n := 1.0
	if len(args) == 2 {
		n, err = toNumber(args[1])
		if err != nil {
			return "", 0, err
		}
	}
	if n < 0 {
		return "", 0, newError(ErrValue, "negative character count")
	}
	return s, int(n), nil
}

func fnMid(args []Value) Value {
	s, err := toText(args[0])
	if err != nil {
		return err
	}
	start, err := toNumber(args[1])
	if err != nil {
		return err
	}
	count, err := toNumber(args[2])
	if err != nil {
		return err
	}
	if start < 1 || count < 0 {
		return newError(ErrValue, "MID position out of range")
	}
	r := []rune(s)
	from := int(start) - 1
	if from >= len(r) {
		return &Text{Value: ""}
	}
	to := from + int(count)
	if to > len(r) {
		to = len(r)
	}
	return &Text{Value: string(r[from:to])}
}

func properCase(s string) string {
	var sb strings.Builder
	startWord := true
	for _, r := range s {
		isLetter := ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127
		switch {
		case !isLetter:
			sb.WriteRune(r)
			startWord = true
		case startWord:
			sb.WriteString(strings.ToUpper(string(r)))
			startWord = false
		default:
			sb.WriteString(strings.ToLower(string(r)))
		}
	}
	return sb.String()
}

// findIn locates a substring at a 1-based position. FIND is case-sensitive,
// SEARCH folds case.
func findIn(args []Value, fold bool) Value {
	needle, err := toText(args[0])
	if err != nil {
		return err
	}
	hay, err := toText(args[1])
	if err != nil {
		return err
	}
	start := 1.0
	if len(args) == 3 {
		start, err = toNumber(args[2])
		if err != nil {
			return err
		}
	}
	hr := []rune(hay)
	if start < 1 || int(start) > len(hr)+1 {
		return newError(ErrValue, "search start out of range")
	}
	rest := string(hr[int(start)-1:])
	if fold {
		rest = strings.ToLower(rest)
		needle = strings.ToLower(needle)
	}
	i := strings.Index(rest, needle)
	if i < 0 {
		return newError(ErrValue, "substring not found")
	}
	return &Number{Value: start + float64(len([]rune(rest[:i])))}
}

func fnSubstitute(args []Value) Value {
	s, err := toText(args[0])
	if err != nil {
		return err
	}
	old, err := toText(args[1])
	if err != nil {
		return err
	}
	repl, err := toText(args[2])
	if err != nil {
		return err
	}
	if old == "" {
		return &Text{Value: s}
	}
	if len(args) == 3 {
		return &Text{Value: strings.ReplaceAll(s, old, repl)}
	}
	nth, err := toNumber(args[3])
	if err != nil {
		return err
	}
	if nth < 1 {
		return newError(ErrValue, "SUBSTITUTE instance must be positive")
	}
	count := 0
	pos := 0
	for {
		i := strings.Index(s[pos:], old)
		if i < 0 {
			return &Text{Value: s}
		}
		count++
		at := pos + i
		if count == int(nth) {
			return &Text{Value: s[:at] + repl + s[at+len(old):]}
		}
		pos = at + len(old)
	}
}

func fnReplace(args []Value) Value {
	s, err := toText(args[0])
	if err != nil {
		return err
	}
	start, err := toNumber(args[1])
	if err != nil {
		return err
	}
	count, err := toNumber(args[2])
	if err != nil {
		return err
	}
	repl, err := toText(args[3])
	if err != nil {
		return err
	}
	if start < 1 || count < 0 {
		return newError(ErrValue, "REPLACE position out of range")
	}
	r := []rune(s)
	from := int(start) - 1
	if from > len(r) {
		from = len(r)
	}
	to := from + int(count)
	if to > len(r) {
		to = len(r)
	}
	return &Text{Value: string(r[:from]) + repl + string(r[to:])}
}

func fnValue(args []Value) Value {
	s, err := toText(args[0])
	if err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	n, nerr := toNumber(&Text{Value: s})
	if nerr != nil {
		return nerr
	}
	if percent {
		n /= 100
	}
	return &Number{Value: n}
}

func fnTextJoin(args []Value) Value {
	delim, err := toText(args[0])
	if err != nil {
		return err
	}
	ignoreEmpty, err := toBool(args[1])
	if err != nil {
		return err
	}
	var parts []string
	for _, v := range flatten(args[2:]...) {
		s, terr := toText(v)
		if terr != nil {
			return terr
		}
		if ignoreEmpty && s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return &Text{Value: strings.Join(parts, delim)}
}

// fnText renders a value with a spreadsheet-style format code. Date codes
// (yyyy, mm, mmm, dddd, ...) honor the optional locale argument via the
// monday calendar tables; numeric codes support decimals, thousands
// grouping, percent, and a currency prefix.
func fnText(args []Value) Value {
	format, err := toText(args[1])
	if err != nil {
		return err
	}
	var loc monday.Locale = monday.LocaleEnUS
	lang := language.English
	if len(args) == 3 {
		tag, terr := toText(args[2])
		if terr != nil {
			return terr
		}
		loc = localeFor(tag)
		if parsed, perr := language.Parse(tag); perr == nil {
			lang = parsed
		}
	}

	if isDateFormat(format) {
		d, derr := toDate(args[0])
		if derr != nil {
			return derr
		}
		return &Text{Value: monday.Format(d.Time(), dateLayout(format), loc)}
	}

	n, nerr := toNumber(args[0])
	if nerr != nil {
		return nerr
	}
	return &Text{Value: formatNumeric(n, format, lang)}
}

// isDateFormat detects date codes by the presence of year, day, or month
// tokens; pure numeric codes use only #, 0, punctuation, and %. A month-only
// code like "mmmm" carries no numeric placeholders, which separates it from
// a numeric code.
func isDateFormat(format string) bool {
	f := strings.ToLower(format)
	if strings.Contains(f, "y") || strings.Contains(f, "d") {
		return true
	}
	return strings.Contains(f, "m") && !strings.ContainsAny(f, "#0")
}

// dateLayout translates spreadsheet date tokens to a Go reference layout.
// Longest tokens first so mmmm does not decay into mm mm.
func dateLayout(format string) string {
	repl := strings.NewReplacer(
		"yyyy", "2006",
		"yy", "06",
		"mmmm", "January",
		"mmm", "Jan",
		"mm", "01",
		"m", "1",
		"dddd", "Monday",
		"ddd", "Mon",
		"dd", "02",
		"d", "2",
	)
	return repl.Replace(strings.ToLower(format))
}

var mondayLocales = map[string]monday.Locale{
	"en":    monday.LocaleEnUS,
	"en_us": monday.LocaleEnUS,
	"en_gb": monday.LocaleEnGB,
	"de":    monday.LocaleDeDE,
	"de_de": monday.LocaleDeDE,
	"fr":    monday.LocaleFrFR,
	"fr_fr": monday.LocaleFrFR,
	"fr_ca": monday.LocaleFrCA,
	"es":    monday.LocaleEsES,
	"es_es": monday.LocaleEsES,
	"it":    monday.LocaleItIT,
	"it_it": monday.LocaleItIT,
	"pt":    monday.LocalePtPT,
	"pt_pt": monday.LocalePtPT,
	"pt_br": monday.LocalePtBR,
	"nl":    monday.LocaleNlNL,
	"nl_nl": monday.LocaleNlNL,
	"sv":    monday.LocaleSvSE,
	"sv_se": monday.LocaleSvSE,
	"da":    monday.LocaleDaDK,
	"da_dk": monday.LocaleDaDK,
	"fi":    monday.LocaleFiFI,
	"fi_fi": monday.LocaleFiFI,
	"nb":    monday.LocaleNbNO,
	"nb_no": monday.LocaleNbNO,
	"pl":    monday.LocalePlPL,
	"pl_pl": monday.LocalePlPL,
	"ja":    monday.LocaleJaJP,
	"ja_jp": monday.LocaleJaJP,
	"zh":    monday.LocaleZhCN,
	"zh_cn": monday.LocaleZhCN,
	"ko":    monday.LocaleKoKR,
	"ko_kr": monday.LocaleKoKR,
}

func localeFor(tag string) monday.Locale {
	normalized := strings.ToLower(strings.ReplaceAll(tag, "-", "_"))
	if loc, ok := mondayLocales[normalized]; ok {
		return loc
	}
	if lang, _, found := strings.Cut(normalized, "_"); found {
		if loc, ok := mondayLocales[lang]; ok {
			return loc
		}
	}
	return monday.LocaleEnUS
}

func formatNumeric(n float64, format string, lang language.Tag) string {
	prefix := ""
	if strings.HasPrefix(format, "$") {
		prefix = "$"
		format = strings.TrimPrefix(format, "$")
	}
	percent := strings.HasSuffix(format, "%")
	if percent {
		format = strings.TrimSuffix(format, "%")
		n *= 100
	}

	decimals := 0
	if dot := strings.Index(format, "."); dot >= 0 {
		decimals = strings.Count(format[dot+1:], "0")
	}
	grouped := strings.Contains(format, ",")

	var body string
	if grouped {
		p := message.NewPrinter(lang)
		body = p.Sprintf("%.*f", decimals, n)
	} else {
		body = strconv.FormatFloat(n, 'f', decimals, 64)
	}

	out := prefix + body
	if percent {
		out += "%"
	}
	return out
}
