package engine

func init() {
	// Branch selectors accept error arguments: an error in the untaken
	// branch must not poison the result.
	register(&Builtin{Name: "IF", MinArgs: 2, MaxArgs: 3, AcceptsErrors: true, Fn: fnIf})
	register(&Builtin{Name: "IFS", MinArgs: 2, MaxArgs: -1, AcceptsErrors: true, Fn: fnIfs})
	register(&Builtin{Name: "SWITCH", MinArgs: 3, MaxArgs: -1, AcceptsErrors: true, Fn: fnSwitch})

	register(&Builtin{Name: "AND", MinArgs: 1, MaxArgs: -1, Fn: fnAnd})
	register(&Builtin{Name: "OR", MinArgs: 1, MaxArgs: -1, Fn: fnOr})
	register(&Builtin{Name: "XOR", MinArgs: 1, MaxArgs: -1, Fn: fnXor})
	register(&Builtin{Name: "NOT", MinArgs: 1, MaxArgs: 1, Fn: func(args []Value) Value {
		return broadcast1(args[0], func(v Value) Value {
			b, err := toBool(v)
			if err != nil {
				return err
			}
			return &Boolean{Value: !b}
		})
	}})

	register(&Builtin{Name: "TRUE", MinArgs: 0, MaxArgs: 0, Fn: func([]Value) Value {
		return &Boolean{Value: true}
	}})
	register(&Builtin{Name: "FALSE", MinArgs: 0, MaxArgs: 0, Fn: func([]Value) Value {
		return &Boolean{Value: false}
	}})

	register(&Builtin{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, AcceptsErrors: true, Fn: func(args []Value) Value {
		if isError(args[0]) {
			return args[1]
		}
		return args[0]
	}})
	register(&Builtin{Name: "IFNA", MinArgs: 2, MaxArgs: 2, AcceptsErrors: true, Fn: func(args []Value) Value {
		if e, ok := args[0].(*Error); ok && e.Kind == ErrNA {
			return args[1]
		}
		return args[0]
	}})

	register(&Builtin{Name: "ISERROR", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		return &Boolean{Value: isError(args[0])}
	}})
	register(&Builtin{Name: "ISERR", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		e, ok := args[0].(*Error)
		return &Boolean{Value: ok && e.Kind != ErrNA}
	}})
	register(&Builtin{Name: "ISNA", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		e, ok := args[0].(*Error)
		return &Boolean{Value: ok && e.Kind == ErrNA}
	}})
	register(&Builtin{Name: "ISBLANK", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		_, ok := args[0].(*Blank)
		return &Boolean{Value: ok}
	}})
	register(&Builtin{Name: "ISNUMBER", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		switch args[0].(type) {
		case *Number, *Date:
			return &Boolean{Value: true}
		}
		return &Boolean{Value: false}
	}})
	register(&Builtin{Name: "ISTEXT", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		_, ok := args[0].(*Text)
		return &Boolean{Value: ok}
	}})
	register(&Builtin{Name: "ISLOGICAL", MinArgs: 1, MaxArgs: 1, AcceptsErrors: true, Fn: func(args []Value) Value {
		_, ok := args[0].(*Boolean)
		return &Boolean{Value: ok}
	}})
}

func fnIf(args []Value) Value {
	elseVal := Value(&Boolean{Value: false})
	if len(args) == 3 {
		elseVal = args[2]
	}
	return broadcast1(args[0], func(cond Value) Value {
		if e, ok := cond.(*Error); ok {
			return e
		}
		b, err := toBool(cond)
		if err != nil {
			return err
		}
		if b {
			return args[1]
		}
		return elseVal
	})
}

func fnIfs(args []Value) Value {
	if len(args)%2 != 0 {
		return newError(ErrValue, "IFS needs condition/value pairs")
	}
	for i := 0; i < len(args); i += 2 {
		if e, ok := args[i].(*Error); ok {
			return e
		}
		b, err := toBool(args[i])
		if err != nil {
			return err
		}
		if b {
			return args[i+1]
		}
	}
	return newError(ErrNA, "no IFS condition matched")
}

func fnSwitch(args []Value) Value {
	subject := args[0]
	if e, ok := subject.(*Error); ok {
		return e
	}
	rest := args[1:]
	for len(rest) >= 2 {
		if e, ok := rest[0].(*Error); ok {
			return e
		}
		cmp, err := compareValues(subject, rest[0])
		if err == nil && cmp == 0 {
			return rest[1]
		}
		rest = rest[2:]
	}
	if len(rest) == 1 {
		return rest[0] // default
	}
	return newError(ErrNA, "no SWITCH case matched")
}

func fnAnd(args []Value) Value {
	result := true
	for _, v := range flatten(args...) {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		result = result && b
	}
	return &Boolean{Value: result}
}

func fnOr(args []Value) Value {
	result := false
	for _, v := range flatten(args...) {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		result = result || b
	}
	return &Boolean{Value: result}
}

func fnXor(args []Value) Value {
	odd := false
	for _, v := range flatten(args...) {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		if b {
			odd = !odd
		}
	}
	return &Boolean{Value: odd}
}
