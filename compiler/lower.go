package compiler

// Lower rewrites surface atoms into CPS primitives:
//
//	quote X  -> literal X
//	push     -> lookup
//	pop      -> bind
//	force    -> force
//	a        -> 'a lookup force
//
// Groups are lowered recursively. A quote with nothing after it, or a quote
// of a group, is a syntax error; all such errors are reported.
func Lower(exprs []Expr) ([]CPSExpr, error) {
	var errs ErrorList
	out := lower(exprs, &errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func lower(exprs []Expr, errs *ErrorList) []CPSExpr {
	var out []CPSExpr

	for i := 0; i < len(exprs); i++ {
		switch e := exprs[i].(type) {
		case *IntLiteral:
			out = append(out, &CPSInt{SpanVal: e.SpanVal, Value: e.Value})

		case *Group:
			out = append(out, &CPSGroup{SpanVal: e.SpanVal, Body: lower(e.Body, errs)})

		case *Atom:
			switch e.Name {
			case KeywordQuote:
				if i+1 >= len(exprs) {
					errs.Add(e.SpanVal, "quote with nothing to quote")
					continue
				}
				i++
				switch q := exprs[i].(type) {
				case *IntLiteral:
					out = append(out, &CPSInt{SpanVal: Combine(e.SpanVal, q.SpanVal), Value: q.Value})
				case *Atom:
					out = append(out, &CPSAtom{SpanVal: Combine(e.SpanVal, q.SpanVal), Name: q.Name})
				case *Group:
					errs.Add(Combine(e.SpanVal, q.SpanVal), "cannot quote a group")
				}
			case KeywordPush:
				out = append(out, &CPSLookup{SpanVal: e.SpanVal})
			case KeywordPop:
				out = append(out, &CPSBind{SpanVal: e.SpanVal})
			case KeywordForce:
				out = append(out, &CPSForce{SpanVal: e.SpanVal})
			default:
				out = append(out,
					&CPSAtom{SpanVal: e.SpanVal, Name: e.Name},
					&CPSLookup{SpanVal: e.SpanVal},
					&CPSForce{SpanVal: e.SpanVal},
				)
			}
		}
	}

	return out
}
