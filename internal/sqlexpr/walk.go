package sqlexpr

// Walk visits e and its operands in pre-order.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch node := e.(type) {
	case *Binary:
		Walk(node.Left, fn)
		Walk(node.Right, fn)
	case *List:
		for _, clause := range node.Clauses {
			Walk(clause, fn)
		}
	}
}

// Params returns the distinct bind parameters of e in visit order. A
// parameter shared by several clauses is reported once.
func Params(e Expr) []*BindParam {
	var params []*BindParam
	seen := make(map[*BindParam]struct{})
	Walk(e, func(node Expr) {
		p, ok := node.(*BindParam)
		if !ok {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		params = append(params, p)
	})
	return params
}

// HasParams reports whether e contains any bind parameter.
func HasParams(e Expr) bool {
	found := false
	Walk(e, func(node Expr) {
		if _, ok := node.(*BindParam); ok {
			found = true
		}
	})
	return found
}

// Columns returns every column reference in e in visit order, duplicates
// included.
func Columns(e Expr) []ColumnRef {
	var cols []ColumnRef
	Walk(e, func(node Expr) {
		if c, ok := node.(ColumnRef); ok {
			cols = append(cols, c)
		}
	})
	return cols
}

// ReplaceColumns returns a copy of e where every column for which fn returns
// a replacement is substituted. The input tree is not modified.
func ReplaceColumns(e Expr, fn func(ColumnRef) (Expr, bool)) Expr {
	switch node := e.(type) {
	case ColumnRef:
		if replacement, ok := fn(node); ok {
			return replacement
		}
		return node
	case *Binary:
		return &Binary{
			Left:  ReplaceColumns(node.Left, fn),
			Op:    node.Op,
			Right: ReplaceColumns(node.Right, fn),
		}
	case *List:
		clauses := make([]Expr, len(node.Clauses))
		for i, clause := range node.Clauses {
			clauses[i] = ReplaceColumns(clause, fn)
		}
		return &List{Op: node.Op, Clauses: clauses}
	default:
		return e
	}
}
