package filter

import "github.com/rs/zerolog"

// StyleExpression is a compiled filter in the renderer's declarative
// style-filter grammar: a JSON array whose first element names the operator,
// e.g. ["all", ["==", "kind", "nerve"], ["has", "colour"]].
//
// By the grammar's conventions, ["all"] with no operands matches every
// feature and ["any"] with no operands matches none, so boolean literals
// compile to those forms.
type StyleExpression []any

// StyleFilter compiles the filter into the renderer's filter grammar.
// Structural mapping: AND to "all", OR to "any", HAS to "has", a scalar
// property match to "==" and a list match to "any" over per-value "==".
//
// NOT compiles with algebraic simplification where valid: NOT(HAS x) becomes
// ["!has", x] and NOT(x == v) becomes ["!=", x, v], with double negations
// eliminated. The generic ["!"] wrapper is a last resort because the
// renderer treats it as a distinct, less-optimizable operator.
func (f *PropertiesFilter) StyleFilter() StyleExpression {
	return toExpression(f.root.compile(f.log))
}

func toExpression(compiled any) StyleExpression {
	if expr, ok := compiled.(StyleExpression); ok {
		return expr
	}
	// Only boolean literals compile to something other than an expression.
	if b, ok := compiled.(bool); ok && !b {
		return StyleExpression{"any"}
	}
	return StyleExpression{"all"}
}

func (n boolNode) compile(zerolog.Logger) any {
	return bool(n)
}

func (n andNode) compile(log zerolog.Logger) any {
	if len(n) < 2 {
		warnOperands(log, keyAnd, len(n))
		return true
	}
	return combineExpr("all", n, log)
}

func (n orNode) compile(log zerolog.Logger) any {
	if len(n) < 2 {
		warnOperands(log, keyOr, len(n))
		return true
	}
	return combineExpr("any", n, log)
}

func (n groupNode) compile(log zerolog.Logger) any {
	if len(n) == 1 {
		return n[0].compile(log)
	}
	return combineExpr("all", n, log)
}

func (n hasNode) compile(zerolog.Logger) any {
	return StyleExpression{"has", n.key}
}

func (n matchNode) compile(log zerolog.Logger) any {
	if len(n.values) == 1 {
		return StyleExpression{"==", n.key, n.values[0]}
	}
	comparisons := make(StyleExpression, 0, len(n.values)+1)
	comparisons = append(comparisons, "any")
	for _, value := range n.values {
		comparisons = append(comparisons, StyleExpression{"==", n.key, value})
	}
	return comparisons
}

func (n notNode) compile(log zerolog.Logger) any {
	switch sub := n.sub.(type) {
	case hasNode:
		return StyleExpression{"!has", sub.key}
	case matchNode:
		if len(sub.values) == 1 {
			return StyleExpression{"!=", sub.key, sub.values[0]}
		}
	case notNode:
		return sub.sub.compile(log)
	case boolNode:
		return !bool(sub)
	}
	compiled := n.sub.compile(log)
	// Degenerate sub-filters compile to boolean literals without being
	// boolNodes; fold them here so a raw bool never lands as an operand.
	if b, ok := compiled.(bool); ok {
		return !b
	}
	return StyleExpression{"!", compiled}
}

// combineExpr flattens operator operands, lifting boolean literals out of the
// compiled expression so the renderer never evaluates constant sub-filters.
func combineExpr(op string, operands []node, log zerolog.Logger) any {
	expr := make(StyleExpression, 0, len(operands)+1)
	expr = append(expr, op)
	for _, sub := range operands {
		compiled := sub.compile(log)
		if b, ok := compiled.(bool); ok {
			// true is the identity for "all", false for "any"; the other
			// literal decides the whole expression.
			if b == (op == "all") {
				continue
			}
			return b
		}
		expr = append(expr, compiled)
	}
	return expr
}
