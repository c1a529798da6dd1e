// Package expr implements the mapping-rule expression language: a
// closed AST of literals, field references, and function calls, plus
// the condition grammar used by IF and by business rules.
//
// The AST is a sealed tagged union with one exhaustive evaluator.
// There is no runtime string dispatch for node kinds; unknown function
// names are rejected at parse time, not evaluation time.
package expr

import (
	"fmt"
	"strings"
)

// Node is the sealed expression interface. Only Literal, FieldRef,
// Call, Comparison, and Logical implement it.
type Node interface {
	node() // sealed

	// String renders the node in source form, for diagnostics.
	String() string
}

// Literal is a constant string value.
type Literal struct {
	Value string
}

func (Literal) node() {}

func (l Literal) String() string {
	return fmt.Sprintf("%q", l.Value)
}

// FieldRef references a source column, optionally table-qualified.
//
// An unqualified reference (Table == "") resolves against the current
// row in the primary table. A qualified reference resolves through the
// join key into the named table.
type FieldRef struct {
	Table  string
	Column string
}

func (FieldRef) node() {}

func (f FieldRef) String() string {
	if f.Table != "" {
		return f.Table + "." + f.Column
	}
	return f.Column
}

// Call is a function application. The function set is closed; Name is
// always one of the names validated by the parser.
type Call struct {
	Name string
	Args []Node
}

func (Call) node() {}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// Comparison is a single binary condition (a == b, a >= b, ...).
// Valid only where a condition is expected: the first argument of IF,
// or a standalone business-rule condition.
type Comparison struct {
	Left  Node
	Op    string // "==", "!=", ">", "<", ">=", "<="
	Right Node
}

func (Comparison) node() {}

func (c Comparison) String() string {
	return c.Left.String() + " " + c.Op + " " + c.Right.String()
}

// Logical combines two conditions. Op is "&&" or "||"; "&&" binds
// tighter than "||".
type Logical struct {
	Op    string
	Left  Node
	Right Node
}

func (Logical) node() {}

func (l Logical) String() string {
	return l.Left.String() + " " + l.Op + " " + l.Right.String()
}

// Functions lists the closed function set with its arity bounds.
// A -1 max means variadic.
var Functions = map[string][2]int{
	"ASSIGN":                 {1, 1},
	"CONCAT":                 {1, -1},
	"SUBSTR":                 {3, 3},
	"UPCASE":                 {1, 1},
	"TRIM":                   {1, 1},
	"COMPRESS":               {1, 2},
	"IF":                     {3, 3},
	"ISO8601DATEFORMAT":      {2, 2},
	"ISO8601DATETIMEFORMATS": {2, -1},
	"FORMAT":                 {2, 2},
}

// Fields returns every field reference in the tree, in source order.
// Used for pre-flight schema checks before a domain run.
func Fields(n Node) []FieldRef {
	var refs []FieldRef
	walk(n, func(n Node) {
		if f, ok := n.(FieldRef); ok {
			refs = append(refs, f)
		}
	})
	return refs
}

func walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case Literal, FieldRef:
	case Call:
		for _, a := range v.Args {
			walk(a, fn)
		}
	case Comparison:
		walk(v.Left, fn)
		walk(v.Right, fn)
	case Logical:
		walk(v.Left, fn)
		walk(v.Right, fn)
	}
}
