package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clinforge/sdtmap/internal/iso8601"
)

// Context supplies raw source values to the evaluator.
//
// Lookup resolves a column; table == "" means the current row in the
// primary table. A qualified lookup resolves through the join key and
// the pinned table-priority order. A missing cell returns ("", false),
// which every function treats as empty, never as a failure.
type Context interface {
	Lookup(table, column string) (value string, ok bool)
}

// CodelistSource decodes raw source values through a named codelist.
// Implemented by the external codelist provider.
type CodelistSource interface {
	// Decode maps a case-normalized raw value to its standard term.
	// ok is false when the list is unknown or the value is unmapped.
	Decode(list, raw string) (term string, ok bool)
}

// Diagnostic records a recovered per-field evaluation defect. It is
// data, not an error: evaluation always produces a value.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Diagnostic codes emitted by the evaluator.
const (
	DiagBadArgument   = "BAD_ARGUMENT"   // type coercion failed (e.g. SUBSTR offset)
	DiagUnmappedTerm  = "UNMAPPED_TERM"  // FORMAT input absent from the codelist
	DiagUnknownFormat = "UNKNOWN_FORMAT" // date format name not registered
)

// Evaluator interprets one expression against a row context.
//
// Contract: no function ever raises on missing or malformed input.
// Every function has a defined empty result, and coercion failures
// surface as Diagnostics on the returned slice.
type Evaluator struct {
	Codelists CodelistSource // may be nil when no FORMAT rules exist
}

// Eval interprets the node and returns its value with any recovered
// diagnostics. The returned slice is nil on a clean evaluation.
func (e *Evaluator) Eval(n Node, ctx Context) (string, []Diagnostic) {
	var diags []Diagnostic
	v := e.eval(n, ctx, &diags)
	return v, diags
}

// EvalCondition interprets a condition node to a boolean.
func (e *Evaluator) EvalCondition(n Node, ctx Context) (bool, []Diagnostic) {
	var diags []Diagnostic
	v := e.evalBool(n, ctx, &diags)
	return v, diags
}

func (e *Evaluator) eval(n Node, ctx Context, diags *[]Diagnostic) string {
	switch v := n.(type) {
	case Literal:
		return v.Value

	case FieldRef:
		val, _ := ctx.Lookup(v.Table, v.Column)
		return val

	case Call:
		return e.evalCall(v, ctx, diags)

	case Comparison, Logical:
		// A bare condition in value position yields "Y" or empty, so it
		// composes with CONCAT and friends without a special case.
		if e.evalBool(n, ctx, diags) {
			return "Y"
		}
		return ""

	default:
		// Unreachable: the union is sealed.
		*diags = append(*diags, Diagnostic{Code: DiagBadArgument, Message: fmt.Sprintf("unknown node type %T", n)})
		return ""
	}
}

func (e *Evaluator) evalCall(c Call, ctx Context, diags *[]Diagnostic) string {
	switch c.Name {
	case "ASSIGN":
		// Constant; ignores context by construction.
		return e.eval(c.Args[0], ctx, diags)

	case "CONCAT":
		var b strings.Builder
		for _, a := range c.Args {
			b.WriteString(e.eval(a, ctx, diags))
		}
		return b.String()

	case "SUBSTR":
		return e.evalSubstr(c, ctx, diags)

	case "UPCASE":
		return strings.ToUpper(e.eval(c.Args[0], ctx, diags))

	case "TRIM":
		return strings.TrimSpace(e.eval(c.Args[0], ctx, diags))

	case "COMPRESS":
		s := e.eval(c.Args[0], ctx, diags)
		chars := " "
		if len(c.Args) > 1 {
			chars = e.eval(c.Args[1], ctx, diags)
		}
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(chars, r) {
				return -1
			}
			return r
		}, s)

	case "IF":
		// Exactly one branch is evaluated.
		if e.evalBool(c.Args[0], ctx, diags) {
			return e.eval(c.Args[1], ctx, diags)
		}
		return e.eval(c.Args[2], ctx, diags)

	case "ISO8601DATEFORMAT":
		raw := e.eval(c.Args[0], ctx, diags)
		format := e.eval(c.Args[1], ctx, diags)
		return e.reformatDate(raw, []string{format}, diags)

	case "ISO8601DATETIMEFORMATS":
		raw := e.eval(c.Args[0], ctx, diags)
		formats := make([]string, 0, len(c.Args)-1)
		for _, a := range c.Args[1:] {
			formats = append(formats, e.eval(a, ctx, diags))
		}
		return e.reformatDate(raw, formats, diags)

	case "FORMAT":
		return e.evalFormat(c, ctx, diags)

	default:
		// Parser rejects unknown names; this only fires on a
		// hand-constructed AST.
		*diags = append(*diags, Diagnostic{Code: DiagBadArgument, Message: fmt.Sprintf("unknown function %q", c.Name)})
		return ""
	}
}

// evalSubstr implements 1-based substring with clamp-to-empty
// semantics: an out-of-range start yields "", and the length is
// truncated to what remains. Offsets count runes, not bytes.
func (e *Evaluator) evalSubstr(c Call, ctx Context, diags *[]Diagnostic) string {
	s := []rune(e.eval(c.Args[0], ctx, diags))

	start, ok := e.evalInt(c.Args[1], ctx, diags)
	if !ok {
		return ""
	}
	length, ok := e.evalInt(c.Args[2], ctx, diags)
	if !ok {
		return ""
	}

	if start < 1 || start > len(s) || length <= 0 {
		return ""
	}
	end := start - 1 + length
	if end > len(s) {
		end = len(s)
	}
	return string(s[start-1 : end])
}

func (e *Evaluator) evalInt(n Node, ctx Context, diags *[]Diagnostic) (int, bool) {
	raw := e.eval(n, ctx, diags)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		*diags = append(*diags, Diagnostic{
			Code:    DiagBadArgument,
			Message: fmt.Sprintf("expected integer, got %q", raw),
		})
		return 0, false
	}
	return v, true
}

// reformatDate parses raw by the first matching named source format and
// re-emits the canonical ISO-8601 form. Unparseable or empty input
// yields "" without a diagnostic: messy dates are a data-quality
// condition for the Validator, not an evaluation defect. An unknown
// format name, however, is a configuration mistake and is diagnosed.
func (e *Evaluator) reformatDate(raw string, formats []string, diags *[]Diagnostic) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	for _, f := range formats {
		if !iso8601.KnownFormat(f) {
			*diags = append(*diags, Diagnostic{
				Code:    DiagUnknownFormat,
				Message: fmt.Sprintf("unknown date format %q", f),
			})
			continue
		}
		if d, err := iso8601.ParseFormat(f, raw); err == nil {
			return d.String()
		}
	}
	return ""
}

// evalFormat performs the case-normalized codelist lookup. Unmapped
// values pass through upper-cased with an UNMAPPED_TERM diagnostic so
// the terminology layer can flag them; they are never rejected here.
func (e *Evaluator) evalFormat(c Call, ctx Context, diags *[]Diagnostic) string {
	raw := e.eval(c.Args[0], ctx, diags)
	list := e.eval(c.Args[1], ctx, diags)
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	if e.Codelists != nil {
		if term, ok := e.Codelists.Decode(list, raw); ok {
			return term
		}
	}
	*diags = append(*diags, Diagnostic{
		Code:    DiagUnmappedTerm,
		Message: fmt.Sprintf("value %q not mapped in codelist %q", raw, list),
	})
	return strings.ToUpper(raw)
}

// evalBool interprets a node in condition position. Comparisons are
// numeric when both sides parse as numbers, lexical otherwise. A
// non-condition node is truthy when non-empty.
func (e *Evaluator) evalBool(n Node, ctx Context, diags *[]Diagnostic) bool {
	switch v := n.(type) {
	case Logical:
		if v.Op == "&&" {
			return e.evalBool(v.Left, ctx, diags) && e.evalBool(v.Right, ctx, diags)
		}
		return e.evalBool(v.Left, ctx, diags) || e.evalBool(v.Right, ctx, diags)

	case Comparison:
		left := e.eval(v.Left, ctx, diags)
		right := e.eval(v.Right, ctx, diags)
		return compare(left, right, v.Op)

	default:
		return e.eval(n, ctx, diags) != ""
	}
}

func compare(left, right, op string) bool {
	if ln, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64); lerr == nil {
		if rn, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64); rerr == nil {
			return compareOrdered(ln, rn, op)
		}
	}
	return compareOrdered(left, right, op)
}

func compareOrdered[T float64 | string](a, b T, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}
