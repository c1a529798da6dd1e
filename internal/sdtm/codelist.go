package sdtm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Codelist is one controlled-terminology list: the finite set of valid
// terms plus the raw-value decode map used by FORMAT.
type Codelist struct {
	Name string

	terms   map[string]bool   // exact, case-sensitive membership
	decode  map[string]string // normalized raw value -> term
	ordered []string          // terms in declaration order
}

// NewCodelist builds a codelist from its terms and an optional
// raw-value→term decode map. Decode keys are case-normalized, so
// "mild", "Mild", and "MILD" all decode alike.
func NewCodelist(name string, terms []string, decode map[string]string) *Codelist {
	cl := &Codelist{
		Name:    name,
		terms:   make(map[string]bool, len(terms)),
		decode:  make(map[string]string, len(decode)),
		ordered: append([]string(nil), terms...),
	}
	for _, t := range terms {
		cl.terms[t] = true
	}
	for raw, term := range decode {
		cl.decode[normalizeTerm(raw)] = term
	}
	// Terms decode to themselves unless the decode map says otherwise.
	for _, t := range terms {
		key := normalizeTerm(t)
		if _, exists := cl.decode[key]; !exists {
			cl.decode[key] = t
		}
	}
	return cl
}

// Terms returns the valid terms in declaration order.
func (c *Codelist) Terms() []string {
	return c.ordered
}

// Contains reports exact, case-sensitive membership.
func (c *Codelist) Contains(value string) bool {
	return c.terms[value]
}

// Decode maps a raw source value to its standard term through the
// case-normalized decode map.
func (c *Codelist) Decode(raw string) (string, bool) {
	term, ok := c.decode[normalizeTerm(raw)]
	return term, ok
}

// NearMiss reports whether value is a case or spacing variant of a
// valid term, returning the term it nearly matches. Exact members are
// not near misses.
func (c *Codelist) NearMiss(value string) (string, bool) {
	if c.terms[value] {
		return "", false
	}
	want := normalizeTerm(value)
	for _, t := range c.ordered {
		if normalizeTerm(t) == want {
			return t, true
		}
	}
	return "", false
}

// normalizeTerm folds case, collapses surrounding whitespace, and
// applies NFC so visually identical Unicode spellings compare equal.
func normalizeTerm(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(s)))
}

// CodelistProvider resolves codelist names. Owned by an external
// loader; read-only to the core.
type CodelistProvider interface {
	Codelist(name string) (*Codelist, bool)
}

// Codelists is an in-memory CodelistProvider.
type Codelists map[string]*Codelist

// Codelist implements CodelistProvider.
func (c Codelists) Codelist(name string) (*Codelist, bool) {
	cl, ok := c[name]
	return cl, ok
}

// Decode implements the evaluator's CodelistSource using the provider.
func (c Codelists) Decode(list, raw string) (string, bool) {
	cl, ok := c[list]
	if !ok {
		return "", false
	}
	return cl.Decode(raw)
}
