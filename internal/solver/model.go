package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidModel is returned when a model cannot be solved as built, e.g. a
// variable has an empty domain or coefficients risk integer overflow.
var ErrInvalidModel = errors.New("invalid model")

// overflowLimit keeps every pseudo-boolean weight sum well inside int64.
const overflowLimit = math.MaxInt64 / 8

// IntVar is a decision variable restricted to a finite set of integer values.
type IntVar struct {
	index  int
	name   string
	domain []int64 // sorted ascending, unique
}

// Name returns the variable name given at creation.
func (v *IntVar) Name() string { return v.name }

// Index returns the position of the variable within its model.
func (v *IntVar) Index() int { return v.index }

// Domain returns a copy of the allowed values in ascending order.
func (v *IntVar) Domain() []int64 {
	out := make([]int64, len(v.domain))
	copy(out, v.domain)
	return out
}

// Term is a single coefficient*variable product.
type Term struct {
	Var  *IntVar
	Coef int64
}

// LinearExpr is a sum of terms plus a constant offset.
type LinearExpr struct {
	Terms  []Term
	Offset int64
}

// Add appends coef*v to the expression.
func (e *LinearExpr) Add(v *IntVar, coef int64) {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
}

// AddConstant adds c to the expression offset.
func (e *LinearExpr) AddConstant(c int64) {
	e.Offset += c
}

// Constraint is a normalised linear inequality: sum(terms) >= lower.
type Constraint struct {
	name  string
	terms []Term
	lower int64
}

// Name returns the constraint name given at creation.
func (c *Constraint) Name() string { return c.name }

// Model holds variables, linear constraints and a minimisation objective.
type Model struct {
	vars        []*IntVar
	constraints []*Constraint
	objective   LinearExpr
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewIntVarFromDomain creates a variable that may take any of values.
// Duplicates are removed; an empty domain makes the model invalid.
func (m *Model) NewIntVarFromDomain(values []int64, name string) *IntVar {
	domain := make([]int64, len(values))
	copy(domain, values)
	sort.Slice(domain, func(i, j int) bool { return domain[i] < domain[j] })
	uniq := domain[:0]
	for i, v := range domain {
		if i == 0 || v != domain[i-1] {
			uniq = append(uniq, v)
		}
	}
	v := &IntVar{index: len(m.vars), name: name, domain: uniq}
	m.vars = append(m.vars, v)
	return v
}

// AddGreaterOrEqual adds expr >= rhs.
func (m *Model) AddGreaterOrEqual(expr LinearExpr, rhs int64, name string) *Constraint {
	c := &Constraint{name: name, terms: mergeTerms(expr.Terms, 1), lower: rhs - expr.Offset}
	m.constraints = append(m.constraints, c)
	return c
}

// AddLessOrEqual adds expr <= rhs.
func (m *Model) AddLessOrEqual(expr LinearExpr, rhs int64, name string) *Constraint {
	c := &Constraint{name: name, terms: mergeTerms(expr.Terms, -1), lower: expr.Offset - rhs}
	m.constraints = append(m.constraints, c)
	return c
}

// Minimize sets the objective. A later call replaces an earlier one.
func (m *Model) Minimize(expr LinearExpr) {
	m.objective = LinearExpr{Terms: mergeTerms(expr.Terms, 1), Offset: expr.Offset}
}

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Validate reports structural problems that would make Solve meaningless.
func (m *Model) Validate() error {
	for _, v := range m.vars {
		if len(v.domain) == 0 {
			return fmt.Errorf("%w: variable %q has an empty domain", ErrInvalidModel, v.name)
		}
	}
	check := func(what string, terms []Term, extra int64) error {
		total := abs64(extra)
		for _, t := range terms {
			if t.Var == nil || t.Var.index >= len(m.vars) || m.vars[t.Var.index] != t.Var {
				return fmt.Errorf("%w: %s references a variable from another model", ErrInvalidModel, what)
			}
			span := maxAbs(t.Var.domain)
			if span != 0 && abs64(t.Coef) > overflowLimit/span {
				return fmt.Errorf("%w: %s coefficient %d overflows", ErrInvalidModel, what, t.Coef)
			}
			total += abs64(t.Coef) * span
			if total > overflowLimit {
				return fmt.Errorf("%w: %s magnitude overflows", ErrInvalidModel, what)
			}
		}
		return nil
	}
	for _, c := range m.constraints {
		if err := check(fmt.Sprintf("constraint %q", c.name), c.terms, c.lower); err != nil {
			return err
		}
	}
	return check("objective", m.objective.Terms, m.objective.Offset)
}

// mergeTerms combines repeated variables and scales every coefficient by sign.
func mergeTerms(terms []Term, sign int64) []Term {
	pos := make(map[*IntVar]int, len(terms))
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		if i, ok := pos[t.Var]; ok {
			out[i].Coef += sign * t.Coef
			continue
		}
		pos[t.Var] = len(out)
		out = append(out, Term{Var: t.Var, Coef: sign * t.Coef})
	}
	return out
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxAbs(domain []int64) int64 {
	if len(domain) == 0 {
		return 0
	}
	return max(abs64(domain[0]), abs64(domain[len(domain)-1]))
}
