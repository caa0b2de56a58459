package solver

import (
	gsolver "github.com/crillab/gophersat/solver"
)

// encoding maps every (variable, domain value) pair of a Model onto one
// boolean literal. Exactly one literal per variable is true.
type encoding struct {
	model *Model
	// first[i] is the literal of vars[i].domain[0]; the others follow in
	// domain order.
	first []int
	nLits int

	constrs    []gsolver.PBConstr
	costLits   []gsolver.Lit
	costWeight []int
	// costOffset is added to the pseudo-boolean cost to get the model
	// objective.
	costOffset int64
	// infeasible is set when a constraint cannot hold under any assignment.
	infeasible bool
}

func encode(m *Model) *encoding {
	e := &encoding{model: m, first: make([]int, len(m.vars))}
	for i, v := range m.vars {
		e.first[i] = e.nLits + 1
		e.nLits += len(v.domain)

		lits := make([]int, len(v.domain))
		for k := range v.domain {
			lits[k] = e.first[i] + k
		}
		e.constrs = append(e.constrs, gsolver.AtLeast(lits, 1), gsolver.AtMost(lits, 1))
	}

	for _, c := range m.constraints {
		e.addGreaterOrEqual(c.terms, c.lower)
	}

	lits, weights, offset := e.shifted(m.objective.Terms)
	e.costOffset = offset + m.objective.Offset
	for i, l := range lits {
		e.costLits = append(e.costLits, gsolver.IntToLit(int32(l)))
		e.costWeight = append(e.costWeight, int(weights[i]))
	}
	return e
}

// shifted expands terms over the value literals. Each term is shifted by its
// smallest value so all weights are non-negative; the shifts are returned
// as offset. Zero weights are dropped.
func (e *encoding) shifted(terms []Term) (lits []int, weights []int64, offset int64) {
	for _, t := range terms {
		d := t.Var.domain
		low := min(t.Coef*d[0], t.Coef*d[len(d)-1])
		offset += low
		for k, v := range d {
			if w := t.Coef*v - low; w != 0 {
				lits = append(lits, e.first[t.Var.index]+k)
				weights = append(weights, w)
			}
		}
	}
	return lits, weights, offset
}

// addGreaterOrEqual adds sum(terms) >= lower. Constraints that always hold
// are dropped; ones that can never hold mark the model infeasible.
func (e *encoding) addGreaterOrEqual(terms []Term, lower int64) {
	lits, weights, offset := e.shifted(terms)
	need := lower - offset
	if need <= 0 {
		return
	}
	// weights of one variable are alternatives, so only the largest counts
	var reach int64
	for _, t := range terms {
		d := t.Var.domain
		reach += max(t.Coef*d[0], t.Coef*d[len(d)-1]) - min(t.Coef*d[0], t.Coef*d[len(d)-1])
	}
	if reach < need {
		e.infeasible = true
		return
	}
	w := make([]int, len(weights))
	for i := range weights {
		w[i] = int(weights[i])
	}
	e.constrs = append(e.constrs, gsolver.GtEq(lits, w, int(need)))
}

// problem builds the pseudo-boolean problem with the cost function set.
func (e *encoding) problem() *gsolver.Problem {
	pb := gsolver.ParsePBConstrs(e.constrs)
	if len(e.costLits) > 0 {
		pb.SetCostFunc(e.costLits, e.costWeight)
	}
	return pb
}

// decode reads variable values from a model of the problem. It reports
// false when the model does not pick exactly one value per variable.
func (e *encoding) decode(bools []bool) ([]int64, bool) {
	values := make([]int64, len(e.model.vars))
	for i, v := range e.model.vars {
		picked := -1
		for k := range v.domain {
			idx := e.first[i] + k - 1
			if idx < len(bools) && bools[idx] {
				if picked >= 0 {
					return nil, false
				}
				picked = k
			}
		}
		if picked < 0 {
			return nil, false
		}
		values[i] = v.domain[picked]
	}
	return values, true
}
