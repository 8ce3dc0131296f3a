package workflow

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// planEntry is what the cache stores per graph version: the validation
// outcome and, when the graph is valid, its plan.
type planEntry struct {
	validation Validation
	plan       *Plan
}

// Planner validates graphs and derives execution plans, caching both per
// graph content hash so repeated executions of an unchanged workflow skip
// re-validation and re-planning. Recomputing an entry is idempotent, so
// concurrent misses for the same hash resolve safely without extra locking.
type Planner struct {
	validator *Validator
	cache     *lru.Cache[string, planEntry]
}

// NewPlanner creates a planner with an LRU cache of the given size
// (minimum 16).
func NewPlanner(validator *Validator, cacheSize int) *Planner {
	if validator == nil {
		validator = &Validator{}
	}
	if cacheSize < 16 {
		cacheSize = 16
	}
	cache, _ := lru.New[string, planEntry](cacheSize)
	return &Planner{validator: validator, cache: cache}
}

// Validate returns the cached validation for the graph, computing and
// caching it on a miss.
func (p *Planner) Validate(g *Graph) Validation {
	e := p.entry(g)
	return e.validation
}

// Plan returns the execution plan for a validated graph. Calling it on a
// graph that does not pass validation returns ErrNotValidated.
func (p *Planner) Plan(g *Graph) (*Plan, error) {
	e := p.entry(g)
	if !e.validation.Valid {
		return nil, ErrNotValidated
	}
	return e.plan, nil
}

// Resolve validates and plans in one step, the shape the session
// orchestrator wants: the validation always, the plan only when valid.
func (p *Planner) Resolve(g *Graph) (Validation, *Plan) {
	e := p.entry(g)
	return e.validation, e.plan
}

func (p *Planner) entry(g *Graph) planEntry {
	hash := GraphHash(g)
	if e, ok := p.cache.Get(hash); ok {
		return e
	}
	e := planEntry{validation: p.validator.Validate(g)}
	if e.validation.Valid {
		e.plan = planOrder(g)
		e.plan.Hash = hash
	}
	p.cache.ContainsOrAdd(hash, e)
	return e
}
