package chatflow

import "sort"

// ProcedureSet is an unordered set of procedure names.
type ProcedureSet map[string]struct{}

// Toggle flips membership of name and reports whether it is now selected.
func (p ProcedureSet) Toggle(name string) bool {
	if _, ok := p[name]; ok {
		delete(p, name)
		return false
	}
	p[name] = struct{}{}
	return true
}

// Select adds name. Selecting twice is a no-op.
func (p ProcedureSet) Select(name string) {
	p[name] = struct{}{}
}

func (p ProcedureSet) Contains(name string) bool {
	_, ok := p[name]
	return ok
}

// Sorted returns the members in name order.
func (p ProcedureSet) Sorted() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (p ProcedureSet) Clear() {
	for name := range p {
		delete(p, name)
	}
}
