package resolver

import (
	"slices"

	"github.com/bitey-pm/bitey/pkg/source"
)

// Entry is one package scheduled for installation.
type Entry struct {
	*source.Resolved
	// Requested is set for packages named by the user, as opposed to ones
	// pulled in as dependencies.
	Requested bool
}

// Plan is an ordered install list: every entry appears after all of its
// dependencies, and each name appears once.
type Plan struct {
	entries []Entry
	index   map[string]int
}

func NewPlan() *Plan {
	return &Plan{index: map[string]int{}}
}

// Add appends res unless a package with the same name is already planned.
// Adding an already planned package as requested marks the existing entry
// requested. Reports whether a new entry was appended.
func (p *Plan) Add(res *source.Resolved, requested bool) bool {
	if p.index == nil {
		p.index = map[string]int{}
	}
	if i, ok := p.index[res.Name]; ok {
		if requested {
			p.entries[i].Requested = true
		}
		return false
	}
	p.index[res.Name] = len(p.entries)
	p.entries = append(p.entries, Entry{Resolved: res, Requested: requested})
	return true
}

// Merge appends the entries of other not yet in p, keeping other's order.
func (p *Plan) Merge(other *Plan) {
	for _, e := range other.Entries() {
		p.Add(e.Resolved, e.Requested)
	}
}

func (p *Plan) Entries() []Entry {
	if p == nil {
		return nil
	}
	return slices.Clone(p.entries)
}

func (p *Plan) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.Name
	}
	return names
}

func (p *Plan) Get(name string) (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	i, ok := p.index[name]
	if !ok {
		return Entry{}, false
	}
	return p.entries[i], true
}

func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Dependents returns the planned packages whose manifests list name, in
// plan order.
func (p *Plan) Dependents(name string) []string {
	var out []string
	for _, e := range p.Entries() {
		if slices.Contains(e.Manifest.Dependencies, name) {
			out = append(out, e.Name)
		}
	}
	return out
}
