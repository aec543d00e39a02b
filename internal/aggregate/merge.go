package aggregate

import (
	"cmp"
	"slices"
)

// Merger unions partial groups from all chunks. It is owned by a single
// goroutine; partials may arrive in any chunk order.
type Merger struct {
	policy OrphanPolicy
	index  map[string]*Group
	groups []*Group
	closed bool
}

// NewMerger returns an empty merger.
func NewMerger(policy OrphanPolicy) *Merger {
	return &Merger{
		policy: policy,
		index:  make(map[string]*Group),
	}
}

// Len returns the number of distinct keys merged so far.
func (m *Merger) Len() int {
	return len(m.groups)
}

// Merge folds a partial into the merged state.
func (m *Merger) Merge(p *Partial) error {
	for _, g := range p.Groups {
		existing, ok := m.index[g.Key]
		if !ok {
			m.index[g.Key] = g
			m.groups = append(m.groups, g)
			continue
		}
		if err := existing.absorb(g); err != nil {
			return err
		}
	}
	return nil
}

// Close resolves orphan groups and returns every group in the order its
// key was first seen in the input, with children in input order.
func (m *Merger) Close() ([]*Group, error) {
	if m.closed {
		return m.groups, nil
	}
	m.closed = true

	slices.SortFunc(m.groups, func(a, b *Group) int {
		return cmp.Compare(a.First, b.First)
	})

	for _, g := range m.groups {
		slices.SortFunc(g.Children, func(a, b Child) int {
			return cmp.Compare(a.Order, b.Order)
		})
		if g.HasParent {
			continue
		}
		if m.policy == Reject {
			return nil, &OrphanError{Key: g.Key, Line: g.firstLine}
		}
		g.adopt()
	}
	m.index = nil
	return m.groups, nil
}

// absorb merges o, a partial group with the same key, into g.
func (g *Group) absorb(o *Group) error {
	if g.Seqname != "" && o.Seqname != "" && g.Seqname != o.Seqname {
		a, b := g, o
		if o.First < g.First {
			a, b = o, g
		}
		return &SeqnameMismatchError{Key: g.Key, Want: a.Seqname, Got: b.Seqname}
	}
	if g.Seqname == "" {
		g.Seqname = o.Seqname
	}

	if o.First < g.First {
		g.First = o.First
		g.firstLine = o.firstLine
	}

	if o.HasParent && (!g.HasParent || o.parentOrder < g.parentOrder) {
		g.Start = o.Start
		g.End = o.End
		g.Strand = o.Strand
		g.Score = o.Score
		g.Attrs = o.Attrs
		g.HasParent = true
		g.parentOrder = o.parentOrder
	}

	if o.childAttrs != nil && (g.childAttrs == nil || o.childOrder < g.childOrder) {
		g.childAttrs = o.childAttrs
		g.childOrder = o.childOrder
	}

	g.Children = append(g.Children, o.Children...)

	if o.ThickEnd > 0 {
		g.extendThick(o.ThickStart, o.ThickEnd)
	}
	return nil
}

// adopt derives the parent span from the children (and thick span) of a
// group that never saw its parent record. Children must be in input order.
func (g *Group) adopt() {
	first := true
	span := func(start, end uint64) {
		if first || start < g.Start {
			g.Start = start
		}
		if first || end > g.End {
			g.End = end
		}
		first = false
	}
	for _, c := range g.Children {
		span(c.Start, c.End)
	}
	if g.ThickEnd > 0 {
		span(g.ThickStart, g.ThickEnd)
	}
	if len(g.Children) > 0 {
		g.Strand = g.Children[0].Strand
	}
	g.Attrs = g.childAttrs
}
