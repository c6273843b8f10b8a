package orgtree

import (
	"context"
	"sort"
	"sync"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// Source provides org unit rows to the Index
type Source interface {
	// Unit returns a single unit, or an error wrapping hierarchy.ErrNotFound
	Unit(ctx context.Context, id string) (*hierarchy.OrgUnit, error)

	// Children returns all units whose parent is one of parentIDs
	Children(ctx context.Context, parentIDs []string) ([]hierarchy.OrgUnit, error)
}

// MemorySource is an in-memory Source, safe for concurrent use
type MemorySource struct {
	mu    sync.RWMutex
	units map[string]hierarchy.OrgUnit
}

// NewMemorySource creates a new in-memory source seeded with units
func NewMemorySource(units ...hierarchy.OrgUnit) *MemorySource {
	s := &MemorySource{units: make(map[string]hierarchy.OrgUnit, len(units))}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return s
}

// Put inserts or replaces a unit
func (s *MemorySource) Put(u hierarchy.OrgUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = u
}

// Remove deletes a unit
func (s *MemorySource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, id)
}

// Unit implements Source
func (s *MemorySource) Unit(ctx context.Context, id string) (*hierarchy.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[id]
	if !ok {
		return nil, hierarchy.NotFound("unit", id)
	}
	return &u, nil
}

// Children implements Source
func (s *MemorySource) Children(ctx context.Context, parentIDs []string) ([]hierarchy.OrgUnit, error) {
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []hierarchy.OrgUnit
	for _, u := range s.units {
		if u.ParentID == "" {
			continue
		}
		if _, ok := parents[u.ParentID]; ok {
			children = append(children, u)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children, nil
}
