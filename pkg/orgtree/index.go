package orgtree

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/sirupsen/logrus"
)

// Index answers ancestor and descendant queries over a Source.
// Results are a pure function of the current rows; nothing is cached here.
type Index struct {
	source Source
	log    *logrus.Logger
}

// NewIndex creates a new tree index
func NewIndex(source Source, log *logrus.Logger) *Index {
	if log == nil {
		log = logrus.New()
	}
	return &Index{source: source, log: log}
}

// Unit returns a single unit
func (x *Index) Unit(ctx context.Context, id string) (*hierarchy.OrgUnit, error) {
	return x.source.Unit(ctx, id)
}

// AncestorsOf returns the unit's ancestors ordered from immediate parent to root
func (x *Index) AncestorsOf(ctx context.Context, unitID string) ([]hierarchy.OrgUnit, error) {
	unit, err := x.source.Unit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	visited := map[string]struct{}{unit.ID: {}}
	var ancestors []hierarchy.OrgUnit

	for current := unit; !current.IsRoot(); {
		if _, seen := visited[current.ParentID]; seen {
			return nil, x.cycle(current.ParentID)
		}
		parent, err := x.source.Unit(ctx, current.ParentID)
		if err != nil {
			if hierarchy.IsNotFound(err) {
				return nil, fmt.Errorf("dangling parent of unit %s: %w", current.ID, err)
			}
			return nil, err
		}
		visited[parent.ID] = struct{}{}
		ancestors = append(ancestors, *parent)
		current = parent
	}

	return ancestors, nil
}

// AncestorIDs returns the ids of AncestorsOf
func (x *Index) AncestorIDs(ctx context.Context, unitID string) ([]string, error) {
	ancestors, err := x.AncestorsOf(ctx, unitID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ancestors))
	for i, a := range ancestors {
		ids[i] = a.ID
	}
	return ids, nil
}

// DescendantsOf returns the ids of every unit below unitID in breadth-first
// order, excluding unitID itself. A unit reached twice is a cycle.
func (x *Index) DescendantsOf(ctx context.Context, unitID string) ([]string, error) {
	if _, err := x.source.Unit(ctx, unitID); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{unitID: {}}
	var descendants []string

	frontier := []string{unitID}
	for len(frontier) > 0 {
		children, err := x.source.Children(ctx, frontier)
		if err != nil {
			return nil, err
		}

		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return nil, x.cycle(child.ID)
			}
			visited[child.ID] = struct{}{}
			descendants = append(descendants, child.ID)
			next = append(next, child.ID)
		}
		frontier = next
	}

	return descendants, nil
}

// Subtree returns unitID followed by DescendantsOf(unitID)
func (x *Index) Subtree(ctx context.Context, unitID string) ([]string, error) {
	descendants, err := x.DescendantsOf(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return append([]string{unitID}, descendants...), nil
}

// IsDescendant reports whether candidateID lies strictly below ancestorID
func (x *Index) IsDescendant(ctx context.Context, ancestorID, candidateID string) (bool, error) {
	if ancestorID == candidateID {
		return false, nil
	}
	ancestors, err := x.AncestorsOf(ctx, candidateID)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a.ID == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// ValidatePlacement checks a unit about to be created or re-parented: the
// type must match its depth, the parent must belong to the same organization,
// and the parent may not be the unit itself or one of its descendants.
func (x *Index) ValidatePlacement(ctx context.Context, unit hierarchy.OrgUnit) error {
	if unit.Type.Depth() < 0 {
		return &hierarchy.PlacementError{Reason: fmt.Sprintf("unknown unit type %q", unit.Type)}
	}

	wantParent, needsParent := unit.Type.ParentType()
	if !needsParent {
		if !unit.IsRoot() {
			return &hierarchy.PlacementError{Reason: "company units cannot have a parent"}
		}
		return nil
	}
	if unit.IsRoot() {
		return &hierarchy.PlacementError{Reason: fmt.Sprintf("%s units require a %s parent", unit.Type, wantParent)}
	}
	if unit.ParentID == unit.ID {
		return &hierarchy.PlacementError{Reason: "unit cannot be its own parent"}
	}

	parent, err := x.source.Unit(ctx, unit.ParentID)
	if err != nil {
		return err
	}
	if parent.Type != wantParent {
		return &hierarchy.PlacementError{Reason: fmt.Sprintf("%s parent must be %s, got %s", unit.Type, wantParent, parent.Type)}
	}
	if parent.OrganizationID != unit.OrganizationID {
		return &hierarchy.PlacementError{Reason: "parent belongs to a different organization"}
	}

	// Re-parenting an existing unit must not place it under its own subtree.
	if unit.ID != "" {
		below, err := x.IsDescendant(ctx, unit.ID, parent.ID)
		if err != nil && !hierarchy.IsNotFound(err) {
			return err
		}
		if below {
			return &hierarchy.PlacementError{Reason: "parent is a descendant of the unit"}
		}
	}

	return nil
}

func (x *Index) cycle(unitID string) error {
	err := &hierarchy.CycleError{UnitID: unitID}
	x.log.WithFields(logrus.Fields{
		"unit_id": unitID,
		"error":   err.Error(),
	}).Error("org tree integrity violation")
	return err
}

// IsCycle checks if an error is a cycle error
func IsCycle(err error) bool {
	return errors.Is(err, hierarchy.ErrCyclicHierarchy)
}
