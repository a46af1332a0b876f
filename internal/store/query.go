package store

import "github.com/talgya/synthesis/internal/entity"

// Filter narrows Query's result set; zero-valued fields are ignored.
// Supplements spec.md §6's bare query(filter) operation, grounded on
// the teacher's AgentIndex/SettlementIndex query surface generalized
// from settlement-scoped lookups to arbitrary group/trait/preset
// predicates.
type Filter struct {
	Group      string
	HasTrait   string
	HasModifier string
	HasCompound string
	PresetID   string
}

// Query returns every stored entity matching every non-zero field of f.
func (s *Store) Query(f Filter) []*entity.Entity {
	var candidates map[string]bool
	if f.Group != "" {
		candidates = s.groups[f.Group]
	}

	var out []*entity.Entity
	for id, e := range s.entities {
		if candidates != nil && !candidates[id] {
			continue
		}
		if f.HasTrait != "" && !e.HasTrait(f.HasTrait) {
			continue
		}
		if f.HasModifier != "" && !e.HasModifier(f.HasModifier) {
			continue
		}
		if f.HasCompound != "" && !e.HasCompound(f.HasCompound) {
			continue
		}
		if f.PresetID != "" && e.PresetID != f.PresetID {
			continue
		}
		out = append(out, e)
	}
	return out
}
