package spawn

import (
	"sort"

	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/rng"
)

// ResolveTraitIDs resolves a preset's per-layer trait specs into the
// concrete ids to force-activate (spec.md §4.6). The returned map is
// keyed by layer id; callers force-activate every id in arrival order.
func ResolveTraitIDs(cfg *config.Store, ent *entity.Entity, preset config.Preset, src rng.Source) map[string][]string {
	out := make(map[string][]string, len(preset.Traits))
	for layerID, spec := range preset.Traits {
		ids := resolveOneSpec(cfg, ent, layerID, spec, src)
		if len(ids) > 0 {
			out[layerID] = ids
		}
	}
	return out
}

func resolveOneSpec(cfg *config.Store, ent *entity.Entity, layerID string, spec config.TraitSpec, src rng.Source) []string {
	switch {
	case spec.ForceID != "":
		return []string{spec.ForceID}
	case len(spec.ForceIDs) > 0:
		return spec.ForceIDs
	}

	pool := spec.Pool
	if spec.Mode == "taxonomyFilter" {
		pool = taxonomyPool(cfg, layerID, spec.Filter)
	}
	if len(pool) == 0 {
		return nil
	}

	switch spec.Mode {
	case "weighted":
		id, ok := weightedDraw(pool, src)
		if !ok {
			return nil
		}
		return []string{id}
	case "chance":
		if src.Float64() >= spec.Chance {
			return nil
		}
		id := pool[int(src.Float64()*float64(len(pool)))%len(pool)].ID
		return []string{id}
	case "pickN":
		return pickNWithoutReplacement(pool, spec.N, src)
	case "all", "taxonomyFilter":
		ids := make([]string, 0, len(pool))
		for _, e := range pool {
			ids = append(ids, e.ID)
		}
		return ids
	default:
		id, ok := weightedDraw(pool, src)
		if !ok {
			return nil
		}
		return []string{id}
	}
}

func weightedDraw(pool []config.PoolEntry, src rng.Source) (string, bool) {
	total := 0.0
	for _, e := range pool {
		total += e.Weight
	}
	if total <= 0 {
		return "", false
	}
	draw := src.Float64() * total
	cumulative := 0.0
	for _, e := range pool {
		cumulative += e.Weight
		if draw < cumulative {
			return e.ID, true
		}
	}
	return pool[len(pool)-1].ID, true
}

func pickNWithoutReplacement(pool []config.PoolEntry, n int, src rng.Source) []string {
	remaining := make([]config.PoolEntry, len(pool))
	copy(remaining, pool)
	var picked []string
	for i := 0; i < n && len(remaining) > 0; i++ {
		id, ok := weightedDraw(remaining, src)
		if !ok {
			break
		}
		picked = append(picked, id)
		out := remaining[:0]
		for _, e := range remaining {
			if e.ID != id {
				out = append(out, e)
			}
		}
		remaining = out
	}
	return picked
}

// taxonomyPool builds a dynamic pool of weight-1 entries from every
// trait whose taxonomy matches every filter key/value and whose id
// appears in the target layer's traitIds.
func taxonomyPool(cfg *config.Store, layerID string, filter map[string]string) []config.PoolEntry {
	layerNode, ok := cfg.Node(layerID)
	if !ok || layerNode.Layer == nil {
		return nil
	}
	allowed := make(map[string]bool, len(layerNode.Layer.TraitIDs))
	for _, id := range layerNode.Layer.TraitIDs {
		allowed[id] = true
	}

	var matches []config.PoolEntry
	for _, n := range cfg.NodesByKind(node.KindTrait.String()) {
		if !allowed[n.ID] {
			continue
		}
		if !taxonomyMatches(n.Trait.Taxonomy, filter) {
			continue
		}
		matches = append(matches, config.PoolEntry{ID: n.ID, Weight: 1})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

func taxonomyMatches(taxonomy, filter map[string]string) bool {
	for k, v := range filter {
		if taxonomy[k] != v {
			return false
		}
	}
	return true
}
