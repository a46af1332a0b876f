package runtime

import (
	"sort"

	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/resolve"
	"github.com/talgya/synthesis/internal/selection"
)

// checkThresholds runs the variable-level threshold check (spec.md
// §4.7): for every threshold trait bound to varID, activate it if
// inactive and its trigger passes, or deactivate it if active and its
// removal conditions pass.
func (rt *Runtime) checkThresholds(ent *entity.Entity, varID string, now int64) {
	for _, n := range rt.cfg.ThresholdTraitsForVariable(varID) {
		trig := n.Trait.Selection.Trigger
		active := ent.HasTrait(n.ID)
		switch {
		case !active && evalTrigger(rt, ent, trig):
			selection.Activate(rt.cfg, ent, n.Trait.LayerID, n.ID)
			if rt.events != nil {
				rt.events.Emit(event.TraitActivated, event.Payload{"entityId": ent.ID, "traitId": n.ID})
			}
		case active && evalRemove(rt, ent, trig):
			ent.RemoveTraitFromLayer(n.Trait.LayerID, n.ID)
			if rt.events != nil {
				rt.events.Emit(event.TraitDeactivated, event.Payload{"entityId": ent.ID, "traitId": n.ID})
			}
		}
	}
}

func evalTrigger(rt *Runtime, ent *entity.Entity, trig *node.Trigger) bool {
	if trig == nil {
		return false
	}
	c := trig.AsCondition()
	if c == nil {
		return false
	}
	return resolve.ConditionEval(c, rt.cfg, ent)
}

func evalRemove(rt *Runtime, ent *entity.Entity, trig *node.Trigger) bool {
	if trig == nil {
		return false
	}
	c := trig.RemoveAsCondition()
	if c == nil {
		return false
	}
	return resolve.ConditionEval(c, rt.cfg, ent)
}

// checkModifierThresholds runs the entity-wide threshold check (spec.md
// §4.7): resolves exclusive-group winners, applies/removes every
// threshold modifier accordingly, then flushes the batched cascade.
func (rt *Runtime) checkModifierThresholds(ent *entity.Entity, now int64) {
	winners := rt.resolveExclusiveGroups(ent)

	seen := make(map[string]bool)
	for _, n := range rt.cfg.ThresholdModifiers() {
		if seen[n.ID] {
			continue
		}
		group := rt.cfg.ExclusiveGroup(n.ID)
		if len(group) > 0 {
			seen[n.ID] = true
			for member := range group {
				seen[member] = true
			}
			rt.applyGroupVerdict(ent, n.ID, winners, now)
			for member := range group {
				rt.applyGroupVerdict(ent, member, winners, now)
			}
			continue
		}
		rt.applyStandaloneThreshold(ent, n, now)
	}

	rt.cascade.Run(ent)
}

func (rt *Runtime) applyGroupVerdict(ent *entity.Entity, modID string, winners map[string]bool, now int64) {
	active := ent.HasModifier(modID)
	switch {
	case winners[modID] && !active:
		rt.applyModifierInternal(ent, modID, true, now)
	case !winners[modID] && active:
		rt.removeModifierInternal(ent, modID)
	}
}

func (rt *Runtime) applyStandaloneThreshold(ent *entity.Entity, n *node.Node, now int64) {
	trig := n.Modifier.Trigger
	active := ent.HasModifier(n.ID)
	switch {
	case !active && evalTrigger(rt, ent, trig):
		rt.applyModifierInternal(ent, n.ID, true, now)
	case active && ent.ModifierStates[n.ID] != nil && ent.ModifierStates[n.ID].IsStatic && standaloneShouldRemove(rt, ent, trig):
		rt.removeModifierInternal(ent, n.ID)
	}
}

// standaloneShouldRemove implements "removeConditions pass (explicit)
// or !trigger holds (implicit inverse)".
func standaloneShouldRemove(rt *Runtime, ent *entity.Entity, trig *node.Trigger) bool {
	if len(trig.RemoveConditions) > 0 {
		return evalRemove(rt, ent, trig)
	}
	return !evalTrigger(rt, ent, trig)
}

// resolveExclusiveGroups computes, for every modifier that belongs to
// an exclusivity group, whether it should be the active member (spec.md
// §4.7 step 1).
func (rt *Runtime) resolveExclusiveGroups(ent *entity.Entity) map[string]bool {
	winners := make(map[string]bool)
	visited := make(map[string]bool)

	for _, n := range rt.cfg.ThresholdModifiers() {
		if visited[n.ID] {
			continue
		}
		group := rt.cfg.ExclusiveGroup(n.ID)
		if len(group) == 0 {
			continue
		}
		members := []string{n.ID}
		for id := range group {
			members = append(members, id)
		}
		// Map iteration order is unspecified; sort by declaration index
		// so "first wins" fallbacks below are actually deterministic.
		sort.Slice(members, func(i, j int) bool {
			return rt.declIndex(members[i]) < rt.declIndex(members[j])
		})
		for _, id := range members {
			visited[id] = true
		}

		var qualifying []*node.Node
		for _, id := range members {
			mn, ok := rt.cfg.Node(id)
			if !ok || mn.Modifier == nil {
				continue
			}
			if evalTrigger(rt, ent, mn.Modifier.Trigger) {
				qualifying = append(qualifying, mn)
			}
		}

		switch len(qualifying) {
		case 0:
			// no winner; all members lose.
		case 1:
			winners[qualifying[0].ID] = true
		default:
			winners[mostSpecific(qualifying).ID] = true
		}
	}
	return winners
}

// mostSpecific implements the specificity ranking (spec.md §4.7): if
// every candidate has a single-leaf trigger on the same target
// variable, the tightest threshold wins; otherwise the first in config
// declaration order wins.
func mostSpecific(candidates []*node.Node) *node.Node {
	target := ""
	allSingleLeaf := true
	allLowerBound := true
	allUpperBound := true

	for _, n := range candidates {
		trig := n.Modifier.Trigger
		if trig == nil || len(trig.Conditions) != 1 {
			allSingleLeaf = false
			break
		}
		leaf := trig.Conditions[0]
		if !leaf.IsLeaf() || leaf.Type != condition.TypeVariable {
			allSingleLeaf = false
			break
		}
		if target == "" {
			target = leaf.Target
		} else if leaf.Target != target {
			allSingleLeaf = false
			break
		}
		switch leaf.Operator {
		case condition.OpLT, condition.OpLTE:
			allLowerBound = false
		case condition.OpGT, condition.OpGTE:
			allUpperBound = false
		default:
			allLowerBound = false
			allUpperBound = false
		}
	}

	if allSingleLeaf && (allLowerBound || allUpperBound) {
		best := candidates[0]
		bestValue := best.Modifier.Trigger.Conditions[0].Value
		for _, n := range candidates[1:] {
			v := n.Modifier.Trigger.Conditions[0].Value
			if allUpperBound && v < bestValue || allLowerBound && v > bestValue {
				best, bestValue = n, v
			}
		}
		return best
	}
	return candidates[0] // config declaration order.
}

// declIndex looks up a node's declaration-order index, or the largest
// possible value if it isn't found (pushes unknown ids to the back of
// any declaration-order sort instead of panicking).
func (rt *Runtime) declIndex(id string) int {
	if n, ok := rt.cfg.Node(id); ok {
		return n.DeclIndex
	}
	return int(^uint(0) >> 1)
}
