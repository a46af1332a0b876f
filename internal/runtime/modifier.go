package runtime

import (
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/synerr"
)

// ApplyModifier applies modID to ent, following the stacking rules of
// spec.md §4.8. Explicit callers never mark a modifier static — static
// is reserved for modifiers the Threshold Arbiter itself applies.
func (rt *Runtime) ApplyModifier(ent *entity.Entity, modID string, now int64) error {
	if _, ok := rt.cfg.Node(modID); !ok {
		return &synerr.NotFound{Kind: "modifier", ID: modID}
	}
	rt.applyModifierInternal(ent, modID, false, now)
	return nil
}

// RemoveModifier splices modID out of ent and flushes the cascade.
func (rt *Runtime) RemoveModifier(ent *entity.Entity, modID string) error {
	if !ent.HasModifier(modID) {
		return &synerr.NotFound{Kind: "modifier", ID: modID}
	}
	rt.removeModifierInternal(ent, modID)
	return nil
}

func (rt *Runtime) applyModifierInternal(ent *entity.Entity, modID string, isStatic bool, now int64) {
	n, ok := rt.cfg.Node(modID)
	if !ok || n.Modifier == nil {
		return
	}
	m := n.Modifier

	if ent.HasModifier(modID) {
		st := ent.ModifierStates[modID]
		switch m.Stacking {
		case node.StackRefresh:
			st.AppliedAt = now
			if m.DurationType == node.DurationTimed && !st.IsStatic {
				exp := now + int64(m.Duration*1000)
				st.ExpiresAt = &exp
			}
		case node.StackStack:
			if st.Stacks < m.MaxStacks {
				st.Stacks++
			}
		}
		rt.cascade.Run(ent)
		return
	}

	st := &entity.ModState{AppliedAt: now, Stacks: 1, IsStatic: isStatic}
	if m.DurationType == node.DurationTimed && !isStatic {
		exp := now + int64(m.Duration*1000)
		st.ExpiresAt = &exp
	}
	if m.DurationType == node.DurationTicks {
		ticks := int(m.Duration)
		st.TicksRemaining = &ticks
	}
	ent.Modifiers = append(ent.Modifiers, modID)
	ent.ModifierStates[modID] = st
	if rt.events != nil {
		rt.events.Emit(event.ModifierApplied, event.Payload{"entityId": ent.ID, "modifierId": modID})
	}
	rt.cascade.Run(ent)
}

func (rt *Runtime) removeModifierInternal(ent *entity.Entity, modID string) {
	ent.RemoveModifier(modID)
	if rt.events != nil {
		rt.events.Emit(event.ModifierRemoved, event.Payload{"entityId": ent.ID, "modifierId": modID})
	}
	rt.cascade.Run(ent)
}
