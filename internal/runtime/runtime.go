// Package runtime implements the Runtime Tick Loop & Threshold Arbiter
// (spec.md §4.7): variable integration, modifier expiry, threshold-driven
// trait/modifier activation, and mutual-exclusion arbitration. Grounded
// on the teacher's tick dispatch (internal/engine/tick.go's Speed/
// Interval/OnTick callback shape), generalized from a fixed hour/day/
// week cadence to an arbitrary Δs passed by the caller each tick.
package runtime

import (
	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/synerr"
)

// Runtime advances entities through ticks against one Config Store,
// sharing a cascade.Runner with the Spawner and Pool Manager so batching
// composes across subsystems.
type Runtime struct {
	cfg     *config.Store
	events  *event.Bus
	cascade *cascade.Runner
}

// New returns a Runtime bound to cfg, emitting lifecycle events on
// events and running cascades through runner.
func New(cfg *config.Store, events *event.Bus, runner *cascade.Runner) *Runtime {
	return &Runtime{cfg: cfg, events: events, cascade: runner}
}

// Tick advances ent by deltaSeconds: integrates timed variables,
// expires modifiers, runs the Threshold Arbiter, decrements action
// cooldowns, and re-derives (spec.md §4.7).
func (rt *Runtime) Tick(ent *entity.Entity, deltaSeconds float64, now int64) {
	rt.cascade.BeginBatch()
	defer rt.cascade.EndBatch()

	for varID, vs := range ent.Variables {
		if vs.ChangeMode != node.ChangeTimed || vs.Direction == node.DirectionNone {
			continue
		}
		next := clamp(vs.Value+vs.CurrentRate*deltaSeconds, vs.Min, vs.Max)
		if next == vs.Value {
			continue
		}
		vs.Value = next
		rt.checkThresholds(ent, varID, now)
		if rt.events != nil {
			rt.events.Emit(event.VariableChanged, event.Payload{"entityId": ent.ID, "variableId": varID, "value": next})
		}
	}

	rt.expireModifiers(ent, now)
	rt.checkModifierThresholds(ent, now)

	for _, as := range ent.Actions {
		as.CooldownRemaining -= deltaSeconds
		if as.CooldownRemaining < 0 {
			as.CooldownRemaining = 0
		}
	}

	rt.cascade.CalculateDerived(ent)

	if rt.events != nil {
		rt.events.Emit(event.Tick, event.Payload{"entityId": ent.ID, "deltaSeconds": deltaSeconds})
	}
}

// SetVariable sets ent's variable varID to v, clamped to its configured
// range, then runs the same threshold/event/cascade sequence a timed
// tick runs for that variable (spec.md §6 "Variables" group, §4.7).
func (rt *Runtime) SetVariable(ent *entity.Entity, varID string, v float64, now int64) error {
	vs, ok := ent.Variables[varID]
	if !ok {
		return &synerr.NotFound{Kind: "variable", ID: varID}
	}
	next := clamp(v, vs.Min, vs.Max)
	if next == vs.Value {
		return nil
	}
	vs.Value = next
	rt.checkThresholds(ent, varID, now)
	if rt.events != nil {
		rt.events.Emit(event.VariableChanged, event.Payload{"entityId": ent.ID, "variableId": varID, "value": next})
	}
	rt.checkModifierThresholds(ent, now)
	return nil
}

// ModifyVariable adds delta to ent's variable varID and applies it
// through SetVariable, so a relative nudge goes through the identical
// clamp/threshold/cascade sequence as an absolute set.
func (rt *Runtime) ModifyVariable(ent *entity.Entity, varID string, delta float64, now int64) error {
	vs, ok := ent.Variables[varID]
	if !ok {
		return &synerr.NotFound{Kind: "variable", ID: varID}
	}
	return rt.SetVariable(ent, varID, vs.Value+delta, now)
}

// expireModifiers removes timed modifiers past expiresAt and decrements
// tick-counted modifiers once, removing those that reach zero.
func (rt *Runtime) expireModifiers(ent *entity.Entity, now int64) {
	for _, modID := range append([]string(nil), ent.Modifiers...) {
		st, ok := ent.ModifierStates[modID]
		if !ok {
			continue
		}
		if st.ExpiresAt != nil && *st.ExpiresAt <= now {
			rt.removeModifierInternal(ent, modID)
			continue
		}
		if st.TicksRemaining != nil {
			*st.TicksRemaining--
			if *st.TicksRemaining <= 0 {
				rt.removeModifierInternal(ent, modID)
			}
		}
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
