// Package action implements the Actions group (spec.md §6): cooldown-
// gated operations an entity can take, costed against its variables
// and gated by requirements/blockedBy/eligibility. Effects are opaque
// to the engine — executeAction deducts costs, starts the cooldown,
// and hands the action's configured effects map back to the caller to
// interpret.
//
// Grounded on the teacher's needs-driven action selection
// (internal/agents/behavior.go's Decide/Tier0Decide picking the most
// urgent action from a fixed menu), generalized from a hardcoded
// priority ladder to config-declared weight/cooldown/requirement data
// resolved through the Selection Core's weighted-draw machinery.
package action

import (
	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/resolve"
	"github.com/talgya/synthesis/internal/rng"
	"github.com/talgya/synthesis/internal/synerr"
)

// Runner resolves action availability and execution against one
// configuration.
type Runner struct {
	cfg     *config.Store
	events  *event.Bus
	cascade *cascade.Runner
	src     rng.Source
}

// New returns a Runner bound to cfg.
func New(cfg *config.Store, events *event.Bus, runner *cascade.Runner, src rng.Source) *Runner {
	return &Runner{cfg: cfg, events: events, cascade: runner, src: src}
}

// IsActionAvailable reports whether actionID can be executed on ent
// right now: it must exist, be off cooldown, satisfy every requirement
// and its combined eligibility condition, and have nothing in its
// blockedBy list currently active.
func (r *Runner) IsActionAvailable(ent *entity.Entity, actionID string) bool {
	n, ok := r.cfg.Node(actionID)
	if !ok || n.Kind != node.KindAction || n.Action == nil {
		return false
	}
	return r.available(ent, n)
}

func (r *Runner) available(ent *entity.Entity, n *node.Node) bool {
	a := n.Action
	if st, ok := ent.Actions[n.ID]; ok && st.CooldownRemaining > 0 {
		return false
	}
	for _, blocker := range a.BlockedBy {
		if ent.IsActive(blocker) {
			return false
		}
	}
	src := resolve.ConditionSource{Cfg: r.cfg, Ent: ent}
	for _, req := range a.Requirements {
		if !condition.Evaluate(req, src) {
			return false
		}
	}
	if a.Eligibility != nil && !condition.Evaluate(a.Eligibility, src) {
		return false
	}
	for varID, cost := range a.Costs {
		if vs, ok := ent.Variables[varID]; ok && vs.Value < cost {
			return false
		}
	}
	return true
}

// GetAvailableActions returns the ids of every action node currently
// available on ent.
func (r *Runner) GetAvailableActions(ent *entity.Entity) []string {
	var out []string
	for _, n := range r.cfg.NodesByKind(string(node.KindAction)) {
		if r.available(ent, n) {
			out = append(out, n.ID)
		}
	}
	return out
}

// SelectAction draws one available action weighted by baseWeight,
// mirroring the Selection Core's weighted draw over traits. Returns
// "" if nothing is available.
func (r *Runner) SelectAction(ent *entity.Entity) string {
	available := r.GetAvailableActions(ent)
	if len(available) == 0 {
		return ""
	}
	total := 0.0
	weights := make([]float64, len(available))
	for i, id := range available {
		n, _ := r.cfg.Node(id)
		w := n.Action.BaseWeight
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return available[0]
	}
	draw := r.src.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if draw < cum {
			return available[i]
		}
	}
	return available[len(available)-1]
}

// GetActionCooldown returns actionID's remaining cooldown on ent, 0 if
// it has never been executed.
func (r *Runner) GetActionCooldown(ent *entity.Entity, actionID string) float64 {
	if st, ok := ent.Actions[actionID]; ok {
		return st.CooldownRemaining
	}
	return 0
}

// ExecuteAction deducts actionID's costs, starts its cooldown, runs
// the cascade, and returns its configured (opaque) effects map. Fails
// with NotFound if actionID isn't an action node, or if it is
// currently unavailable.
func (r *Runner) ExecuteAction(ent *entity.Entity, actionID string) (map[string]any, error) {
	n, ok := r.cfg.Node(actionID)
	if !ok || n.Kind != node.KindAction || n.Action == nil {
		return nil, &synerr.NotFound{Kind: "action", ID: actionID}
	}
	if !r.available(ent, n) {
		return nil, &synerr.NotFound{Kind: "available action", ID: actionID}
	}

	for varID, cost := range n.Action.Costs {
		if vs, ok := ent.Variables[varID]; ok {
			vs.Value -= cost
		}
	}
	if ent.Actions[actionID] == nil {
		ent.Actions[actionID] = &entity.ActionState{}
	}
	ent.Actions[actionID].CooldownRemaining = n.Action.Cooldown

	r.cascade.Run(ent)
	if r.events != nil {
		r.events.Emit(event.ActionExecuted, event.Payload{"entityId": ent.ID, "actionId": actionID})
	}
	return n.Action.Effects, nil
}
