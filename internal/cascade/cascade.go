// Package cascade implements the cascade triple (spec.md §4.4):
// recalculateRates → checkCompounds → calculateDerived, run as an
// atomic, batchable recalculation against one entity. Grounded on the
// teacher's tick/callback dispatch shape (internal/engine/tick.go) —
// here generalized from a fixed hourly/daily/weekly cadence to an
// on-demand, dirty-flag-driven recompute triggered by any mutation.
package cascade

import (
	"log/slog"

	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/resolve"
)

// Runner owns the batching state for one engine instance. The engine is
// single-threaded cooperative (spec.md §5), so a single bool plus a
// dirty set is sufficient — no per-entity locking is needed.
type Runner struct {
	cfg      *config.Store
	events   *event.Bus
	batching bool
	dirty    map[string]*entity.Entity
}

// New returns a Runner bound to cfg's indexes, emitting compound
// transition events on events.
func New(cfg *config.Store, events *event.Bus) *Runner {
	return &Runner{cfg: cfg, events: events}
}

// BeginBatch marks the start of a multi-mutation operation. Calls to
// Run made while batching is active are deferred; see EndBatch.
func (r *Runner) BeginBatch() {
	r.batching = true
	if r.dirty == nil {
		r.dirty = make(map[string]*entity.Entity)
	}
}

// EndBatch flushes every entity marked dirty since BeginBatch, running
// the cascade triple exactly once per entity regardless of how many
// intervening mutations touched it.
func (r *Runner) EndBatch() {
	r.batching = false
	pending := r.dirty
	r.dirty = nil
	for _, ent := range pending {
		r.run(ent)
	}
}

// Run executes the cascade triple against ent, or — if a batch is open
// — marks ent dirty and defers until EndBatch.
func (r *Runner) Run(ent *entity.Entity) {
	if r.batching {
		r.dirty[ent.ID] = ent
		return
	}
	r.run(ent)
}

func (r *Runner) run(ent *entity.Entity) {
	r.recalculateRates(ent)
	r.checkCompounds(ent)
	r.CalculateDerived(ent)
}

// recalculateRates resets every variable's currentRate to its
// baseRate, then folds every rate_modifier relationship targeting it.
func (r *Runner) recalculateRates(ent *entity.Entity) {
	for varID, vs := range ent.Variables {
		vs.CurrentRate = vs.BaseRate
		for _, rel := range r.cfg.RelationshipsByTarget(varID) {
			if rel.Type != node.RelRateModifier {
				continue
			}
			if !r.relationshipApplies(ent, rel) {
				continue
			}
			applyOperation(&vs.CurrentRate, rel.Config.Operation, scaledValue(r.cfg, ent, rel))
		}
	}
}

// checkCompounds evaluates every compound's requirement set against
// current membership, appending/splicing on transition and emitting
// compoundActivated/compoundDeactivated.
func (r *Runner) checkCompounds(ent *entity.Entity) {
	for _, n := range r.cfg.NodesByKind(node.KindCompound.String()) {
		satisfied := evalCompoundRequirements(n.Compound, r.cfg, ent)
		active := ent.HasCompound(n.ID)
		switch {
		case satisfied && !active:
			ent.Compounds = append(ent.Compounds, n.ID)
			if r.events != nil {
				r.events.Emit(event.CompoundActivated, event.Payload{"entityId": ent.ID, "compoundId": n.ID})
			}
		case !satisfied && active:
			ent.RemoveCompound(n.ID)
			if r.events != nil {
				r.events.Emit(event.CompoundDeactivated, event.Payload{"entityId": ent.ID, "compoundId": n.ID})
			}
		}
	}
}

// CalculateDerived evaluates every derived formula against the current
// entity context, clamping to [min,max]; a failed evaluation writes 0
// and is logged non-fatally (spec.md §7 FormulaEvaluationError). It is
// also the step the Runtime Tick Loop re-runs on its own each tick,
// independent of a full cascade pass.
func (r *Runner) CalculateDerived(ent *entity.Entity) {
	for _, n := range r.cfg.NodesByKind(node.KindDerived.String()) {
		d := n.Derived
		if d.Formula == "" {
			ent.Derived[n.ID] = 0
			continue
		}
		compiled, ok := r.cfg.Formula(d.Formula)
		if !ok {
			slog.Warn("derived formula not compiled", "node", n.ID)
			ent.Derived[n.ID] = 0
			continue
		}
		v, err := compiled.Eval(resolve.EvalContext(ent))
		if err != nil {
			slog.Warn("derived formula evaluation failed", "node", n.ID, "formula", d.Formula, "error", err)
			ent.Derived[n.ID] = 0
			continue
		}
		ent.Derived[n.ID] = clamp(v, d.Min, d.Max)
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

func applyOperation(cur *float64, op node.Operation, value float64) {
	switch op {
	case node.OpMultiply:
		*cur *= value
	case node.OpSet:
		*cur = value
	default: // OpAdd and unset
		*cur += value
	}
}

// scaledValue applies a relationship's scaling (flat or perPoint, with
// optional invert) to its configured value.
func scaledValue(cfg *config.Store, ent *entity.Entity, rel *node.Relationship) float64 {
	v := rel.Config.Value
	if rel.Config.Scaling != node.ScalingPerPoint {
		return v
	}
	srcID := rel.Config.PerPointSource
	if srcID == "" {
		srcID = rel.SourceID
	}
	sv, ok := resolve.RelationshipValue(cfg, ent, srcID)
	if !ok {
		return 0
	}
	if rel.Config.Invert {
		sv = nodeMax(cfg, srcID) - sv
	}
	return v * sv
}

func nodeMax(cfg *config.Store, id string) float64 {
	n, ok := cfg.Node(id)
	if !ok {
		return 0
	}
	switch n.Kind {
	case node.KindAttribute:
		return n.Attribute.Max
	case node.KindVariable:
		return n.Variable.Max
	default:
		return 0
	}
}

// relationshipApplies reports whether rel's source is "active" (for
// trait/modifier/compound sources — always true for continuous value
// sources like attribute/variable/context) and whether its gating
// conditions pass.
func relationshipApplies(cfg *config.Store, ent *entity.Entity, rel *node.Relationship) bool {
	if !sourceActive(cfg, ent, rel.SourceID) {
		return false
	}
	if len(rel.Conditions) == 0 {
		return true
	}
	return resolve.ConditionEval(&condition.Condition{Leaves: rel.Conditions}, cfg, ent)
}

func (r *Runner) relationshipApplies(ent *entity.Entity, rel *node.Relationship) bool {
	return relationshipApplies(r.cfg, ent, rel)
}

func sourceActive(cfg *config.Store, ent *entity.Entity, sourceID string) bool {
	n, ok := cfg.Node(sourceID)
	if !ok {
		return false
	}
	switch n.Kind {
	case node.KindTrait, node.KindModifier, node.KindCompound:
		return ent.IsActive(sourceID)
	default:
		return true
	}
}

func evalCompoundRequirements(c *node.CompoundPayload, cfg *config.Store, ent *entity.Entity) bool {
	if len(c.Requires) == 0 {
		return false
	}
	if c.RequirementLogic == node.RequireAny {
		for _, req := range c.Requires {
			if evalRequirement(req, cfg, ent) {
				return true
			}
		}
		return false
	}
	for _, req := range c.Requires {
		if !evalRequirement(req, cfg, ent) {
			return false
		}
	}
	return true
}

func evalRequirement(req node.Requirement, cfg *config.Store, ent *entity.Entity) bool {
	switch req.Kind {
	case node.RequirementID:
		return ent.IsActive(req.ID)
	case node.RequirementThreshold:
		src := resolve.ConditionSource{Cfg: cfg, Ent: ent}
		v, ok := src.NodeValue(req.ID)
		if !ok {
			return false
		}
		return compareThreshold(v, req.Operator, req.Value)
	case node.RequirementCondition:
		return resolve.ConditionEval(req.Condition, cfg, ent)
	default:
		return false
	}
}

func compareThreshold(v float64, op condition.Operator, target float64) bool {
	switch op {
	case condition.OpLT:
		return v < target
	case condition.OpLTE:
		return v <= target
	case condition.OpGT:
		return v > target
	case condition.OpGTE:
		return v >= target
	case condition.OpEQ:
		return v == target
	case condition.OpNEQ:
		return v != target
	default:
		return false
	}
}
