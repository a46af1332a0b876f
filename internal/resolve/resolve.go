// Package resolve implements the two node-value lookups spec.md §9
// flags as a design decision: the source's generator code holds two
// conflicting getNodeValue implementations, and both are needed under
// distinct names.
//
//   - ConditionSource.NodeValue implements the runtime/threshold-side
//     resolution: attribute, then variable.value, then derived, falling
//     through in that order. Used by condition.Evaluate everywhere a
//     Condition tree is checked (eligibility, triggers, requirements).
//   - RelationshipValue implements the generator-side resolution used
//     by calculateRelationshipValue: a type-dispatched lookup of
//     attribute, variable.value, or context, with no derived fallback.
//     Used when folding relationship values (weight influences, rate
//     modifiers, value modifiers, perPoint scaling).
package resolve

import (
	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/node"
)

// ConditionSource adapts an Entity+Store pair to condition.ValueSource
// using the attribute → variable.value → derived fallback order.
type ConditionSource struct {
	Cfg *config.Store
	Ent *entity.Entity
}

func (c ConditionSource) NodeValue(id string) (float64, bool) {
	if v, ok := c.Ent.Attributes[id]; ok {
		return v, true
	}
	if vs, ok := c.Ent.Variables[id]; ok {
		return vs.Value, true
	}
	if v, ok := c.Ent.Derived[id]; ok {
		return v, true
	}
	return 0, false
}

func (c ConditionSource) NodeActive(id string) bool {
	return c.Ent.IsActive(id)
}

// RelationshipValue resolves a relationship source node's current value
// using the type-dispatched generator-side order: attribute, then
// variable.value, then context (coerced to float64 if numeric).
func RelationshipValue(cfg *config.Store, ent *entity.Entity, id string) (float64, bool) {
	n, ok := cfg.Node(id)
	if !ok {
		return 0, false
	}
	switch n.Kind {
	case node.KindAttribute:
		v, ok := ent.Attributes[id]
		return v, ok
	case node.KindVariable:
		vs, ok := ent.Variables[id]
		if !ok {
			return 0, false
		}
		return vs.Value, true
	case node.KindContext:
		v, ok := ent.Contexts[id]
		if !ok {
			return 0, false
		}
		f, ok := toFloat(v)
		return f, ok
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// EvalContext builds the {...attributes, ...variableValues, ...contexts,
// ...derived} context map calculateDerived evaluates formulas against (spec.md
// §4.4 step 3).
func EvalContext(ent *entity.Entity) map[string]float64 {
	ctx := make(map[string]float64, len(ent.Attributes)+len(ent.Variables)+len(ent.Contexts))
	for id, v := range ent.Attributes {
		ctx[id] = v
	}
	for id, vs := range ent.Variables {
		ctx[id] = vs.Value
	}
	for id, v := range ent.Contexts {
		if f, ok := toFloat(v); ok {
			ctx[id] = f
		}
	}
	for id, v := range ent.Derived {
		ctx[id] = v
	}
	return ctx
}

// ConditionEval is a convenience wrapping condition.Evaluate with a
// ConditionSource built from cfg/ent.
func ConditionEval(c *condition.Condition, cfg *config.Store, ent *entity.Entity) bool {
	return condition.Evaluate(c, ConditionSource{Cfg: cfg, Ent: ent})
}
