// Package synerr defines the engine's error taxonomy: ConfigError,
// NotFound, CapacityExceeded, NoEligibleTraits, and FormulaEvaluationError.
// InvariantViolation conditions panic directly at the call site instead —
// they indicate a bug in the indexing layer, not a recoverable condition.
package synerr

import "fmt"

// ConfigError reports a problem found while loading a configuration
// document: an unknown node kind, a missing relationship referent, or a
// duplicate id. Fatal for the loadConfig call that raised it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// NotFound reports that an entity, preset, pool, or node id was absent
// at call time. Most engine APIs prefer a falsy return over this error;
// it exists for the handful of operations that must distinguish "absent"
// from "present but zero".
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CapacityExceeded reports that a store or pool has reached its
// configured maximum. The store emits a storageLimitReached event and
// also returns this error.
type CapacityExceeded struct {
	Resource string
	Limit    int
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("%s capacity exceeded: limit %d", e.Resource, e.Limit)
}

// NoEligibleTraits reports that a weighted selection pool had zero total
// weight. Returned as the error value of a selection call; it is never
// raised as a panic.
type NoEligibleTraits struct {
	LayerID string
}

func (e *NoEligibleTraits) Error() string {
	return fmt.Sprintf("no eligible traits in layer %s", e.LayerID)
}

// FormulaEvaluationError reports that a derived formula failed to
// evaluate. The caller is expected to substitute 0 and log; this type
// exists so the substitution site can report why.
type FormulaEvaluationError struct {
	NodeID string
	Err    error
}

func (e *FormulaEvaluationError) Error() string {
	return fmt.Sprintf("formula evaluation failed for %s: %v", e.NodeID, e.Err)
}

func (e *FormulaEvaluationError) Unwrap() error { return e.Err }
