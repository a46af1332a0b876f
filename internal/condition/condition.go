// Package condition evaluates the logical trees that gate trait
// eligibility, modifier triggers, compound requirements, and relationship
// applicability. A Condition is itself a tagged node: a leaf carries
// Type/Target/Operator/Value, a composite carries All/Any/Not, and an
// ordered list carries Leaves with per-leaf Connector — following the
// same "one struct, several populated fields" shape as node.Node, scaled
// down to three mutually exclusive composite forms.
package condition

// Connector joins adjacent leaves in an ordered condition list.
type Connector string

const (
	ConnectorAND Connector = "AND"
	ConnectorOR  Connector = "OR"
)

// Type discriminates what a leaf condition looks up on the entity.
type Type string

const (
	TypeAttribute Type = "attribute"
	TypeVariable  Type = "variable"
	TypeContext   Type = "context"
	TypeTrait     Type = "trait"
	TypeModifier  Type = "modifier"
	TypeCompound  Type = "compound"
	TypeGroup     Type = "group"
)

// Operator is a comparison or membership test applied to a leaf's value.
type Operator string

const (
	OpLT       Operator = "<"
	OpLTE      Operator = "<="
	OpGT       Operator = ">"
	OpGTE      Operator = ">="
	OpEQ       Operator = "=="
	OpNEQ      Operator = "!="
	OpActive   Operator = "active"
	OpInactive Operator = "inactive"
)

// Condition is either a leaf (Type/Target/Operator/Value set, Leaves/All/
// Any/Not all nil), an explicit boolean tree (All, Any, or Not set), an
// ordered list with per-leaf connectors (Leaves set), or — via legacy
// Logic — an ordered list whose fold operator is uniform across leaves.
// A Type: "group" leaf is itself a composite: its Leaves fold with OR by
// default and the result participates as one boolean in the parent fold.
type Condition struct {
	// Leaf fields.
	Type     Type
	Target   string
	Operator Operator
	Value    float64

	// Used when this Condition is itself an element of a parent's
	// ordered Leaves list.
	Connector Connector

	// Explicit boolean tree (priority 1).
	All []*Condition
	Any []*Condition
	Not *Condition

	// Ordered list with per-leaf connectors (priority 2), also used as
	// the children of a Type:"group" node.
	Leaves []*Condition

	// Legacy uniform fold operator (priority 3): "all" or "any".
	Logic string
}

// IsLeaf reports whether c carries no composite structure at all.
func (c *Condition) IsLeaf() bool {
	return c != nil && len(c.All) == 0 && len(c.Any) == 0 && c.Not == nil && len(c.Leaves) == 0
}
