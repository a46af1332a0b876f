package condition

import "testing"

type fakeSource struct {
	values map[string]float64
	active map[string]bool
}

func (f fakeSource) NodeValue(id string) (float64, bool) {
	v, ok := f.values[id]
	return v, ok
}

func (f fakeSource) NodeActive(id string) bool {
	return f.active[id]
}

func TestEvaluateNilIsTrue(t *testing.T) {
	if !Evaluate(nil, fakeSource{}) {
		t.Fatalf("nil condition should evaluate true")
	}
}

func TestEvaluateLeafComparisons(t *testing.T) {
	src := fakeSource{values: map[string]float64{"hunger": 15}}
	cases := []struct {
		op   Operator
		val  float64
		want bool
	}{
		{OpLT, 20, true},
		{OpLT, 10, false},
		{OpLTE, 15, true},
		{OpGT, 10, true},
		{OpGTE, 15, true},
		{OpEQ, 15, true},
		{OpNEQ, 15, false},
	}
	for _, tc := range cases {
		c := &Condition{Type: TypeVariable, Target: "hunger", Operator: tc.op, Value: tc.val}
		if got := Evaluate(c, src); got != tc.want {
			t.Fatalf("op %s value %v: got %v want %v", tc.op, tc.val, got, tc.want)
		}
	}
}

func TestEvaluateActiveInactive(t *testing.T) {
	src := fakeSource{active: map[string]bool{"grumpy": true}}
	if !Evaluate(&Condition{Type: TypeTrait, Target: "grumpy", Operator: OpActive}, src) {
		t.Fatalf("expected grumpy active")
	}
	if Evaluate(&Condition{Type: TypeTrait, Target: "grumpy", Operator: OpInactive}, src) {
		t.Fatalf("expected grumpy not inactive")
	}
	if !Evaluate(&Condition{Type: TypeTrait, Target: "sleepy", Operator: OpInactive}, src) {
		t.Fatalf("expected sleepy inactive")
	}
}

func TestEvaluateExplicitTree(t *testing.T) {
	src := fakeSource{values: map[string]float64{"a": 5, "b": 10}}
	c := &Condition{All: []*Condition{
		{Type: TypeVariable, Target: "a", Operator: OpGT, Value: 1},
		{Type: TypeVariable, Target: "b", Operator: OpGT, Value: 1},
	}}
	if !Evaluate(c, src) {
		t.Fatalf("expected all-true tree to pass")
	}
	c2 := &Condition{Not: c}
	if Evaluate(c2, src) {
		t.Fatalf("expected negated tree to fail")
	}
}

func TestEvaluateOrderedListConnectors(t *testing.T) {
	src := fakeSource{values: map[string]float64{"a": 1, "b": 1, "c": 0}}
	// a>0 AND b>0 OR c>0  — default top-level AND, explicit OR on c.
	cond := &Condition{Leaves: []*Condition{
		{Type: TypeVariable, Target: "a", Operator: OpGT, Value: 0},
		{Type: TypeVariable, Target: "b", Operator: OpGT, Value: 0, Connector: ConnectorAND},
		{Type: TypeVariable, Target: "c", Operator: OpGT, Value: 0, Connector: ConnectorOR},
	}}
	if !Evaluate(cond, src) {
		t.Fatalf("expected (a&b)|c to be true even with c false, since a&b true")
	}
}

func TestEvaluateLegacyLogic(t *testing.T) {
	src := fakeSource{values: map[string]float64{"a": 0, "b": 1}}
	anyCond := &Condition{
		Logic: "any",
		Leaves: []*Condition{
			{Type: TypeVariable, Target: "a", Operator: OpGT, Value: 0},
			{Type: TypeVariable, Target: "b", Operator: OpGT, Value: 0},
		},
	}
	if !Evaluate(anyCond, src) {
		t.Fatalf("expected legacy any-logic to short circuit true")
	}
	allCond := &Condition{
		Logic:  "all",
		Leaves: anyCond.Leaves,
	}
	if Evaluate(allCond, src) {
		t.Fatalf("expected legacy all-logic to fail since a is 0")
	}
}

func TestEvaluateNestedGroup(t *testing.T) {
	src := fakeSource{values: map[string]float64{"a": 0, "b": 1, "c": 1}}
	group := &Condition{Type: TypeGroup, Leaves: []*Condition{
		{Type: TypeVariable, Target: "a", Operator: OpGT, Value: 0},
		{Type: TypeVariable, Target: "b", Operator: OpGT, Value: 0},
	}}
	outer := &Condition{Leaves: []*Condition{
		group,
		{Type: TypeVariable, Target: "c", Operator: OpGT, Value: 0},
	}}
	// group (a>0 OR b>0) = true, AND c>0 = true => true
	if !Evaluate(outer, src) {
		t.Fatalf("expected group-in-list evaluation to be true")
	}
}
