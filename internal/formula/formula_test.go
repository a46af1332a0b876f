package formula

import "testing"

func evalOK(t *testing.T, src string, ctx map[string]float64) float64 {
	t.Helper()
	c, err := Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	v, err := c.Eval(ctx)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestArithmetic(t *testing.T) {
	if v := evalOK(t, "2 + 3 * 4", nil); v != 14 {
		t.Fatalf("got %v want 14", v)
	}
	if v := evalOK(t, "(2 + 3) * 4", nil); v != 20 {
		t.Fatalf("got %v want 20", v)
	}
	if v := evalOK(t, "-5 + 2", nil); v != -3 {
		t.Fatalf("got %v want -3", v)
	}
}

func TestIdentifiersAndOrder(t *testing.T) {
	c, err := Compile("strength + agility - strength")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ids := c.Identifiers()
	if len(ids) != 2 || ids[0] != "strength" || ids[1] != "agility" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
	v, err := c.Eval(map[string]float64{"strength": 10, "agility": 5})
	if err != nil || v != 5 {
		t.Fatalf("got %v err %v want 5", v, err)
	}
}

func TestTernary(t *testing.T) {
	v := evalOK(t, "hp <= 20 ? 2 : 1", map[string]float64{"hp": 15})
	if v != 2 {
		t.Fatalf("got %v want 2", v)
	}
	v = evalOK(t, "hp <= 20 ? 2 : 1", map[string]float64{"hp": 50})
	if v != 1 {
		t.Fatalf("got %v want 1", v)
	}
}

func TestDivisionByZeroErrors(t *testing.T) {
	c, err := Compile("1 / x")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := c.Eval(map[string]float64{"x": 0}); err == nil {
		t.Fatalf("expected division by zero error")
	}
}

func TestUnknownIdentifierErrors(t *testing.T) {
	c, err := Compile("missing + 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := c.Eval(map[string]float64{}); err == nil {
		t.Fatalf("expected unknown identifier error")
	}
}
