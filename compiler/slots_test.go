package compiler

import "testing"

func TestSlotsShadowing(t *testing.T) {
	m := NewLocalSlotManager()
	outer, err := m.Declare("x")
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}

	m.PushScope()
	inner, err := m.Declare("x")
	if err != nil {
		t.Fatalf("shadowing Declare: %v", err)
	}
	if inner == outer {
		t.Fatalf("inner x reused slot %d", outer)
	}
	if got, _ := m.Resolve("x"); got != inner {
		t.Errorf("inside scope x = %d, want %d", got, inner)
	}
	m.PopScope()

	if got, _ := m.Resolve("x"); got != outer {
		t.Errorf("after scope x = %d, want %d", got, outer)
	}
}

func TestSlotsNeverReused(t *testing.T) {
	m := NewLocalSlotManager()
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		m.PushScope()
		slot, err := m.Declare("tmp")
		if err != nil {
			t.Fatalf("Declare: %v", err)
		}
		if seen[slot] {
			t.Errorf("slot %d handed out twice", slot)
		}
		seen[slot] = true
		m.PopScope()
	}
	if m.NumSlots() != 3 {
		t.Errorf("NumSlots = %d, want 3", m.NumSlots())
	}
}

func TestSlotsDuplicateAndUndeclared(t *testing.T) {
	m := NewLocalSlotManager()
	if _, err := m.Declare("a"); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if _, err := m.Declare("a"); err == nil {
		t.Error("duplicate declaration in the same scope should fail")
	}
	if _, ok := m.Resolve("b"); ok {
		t.Error("undeclared name resolved")
	}

	m.PushScope()
	m.Declare("b")
	m.PopScope()
	if _, ok := m.Resolve("b"); ok {
		t.Error("name from a closed scope still resolves")
	}
}

func TestSlotsOutermostScopeStays(t *testing.T) {
	m := NewLocalSlotManager()
	m.Declare("p")
	m.PopScope()
	if m.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", m.Depth())
	}
	if _, ok := m.Resolve("p"); !ok {
		t.Error("parameter scope was popped")
	}
}

func TestSlotsReserveIsUnnamed(t *testing.T) {
	m := NewLocalSlotManager()
	x, _ := m.Declare("x")
	tmp := m.Reserve()
	y, _ := m.Declare("y")
	if tmp != x+1 || y != tmp+1 {
		t.Errorf("slots x=%d tmp=%d y=%d, want consecutive", x, tmp, y)
	}
	if _, ok := m.Resolve(""); ok {
		t.Errorf("reserved slot resolved by name")
	}
	if m.NumSlots() != 3 {
		t.Errorf("NumSlots = %d, want 3", m.NumSlots())
	}
}
