package compiler

import "fmt"

// ---------------------------------------------------------------------------
// LocalSlotManager: lexical scopes for locals and parameters
// ---------------------------------------------------------------------------

// LocalSlotManager assigns local variable slots within one function.
// Slots increase monotonically and are never reused, even after the scope
// that declared them has closed.
type LocalSlotManager struct {
	scopes []map[string]int
	next   int
}

// NewLocalSlotManager returns a manager with a single open scope.
func NewLocalSlotManager() *LocalSlotManager {
	return &LocalSlotManager{scopes: []map[string]int{{}}}
}

// PushScope opens a nested scope.
func (m *LocalSlotManager) PushScope() {
	m.scopes = append(m.scopes, map[string]int{})
}

// PopScope closes the innermost scope. The outermost scope is never popped.
func (m *LocalSlotManager) PopScope() {
	if len(m.scopes) > 1 {
		m.scopes = m.scopes[:len(m.scopes)-1]
	}
}

// Depth returns the number of open scopes.
func (m *LocalSlotManager) Depth() int {
	return len(m.scopes)
}

// Declare binds name in the innermost scope and returns its new slot.
func (m *LocalSlotManager) Declare(name string) (int, error) {
	scope := m.scopes[len(m.scopes)-1]
	if _, ok := scope[name]; ok {
		return 0, fmt.Errorf("%s already declared in this scope", name)
	}
	slot := m.next
	m.next++
	scope[name] = slot
	return slot, nil
}

// Reserve hands out a slot that no name resolves to.
func (m *LocalSlotManager) Reserve() int {
	slot := m.next
	m.next++
	return slot
}

// Resolve returns the slot of the nearest enclosing binding of name.
func (m *LocalSlotManager) Resolve(name string) (int, bool) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if slot, ok := m.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// NumSlots returns how many slots have been handed out.
func (m *LocalSlotManager) NumSlots() int {
	return m.next
}
