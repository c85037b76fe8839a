package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// BindingError reports a combo that is malformed or could not be registered.
type BindingError struct {
	Combo  string
	Reason string
	Err    error
}

func (e *BindingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("hotkey %q: %s", e.Combo, e.Reason)
	}
	return fmt.Sprintf("hotkey %q: %s: %v", e.Combo, e.Reason, e.Err)
}

func (e *BindingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Manager owns the current binding. Bind replaces it by unregistering the old
// combination before registering the new one, so two combinations are never
// live at once. Every binding gets a generation number; presses delivered for
// a superseded generation are dropped.
type Manager struct {
	mu     sync.Mutex
	reg    Registrar
	combo  string
	active bool
	gen    uint64
}

func NewManager(reg Registrar) *Manager {
	return &Manager{reg: reg}
}

func (m *Manager) Bind(combo string, onTrigger func()) error {
	keys, err := ParseCombo(combo)
	if err != nil {
		return &BindingError{Combo: combo, Reason: "malformed combo", Err: err}
	}
	normalized := strings.Join(keys, "+")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		m.reg.Unregister()
		m.active = false
		log.Printf("hotkey: released %s", m.combo)
	}
	m.combo = ""
	m.gen++
	gen := m.gen

	fire := func() {
		m.mu.Lock()
		current := m.active && m.gen == gen
		m.mu.Unlock()
		if !current {
			log.Printf("hotkey: dropping press for stale binding %s", normalized)
			return
		}
		log.Printf("hotkey: %s pressed", normalized)
		if onTrigger != nil {
			onTrigger()
		}
	}

	if err := m.reg.Register(keys, fire); err != nil {
		return &BindingError{Combo: combo, Reason: "registration failed", Err: err}
	}
	m.combo = normalized
	m.active = true
	log.Printf("hotkey: bound %s", normalized)
	return nil
}

// Unbind releases the current binding. It is a no-op when nothing is bound.
func (m *Manager) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.reg.Unregister()
	log.Printf("hotkey: released %s", m.combo)
	m.active = false
	m.combo = ""
	m.gen++
}

// Combo returns the bound combination in canonical form and whether it is live.
func (m *Manager) Combo() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.combo, m.active
}
