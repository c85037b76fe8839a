// Package hotkey binds a single global key combination and forwards presses
// to a callback. It performs no business logic of its own.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Registrar is the OS-level hook. At most one combination is registered at a
// time; Register fails if one is already live.
type Registrar interface {
	Register(keys []string, fire func()) error
	Unregister()
}

var errAlreadyRegistered = errors.New("a hotkey is already registered")

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// HookRegistrar implements Registrar on top of one long-lived gohook event
// stream. Register and Unregister only swap the key matcher; the stream
// itself keeps running until Close.
type HookRegistrar struct {
	mu      sync.Mutex
	start   func() chan gohook.Event
	end     func()
	started bool
	states  []keyState
	fire    func()
}

func NewHookRegistrar() *HookRegistrar {
	return &HookRegistrar{start: gohook.Start, end: gohook.End}
}

func (r *HookRegistrar) Register(keys []string, fire func()) error {
	states := make([]keyState, 0, len(keys))
	for _, k := range keys {
		codes := keyRawcodes(k)
		if len(codes) == 0 {
			return fmt.Errorf("cannot map key %q to rawcodes", k)
		}
		states = append(states, keyState{name: k, rawcodes: codes})
	}
	if len(states) == 0 {
		return errors.New("no keys to register")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states != nil {
		return errAlreadyRegistered
	}
	if !r.started {
		evChan := r.start()
		if evChan == nil {
			return errors.New("gohook.Start() returned nil channel")
		}
		r.started = true
		go r.loop(evChan)
	}
	r.states = states
	r.fire = fire
	log.Printf("hotkey: registered %v", keys)
	return nil
}

func (r *HookRegistrar) Unregister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states != nil {
		log.Printf("hotkey: unregistered")
	}
	r.states = nil
	r.fire = nil
}

// Close stops the hook stream.
func (r *HookRegistrar) Close() {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.states = nil
	r.fire = nil
	r.mu.Unlock()
	if started && r.end != nil {
		r.end()
	}
}

func (r *HookRegistrar) loop(evChan chan gohook.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("PANIC in hotkey goroutine: %v", rec)
		}
	}()
	for ev := range evChan {
		r.handle(ev)
	}
	log.Printf("hotkey: event channel closed")
}

// handle updates key state for one event and fires the callback, outside the
// lock, when every key of the combination is down.
func (r *HookRegistrar) handle(ev gohook.Event) {
	if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp {
		return
	}

	r.mu.Lock()
	if r.states == nil {
		r.mu.Unlock()
		return
	}
	down := ev.Kind == gohook.KeyDown
	for i := range r.states {
		for _, code := range r.states[i].rawcodes {
			if ev.Rawcode == code {
				r.states[i].pressed = down
				break
			}
		}
	}
	if !down {
		r.mu.Unlock()
		return
	}
	for i := range r.states {
		if !r.states[i].pressed {
			r.mu.Unlock()
			return
		}
	}
	for i := range r.states {
		r.states[i].pressed = false
	}
	fire := r.fire
	r.mu.Unlock()

	if fire != nil {
		fire()
	}
}
