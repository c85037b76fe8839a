// Package app composes the hotkey manager, orchestrator, history and mailbox,
// and owns the listening lifecycle. It is the only caller of Bind and Unbind.
package app

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"screen-reader-llm/src/history"
	"screen-reader-llm/src/hotkey"
	"screen-reader-llm/src/mailbox"
	"screen-reader-llm/src/orchestrator"
)

var (
	ErrNotListening     = errors.New("not listening")
	ErrAlreadyListening = errors.New("already listening")
	ErrBusy             = errors.New("busy, please retry")
)

// Status bar texts.
const (
	StatusListening = "Listening for hotkey..."
	StatusStopped   = "Stopped."
)

// ConfigError reports a missing or invalid setting passed to StartListening.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type SessionState int

const (
	StateIdle SessionState = iota
	StateListening
	StateProcessing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	}
	return "unknown"
}

// QuerierFactory builds the AI backend from the user-supplied key and model.
type QuerierFactory func(apiKey, model string) (orchestrator.Querier, error)

// Orchestrator is the part of *orchestrator.Orchestrator the controller drives.
type Orchestrator interface {
	Trigger() bool
	Busy() bool
	SetQuerier(q orchestrator.Querier)
	SetIncludeContext(on bool)
	Close()
}

type Options struct {
	Hotkey       *hotkey.Manager
	Orchestrator Orchestrator
	History      *history.Store
	Mailbox      *mailbox.Mailbox
	NewQuerier   QuerierFactory
}

type Controller struct {
	hk         *hotkey.Manager
	orch       Orchestrator
	store      *history.Store
	box        *mailbox.Mailbox
	newQuerier QuerierFactory

	mu        sync.Mutex
	listening bool
	model     string
}

func New(opts Options) (*Controller, error) {
	if opts.Hotkey == nil || opts.Orchestrator == nil {
		return nil, errors.New("Hotkey and Orchestrator are required")
	}
	if opts.History == nil || opts.Mailbox == nil {
		return nil, errors.New("History and Mailbox are required")
	}
	if opts.NewQuerier == nil {
		return nil, errors.New("NewQuerier is required")
	}
	return &Controller{
		hk:         opts.Hotkey,
		orch:       opts.Orchestrator,
		store:      opts.History,
		box:        opts.Mailbox,
		newQuerier: opts.NewQuerier,
	}, nil
}

// StartListening validates the settings, installs the AI backend and binds
// the hotkey. On any error the controller stays idle.
func (c *Controller) StartListening(apiKey, model, combo string) error {
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)
	if apiKey == "" {
		return &ConfigError{Field: "api key", Reason: "please enter an API key"}
	}
	if model == "" {
		return &ConfigError{Field: "model", Reason: "please select a model"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening {
		return ErrAlreadyListening
	}

	q, err := c.newQuerier(apiKey, model)
	if err != nil {
		return &ConfigError{Field: "model", Reason: "cannot create AI client", Err: err}
	}
	if err := c.hk.Bind(combo, c.onHotkey); err != nil {
		return err
	}
	c.orch.SetQuerier(q)
	c.listening = true
	c.model = model

	bound, _ := c.hk.Combo()
	log.Printf("app: listening on %s with model %s", bound, model)
	c.box.Log("System: Started listening.")
	c.box.Status(StatusListening)
	return nil
}

// StopListening releases the hotkey. An in-flight request runs to completion.
func (c *Controller) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listening {
		return
	}
	c.hk.Unbind()
	c.listening = false
	log.Printf("app: stopped listening")
	c.box.Log("System: Stopped listening.")
	c.box.Status(StatusStopped)
}

// Rebind replaces the hotkey while listening. A malformed combo leaves the
// current binding live. If the new combo fails to register, the old one is
// already released and the controller ends up idle.
func (c *Controller) Rebind(combo string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listening {
		return ErrNotListening
	}
	if err := c.hk.Bind(combo, c.onHotkey); err != nil {
		if bound, active := c.hk.Combo(); active {
			log.Printf("app: rebind rejected, keeping %s: %v", bound, err)
			c.box.Log("Error: %v", err)
			return err
		}
		c.hk.Unbind()
		c.listening = false
		log.Printf("app: rebind failed, now idle: %v", err)
		c.box.Log("Error: %v", err)
		c.box.Status(StatusStopped)
		return err
	}
	bound, _ := c.hk.Combo()
	c.box.Log("System: Hotkey updated to %s", bound)
	return nil
}

// ClearHistory empties the conversation. A request already in flight may
// still append its own turns afterwards.
func (c *Controller) ClearHistory() {
	c.store.Clear()
	c.box.Log("System: History cleared.")
}

func (c *Controller) SetIncludeContext(on bool) {
	c.orch.SetIncludeContext(on)
	log.Printf("app: include context = %t", on)
}

func (c *Controller) State() SessionState {
	c.mu.Lock()
	listening := c.listening
	c.mu.Unlock()
	switch {
	case !listening:
		return StateIdle
	case c.orch.Busy():
		return StateProcessing
	default:
		return StateListening
	}
}

// Trigger starts a request as if the hotkey had been pressed.
func (c *Controller) Trigger() error {
	c.mu.Lock()
	listening := c.listening
	c.mu.Unlock()
	if !listening {
		return ErrNotListening
	}
	if !c.orch.Trigger() {
		return ErrBusy
	}
	return nil
}

// Combo returns the bound hotkey, or "" when idle.
func (c *Controller) Combo() string {
	combo, ok := c.hk.Combo()
	if !ok {
		return ""
	}
	return combo
}

func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *Controller) Snapshot() []history.Turn { return c.store.Snapshot() }

// Close unbinds the hotkey and waits for the in-flight request.
func (c *Controller) Close() {
	c.mu.Lock()
	c.hk.Unbind()
	c.listening = false
	c.mu.Unlock()
	c.orch.Close()
}

func (c *Controller) onHotkey() {
	c.orch.Trigger()
}
