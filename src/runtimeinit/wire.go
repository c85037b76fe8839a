package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"time"

	"screen-reader-llm/src/app"
	"screen-reader-llm/src/clipboard"
	"screen-reader-llm/src/config"
	"screen-reader-llm/src/history"
	"screen-reader-llm/src/hotkey"
	"screen-reader-llm/src/mailbox"
	"screen-reader-llm/src/orchestrator"
	"screen-reader-llm/src/screenshot"
	"screen-reader-llm/src/speech"
)

// Components is the assembled resident app.
type Components struct {
	Controller   *app.Controller
	Orchestrator *orchestrator.Orchestrator
	Mailbox      *mailbox.Mailbox
	History      *history.Store

	closers []func()
}

// Close releases the hotkey, waits for the in-flight request and stops
// background helpers, in that order.
func (c *Components) Close() {
	for _, fn := range c.closers {
		fn()
	}
	c.closers = nil
}

// Collaborators lets callers replace the OS-facing pieces.
type Collaborators struct {
	Capturer  orchestrator.Capturer
	Registrar hotkey.Registrar
	Speaker   orchestrator.Speaker
}

// Build wires the controller for cfg. Zero-valued collaborators get the
// real screen, hook and speech implementations.
func Build(ctx context.Context, cfg *config.Config, collab Collaborators) (*Components, error) {
	box := mailbox.New()
	store := history.New()
	var closers []func()

	capturer := collab.Capturer
	if capturer == nil {
		capturer = screenshot.Screen{}
	}

	registrar := collab.Registrar
	if registrar == nil {
		hook := hotkey.NewHookRegistrar()
		registrar = hook
		closers = append(closers, hook.Close)
	}

	speaker := collab.Speaker
	if speaker == nil {
		speaker = newSpeaker(cfg)
		if s, ok := speaker.(*speech.Speaker); ok {
			closers = append(closers, s.Close)
		}
	}

	var cb orchestrator.Clipboard
	if cfg.CopyToClipboard {
		cb = clipboard.System{}
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Capturer:       capturer,
		Speaker:        speaker,
		Clipboard:      cb,
		History:        store,
		Mailbox:        box,
		Context:        ctx,
		Deadline:       time.Duration(cfg.RequestDeadlineSec) * time.Second,
		IncludeContext: cfg.IncludeContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctl, err := app.New(app.Options{
		Hotkey:       hotkey.NewManager(registrar),
		Orchestrator: orch,
		History:      store,
		Mailbox:      box,
		NewQuerier: func(apiKey, model string) (orchestrator.Querier, error) {
			client, err := NewLLMClient(cfg, apiKey, model)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	})
	if err != nil {
		orch.Close()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	// The controller closes the orchestrator; it must go first so the hook
	// and speaker outlive the last request.
	closers = append([]func(){ctl.Close}, closers...)
	return &Components{
		Controller:   ctl,
		Orchestrator: orch,
		Mailbox:      box,
		History:      store,
		closers:      closers,
	}, nil
}

func newSpeaker(cfg *config.Config) orchestrator.Speaker {
	if !cfg.SpeechEnabled {
		return speech.Nop{}
	}
	s, err := speech.New(cfg.SpeechCommand)
	if err != nil {
		log.Printf("speech disabled: %v", err)
		return speech.Nop{}
	}
	return s
}
