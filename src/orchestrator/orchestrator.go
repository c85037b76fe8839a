// Package orchestrator runs one capture -> query -> speak request at a time on
// a background worker and reports progress through the mailbox.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"screen-reader-llm/src/history"
	"screen-reader-llm/src/logutil"
	"screen-reader-llm/src/mailbox"
	"screen-reader-llm/src/worker"
)

// AnalysisPrompt is sent with every captured screen.
const AnalysisPrompt = "Analyze this screen content and describe what you see, or answer any obvious question presented."

// imagePlaceholder is recorded as the user turn when the prompt is empty.
const imagePlaceholder = "Image sent"

const defaultDeadline = 45 * time.Second

// Status bar texts.
const (
	StatusProcessing   = "Processing..."
	StatusReady        = "Ready"
	StatusCaptureError = "Error capturing screen"
	StatusQueryError   = "Error querying AI"
	StatusInternal     = "Error processing request"
)

type Capturer interface {
	CaptureScreen() ([]byte, error)
}

type Querier interface {
	Query(ctx context.Context, prompt string, image []byte, hist []history.Turn) (string, error)
}

// Speaker must not block for the length of playback.
type Speaker interface {
	Speak(text string)
}

type Clipboard interface {
	Write(text string) error
}

// Phase is a step of a single request.
type Phase int

const (
	PhaseTriggered Phase = iota
	PhaseCapturing
	PhaseQuerying
	PhaseSpeaking
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseTriggered:
		return "triggered"
	case PhaseCapturing:
		return "capturing"
	case PhaseQuerying:
		return "querying"
	case PhaseSpeaking:
		return "speaking"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return "capture failed: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }

// QueryError carries a display-safe message from the AI backend.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

var (
	errEmptyReply = errors.New("model returned an empty reply")
	errNoQuerier  = errors.New("no AI backend configured")
)

type Options struct {
	Capturer  Capturer
	Querier   Querier   // may be set later with SetQuerier
	Speaker   Speaker   // optional
	Clipboard Clipboard // optional; replies are copied when set
	History   *history.Store
	Mailbox   *mailbox.Mailbox

	// Context bounds every query. It is cancelled only at process shutdown;
	// requests are never cancelled mid-flight otherwise.
	Context        context.Context
	Deadline       time.Duration
	Prompt         string
	IncludeContext bool
	OnPhase        func(id string, p Phase)
}

type Orchestrator struct {
	busy atomic.Bool
	pool *worker.Pool

	capturer  Capturer
	speaker   Speaker
	clipboard Clipboard
	store     *history.Store
	box       *mailbox.Mailbox
	ctx       context.Context
	deadline  time.Duration
	prompt    string
	onPhase   func(id string, p Phase)

	mu             sync.Mutex
	querier        Querier
	includeContext bool
	running        chan struct{}
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Capturer == nil {
		return nil, errors.New("Capturer is required")
	}
	if opts.History == nil || opts.Mailbox == nil {
		return nil, errors.New("History and Mailbox are required")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	prompt := opts.Prompt
	if prompt == "" {
		prompt = AnalysisPrompt
	}
	return &Orchestrator{
		pool:           worker.New(1),
		capturer:       opts.Capturer,
		speaker:        opts.Speaker,
		clipboard:      opts.Clipboard,
		store:          opts.History,
		box:            opts.Mailbox,
		ctx:            ctx,
		deadline:       deadline,
		prompt:         prompt,
		onPhase:        opts.OnPhase,
		querier:        opts.Querier,
		includeContext: opts.IncludeContext,
	}, nil
}

// Trigger starts a request unless one is already in flight. Dropped triggers
// return false and leave no trace in the mailbox.
func (o *Orchestrator) Trigger() bool {
	if !o.busy.CompareAndSwap(false, true) {
		log.Printf("orchestrator: trigger dropped, request in flight")
		return false
	}

	id := uuid.NewString()
	done := make(chan struct{})
	o.mu.Lock()
	o.running = done
	o.mu.Unlock()

	o.phase(id, PhaseTriggered)
	o.box.Log("System: Hotkey triggered! Capturing screen...")
	o.box.Status(StatusProcessing)

	// The job must run even if the root context is already done, so that the
	// guard is released on the worker.
	if !o.pool.Submit(context.WithoutCancel(o.ctx), func(context.Context) { o.run(o.ctx, id, done) }) {
		log.Printf("orchestrator[%s]: worker unavailable", id)
		o.box.Log("Error: request could not be started")
		o.box.Status(StatusInternal)
		o.phase(id, PhaseFailed)
		o.release(done)
		return false
	}
	return true
}

func (o *Orchestrator) release(done chan struct{}) {
	o.busy.Store(false)
	close(done)
}

// Busy reports whether a request is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Wait blocks until the current request, if any, has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.running
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close waits for the in-flight request and stops the worker.
func (o *Orchestrator) Close() {
	o.pool.Close()
}

func (o *Orchestrator) SetIncludeContext(on bool) {
	o.mu.Lock()
	o.includeContext = on
	o.mu.Unlock()
}

func (o *Orchestrator) IncludeContext() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.includeContext
}

// SetQuerier swaps the AI backend for subsequent requests.
func (o *Orchestrator) SetQuerier(q Querier) {
	if q == nil {
		return
	}
	o.mu.Lock()
	o.querier = q
	o.mu.Unlock()
}

func (o *Orchestrator) phase(id string, p Phase) {
	log.Printf("orchestrator[%s]: %s", id, p)
	if o.onPhase != nil {
		o.onPhase(id, p)
	}
}

func (o *Orchestrator) run(ctx context.Context, id string, done chan struct{}) {
	defer o.release(done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in orchestrator[%s]: %v", id, r)
			o.box.Log("Error: internal error: %v", r)
			o.box.Status(StatusInternal)
			o.phase(id, PhaseFailed)
		}
	}()

	o.mu.Lock()
	querier := o.querier
	includeContext := o.includeContext
	o.mu.Unlock()

	start := time.Now()
	o.phase(id, PhaseCapturing)
	image, err := o.capturer.CaptureScreen()
	if err != nil {
		cerr := &CaptureError{Err: err}
		log.Printf("orchestrator[%s]: %v", id, cerr)
		o.box.Log("Error: %v", cerr)
		o.box.Status(StatusCaptureError)
		o.phase(id, PhaseFailed)
		return
	}
	log.Printf("orchestrator[%s]: captured %d bytes in %v", id, len(image), time.Since(start))

	o.phase(id, PhaseQuerying)
	o.box.Log("System: Sending to AI...")
	var hist []history.Turn
	if includeContext {
		hist = o.store.Snapshot()
	}

	reply, err := o.query(ctx, querier, image, hist)
	if err != nil {
		qerr := &QueryError{Err: err}
		log.Printf("orchestrator[%s]: query failed: %v", id, qerr)
		o.box.Log("Error: %v", qerr)
		o.box.Status(StatusQueryError)
		o.phase(id, PhaseFailed)
		return
	}
	log.Printf("orchestrator[%s]: reply %q in %v", id, logutil.Sanitize(reply, 120), time.Since(start))

	if includeContext {
		userText := o.prompt
		if strings.TrimSpace(userText) == "" {
			userText = imagePlaceholder
		}
		o.store.Append(userText, reply)
	}

	o.box.Log("AI: %s", reply)
	if o.clipboard != nil {
		if err := o.clipboard.Write(reply); err != nil {
			log.Printf("orchestrator[%s]: clipboard copy failed: %v", id, err)
			o.box.Log("Warning: could not copy reply to clipboard: %v", err)
		}
	}

	o.phase(id, PhaseSpeaking)
	if o.speaker != nil {
		go o.speak(id, reply)
	}
	o.box.Status(StatusReady)
	o.phase(id, PhaseDone)
}

func (o *Orchestrator) query(ctx context.Context, q Querier, image []byte, hist []history.Turn) (string, error) {
	if q == nil {
		return "", errNoQuerier
	}
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()
	reply, err := q.Query(ctx, o.prompt, image, hist)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

func (o *Orchestrator) speak(id, text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in speaker[%s]: %v", id, r)
		}
	}()
	o.speaker.Speak(text)
}
