// Package speech reads replies aloud through the platform's text-to-speech
// command. Speak never blocks the caller: utterances are queued and played
// one at a time on a dedicated goroutine, and failures are only logged.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	queueSize = 4
	maxChars  = 2000
)

// Runner speaks one utterance and returns when playback ends.
type Runner func(ctx context.Context, text string) error

type Speaker struct {
	mu     sync.Mutex
	closed bool
	queue  chan string
	run    Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a speaker backed by command, or by the platform default when
// command is empty.
func New(command string) (*Speaker, error) {
	run, err := commandRunner(command, runtime.GOOS, exec.LookPath)
	if err != nil {
		return nil, err
	}
	return NewWithRunner(run), nil
}

// Say speaks text with command, or the platform default, and returns when
// playback ends.
func Say(ctx context.Context, command, text string) error {
	run, err := commandRunner(command, runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	return run(ctx, text)
}

// NewWithRunner starts a speaker that plays utterances with run.
func NewWithRunner(run Runner) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		queue:  make(chan string, queueSize),
		run:    run,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(ctx)
	return s
}

// Speak queues text. When the queue is full the utterance is dropped.
func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	text = truncate(text, maxChars)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- text:
	default:
		log.Printf("speech: queue full, dropping utterance (%d chars)", len(text))
	}
}

// Close stops the current utterance and discards anything queued.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Speaker) loop(ctx context.Context) {
	defer close(s.done)
	for text := range s.queue {
		if ctx.Err() != nil {
			continue
		}
		if err := s.safeRun(ctx, text); err != nil && ctx.Err() == nil {
			log.Printf("speech: %v", err)
		}
	}
}

func (s *Speaker) safeRun(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during playback: %v", r)
		}
	}()
	return s.run(ctx, text)
}

// truncate cuts text to at most n bytes on a rune boundary.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

// Nop discards every utterance; used when speech is disabled.
type Nop struct{}

func (Nop) Speak(string) {}

// commandSpec describes a TTS command. Text goes on stdin when stdin is set,
// otherwise after a "--" so that a reply starting with "-" is never parsed
// as an option.
type commandSpec struct {
	name  string
	args  []string
	stdin bool
}

func (cs commandSpec) command(ctx context.Context, text string) *exec.Cmd {
	args := append([]string(nil), cs.args...)
	if !cs.stdin {
		args = append(args, "--", text)
	}
	cmd := exec.CommandContext(ctx, cs.name, args...)
	if cs.stdin {
		cmd.Stdin = strings.NewReader(text)
	}
	return cmd
}

const windowsSpeakScript = "Add-Type -AssemblyName System.Speech; " +
	"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak([Console]::In.ReadToEnd())"

// platformCommands lists candidate TTS commands per OS, in preference order.
func platformCommands(goos string) []commandSpec {
	switch goos {
	case "darwin":
		return []commandSpec{{name: "say", args: []string{"-f", "-"}, stdin: true}}
	case "windows":
		return []commandSpec{{name: "powershell", args: []string{"-NoProfile", "-NonInteractive", "-Command", windowsSpeakScript}, stdin: true}}
	default:
		return []commandSpec{
			{name: "espeak-ng", args: []string{"--stdin"}, stdin: true},
			{name: "espeak", args: []string{"--stdin"}, stdin: true},
			{name: "spd-say", args: []string{"--wait"}},
		}
	}
}

// resolveCommand picks the configured command or the first available
// platform command. Configured commands read the text from stdin.
func resolveCommand(command, goos string, lookPath func(string) (string, error)) (commandSpec, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		if _, err := lookPath(fields[0]); err != nil {
			return commandSpec{}, fmt.Errorf("speech command %q not found: %w", fields[0], err)
		}
		return commandSpec{name: fields[0], args: fields[1:], stdin: true}, nil
	}
	for _, cs := range platformCommands(goos) {
		if _, err := lookPath(cs.name); err == nil {
			return cs, nil
		}
	}
	return commandSpec{}, errors.New("no text-to-speech command found")
}

func commandRunner(command, goos string, lookPath func(string) (string, error)) (Runner, error) {
	cs, err := resolveCommand(command, goos, lookPath)
	if err != nil {
		return nil, err
	}
	log.Printf("speech: using %s", cs.name)
	return func(ctx context.Context, text string) error {
		cmd := cs.command(ctx, text)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s failed: %w (%s)", cs.name, err, strings.TrimSpace(string(out)))
		}
		return nil
	}, nil
}
