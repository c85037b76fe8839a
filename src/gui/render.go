package gui

import (
	"strings"

	"screen-reader-llm/src/app"
	"screen-reader-llm/src/config"
	"screen-reader-llm/src/mailbox"
)

const maxLogLines = 500

// view is the part of the window that mailbox events are rendered onto.
type view interface {
	appendLog(line string)
	setStatus(text string)
}

// render applies one drained batch in order.
func render(v view, evs []mailbox.Event) {
	for _, ev := range evs {
		switch ev.Kind {
		case mailbox.KindLog:
			v.appendLog(ev.Message)
		case mailbox.KindStatus:
			v.setStatus(ev.Message)
		}
	}
}

// logBuffer keeps the most recent lines shown in the log area.
type logBuffer struct {
	lines []string
	max   int
}

func (b *logBuffer) add(line string) {
	limit := b.max
	if limit <= 0 {
		limit = maxLogLines
	}
	b.lines = append(b.lines, line)
	if over := len(b.lines) - limit; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

func (b *logBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

func toggleLabel(state app.SessionState) string {
	if state == app.StateIdle {
		return "Start Listening"
	}
	return "Stop Listening"
}

// initialModel is the model shown at startup. Models outside config.Models
// are kept as typed.
func initialModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return config.DefaultModel
}
