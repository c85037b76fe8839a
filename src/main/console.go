package main

import (
	"fmt"
	"io"

	"screen-reader-llm/src/mailbox"
)

// consoleRenderer prints drained mailbox events for headless mode.
func consoleRenderer(w io.Writer) func([]mailbox.Event) {
	return func(evs []mailbox.Event) {
		for _, ev := range evs {
			switch ev.Kind {
			case mailbox.KindStatus:
				fmt.Fprintf(w, "[%s]\n", ev.Message)
			default:
				fmt.Fprintln(w, ev.Message)
			}
		}
	}
}
