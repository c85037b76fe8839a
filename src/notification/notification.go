//go:build !windows

// Package notification reports startup failures that happen before any
// window exists.
package notification

import "log"

// ShowBlockingError logs a blocking error message on non-Windows platforms.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
}
