//go:build windows

package notification

import (
	"log"

	"golang.org/x/sys/windows"
)

// ShowBlockingError shows a modal message box and returns once it is dismissed.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return
	}
	m, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return
	}
	_, _ = windows.MessageBox(0, m, t, windows.MB_OK|windows.MB_ICONERROR|windows.MB_SETFOREGROUND)
}
