// Package notification is the single user-facing alert surface. Alerts are
// short; long texts are truncated before display.
package notification

import (
	"log"
	"sync"

	"fyne.io/fyne/v2"
)

const maxAlertLen = 200

var (
	mu      sync.Mutex
	current fyne.App
)

// Init wires the running UI application. Before Init (and in headless tests)
// alerts degrade to log lines.
func Init(a fyne.App) {
	mu.Lock()
	defer mu.Unlock()
	current = a
}

// Alert shows a transient system notification.
func Alert(title, message string) {
	display := message
	if len(display) > maxAlertLen {
		display = display[:maxAlertLen] + "..."
	}
	mu.Lock()
	a := current
	mu.Unlock()
	if a == nil {
		log.Printf("%s: %s", title, display)
		return
	}
	a.SendNotification(fyne.NewNotification(title, display))
}
