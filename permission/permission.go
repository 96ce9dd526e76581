// Package permission wraps the OS authorization gates the capture flows
// depend on. Checks are a single synchronous query; prompts and remediation
// are fire-and-forget.
package permission

import (
	"fmt"
	"log"

	"github.com/s0s0/VolcanoChat/notification"
)

type Kind int

const (
	// InputMonitoring covers the accessibility approval needed for the
	// global key event tap.
	InputMonitoring Kind = iota
	ScreenCapture
	Microphone
)

func (k Kind) String() string {
	switch k {
	case InputMonitoring:
		return "input monitoring"
	case ScreenCapture:
		return "screen recording"
	case Microphone:
		return "microphone"
	}
	return fmt.Sprintf("permission(%d)", int(k))
}

// Error reports a denied authorization. Terminal for the current session;
// the user re-invokes the hotkey after granting access.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s permission denied", e.Kind)
}

// Gate is the authorization surface injected into anything that needs one.
type Gate interface {
	Check(Kind) bool
	Request(Kind)
	Explain(Kind)
}

// System is the real OS-backed gate.
type System struct{}

func (System) Check(k Kind) bool { return systemCheck(k) }

// Request triggers the OS prompt for the kind. Safe to call repeatedly; the
// OS only prompts the first time.
func (System) Request(k Kind) { systemRequest(k) }

// Explain surfaces remediation text and deep-links into the matching system
// settings privacy pane.
func (System) Explain(k Kind) {
	notification.Alert("Permission needed", remediation(k))
	if err := openSettings(k); err != nil {
		log.Printf("permission: could not open settings for %s: %v", k, err)
	}
}

func remediation(k Kind) string {
	switch k {
	case InputMonitoring:
		return "Grant VolcanoChat access under Privacy & Security > Accessibility, then press the hotkey again."
	case ScreenCapture:
		return "Grant VolcanoChat access under Privacy & Security > Screen Recording, then press the hotkey again."
	case Microphone:
		return "Grant VolcanoChat access under Privacy & Security > Microphone, then press the hotkey again."
	}
	return "Grant VolcanoChat the required access in System Settings."
}
