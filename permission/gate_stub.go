//go:build !darwin

package permission

import "log"

// Non-Mac builds have no authorization gates of this shape; report granted.

func systemCheck(Kind) bool { return true }

func systemRequest(Kind) {}

func openSettings(k Kind) error {
	log.Printf("permission: no settings pane for %s on this platform", k)
	return nil
}
