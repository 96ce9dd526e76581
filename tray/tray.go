// Package tray owns the menu bar presence. The tray is the app's only
// persistent surface; everything else appears on demand.
package tray

import (
	"log"

	"github.com/getlantern/systray"
)

// Actions are invoked from tray menu clicks, on the tray's own goroutine.
type Actions struct {
	OnCapture func()
	OnReset   func()
	OnQuit    func()
}

var (
	actions    Actions
	statusItem *systray.MenuItem
)

const defaultTooltip = "VolcanoChat"

// Register attaches the tray to an event loop someone else is running.
// Used when the UI toolkit already owns the main thread.
func Register(a Actions) {
	actions = a
	systray.Register(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

// SetStatus updates the status line under the header.
func SetStatus(text string) {
	if statusItem == nil {
		return
	}
	statusItem.SetTitle(text)
}

// SetTooltip updates the hover text next to the icon.
func SetTooltip(text string) {
	systray.SetTooltip(text)
}

func onReady() {
	systray.SetTemplateIcon(iconPNG(), iconPNG())
	systray.SetTooltip(defaultTooltip)

	header := systray.AddMenuItem("VolcanoChat", "")
	header.Disable()

	statusItem = systray.AddMenuItem("Idle", "")
	statusItem.Disable()

	systray.AddSeparator()

	captureItem := systray.AddMenuItem("Capture Screenshot", "Select a region of the screen")
	resetItem := systray.AddMenuItem("New Conversation", "Forget the chat history")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit VolcanoChat")

	go func() {
		for {
			select {
			case <-captureItem.ClickedCh:
				if actions.OnCapture != nil {
					actions.OnCapture()
				}
			case <-resetItem.ClickedCh:
				log.Printf("Tray: conversation reset")
				if actions.OnReset != nil {
					actions.OnReset()
				}
			case <-quitItem.ClickedCh:
				if actions.OnQuit != nil {
					actions.OnQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

func onQuit() {}
