// Package app assembles the resident application: the fyne runtime, the two
// hotkey listeners, the capture orchestrator, and the tray. Everything is
// owned here; the packages below never reach for each other directly.
package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"github.com/s0s0/VolcanoChat/clipboard"
	"github.com/s0s0/VolcanoChat/config"
	"github.com/s0s0/VolcanoChat/conversation"
	"github.com/s0s0/VolcanoChat/hotkey"
	"github.com/s0s0/VolcanoChat/notification"
	"github.com/s0s0/VolcanoChat/overlay"
	"github.com/s0s0/VolcanoChat/recorder"
	"github.com/s0s0/VolcanoChat/session"
	"github.com/s0s0/VolcanoChat/transcribe"
	"github.com/s0s0/VolcanoChat/tray"
)

const transcribeModel = "whisper-1"

// App is the composition root. Create with New, then Run on the main
// goroutine.
type App struct {
	fy     fyne.App
	cfg    *config.Config
	conv   *conversation.Client
	orch   *session.Orchestrator
	recman *session.RecordingManager

	screenshotHK *hotkey.Listener
	recordHK     *hotkey.Listener
	hotkeyQ      chan func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	a.fy = fyneapp.New()
	notification.Init(a.fy)

	deadline := time.Duration(cfg.RequestDeadlineSec) * time.Second
	a.conv = conversation.New(cfg.ChatEndpoint, cfg.APIKey, cfg.Model, deadline)
	trans := transcribe.New(cfg.TranscribeEndpoint, cfg.APIKey, transcribeModel, deadline)
	rec := recorder.New("")

	a.orch = session.New(session.Options{
		Windows:      fyneWindows{a.fy},
		Selector:     a.showSelector,
		Conversation: a.conv,
		Transcriber:  trans,
		Recorder:     rec,
		Clipboard:    clipboardSink{},
		Sink:         cfg.CaptureSink,
		Deadline:     deadline,
	})
	a.recman = session.NewRecordingManager(a.orch, session.RecordingOptions{
		Recorder:     rec,
		Transcriber:  trans,
		Conversation: a.conv,
		Text:         clipboardSink{},
		Sink:         cfg.CaptureSink,
		Deadline:     deadline,
	})

	screenshotSpec, err := hotkey.ParseChord(cfg.ScreenshotHotkey)
	if err != nil {
		return nil, fmt.Errorf("screenshot hotkey %q: %w", cfg.ScreenshotHotkey, err)
	}
	recordSpec, err := hotkey.ParseChord(cfg.RecordHotkey)
	if err != nil {
		return nil, fmt.Errorf("record hotkey %q: %w", cfg.RecordHotkey, err)
	}

	a.screenshotHK = hotkey.NewListener(screenshotSpec)
	a.screenshotHK.OnPressed(func() {
		go func() {
			if err := a.orch.Start(); err != nil {
				log.Printf("App: capture session not started: %v", err)
			}
		}()
	})

	a.recordHK = hotkey.NewListener(recordSpec)
	a.recordHK.OnPressed(a.recman.HotkeyPressed)
	a.recordHK.OnReleased(a.recman.HotkeyReleased)

	// Callbacks must leave the event-tap goroutine before doing any real
	// work; a single queue keeps press/release ordering across both chords.
	a.hotkeyQ = make(chan func(), 32)
	go func() {
		for fn := range a.hotkeyQ {
			fn()
		}
	}()
	dispatch := func(fn func()) { a.hotkeyQ <- fn }
	a.screenshotHK.SetDispatch(dispatch)
	a.recordHK.SetDispatch(dispatch)

	a.orch.Subscribe(func(st session.Status) {
		tray.SetStatus(statusLine(st))
	})

	return a, nil
}

// Run blocks on the UI event loop until Quit. Must be called from the main
// goroutine; the tray registers into fyne's loop once it is up.
func (a *App) Run() {
	a.fy.Lifecycle().SetOnStarted(func() {
		tray.Register(tray.Actions{
			OnCapture: func() {
				go func() {
					if err := a.orch.Start(); err != nil {
						log.Printf("App: capture session not started: %v", err)
					}
				}()
			},
			OnReset: a.conv.Reset,
			OnQuit:  a.Quit,
		})
		tray.SetTooltip(fmt.Sprintf("VolcanoChat - Press %s to capture", a.cfg.ScreenshotHotkey))

		if err := a.screenshotHK.Start(); err != nil {
			log.Printf("App: screenshot hotkey unavailable: %v", err)
		}
		if err := a.recordHK.Start(); err != nil {
			log.Printf("App: record hotkey unavailable: %v", err)
		}
	})
	a.fy.Run()
}

// Quit stops the listeners and exits the event loop.
func (a *App) Quit() {
	a.screenshotHK.Stop()
	a.recordHK.Stop()
	fyne.Do(a.fy.Quit)
}

// Reconfigure swaps both hotkeys for the given chords. The old bindings stay
// live until their replacements parse.
func (a *App) Reconfigure(screenshotChord, recordChord string) error {
	screenshotSpec, err := hotkey.ParseChord(screenshotChord)
	if err != nil {
		return fmt.Errorf("screenshot hotkey %q: %w", screenshotChord, err)
	}
	recordSpec, err := hotkey.ParseChord(recordChord)
	if err != nil {
		return fmt.Errorf("record hotkey %q: %w", recordChord, err)
	}
	if err := a.screenshotHK.Reconfigure(screenshotSpec); err != nil {
		return err
	}
	if err := a.recordHK.Reconfigure(recordSpec); err != nil {
		return err
	}
	a.cfg.ScreenshotHotkey = screenshotChord
	a.cfg.RecordHotkey = recordChord
	tray.SetTooltip(fmt.Sprintf("VolcanoChat - Press %s to capture", screenshotChord))
	log.Printf("App: hotkeys now %s / %s", screenshotChord, recordChord)
	return nil
}

// showSelector presents the overlay on the UI thread. The returned dismiss
// also hops there; fyne.Do queues in order, so the window reference is set
// before any dismiss can observe it.
func (a *App) showSelector(cb overlay.Callbacks) func() {
	var mu sync.Mutex
	var win *overlay.Window
	fyne.Do(func() {
		mu.Lock()
		win = overlay.Show(a.fy, cb)
		mu.Unlock()
	})
	return func() {
		fyne.Do(func() {
			mu.Lock()
			w := win
			mu.Unlock()
			if w != nil {
				w.Close()
			}
		})
	}
}

func statusLine(st session.Status) string {
	switch {
	case st.Recording:
		return "Recording..."
	case st.Capturing:
		return "Selecting region..."
	default:
		return "Idle"
	}
}

// fyneWindows exposes the toolkit's windows to the orchestrator so they can
// be hidden before capture.
type fyneWindows struct {
	fy fyne.App
}

func (f fyneWindows) Windows() []session.AppWindow {
	wins := f.fy.Driver().AllWindows()
	out := make([]session.AppWindow, 0, len(wins))
	for _, w := range wins {
		out = append(out, hiddenWindow{w})
	}
	return out
}

type hiddenWindow struct {
	w fyne.Window
}

// Hide hops to the UI thread and waits, so the settle delay that follows
// actually starts after the window is gone.
func (h hiddenWindow) Hide() {
	fyne.DoAndWait(h.w.Hide)
}

// clipboardSink delivers finished captures and push-to-talk transcripts to
// the pasteboard.
type clipboardSink struct{}

func (clipboardSink) DeliverImage(att session.Attachment) error {
	return clipboard.WriteImage(att.PNG)
}

func (clipboardSink) DeliverText(text string) error {
	return clipboard.WriteText(text)
}
