// Package session coordinates a capture from hotkey press to delivery. One
// session runs at a time. A voice note recorded over a finalized selection
// is transcribed concurrently; releasing the record key performs the
// deferred capture itself and the transcript joins it as one combined send.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"sync"
	"time"

	"github.com/s0s0/VolcanoChat/annotate"
	"github.com/s0s0/VolcanoChat/config"
	"github.com/s0s0/VolcanoChat/notification"
	"github.com/s0s0/VolcanoChat/overlay"
	"github.com/s0s0/VolcanoChat/permission"
	"github.com/s0s0/VolcanoChat/recorder"
	"github.com/s0s0/VolcanoChat/screenshot"
)

var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrCaptureFailed      = errors.New("capture failed")
	ErrEncodingFailed     = errors.New("encoding failed")
	ErrTranscriptionEmpty = errors.New("transcription empty")
)

// TranscriptionError carries the reason a voice note could not become text.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription: %s", e.Reason)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Attachment is a finished capture encoded for both delivery targets: the
// PNG goes to the clipboard losslessly, the JPEG keeps conversation uploads
// small.
type Attachment struct {
	PNG  []byte
	JPEG []byte
	Rect screenshot.Rect
}

// Collaborator surfaces. The app wires the real clients; tests substitute
// fakes.
type Conversation interface {
	Send(ctx context.Context, text string, jpeg []byte) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type VoiceRecorder interface {
	Start(ctx context.Context) error
	Stop() (recorder.Result, error)
	Cancel() (recorder.Result, error)
}

type ImageSink interface {
	DeliverImage(Attachment) error
}

// AppWindow is anything of ours that could end up inside the captured frame.
type AppWindow interface {
	Hide()
}

type WindowSource interface {
	Windows() []AppWindow
}

type CaptureFunc func(screenshot.Rect) (*screenshot.Captured, error)

// SelectorFunc presents the region selection overlay and returns a dismiss
// func that tears the overlay down without firing its callbacks. The app's
// implementation hops to the UI thread before showing the window.
type SelectorFunc func(overlay.Callbacks) (dismiss func())

type NotifyFunc func(title, message string)

// Status is a snapshot for tray and UI observers.
type Status struct {
	Capturing bool
	Recording bool
}

// settleDelay gives the compositor time to finish taking the overlay and our
// hidden windows off screen before the frame is sampled. A capture fired the
// instant the overlay closes can still contain its dim mask.
const settleDelay = 100 * time.Millisecond

const jpegQuality = 85

type Options struct {
	Gate         permission.Gate
	Windows      WindowSource
	Capture      CaptureFunc
	Selector     SelectorFunc
	Conversation Conversation
	Transcriber  Transcriber
	Recorder     VoiceRecorder
	Clipboard    ImageSink
	Sink         string
	Notify       NotifyFunc
	Settle       time.Duration
	Deadline     time.Duration
}

// Orchestrator owns the capture flow. All collaborators are injected; only
// the voice transcription and the final delivery leave the calling
// goroutine.
type Orchestrator struct {
	gate     permission.Gate
	windows  WindowSource
	capture  CaptureFunc
	selector SelectorFunc
	conv     Conversation
	trans    Transcriber
	rec      VoiceRecorder
	clip     ImageSink
	sink     string
	notify   NotifyFunc
	settle   time.Duration
	deadline time.Duration

	mu           sync.Mutex
	capturing    bool
	recording    bool
	committed    bool
	pending      bool
	pendingRect  screenshot.Rect
	pendingPaths []overlay.Path
	dismiss      func()
	voice        *voiceNote
	observers    []func(Status)
}

type voiceNote struct {
	done chan struct{}
	text string
	err  error
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		gate:     opts.Gate,
		windows:  opts.Windows,
		capture:  opts.Capture,
		selector: opts.Selector,
		conv:     opts.Conversation,
		trans:    opts.Transcriber,
		rec:      opts.Recorder,
		clip:     opts.Clipboard,
		sink:     opts.Sink,
		notify:   opts.Notify,
		settle:   opts.Settle,
		deadline: opts.Deadline,
	}
	if o.gate == nil {
		o.gate = permission.System{}
	}
	if o.capture == nil {
		o.capture = screenshot.Capture
	}
	if o.notify == nil {
		o.notify = notification.Alert
	}
	if o.settle <= 0 {
		o.settle = settleDelay
	}
	if o.deadline <= 0 {
		o.deadline = 30 * time.Second
	}
	return o
}

// Subscribe registers a status observer. Observers are invoked synchronously
// on every transition, in registration order.
func (o *Orchestrator) Subscribe(fn func(Status)) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) Capturing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.capturing
}

// Start launches a capture session. A press while one is live is dropped;
// the user finishes or escapes the current overlay first.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.capturing {
		o.mu.Unlock()
		log.Printf("Session: already active, hotkey ignored")
		return nil
	}
	o.capturing = true
	o.mu.Unlock()
	o.publish()

	if err := o.ensure(permission.ScreenCapture); err != nil {
		o.reset()
		return err
	}

	// Our own windows must not appear in the capture. They stay hidden
	// after delivery; popping them back up over whatever the user was
	// pointing at would be worse than making them click the tray.
	if o.windows != nil {
		for _, w := range o.windows.Windows() {
			w.Hide()
		}
	}

	dismiss := o.selector(overlay.Callbacks{
		OnSelected: func(r screenshot.Rect) {
			o.mu.Lock()
			o.pending = true
			o.pendingRect = r
			o.pendingPaths = nil
			o.mu.Unlock()
		},
		OnDrawingsChanged: func(paths []overlay.Path) {
			o.mu.Lock()
			o.pendingPaths = paths
			o.mu.Unlock()
		},
		OnConfirmed: func(r screenshot.Rect, paths []overlay.Path) {
			go o.commit(r, paths)
		},
		OnCancelled: func() {
			log.Printf("Session: %v", ErrSelectionCancelled)
			o.reset()
		},
	})
	o.mu.Lock()
	o.dismiss = dismiss
	o.mu.Unlock()
	return nil
}

// PendingSelection reports whether a finalized rect is waiting for
// confirmation.
func (o *Orchestrator) PendingSelection() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// BeginVoiceNote starts recording a note for the pending selection. The
// first return is false when there is no finalized selection to annotate.
func (o *Orchestrator) BeginVoiceNote() (bool, error) {
	o.mu.Lock()
	if !o.capturing || !o.pending || o.recording {
		o.mu.Unlock()
		return false, nil
	}
	o.recording = true
	o.mu.Unlock()
	o.publish()

	if err := o.ensure(permission.Microphone); err != nil {
		o.setRecording(false)
		return false, err
	}
	if err := o.rec.Start(context.Background()); err != nil {
		o.setRecording(false)
		return false, err
	}
	return true, nil
}

// EndVoiceNote stops the recording and completes the session: the overlay
// comes down and the deferred capture runs with the pending rect and
// drawings, the same path a confirm takes. The transcript joins the capture
// inside commit as a single combined send.
func (o *Orchestrator) EndVoiceNote() {
	o.mu.Lock()
	if !o.recording {
		o.mu.Unlock()
		return
	}
	o.recording = false
	rect, paths := o.pendingRect, o.pendingPaths
	dismiss := o.dismiss
	o.mu.Unlock()
	o.publish()

	res, err := o.rec.Stop()
	if res.Canceled {
		return
	}

	vn := &voiceNote{done: make(chan struct{})}
	switch {
	case err != nil:
		vn.err = err
		close(vn.done)
	case res.WavPath == "":
		vn.err = errors.New("no audio captured")
		close(vn.done)
	default:
		go func() {
			defer close(vn.done)
			defer os.Remove(res.WavPath)
			ctx, cancel := context.WithTimeout(context.Background(), o.deadline)
			defer cancel()
			vn.text, vn.err = o.trans.Transcribe(ctx, res.WavPath)
		}()
	}
	o.mu.Lock()
	o.voice = vn
	o.mu.Unlock()

	if dismiss != nil {
		dismiss()
	}
	go o.commit(rect, paths)
}

func (o *Orchestrator) commit(rect screenshot.Rect, paths []overlay.Path) {
	// Confirm and voice release can race; only one commit runs per session.
	o.mu.Lock()
	if !o.capturing || o.committed {
		o.mu.Unlock()
		return
	}
	o.committed = true
	o.mu.Unlock()
	defer o.reset()

	// The overlay was just told to close; let the compositor finish before
	// the frame is sampled.
	time.Sleep(o.settle)

	shot, err := o.capture(rect)
	if err != nil {
		o.fail(fmt.Errorf("%w: %v", ErrCaptureFailed, err), "Could not capture the selected region.")
		return
	}
	att, err := encode(annotate.Render(shot, paths), rect)
	if err != nil {
		o.fail(err, "Could not encode the capture.")
		return
	}

	vn := o.takeVoice()
	if vn != nil {
		<-vn.done
		if vn.err != nil {
			o.fail(&TranscriptionError{Reason: "voice note failed", Err: vn.err},
				"Your voice note could not be transcribed; the capture was not sent.")
			return
		}
		if vn.text == "" {
			// An empty transcript with an attached image would send the
			// model a bare screenshot the user meant to ask about.
			o.fail(ErrTranscriptionEmpty, "Nothing was heard in your voice note; the capture was not sent.")
			return
		}
		o.deliverChat(vn.text, att)
		return
	}

	switch o.sink {
	case config.SinkChat:
		o.deliverChat("", att)
	default:
		if err := o.clip.DeliverImage(att); err != nil {
			o.fail(err, "Could not copy the capture to the clipboard.")
			return
		}
		log.Printf("Session: capture %dx%d copied to clipboard", rect.Width, rect.Height)
		o.notify("VolcanoChat", "Capture copied to clipboard.")
	}
}

func (o *Orchestrator) deliverChat(text string, att Attachment) {
	ctx, cancel := context.WithTimeout(context.Background(), o.deadline)
	defer cancel()
	reply, err := o.conv.Send(ctx, text, att.JPEG)
	if err != nil {
		o.fail(err, "The assistant could not be reached.")
		return
	}
	o.notify("VolcanoChat", reply)
}

func (o *Orchestrator) takeVoice() *voiceNote {
	o.mu.Lock()
	defer o.mu.Unlock()
	vn := o.voice
	o.voice = nil
	return vn
}

func (o *Orchestrator) ensure(k permission.Kind) error {
	if o.gate.Check(k) {
		return nil
	}
	o.gate.Request(k)
	if o.gate.Check(k) {
		return nil
	}
	o.gate.Explain(k)
	return &permission.Error{Kind: k}
}

func (o *Orchestrator) fail(err error, message string) {
	log.Printf("Session: %v", err)
	o.notify("VolcanoChat", message)
}

// reset clears all session state. A recording still live here means the
// session ended while the record key was held; the microphone must not stay
// open past the session, so the recording is cancelled and discarded.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	recording := o.recording
	o.capturing = false
	o.recording = false
	o.committed = false
	o.pending = false
	o.pendingRect = screenshot.Rect{}
	o.pendingPaths = nil
	o.dismiss = nil
	o.voice = nil
	o.mu.Unlock()
	if recording {
		if _, err := o.rec.Cancel(); err != nil && !errors.Is(err, recorder.ErrNotRunning) {
			log.Printf("Session: voice cancel failed: %v", err)
		}
	}
	o.publish()
}

func (o *Orchestrator) setRecording(v bool) {
	o.mu.Lock()
	o.recording = v
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	st := Status{Capturing: o.capturing, Recording: o.recording}
	obs := append([]func(Status){}, o.observers...)
	o.mu.Unlock()
	for _, fn := range obs {
		fn(st)
	}
}

func encode(img *image.RGBA, rect screenshot.Rect) (Attachment, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return Attachment{}, fmt.Errorf("%w: png: %v", ErrEncodingFailed, err)
	}
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Attachment{}, fmt.Errorf("%w: jpeg: %v", ErrEncodingFailed, err)
	}
	return Attachment{PNG: pngBuf.Bytes(), JPEG: jpegBuf.Bytes(), Rect: rect}, nil
}
