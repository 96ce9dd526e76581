package session

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/s0s0/VolcanoChat/overlay"
	"github.com/s0s0/VolcanoChat/permission"
	"github.com/s0s0/VolcanoChat/recorder"
	"github.com/s0s0/VolcanoChat/screenshot"
)

type fakeGate struct {
	mu        sync.Mutex
	denied    map[permission.Kind]bool
	explained []permission.Kind
}

func (g *fakeGate) Check(k permission.Kind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.denied[k]
}
func (g *fakeGate) Request(permission.Kind) {}
func (g *fakeGate) Explain(k permission.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.explained = append(g.explained, k)
}

type fakeSelector struct {
	mu        sync.Mutex
	calls     int
	dismissed int
	cb        overlay.Callbacks
}

func (s *fakeSelector) show(cb overlay.Callbacks) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.cb = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dismissed++
	}
}

func (s *fakeSelector) callbacks() overlay.Callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

type fakeConversation struct {
	mu    sync.Mutex
	texts []string
	jpegs [][]byte
	reply string
	done  chan struct{}
}

func newFakeConversation(reply string) *fakeConversation {
	return &fakeConversation{reply: reply, done: make(chan struct{}, 4)}
}

func (c *fakeConversation) Send(_ context.Context, text string, jpeg []byte) (string, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.jpegs = append(c.jpegs, jpeg)
	c.mu.Unlock()
	c.done <- struct{}{}
	return c.reply, nil
}

func (c *fakeConversation) sends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

type fakeTranscriber struct {
	text    string
	err     error
	release chan struct{} // nil means return immediately
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	running   bool
	cancelled int
	wavPath   string
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
	return nil
}

func (r *fakeRecorder) Stop() (recorder.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return recorder.Result{}, recorder.ErrNotRunning
	}
	r.running = false
	return recorder.Result{WavPath: r.wavPath}, nil
}

func (r *fakeRecorder) Cancel() (recorder.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return recorder.Result{}, recorder.ErrNotRunning
	}
	r.running = false
	r.cancelled++
	return recorder.Result{Canceled: true}, nil
}

type fakeSink struct {
	mu   sync.Mutex
	atts []Attachment
	done chan struct{}
}

func newFakeSink() *fakeSink { return &fakeSink{done: make(chan struct{}, 4)} }

func (s *fakeSink) DeliverImage(att Attachment) error {
	s.mu.Lock()
	s.atts = append(s.atts, att)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func testCapture(r screenshot.Rect) (*screenshot.Captured, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &screenshot.Captured{Image: img, Rect: r, Scale: 1.0}, nil
}

type fixture struct {
	orch *Orchestrator
	gate *fakeGate
	sel  *fakeSelector
	conv *fakeConversation
	rec  *fakeRecorder
	sink *fakeSink
}

func newFixture(t *testing.T, trans Transcriber, sink string) *fixture {
	t.Helper()
	f := &fixture{
		gate: &fakeGate{denied: map[permission.Kind]bool{}},
		sel:  &fakeSelector{},
		conv: newFakeConversation("noted"),
		rec:  &fakeRecorder{wavPath: filepath.Join(t.TempDir(), "fake.wav")},
		sink: newFakeSink(),
	}
	f.orch = New(Options{
		Gate:         f.gate,
		Capture:      testCapture,
		Selector:     f.sel.show,
		Conversation: f.conv,
		Transcriber:  trans,
		Recorder:     f.rec,
		Clipboard:    f.sink,
		Sink:         sink,
		Notify:       func(string, string) {},
		Settle:       time.Millisecond,
		Deadline:     2 * time.Second,
	})
	return f
}

func wait(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// waitIdle blocks until the orchestrator has fully reset.
func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !o.Capturing() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("orchestrator never returned to idle")
}

func beginVoiceNote(t *testing.T, o *Orchestrator) {
	t.Helper()
	started, err := o.BeginVoiceNote()
	if err != nil {
		t.Fatalf("BeginVoiceNote failed: %v", err)
	}
	if !started {
		t.Fatal("voice note did not start")
	}
}

func TestClipboardDelivery(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	rect := screenshot.Rect{X: 10, Y: 10, Width: 64, Height: 48}
	f.sel.callbacks().OnConfirmed(rect, nil)
	wait(t, f.sink.done, "clipboard delivery")

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.atts) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(f.sink.atts))
	}
	att := f.sink.atts[0]
	if len(att.PNG) == 0 || len(att.JPEG) == 0 {
		t.Error("attachment must carry both encodings")
	}
	if att.Rect != rect {
		t.Errorf("attachment rect = %+v, want %+v", att.Rect, rect)
	}
	if f.conv.sends() != 0 {
		t.Error("clipboard delivery must not touch the conversation")
	}
}

func TestStartWhileActiveIsDropped(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.mu.Lock()
	calls := f.sel.calls
	f.sel.mu.Unlock()
	if calls != 1 {
		t.Errorf("selector shown %d times, want 1", calls)
	}
}

func TestSessionReleasedAfterCancel(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.callbacks().OnCancelled()
	if f.orch.Capturing() {
		t.Fatal("orchestrator still active after cancel")
	}
	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.mu.Lock()
	defer f.sel.mu.Unlock()
	if f.sel.calls != 2 {
		t.Errorf("selector shown %d times, want 2", f.sel.calls)
	}
}

func TestScreenCaptureDenied(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, "clipboard")
	f.gate.denied[permission.ScreenCapture] = true

	err := f.orch.Start()
	var perr *permission.Error
	if !errors.As(err, &perr) || perr.Kind != permission.ScreenCapture {
		t.Fatalf("err = %v, want screen capture permission error", err)
	}
	if len(f.gate.explained) != 1 {
		t.Errorf("Explain calls = %d, want 1", len(f.gate.explained))
	}
	f.sel.mu.Lock()
	calls := f.sel.calls
	f.sel.mu.Unlock()
	if calls != 0 {
		t.Error("selector must not open without permission")
	}
	if f.orch.Capturing() {
		t.Error("orchestrator stuck active after denial")
	}
}

func TestVoiceNoteReleaseDrivesCapture(t *testing.T) {
	trans := &fakeTranscriber{text: "circle the error dialog", release: make(chan struct{})}
	f := newFixture(t, trans, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	rect := screenshot.Rect{X: 4, Y: 4, Width: 32, Height: 32}
	f.sel.callbacks().OnSelected(rect)
	beginVoiceNote(t, f.orch)

	// Release performs the deferred capture on its own; no overlay confirm
	// happens. The combined send still waits for the transcript.
	f.orch.EndVoiceNote()
	select {
	case <-f.conv.done:
		t.Fatal("commit delivered before transcription finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(trans.release)
	wait(t, f.conv.done, "combined delivery")

	f.sel.mu.Lock()
	dismissed := f.sel.dismissed
	f.sel.mu.Unlock()
	if dismissed != 1 {
		t.Errorf("overlay dismissed %d times, want 1", dismissed)
	}

	f.conv.mu.Lock()
	defer f.conv.mu.Unlock()
	if f.conv.texts[0] != "circle the error dialog" {
		t.Errorf("text = %q", f.conv.texts[0])
	}
	if len(f.conv.jpegs[0]) == 0 {
		t.Error("combined send must carry the image")
	}
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.atts) != 0 {
		t.Error("voice-note capture must go to the conversation, not the clipboard")
	}
}

func TestVoiceNoteCarriesPendingDrawings(t *testing.T) {
	trans := &fakeTranscriber{text: "see the circled part"}
	f := newFixture(t, trans, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	rect := screenshot.Rect{Width: 48, Height: 48}
	f.sel.callbacks().OnSelected(rect)
	paths := []overlay.Path{{ID: "p1", Points: []screenshot.Point{{X: 1, Y: 1}, {X: 5, Y: 5}}}}
	f.sel.callbacks().OnDrawingsChanged(paths)

	f.orch.mu.Lock()
	captured := f.orch.pendingPaths
	f.orch.mu.Unlock()
	if len(captured) != 1 || captured[0].ID != "p1" {
		t.Fatalf("pending drawings = %+v, want the stroke just drawn", captured)
	}

	beginVoiceNote(t, f.orch)
	f.orch.EndVoiceNote()
	wait(t, f.conv.done, "combined delivery")
}

func TestVoiceNoteRequiresSelection(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{text: "unused"}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	started, err := f.orch.BeginVoiceNote()
	if err != nil {
		t.Fatal(err)
	}
	if started {
		t.Fatal("voice note must not start before a selection is finalized")
	}
	f.rec.mu.Lock()
	running := f.rec.running
	f.rec.mu.Unlock()
	if running {
		t.Error("recorder must not run without a pending selection")
	}

	f.sel.callbacks().OnSelected(screenshot.Rect{Width: 32, Height: 32})
	if !f.orch.PendingSelection() {
		t.Fatal("selection not pending after OnSelected")
	}
	beginVoiceNote(t, f.orch)
}

func TestEmptyTranscriptAbortsSend(t *testing.T) {
	notified := make(chan string, 4)
	trans := &fakeTranscriber{text: ""}
	f := newFixture(t, trans, "clipboard")
	f.orch.notify = func(_, msg string) { notified <- msg }

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.callbacks().OnSelected(screenshot.Rect{Width: 16, Height: 16})
	beginVoiceNote(t, f.orch)
	f.orch.EndVoiceNote()

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("user never told why nothing was sent")
	}
	waitIdle(t, f.orch)

	if f.conv.sends() != 0 {
		t.Error("empty transcript must abort the combined send")
	}
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.atts) != 0 {
		t.Error("aborted capture must not fall back to the clipboard")
	}
}

func TestCancelDiscardsRecording(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{text: "unused"}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.callbacks().OnSelected(screenshot.Rect{Width: 32, Height: 32})
	beginVoiceNote(t, f.orch)
	f.sel.callbacks().OnCancelled()

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if f.rec.cancelled != 1 {
		t.Errorf("recorder cancels = %d, want 1", f.rec.cancelled)
	}
	if f.conv.sends() != 0 {
		t.Error("cancelled session must not send anything")
	}
}

func TestConfirmMidHoldStopsRecorder(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{text: "unused"}, "clipboard")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	rect := screenshot.Rect{Width: 32, Height: 32}
	f.sel.callbacks().OnSelected(rect)
	beginVoiceNote(t, f.orch)

	// Confirm lands while the record key is still held. The session commits
	// without the unfinished note and must not leave the microphone open.
	f.sel.callbacks().OnConfirmed(rect, nil)
	wait(t, f.sink.done, "clipboard delivery")
	waitIdle(t, f.orch)

	f.rec.mu.Lock()
	running, cancelled := f.rec.running, f.rec.cancelled
	f.rec.mu.Unlock()
	if running {
		t.Fatal("recorder still running after the session committed")
	}
	if cancelled != 1 {
		t.Errorf("recorder cancels = %d, want 1", cancelled)
	}

	// The release that follows has nothing to finish.
	f.orch.EndVoiceNote()
	if f.conv.sends() != 0 {
		t.Error("late release must not send anything")
	}
}

func TestChatSinkSendsImageOnly(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{}, "chat")

	if err := f.orch.Start(); err != nil {
		t.Fatal(err)
	}
	f.sel.callbacks().OnConfirmed(screenshot.Rect{Width: 16, Height: 16}, nil)
	wait(t, f.conv.done, "chat delivery")

	f.conv.mu.Lock()
	defer f.conv.mu.Unlock()
	if f.conv.texts[0] != "" {
		t.Errorf("text = %q, want empty", f.conv.texts[0])
	}
	if len(f.conv.jpegs[0]) == 0 {
		t.Error("chat delivery must carry the image")
	}
}
