package session

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/s0s0/VolcanoChat/config"
	"github.com/s0s0/VolcanoChat/notification"
	"github.com/s0s0/VolcanoChat/permission"
)

type recordMode int

const (
	modeIdle recordMode = iota
	modeVoiceNote
	modePushToTalk
)

// TextSink receives push-to-talk transcripts when the configured sink is the
// clipboard rather than the conversation.
type TextSink interface {
	DeliverText(text string) error
}

// RecordingOptions configure a RecordingManager. Recorder, Transcriber and
// Conversation are required; the rest default like Options.
type RecordingOptions struct {
	Gate         permission.Gate
	Recorder     VoiceRecorder
	Transcriber  Transcriber
	Conversation Conversation
	Text         TextSink
	Sink         string
	Notify       NotifyFunc
	Deadline     time.Duration
}

// RecordingManager routes the record hotkey. While a capture session holds a
// finalized selection the hold becomes a voice note for that capture;
// otherwise it is push-to-talk and the transcript goes to the conversation,
// or to the clipboard when that is the configured sink.
type RecordingManager struct {
	orch     *Orchestrator
	gate     permission.Gate
	rec      VoiceRecorder
	trans    Transcriber
	conv     Conversation
	text     TextSink
	sink     string
	notify   NotifyFunc
	deadline time.Duration

	mu   sync.Mutex
	mode recordMode
}

func NewRecordingManager(orch *Orchestrator, opts RecordingOptions) *RecordingManager {
	m := &RecordingManager{
		orch:     orch,
		gate:     opts.Gate,
		rec:      opts.Recorder,
		trans:    opts.Transcriber,
		conv:     opts.Conversation,
		text:     opts.Text,
		sink:     opts.Sink,
		notify:   opts.Notify,
		deadline: opts.Deadline,
	}
	if m.gate == nil {
		m.gate = permission.System{}
	}
	if m.notify == nil {
		m.notify = notification.Alert
	}
	if m.deadline <= 0 {
		m.deadline = 30 * time.Second
	}
	return m
}

// HotkeyPressed starts recording. The mode is fixed at press time; a capture
// session that starts mid-hold does not steal the recording.
func (m *RecordingManager) HotkeyPressed() {
	m.mu.Lock()
	if m.mode != modeIdle {
		m.mu.Unlock()
		return
	}
	capturing := m.orch != nil && m.orch.Capturing()
	if capturing {
		m.mode = modeVoiceNote
	} else {
		m.mode = modePushToTalk
	}
	m.mu.Unlock()

	if capturing {
		started, err := m.orch.BeginVoiceNote()
		if err != nil {
			log.Printf("Recording: voice note start failed: %v", err)
			m.setIdle()
			return
		}
		if !started {
			// Overlay is up but nothing is selected yet; the hold has no
			// pending selection to annotate.
			m.setIdle()
		}
		return
	}

	if !m.gate.Check(permission.Microphone) {
		m.gate.Request(permission.Microphone)
		if !m.gate.Check(permission.Microphone) {
			m.gate.Explain(permission.Microphone)
			m.setIdle()
			return
		}
	}
	if err := m.rec.Start(context.Background()); err != nil {
		log.Printf("Recording: start failed: %v", err)
		m.setIdle()
	}
}

// HotkeyReleased finishes the hold that HotkeyPressed started. In voice-note
// mode the orchestrator takes over and completes the capture session.
func (m *RecordingManager) HotkeyReleased() {
	m.mu.Lock()
	mode := m.mode
	m.mode = modeIdle
	m.mu.Unlock()

	switch mode {
	case modeVoiceNote:
		m.orch.EndVoiceNote()
	case modePushToTalk:
		res, err := m.rec.Stop()
		if err != nil || res.Canceled || res.WavPath == "" {
			if err != nil {
				log.Printf("Recording: stop failed: %v", err)
			}
			return
		}
		go m.sendTranscript(res.WavPath)
	}
}

func (m *RecordingManager) setIdle() {
	m.mu.Lock()
	m.mode = modeIdle
	m.mu.Unlock()
}

func (m *RecordingManager) sendTranscript(wavPath string) {
	defer os.Remove(wavPath)

	ctx, cancel := context.WithTimeout(context.Background(), m.deadline)
	defer cancel()

	text, err := m.trans.Transcribe(ctx, wavPath)
	if err != nil {
		log.Printf("Recording: %v", &TranscriptionError{Reason: "push-to-talk failed", Err: err})
		m.notify("VolcanoChat", "Your message could not be transcribed.")
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("Recording: %v", ErrTranscriptionEmpty)
		m.notify("VolcanoChat", "Nothing was heard; no message sent.")
		return
	}

	if m.sink == config.SinkClipboard && m.text != nil {
		if err := m.text.DeliverText(text); err != nil {
			log.Printf("Recording: clipboard write failed: %v", err)
			m.notify("VolcanoChat", "Could not copy the transcript to the clipboard.")
			return
		}
		m.notify("VolcanoChat", "Transcript copied to clipboard.")
		return
	}

	reply, err := m.conv.Send(ctx, text, nil)
	if err != nil {
		log.Printf("Recording: send failed: %v", err)
		m.notify("VolcanoChat", "The assistant could not be reached.")
		return
	}
	m.notify("VolcanoChat", reply)
}
