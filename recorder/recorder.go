// Package recorder captures microphone audio to a temporary WAV file for
// transcription. One recorder backs both the capture overlay's voice note and
// the push-to-talk flow; recordings are strictly serial.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 16000
	channels   = 1
	frames     = 1024
)

var ErrNotRunning = errors.New("recorder not running")

type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateCanceled
)

// Result is returned when a recording completes or is canceled.
type Result struct {
	WavPath  string
	Canceled bool
	Err      error
}

// Recorder manages PortAudio capture and streaming WAV writing.
type Recorder struct {
	mu         sync.Mutex
	state      State
	tempDir    string
	stopCtx    context.Context
	stopCancel context.CancelFunc
	done       chan Result
}

func New(tempDir string) *Recorder {
	return &Recorder{tempDir: tempDir, state: StateIdle}
}

// Start begins recording. Returns an error when a recording is already live.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("recorder busy")
	}
	r.state = StateRecording
	r.done = make(chan Result, 1)
	r.stopCtx, r.stopCancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.recordLoop()
	return nil
}

// Stop requests a clean stop and waits for the WAV to be finalized.
func (r *Recorder) Stop() (Result, error) {
	return r.halt(StateStopping)
}

// Cancel stops recording and discards the audio file.
func (r *Recorder) Cancel() (Result, error) {
	return r.halt(StateCanceled)
}

func (r *Recorder) halt(to State) (Result, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return Result{}, ErrNotRunning
	}
	r.state = to
	cancel := r.stopCancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	res := <-done
	return res, res.Err
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) recordLoop() {
	wavPath := r.generateTempWav()
	log.Printf("Recorder: starting, writing to %s", wavPath)

	if err := portaudio.Initialize(); err != nil {
		r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("portaudio init failed: %w", err)})
		return
	}
	defer portaudio.Terminate()

	in := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), len(in), in)
	if err != nil {
		r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("open stream failed: %w", err)})
		return
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("start stream failed: %w", err)})
		return
	}

	file, err := os.Create(wavPath)
	if err != nil {
		_ = stream.Stop()
		_ = stream.Close()
		r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("create wav failed: %w", err)})
		return
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	format := &audio.Format{NumChannels: channels, SampleRate: sampleRate}
	intBuf := make([]int, len(in))

	for {
		if r.isCanceled() {
			break
		}
		select {
		case <-r.stopCtx.Done():
			goto done
		default:
		}

		if err := stream.Read(); err != nil {
			log.Printf("Recorder: stream read error: %v", err)
			continue
		}
		for i, v := range in {
			intBuf[i] = int(v)
		}
		buf := &audio.IntBuffer{Format: format, Data: intBuf[:len(in)], SourceBitDepth: 16}
		if err := enc.Write(buf); err != nil {
			_ = enc.Close()
			_ = file.Close()
			_ = stream.Stop()
			_ = stream.Close()
			_ = os.Remove(wavPath)
			r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("wav write failed: %w", err)})
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

done:
	_ = stream.Stop()
	_ = stream.Close()

	if r.isCanceled() {
		_ = enc.Close()
		_ = file.Close()
		_ = os.Remove(wavPath)
		log.Printf("Recorder: canceled, audio discarded")
		r.finish(Result{Canceled: true})
		return
	}

	if err := enc.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(wavPath)
		r.finish(Result{WavPath: wavPath, Err: fmt.Errorf("wav close failed: %w", err)})
		return
	}
	_ = file.Close()

	r.finish(Result{WavPath: wavPath})
}

func (r *Recorder) finish(res Result) {
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()
	r.done <- res
}

func (r *Recorder) isCanceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateCanceled
}

func (r *Recorder) generateTempWav() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	base := fmt.Sprintf("VoiceNote_%s.wav", id)
	dir := r.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, base)
}
