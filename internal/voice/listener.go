// Package voice turns continuous microphone audio into a FIFO queue of
// discrete commands gated by a wake phrase. A single exclusive lock
// serializes the continuous loop and single-shot captures so they never
// contend for the physical device.
package voice

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"aura/pkg/stt"
)

// Device opens microphone input streams.
type Device interface {
	Open(sampleRate, frameSize int) (Stream, error)
}

// Stream reads fixed-size chunks of mono float32 PCM.
type Stream interface {
	Read(buf []float32) error
	Close() error
}

var (
	// ErrNotUnderstood is returned by CaptureOnce when audio was
	// recorded but nothing was recognized.
	ErrNotUnderstood = errors.New("could not understand voice input")
	// ErrUnavailable is returned when the transcription service failed.
	ErrUnavailable = errors.New("speech service unavailable")
)

// Config tunes the listener. Defaults mirror the tuning knobs of the
// rolling-window wake-phrase approach: each chunk the last Window worth
// of audio is re-transcribed.
type Config struct {
	Continuous bool
	WakePhrase string
	SampleRate int
	ChunkSize  int
	Window     time.Duration
	MaxSilence time.Duration
	Backoff    time.Duration
}

func Defaults() Config {
	return Config{
		Continuous: false,
		WakePhrase: "hey assistant",
		SampleRate: 16000,
		ChunkSize:  1024,
		Window:     5 * time.Second,
		MaxSilence: 5 * time.Second,
		Backoff:    time.Second,
	}
}

type Listener struct {
	dev   Device
	tr    stt.Transcriber
	cfg   Config
	queue commandQueue

	// micMu guards the physical device across the continuous loop and
	// single-shot captures.
	micMu sync.Mutex

	// onWake, if set, fires after a command is enqueued (earcon hook).
	onWake func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	resume   chan struct{}

	mu      sync.Mutex
	started bool
	paused  bool
}

func NewListener(dev Device, tr stt.Transcriber, cfg Config) *Listener {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = Defaults().SampleRate
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = Defaults().ChunkSize
	}
	if cfg.WakePhrase == "" {
		cfg.WakePhrase = Defaults().WakePhrase
	}
	return &Listener{
		dev:    dev,
		tr:     tr,
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		resume: make(chan struct{}, 1),
	}
}

// OnWake registers a callback fired after each enqueued command. Set it
// before Start.
func (l *Listener) OnWake(fn func()) { l.onWake = fn }

// Start launches the continuous listening loop. It is a no-op when
// continuous listening is disabled; CaptureOnce still works then.
func (l *Listener) Start() {
	if !l.cfg.Continuous {
		return
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run()
}

func (l *Listener) run() {
	defer close(l.done)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		if l.Paused() {
			select {
			case <-l.stop:
				return
			case <-l.resume:
			}
			continue
		}

		if err := l.session(); err != nil {
			log.Error("Listening session failed", "err", err)
			select {
			case <-l.stop:
				return
			case <-time.After(l.cfg.Backoff):
			}
		}
	}
}

// session holds the microphone for one listening stretch: it reads
// chunks into a rolling window, re-transcribes the window after each
// chunk, and returns (releasing the device) once silence outlasts
// MaxSilence or a stop is requested.
func (l *Listener) session() error {
	l.micMu.Lock()
	defer l.micMu.Unlock()

	stream, err := l.dev.Open(l.cfg.SampleRate, l.cfg.ChunkSize)
	if err != nil {
		return err
	}
	defer stream.Close()

	log.Info("Listening for voice input")

	var (
		rolling    []float32
		silence    time.Duration
		chunk      = make([]float32, l.cfg.ChunkSize)
		chunkDur   = time.Duration(float64(l.cfg.ChunkSize) / float64(l.cfg.SampleRate) * float64(time.Second))
		maxSamples = int(l.cfg.Window.Seconds() * float64(l.cfg.SampleRate))
	)

	for {
		select {
		case <-l.stop:
			return nil
		default:
		}
		if l.Paused() {
			return nil
		}

		if err := stream.Read(chunk); err != nil {
			return err
		}

		rolling = append(rolling, chunk...)
		if maxSamples > 0 && len(rolling) > maxSamples {
			rolling = rolling[len(rolling)-maxSamples:]
		}

		text, err := l.tr.Transcribe(context.Background(), rolling)
		if err != nil {
			silence += chunkDur
			if silence > l.cfg.MaxSilence {
				log.Debug("Silence timeout, releasing microphone")
				return nil
			}
			continue
		}
		silence = 0

		if command, ok := stripWakePhrase(text, l.cfg.WakePhrase); ok {
			l.queue.push(command)
			log.Info("Queued command", "command", command)
			// Reset so the same utterance is not queued twice.
			rolling = rolling[:0]
			if l.onWake != nil {
				l.onWake()
			}
		}
	}
}

// stripWakePhrase removes the first case-insensitive occurrence of
// phrase from text. The second return reports whether it was present.
func stripWakePhrase(text, phrase string) (string, bool) {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(phrase))
	if idx < 0 {
		return "", false
	}

	return strings.TrimSpace(text[:idx] + text[idx+len(phrase):]), true
}

// Pause suspends continuous listening after the current chunk and
// releases the microphone until Resume. Single-shot captures still
// work while paused.
func (l *Listener) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume restarts continuous listening after a Pause.
func (l *Listener) Resume() {
	l.mu.Lock()
	wasPaused := l.paused
	l.paused = false
	l.mu.Unlock()

	if wasPaused {
		select {
		case l.resume <- struct{}{}:
		default:
		}
	}
}

// Paused reports whether continuous listening is suspended.
func (l *Listener) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Next pops the oldest queued command without blocking.
func (l *Listener) Next() (string, bool) {
	return l.queue.pop()
}

// Pending reports how many commands are queued.
func (l *Listener) Pending() int { return l.queue.len() }

// CaptureOnce records a single utterance and transcribes it. Recording
// stops once phraseLimit of audio is collected or timeout wall time has
// passed, whichever comes first. It shares the device lock with the
// continuous loop, so it blocks while a listening session is active.
func (l *Listener) CaptureOnce(ctx context.Context, timeout, phraseLimit time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if phraseLimit <= 0 {
		phraseLimit = 5 * time.Second
	}

	l.micMu.Lock()
	defer l.micMu.Unlock()

	stream, err := l.dev.Open(l.cfg.SampleRate, l.cfg.ChunkSize)
	if err != nil {
		return "", ErrUnavailable
	}
	defer stream.Close()

	log.Info("Capturing single voice input")

	var (
		pcm        []float32
		chunk      = make([]float32, l.cfg.ChunkSize)
		deadline   = time.Now().Add(timeout)
		maxSamples = int(phraseLimit.Seconds() * float64(l.cfg.SampleRate))
	)

	for time.Now().Before(deadline) && len(pcm) < maxSamples {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := stream.Read(chunk); err != nil {
			return "", ErrUnavailable
		}
		pcm = append(pcm, chunk...)
	}

	text, err := l.tr.Transcribe(ctx, pcm)
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		return "", ErrNotUnderstood
	case err != nil:
		return "", ErrUnavailable
	}

	return text, nil
}

// Stop ends continuous listening after the current chunk and waits for
// the loop to exit. Idempotent; also safe when Start was never called.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.done
	}
}
