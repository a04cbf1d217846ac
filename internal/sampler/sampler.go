// Package sampler maintains the freshest available snapshot of what is
// on screen. A background loop captures the display, skips cycles where
// nothing meaningfully changed, runs OCR on changed frames and publishes
// an immutable snapshot that readers copy out without blocking.
package sampler

import (
	log "log/slog"
	"sync"
	"time"

	"aura/internal/ocr"
	"aura/internal/screen"
	"aura/internal/window"
)

// Snapshot is one atomically published record of perceived screen
// context. Consumers always receive a copy, never a live handle.
type Snapshot struct {
	ActiveApp        string    `json:"active_app"`
	ScreenText       string    `json:"screen_content"`
	IsVideoPlayer    bool      `json:"is_video_player"`
	IsDocumentViewer bool      `json:"is_document_viewer"`
	IsMailClient     bool      `json:"is_mail_client"`
	CapturedAt       time.Time `json:"captured_at"`
}

// Config tunes the sampling loop. The zero value is unusable; use
// Defaults as the starting point.
type Config struct {
	Interval        time.Duration
	ChangeThreshold float64
	DownscaleFactor float64
	ThresholdBlock  int
	ThresholdBias   int
}

func Defaults() Config {
	return Config{
		Interval:        5 * time.Second,
		ChangeThreshold: 100,
		DownscaleFactor: 0.5,
		ThresholdBlock:  11,
		ThresholdBias:   2,
	}
}

const (
	// extractFailedText marks a snapshot whose frame changed but whose
	// extraction call failed. The loop degrades rather than crashing.
	extractFailedText = "OCR failed"
	noTextDetected    = "No text detected"
	unknownApp        = "Unknown"
)

type Sampler struct {
	grab    screen.Grabber
	extract ocr.Extractor
	windows window.Inspector
	cfg     Config

	mu      sync.Mutex
	current Snapshot

	// baseline is touched only by the loop goroutine.
	baseline *screen.Frame

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

func New(grab screen.Grabber, extract ocr.Extractor, windows window.Inspector, cfg Config) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = Defaults().Interval
	}
	return &Sampler{
		grab:    grab,
		extract: extract,
		windows: windows,
		cfg:     cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background sampling loop.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

func (s *Sampler) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.cycle()

		select {
		case <-s.stop:
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// cycle performs one capture → change-check → extract → classify →
// publish pass. Every failure inside it degrades and is logged; the
// loop itself never dies from a bad cycle.
func (s *Sampler) cycle() {
	frame, err := s.grab.Grab()
	if err != nil {
		log.Error("Screen capture failed", "err", err)
		return
	}

	if s.baseline != nil {
		mse := screen.MeanSquaredDiff(frame, s.baseline)
		if mse <= s.cfg.ChangeThreshold {
			log.Debug("Screen unchanged", "mse", mse)
			return
		}
	}

	prepared := screen.AdaptiveThreshold(
		screen.Downscale(frame, s.cfg.DownscaleFactor),
		s.cfg.ThresholdBlock, s.cfg.ThresholdBias,
	)

	text, err := s.extract.Extract(prepared.Gray())
	switch {
	case err != nil:
		log.Error("Text extraction failed", "err", err)
		text = extractFailedText
	case text == "":
		text = noTextDetected
	}

	// Window titles carry the richest hints ("Inbox - Gmail - Google
	// Chrome"), so prefer them over the bare application class.
	app := unknownApp
	if info, err := s.windows.Active(); err != nil {
		log.Warn("Active window lookup failed", "err", err)
	} else if info.Title != "" {
		app = info.Title
	} else if info.App != "" {
		app = info.App
	}

	snap := Snapshot{
		ActiveApp:        app,
		ScreenText:       text,
		IsVideoPlayer:    isVideoPlayer(text, app),
		IsDocumentViewer: isDocumentViewer(text, app),
		IsMailClient:     isMailClient(text, app),
		CapturedAt:       frame.At,
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	s.baseline = frame

	log.Debug("Published snapshot", "app", app, "chars", len(text))
}

// Context returns the last published snapshot without blocking. Before
// the first publish it returns the zero snapshot.
func (s *Sampler) Context() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stop signals the loop to exit after its current cycle and waits for
// it. Safe to call more than once.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}
