package stt

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper transcribes locally via whisper.cpp. The model is loaded once
// and safe to share; each call gets its own whisper context.
type Whisper struct {
	model    whisper.Model
	language string
	threads  int
}

func NewWhisper(modelPath, language string) (*Whisper, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("empty model path")
	}

	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	if language == "" {
		language = "auto"
	}

	return &Whisper{model: m, language: language, threads: runtime.NumCPU()}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

// Transcribe runs the model over pcm (mono, 16 kHz, [-1, 1]). An empty
// recognition result maps to ErrNoSpeech; engine failures wrap
// ErrUnavailable so callers can tell the two apart.
func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: new context: %v", ErrUnavailable, err)
	}

	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("%w: set language: %v", ErrUnavailable, err)
	}
	wctx.SetThreads(uint(w.threads))

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process: %v", ErrUnavailable, err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: next segment: %v", ErrUnavailable, err)
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", ErrNoSpeech
	}

	return text, nil
}
