// Package stt defines the speech-to-text capability consumed by the
// voice listener, plus a whisper.cpp implementation.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrNoSpeech means the engine ran but recognized nothing usable.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrUnavailable means the engine itself failed.
	ErrUnavailable = errors.New("speech service unavailable")
)

// Transcriber converts mono 16 kHz float32 PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}
