// Package audio provides the portaudio-backed microphone device and
// helpers around the host audio stack.
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"aura/internal/voice"
)

// Microphone implements voice.Device on top of the default portaudio
// input device. Init must be called once before any Open.
type Microphone struct{}

func NewMicrophone() *Microphone { return &Microphone{} }

func (m *Microphone) Init() error {
	return portaudio.Initialize()
}

func (m *Microphone) Close() {
	portaudio.Terminate()
}

func (m *Microphone) Open(sampleRate, frameSize int) (voice.Stream, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &micStream{stream: stream, buf: buf}, nil
}

type micStream struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *micStream) Read(dst []float32) error {
	if err := s.stream.Read(); err != nil {
		return err
	}
	copy(dst, s.buf)
	return nil
}

func (s *micStream) Close() error {
	s.stream.Stop()
	return s.stream.Close()
}
