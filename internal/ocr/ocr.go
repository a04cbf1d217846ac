// Package ocr wraps the external text-extraction engine behind a small
// capability interface so the sampler never depends on tesseract
// directly.
package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Extractor turns a raster image into text.
type Extractor interface {
	Extract(img image.Image) (string, error)
	Close() error
}

type tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates an Extractor backed by a local tesseract
// installation. The single-block page segmentation mode works best on
// screen captures, which are mostly one dense region of UI text.
func NewTesseract(languages ...string) (Extractor, error) {
	client := gosseract.NewClient()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}

	return &tesseract{client: client}, nil
}

func (t *tesseract) Extract(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	return strings.TrimSpace(text), nil
}

func (t *tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
