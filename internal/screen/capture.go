package screen

import (
	"errors"
	"time"

	"github.com/kbinani/screenshot"
)

// Grabber captures one frame of the primary display.
type Grabber interface {
	Grab() (*Frame, error)
}

type displayGrabber struct {
	display int
}

// NewDisplayGrabber returns a Grabber for the primary display.
func NewDisplayGrabber() Grabber {
	return &displayGrabber{display: 0}
}

func (g *displayGrabber) Grab() (*Frame, error) {
	if screenshot.NumActiveDisplays() <= g.display {
		return nil, errors.New("no active display")
	}

	img, err := screenshot.CaptureDisplay(g.display)
	if err != nil {
		return nil, err
	}

	return FromRGBA(img, time.Now()), nil
}
