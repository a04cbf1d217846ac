// Package notify plays short earcons so the user hears that the wake
// phrase was picked up without looking at a screen.
package notify

import (
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

const (
	chimeRate = beep.SampleRate(44100)
	chimeFreq = 880.0
	chimeLen  = 150 * time.Millisecond
)

var initOnce sync.Once

// Chime plays a short sine tone. Playback is asynchronous; failures to
// open the output device are returned, a busy speaker is not an error.
func Chime() error {
	var initErr error
	initOnce.Do(func() {
		initErr = speaker.Init(chimeRate, chimeRate.N(time.Second/10))
	})
	if initErr != nil {
		return initErr
	}

	speaker.Play(beep.Take(chimeRate.N(chimeLen), tone(chimeFreq)))
	return nil
}

// tone is an endless sine streamer with a short attack ramp so the
// chime does not click.
func tone(freq float64) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.3 * math.Sin(2*math.Pi*freq*float64(pos)/float64(chimeRate))
			if pos < 200 {
				v *= float64(pos) / 200
			}
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
}
