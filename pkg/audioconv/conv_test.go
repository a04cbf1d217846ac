package audioconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownmixAverages(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	got := downmix(stereo, 2)
	assert.Equal(t, []float32{0.5, 0.5, 0}, got)
}

func TestResampleHalvesLength(t *testing.T) {
	in := make([]float32, 32000)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 50))
	}

	out := resample(in, 32000, 16000)
	assert.Equal(t, 16000, len(out))
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, in, resample(in, 16000, 16000))
}

func TestInt16ScaleEndpoints(t *testing.T) {
	out := int16ToFloat32([]int16{-32768, 0, 32767})
	assert.InDelta(t, -1.0, out[0], 1e-6)
	assert.InDelta(t, 0.0, out[1], 1e-6)
	assert.InDelta(t, 1.0, out[2], 1e-3)
}

func TestDecodeRejectsJunk(t *testing.T) {
	_, err := DecodeToPCM16k([]byte("not audio at all"), "clip.bin", Options{})
	assert.ErrorContains(t, err, "unsupported audio format")

	_, err = DecodeToPCM16k([]byte{1, 2}, "clip.wav", Options{})
	assert.Error(t, err)
}

func TestFinishAppliesSampleCap(t *testing.T) {
	in := make([]float32, 100)
	out := finish(in, 1, TargetRate, Options{MaxSamples: 40})
	assert.Equal(t, 40, len(out))
}
