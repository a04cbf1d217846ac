package screen

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatFrame(w, h int, v uint8) *Frame {
	f := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h, At: time.Now()}
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestMeanSquaredDiff(t *testing.T) {
	a := flatFrame(8, 8, 100)
	b := flatFrame(8, 8, 100)
	assert.Equal(t, 0.0, MeanSquaredDiff(a, b))

	c := flatFrame(8, 8, 110)
	assert.Equal(t, 100.0, MeanSquaredDiff(a, c))
}

func TestMeanSquaredDiffGeometryMismatch(t *testing.T) {
	a := flatFrame(8, 8, 0)
	b := flatFrame(4, 4, 0)
	assert.Equal(t, float64(255*255), MeanSquaredDiff(a, b))
}

func TestDownscale(t *testing.T) {
	f := flatFrame(10, 10, 200)
	out := Downscale(f, 0.5)
	require.Equal(t, 5, out.Width)
	require.Equal(t, 5, out.Height)
	assert.Equal(t, f.At, out.At)

	// Out-of-range factors leave the frame untouched.
	assert.Same(t, f, Downscale(f, 0))
	assert.Same(t, f, Downscale(f, 1.5))
}

func TestAdaptiveThresholdBinarizes(t *testing.T) {
	// Left half dark, right half bright.
	f := flatFrame(20, 10, 0)
	for y := 0; y < 10; y++ {
		for x := 10; x < 20; x++ {
			f.Pix[y*20+x] = 220
		}
	}

	out := AdaptiveThreshold(f, 11, 2)
	for _, v := range out.Pix {
		assert.True(t, v == 0 || v == 255)
	}
	// Deep inside each half the local mean matches the pixel value, so
	// dark stays dark only where it undershoots the biased mean.
	assert.Equal(t, uint8(255), out.Pix[5*20+18])
}

func TestFromRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.Black)

	f := FromRGBA(img, time.Now())
	require.Len(t, f.Pix, 2)
	assert.Greater(t, f.Pix[0], uint8(250))
	assert.Less(t, f.Pix[1], uint8(5))
}
