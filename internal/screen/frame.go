package screen

import (
	"image"
	"time"

	"golang.org/x/image/draw"
)

// Frame is one grayscale raster grabbed from a display. It lives only
// inside a sampling cycle, except when it is kept as the baseline for
// change detection on the next cycle.
type Frame struct {
	Pix    []uint8
	Width  int
	Height int
	At     time.Time
}

// FromRGBA converts a captured RGBA image to a grayscale frame using
// the usual luma weights.
func FromRGBA(img *image.RGBA, at time.Time) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h, At: at}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])
			f.Pix[y*w+x] = uint8(0.299*r + 0.587*g + 0.114*bl)
		}
	}

	return f
}

func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Pix,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// MeanSquaredDiff returns the mean squared per-pixel difference between
// two frames. Frames of different geometry compare as maximally
// different, so a resolution change always counts as a screen change.
func MeanSquaredDiff(a, b *Frame) float64 {
	if a.Width != b.Width || a.Height != b.Height || len(a.Pix) == 0 {
		return 255 * 255
	}

	var sum float64
	for i := range a.Pix {
		d := float64(int(a.Pix[i]) - int(b.Pix[i]))
		sum += d * d
	}

	return sum / float64(len(a.Pix))
}

// Downscale resizes the frame by the given factor (0 < factor <= 1).
func Downscale(f *Frame, factor float64) *Frame {
	if factor <= 0 || factor >= 1 {
		return f
	}

	w := int(float64(f.Width) * factor)
	h := int(float64(f.Height) * factor)
	if w < 1 || h < 1 {
		return f
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.Gray(), f.Gray().Bounds(), draw.Src, nil)

	return &Frame{Pix: dst.Pix, Width: w, Height: h, At: f.At}
}

// AdaptiveThreshold binarizes the frame against a local mean computed
// over a block x block neighbourhood, minus a small constant bias. This
// mirrors the usual OCR preprocessing step for uneven screen lighting.
func AdaptiveThreshold(f *Frame, block, bias int) *Frame {
	if block < 3 {
		block = 11
	}
	if block%2 == 0 {
		block++
	}

	w, h := f.Width, f.Height
	out := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h, At: f.At}

	// Summed-area table so the local mean is O(1) per pixel.
	integ := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(f.Pix[y*w+x])
			integ[(y+1)*(w+1)+x+1] = integ[y*(w+1)+x+1] + rowSum
		}
	}

	half := block / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x-half, y-half
			x1, y1 := x+half+1, y+half+1
			if x0 < 0 {
				x0 = 0
			}
			if y0 < 0 {
				y0 = 0
			}
			if x1 > w {
				x1 = w
			}
			if y1 > h {
				y1 = h
			}

			area := uint64((x1 - x0) * (y1 - y0))
			sum := integ[y1*(w+1)+x1] - integ[y0*(w+1)+x1] - integ[y1*(w+1)+x0] + integ[y0*(w+1)+x0]
			mean := int(sum / area)

			if int(f.Pix[y*w+x]) > mean-bias {
				out.Pix[y*w+x] = 255
			}
		}
	}

	return out
}
