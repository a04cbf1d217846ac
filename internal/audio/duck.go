package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	id     int
	volume int
}

// Ducker lowers the volume of other applications' output streams while
// a voice capture is in progress, then restores them. It shells out to
// pactl and is a best-effort convenience: every failure is non-fatal.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	factor   float64
	floor    int
	original map[int]int // sink-input id -> volume before ducking
}

func NewDucker(factor float64, floor int) *Ducker {
	if factor <= 0 || factor > 1 {
		factor = 0.3
	}
	if floor < 0 {
		floor = 0
	}
	return &Ducker{factor: factor, floor: floor, original: make(map[int]int)}
}

// Duck lowers all current sink inputs to volume*factor (not below the
// floor). Calling it while already ducked is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := listSinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.original = make(map[int]int)
	for _, in := range inputs {
		target := int(math.Round(float64(in.volume) * d.factor))
		if target < d.floor {
			target = d.floor
		}
		if err := setSinkInputVolume(ctx, in.id, target); err != nil {
			continue
		}
		d.original[in.id] = in.volume
	}

	d.active = true
	return nil
}

// Restore puts every stream ducked by the last Duck back to its
// original volume. Streams that appeared after ducking are untouched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	for id, vol := range d.original {
		_ = setSinkInputVolume(ctx, id, vol)
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, err
	}

	var inputs []sinkInput
	for _, block := range strings.Split(string(out), "Sink Input #")[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		in := sinkInput{id: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Volume:") {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					in.volume, _ = strconv.Atoi(m[1])
				}
				break
			}
		}

		if in.volume > 0 {
			inputs = append(inputs, in)
		}
	}

	return inputs, nil
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 150 {
		percent = 150
	}
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}
