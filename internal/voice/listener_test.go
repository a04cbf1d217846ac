package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aura/pkg/stt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDevice hands out silent streams and counts opens/closes.
type fakeDevice struct {
	mu       sync.Mutex
	opens    int
	closes   int
	openErrs []error
}

func (d *fakeDevice) Open(sampleRate, frameSize int) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.opens
	d.opens++
	if i < len(d.openErrs) && d.openErrs[i] != nil {
		return nil, d.openErrs[i]
	}
	return &fakeStream{dev: d}, nil
}

func (d *fakeDevice) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes
}

type fakeStream struct {
	dev *fakeDevice
}

func (s *fakeStream) Read(buf []float32) error {
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.dev.closes++
	return nil
}

// scriptTranscriber returns scripted results per call, repeating the
// last entry once the script runs out. It records the pcm length of
// each call.
type scriptTranscriber struct {
	mu      sync.Mutex
	script  []scriptStep
	calls   int
	pcmLens []int
}

type scriptStep struct {
	text string
	err  error
}

func (tr *scriptTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	i := tr.calls
	tr.calls++
	tr.pcmLens = append(tr.pcmLens, len(pcm))
	if len(tr.script) == 0 {
		return "", stt.ErrNoSpeech
	}
	if i >= len(tr.script) {
		i = len(tr.script) - 1
	}
	return tr.script[i].text, tr.script[i].err
}

func (tr *scriptTranscriber) callCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.calls
}

func testConfig() Config {
	cfg := Defaults()
	cfg.Continuous = true
	cfg.SampleRate = 1000
	cfg.ChunkSize = 100 // 100ms of audio per chunk
	cfg.Window = 500 * time.Millisecond
	cfg.MaxSilence = 300 * time.Millisecond
	cfg.Backoff = time.Millisecond
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestStripWakePhrase(t *testing.T) {
	cases := []struct {
		in, phrase, want string
		ok               bool
	}{
		{"hey assistant open mail", "hey assistant", "open mail", true},
		{"Hey Assistant open mail", "hey assistant", "open mail", true},
		{"  hey assistant   summarize this  ", "hey assistant", "summarize this", true},
		{"HEY ASSISTANT", "hey assistant", "", true},
		{"please hey assistant stop", "hey assistant", "please  stop", true},
		{"open mail", "hey assistant", "", false},
		{"", "hey assistant", "", false},
	}

	for _, tc := range cases {
		got, ok := stripWakePhrase(tc.in, tc.phrase)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestWakePhraseEnqueuesCommand(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{
		{err: stt.ErrNoSpeech},
		{text: "hey assistant open mail"},
		{err: stt.ErrNoSpeech},
	}}
	l := NewListener(&fakeDevice{}, tr, testConfig())

	l.Start()
	defer l.Stop()

	waitFor(t, func() bool { return l.Pending() > 0 })

	cmd, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, "open mail", cmd)
}

func TestTranscriptWithoutWakePhraseIsIgnored(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{
		{text: "just some background talk"},
		{err: stt.ErrNoSpeech},
	}}
	l := NewListener(&fakeDevice{}, tr, testConfig())

	l.Start()
	waitFor(t, func() bool { return tr.callCount() >= 3 })
	l.Stop()

	assert.Zero(t, l.Pending())
}

func TestBufferResetAfterEnqueue(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{
		{err: stt.ErrNoSpeech},
		{err: stt.ErrNoSpeech},
		{text: "hey assistant do it"},
		{err: stt.ErrNoSpeech},
	}}
	cfg := testConfig()
	cfg.MaxSilence = 10 * time.Second
	l := NewListener(&fakeDevice{}, tr, cfg)

	l.Start()
	waitFor(t, func() bool { return tr.callCount() >= 4 })
	l.Stop()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	// Three chunks accumulated by the wake call; after the enqueue the
	// rolling buffer restarts from empty, so the next transcription
	// sees exactly one fresh chunk.
	require.GreaterOrEqual(t, len(tr.pcmLens), 4)
	assert.Equal(t, 300, tr.pcmLens[2])
	assert.Equal(t, 100, tr.pcmLens[3])

	cmd, ok := l.queue.pop()
	require.True(t, ok)
	assert.Equal(t, "do it", cmd)
	_, ok = l.queue.pop()
	assert.False(t, ok, "same utterance must not be queued twice")
}

func TestRollingWindowIsCapped(t *testing.T) {
	tr := &scriptTranscriber{} // always ErrNoSpeech... but silence closes the session
	cfg := testConfig()
	cfg.MaxSilence = 10 * time.Second
	l := NewListener(&fakeDevice{}, tr, cfg)

	l.Start()
	waitFor(t, func() bool { return tr.callCount() >= 10 })
	l.Stop()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, n := range tr.pcmLens {
		assert.LessOrEqual(t, n, 500) // Window(500ms) * SampleRate(1000)
	}
}

func TestSilenceTimeoutReleasesAndReopensStream(t *testing.T) {
	dev := &fakeDevice{}
	tr := &scriptTranscriber{} // never recognizes anything
	l := NewListener(dev, tr, testConfig())

	l.Start()
	waitFor(t, func() bool {
		opens, closes := dev.counts()
		return opens >= 2 && closes >= 1
	})
	l.Stop()
}

func TestDeviceErrorRetriesAfterBackoff(t *testing.T) {
	dev := &fakeDevice{openErrs: []error{errors.New("device busy")}}
	tr := &scriptTranscriber{script: []scriptStep{{text: "hey assistant ping"}, {err: stt.ErrNoSpeech}}}
	l := NewListener(dev, tr, testConfig())

	l.Start()
	defer l.Stop()

	waitFor(t, func() bool { return l.Pending() > 0 })
}

func TestPauseReleasesMicrophoneUntilResume(t *testing.T) {
	dev := &fakeDevice{}
	tr := &scriptTranscriber{}
	cfg := testConfig()
	cfg.MaxSilence = 10 * time.Second
	l := NewListener(dev, tr, cfg)

	l.Start()
	waitFor(t, func() bool {
		opens, _ := dev.counts()
		return opens >= 1
	})

	l.Pause()
	waitFor(t, func() bool {
		opens, closes := dev.counts()
		return closes >= opens
	})
	assert.True(t, l.Paused())

	opensBefore, _ := dev.counts()
	time.Sleep(20 * time.Millisecond)
	opensAfter, _ := dev.counts()
	assert.Equal(t, opensBefore, opensAfter, "paused listener must not reopen the device")

	l.Resume()
	waitFor(t, func() bool {
		opens, _ := dev.counts()
		return opens > opensBefore
	})
	assert.False(t, l.Paused())
	l.Stop()
}

func TestStopWhilePausedDoesNotHang(t *testing.T) {
	l := NewListener(&fakeDevice{}, &scriptTranscriber{}, testConfig())
	l.Start()
	l.Pause()
	l.Stop()
}

func TestCaptureOnceWorksWhilePaused(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{{text: "what time is it"}}}
	cfg := testConfig()
	cfg.MaxSilence = 10 * time.Second
	dev := &fakeDevice{}
	l := NewListener(dev, tr, cfg)

	l.Start()
	defer l.Stop()
	l.Pause()
	waitFor(t, func() bool {
		opens, closes := dev.counts()
		return opens >= 1 && closes >= opens
	})

	text, err := l.CaptureOnce(context.Background(), time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "what time is it", text)
}

func TestQueueIsFIFO(t *testing.T) {
	l := NewListener(&fakeDevice{}, &scriptTranscriber{}, testConfig())
	l.queue.push("a")
	l.queue.push("b")

	first, ok := l.Next()
	require.True(t, ok)
	second, ok := l.Next()
	require.True(t, ok)
	_, ok = l.Next()

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
	assert.False(t, ok)
}

func TestConcurrentPopsNeverDuplicate(t *testing.T) {
	l := NewListener(&fakeDevice{}, &scriptTranscriber{}, testConfig())
	const n = 200
	for i := 0; i < n; i++ {
		l.queue.push("cmd")
	}

	var (
		wg    sync.WaitGroup
		total int64
		mu    sync.Mutex
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := l.Next(); !ok {
					return
				}
				mu.Lock()
				total++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, n, total)
}

func TestStopIsIdempotentAndFinal(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{{text: "hey assistant one"}}}
	l := NewListener(&fakeDevice{}, tr, testConfig())

	l.Start()
	waitFor(t, func() bool { return l.Pending() > 0 })

	l.Stop()
	l.Stop()

	before := tr.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, tr.callCount())
}

func TestStopWithoutStart(t *testing.T) {
	cfg := testConfig()
	cfg.Continuous = false
	l := NewListener(&fakeDevice{}, &scriptTranscriber{}, cfg)
	l.Start() // no-op when continuous listening is off
	l.Stop()
}

func TestCaptureOnce(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{{text: "what is on my screen"}}}
	cfg := testConfig()
	cfg.Continuous = false
	l := NewListener(&fakeDevice{}, tr, cfg)

	text, err := l.CaptureOnce(context.Background(), time.Second, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "what is on my screen", text)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 200, tr.pcmLens[0]) // phrase limit: 200ms at 1kHz
}

func TestCaptureOnceNotUnderstood(t *testing.T) {
	tr := &scriptTranscriber{script: []scriptStep{{err: stt.ErrNoSpeech}}}
	cfg := testConfig()
	cfg.Continuous = false
	l := NewListener(&fakeDevice{}, tr, cfg)

	_, err := l.CaptureOnce(context.Background(), time.Second, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotUnderstood)
}

func TestCaptureOnceDeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{openErrs: []error{errors.New("no mic")}}
	cfg := testConfig()
	cfg.Continuous = false
	l := NewListener(dev, &scriptTranscriber{}, cfg)

	_, err := l.CaptureOnce(context.Background(), time.Second, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnavailable)
}
