package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

type (
	// InputDevice opens a capture stream. onFrames is called from the
	// device's own goroutine; the slice is only valid during the call.
	InputDevice interface {
		Open(sampleRate float64, onFrames func(kaiku.AudioBuffer)) (InputStream, error)
	}

	// InputStream is an opened capture stream. After Close returns, onFrames
	// is not called anymore.
	InputStream interface {
		Start() error
		Close() error
	}

	// Recorder captures an input device into takes. The captured frames are
	// also played through an input node, so that they can be metered and
	// optionally monitored.
	Recorder struct {
		ctx     *graph.Context
		device  InputDevice
		input   *graph.Input
		meter   *graph.Meter
		monitor *graph.Gain

		mu      sync.Mutex
		stream  InputStream
		start   float64
		done    chan struct{}
		take    kaiku.AudioBuffer
		dropped atomic.Int64

		sendMu sync.Mutex
		frames chan *kaiku.AudioBuffer
		pool   sync.Pool
	}

	// Take is a finished recording.
	Take struct {
		Audio      kaiku.AudioBuffer
		Wav        []byte  // Audio encoded as 16-bit WAV
		SampleRate float64 // rate of Audio
		StartTime  float64 // audio time at which capture began
		Dropped    int     // frames lost because the collector fell behind
	}
)

var (
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
)

func NewRecorder(ctx *graph.Context, device InputDevice, dest graph.Node) *Recorder {
	r := &Recorder{
		ctx:     ctx,
		device:  device,
		input:   graph.NewInput(ctx),
		meter:   graph.NewMeter(ctx),
		monitor: graph.NewGain(ctx, 0),
		pool:    sync.Pool{New: func() any { return &kaiku.AudioBuffer{} }},
	}
	chain(r.input, r.meter, r.monitor, dest)
	return r
}

// Start opens the input device and begins capturing. It returns the audio
// time at which capture began. If the device cannot be opened or started,
// the error wraps kaiku.ErrInputUnavailable and the recorder is left idle.
func (r *Recorder) Start(monitor bool) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return 0, ErrAlreadyRecording
	}
	if r.device == nil {
		return 0, fmt.Errorf("%w: no input device", kaiku.ErrInputUnavailable)
	}
	r.frames = make(chan *kaiku.AudioBuffer, 256)
	r.done = make(chan struct{})
	r.take = nil
	r.dropped.Store(0)
	stream, err := r.device.Open(r.ctx.SampleRate(), r.capture)
	if err != nil {
		r.closeFrames()
		return 0, fmt.Errorf("%w: %w", kaiku.ErrInputUnavailable, err)
	}
	go r.collect(r.frames, r.done)
	if err := stream.Start(); err != nil {
		stream.Close()
		r.closeFrames()
		<-r.done
		return 0, fmt.Errorf("%w: %w", kaiku.ErrInputUnavailable, err)
	}
	if monitor {
		r.monitor.Gain.SetValue(1)
	}
	r.stream = stream
	r.start = r.ctx.Now()
	return r.start, nil
}

// capture runs on the device goroutine and never blocks.
func (r *Recorder) capture(frames kaiku.AudioBuffer) {
	r.input.Write(frames)
	buf := r.pool.Get().(*kaiku.AudioBuffer)
	*buf = append((*buf)[:0], frames...)
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.frames == nil || !TrySend(r.frames, buf) {
		r.dropped.Add(int64(len(frames)))
		r.pool.Put(buf)
	}
}

func (r *Recorder) collect(frames <-chan *kaiku.AudioBuffer, done chan<- struct{}) {
	defer close(done)
	for buf := range frames {
		r.take = append(r.take, *buf...)
		*buf = (*buf)[:0]
		r.pool.Put(buf)
	}
}

func (r *Recorder) closeFrames() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.frames != nil {
		close(r.frames)
		r.frames = nil
	}
}

// Stop ends the capture and returns the take.
func (r *Recorder) Stop() (Take, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return Take{}, ErrNotRecording
	}
	closeErr := r.stream.Close()
	r.stream = nil
	r.closeFrames()
	<-r.done
	r.monitor.Gain.SetValue(0)
	r.input.Reset()
	take := Take{
		Audio:      r.take,
		SampleRate: r.ctx.SampleRate(),
		StartTime:  r.start,
		Dropped:    int(r.dropped.Load()),
	}
	r.take = nil
	wav, err := take.Audio.Wav(true)
	if err != nil {
		return Take{}, fmt.Errorf("could not encode take: %w", err)
	}
	take.Wav = wav
	if closeErr != nil {
		return take, fmt.Errorf("could not close input stream: %w", closeErr)
	}
	return take, nil
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Level is the input meter level, 0 .. 1.
func (r *Recorder) Level() float64 {
	return r.meter.Level()
}

// Duration returns the length of the take in seconds.
func (t Take) Duration() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return t.Audio.Duration(t.SampleRate)
}

// TakeClip places a take on the timeline. The take is shifted earlier by
// the recording latency; if that would put it before the song start, it
// starts at 0 instead and the overflow is trimmed from the beginning of the
// take, so the content still lines up.
func TakeClip(id, trackID, asset string, songStart, latencyMs, length float64) kaiku.Clip {
	c := kaiku.Clip{
		ID:       id,
		TrackID:  trackID,
		Asset:    asset,
		Start:    songStart - latencyMs/1000,
		Duration: length,
	}
	if c.Start < 0 {
		c.Offset = -c.Start
		c.Duration -= c.Offset
		c.Start = 0
	}
	return c
}
