package kaiku

// AudioBuffer is a buffer of stereo frames.
type AudioBuffer [][2]float32

// AudioSource renders audio on demand. Output devices call Process from
// their own goroutine whenever they need more frames.
type AudioSource interface {
	Process(buffer AudioBuffer)
}

// AudioOutput is a running output device pulling from an AudioSource.
type AudioOutput interface {
	Close() error
}

// Resize returns a buffer of length n, reusing the backing array if it is
// large enough. The contents are not cleared.
func (b AudioBuffer) Resize(n int) AudioBuffer {
	if cap(b) < n {
		return make(AudioBuffer, n)
	}
	return b[:n]
}

// Add mixes other into b, sample by sample, up to the shorter length.
func (b AudioBuffer) Add(other AudioBuffer) {
	n := min(len(b), len(other))
	for i := 0; i < n; i++ {
		b[i][0] += other[i][0]
		b[i][1] += other[i][1]
	}
}

// Duration returns the length of the buffer in seconds.
func (b AudioBuffer) Duration(sampleRate float64) float64 {
	return float64(len(b)) / sampleRate
}
