// Package decode reads WAV and MP3 assets from disk into buffers at the
// sample rate of the audio context.
package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

// Files decodes asset keys as paths relative to Root. It implements
// engine.Decoder.
type Files struct {
	Root string
}

var ErrUnknownFormat = errors.New("unknown audio format")

func (f Files) Decode(ctx context.Context, key string, sampleRate int) (*graph.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(f.Root, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, rate, err := Read(file, filepath.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rate != sampleRate {
		data = Resample(data, rate, sampleRate)
	}
	return &graph.Buffer{SampleRate: float64(sampleRate), Data: data}, nil
}

// Read decodes a stream by its file extension and returns the frames and
// their sample rate. Mono is copied to both channels.
func Read(r io.ReadSeeker, ext string) (kaiku.AudioBuffer, int, error) {
	switch strings.ToLower(ext) {
	case ".wav":
		return readWav(r)
	case ".mp3":
		return readMP3(r)
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

func readWav(r io.ReadSeeker) (kaiku.AudioBuffer, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading WAV data failed: %w", err)
	}
	bitDepth := int(decoder.BitDepth)
	channels := buf.Format.NumChannels
	if bitDepth == 0 || channels == 0 {
		return nil, 0, errors.New("WAV file has no bit depth or channels")
	}
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	ret := make(kaiku.AudioBuffer, len(buf.Data)/channels)
	for i := range ret {
		l := float32(buf.Data[i*channels]) / factor
		r := l
		if channels > 1 {
			r = float32(buf.Data[i*channels+1]) / factor
		}
		ret[i] = [2]float32{l, r}
	}
	return ret, buf.Format.SampleRate, nil
}

// go-mp3 always outputs 16-bit little endian stereo
func readMP3(r io.Reader) (kaiku.AudioBuffer, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading MP3 header failed: %w", err)
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding MP3 failed: %w", err)
	}
	ret := make(kaiku.AudioBuffer, len(raw)/4)
	for i := range ret {
		l := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		r := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		ret[i] = [2]float32{float32(l) / 32768, float32(r) / 32768}
	}
	return ret, decoder.SampleRate(), nil
}

// Resample converts the buffer from one sample rate to another with beep's
// interpolating resampler.
func Resample(buf kaiku.AudioBuffer, from, to int) kaiku.AudioBuffer {
	if from == to || len(buf) == 0 {
		return buf
	}
	pos := 0
	src := beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= len(buf) {
			return 0, false
		}
		for n < len(samples) && pos < len(buf) {
			samples[n] = [2]float64{float64(buf[pos][0]), float64(buf[pos][1])}
			n++
			pos++
		}
		return n, true
	})
	resampler := beep.Resample(4, beep.SampleRate(from), beep.SampleRate(to), src)
	ret := make(kaiku.AudioBuffer, 0, int(int64(len(buf))*int64(to)/int64(from))+1)
	chunk := make([][2]float64, 512)
	for {
		n, ok := resampler.Stream(chunk)
		for _, s := range chunk[:n] {
			ret = append(ret, [2]float32{float32(s[0]), float32(s[1])})
		}
		if !ok {
			return ret
		}
	}
}
