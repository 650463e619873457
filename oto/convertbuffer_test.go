package oto_test

import (
	"encoding/binary"
	"testing"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/oto"
)

func TestAudioBufferTo16BitLE(t *testing.T) {
	buf := kaiku.AudioBuffer{{0, 1}, {-1, 0.5}, {2, -2}}
	out := oto.AudioBufferTo16BitLE(buf, nil)
	if len(out) != 12 {
		t.Fatalf("got %v bytes, want 12", len(out))
	}
	want := []int16{0, 32767, -32767, 16383, 32767, -32768}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[2*i:])); got != w {
			t.Fatalf("sample %v = %v, want %v", i, got, w)
		}
	}
}

func TestAudioBufferTo16BitLEMatchesWav(t *testing.T) {
	buf := kaiku.AudioBuffer{{0.1, -0.2}, {0.3333, -0.999}}
	raw, err := buf.Raw(true)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if got := oto.AudioBufferTo16BitLE(buf, nil); string(got) != string(raw) {
		t.Fatalf("device conversion differs from export")
	}
}
