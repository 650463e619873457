package oto

import (
	"encoding/binary"

	"github.com/vsariola/kaiku"
)

// AudioBufferTo16BitLE appends the frames of buff to dst as interleaved
// 16-bit little-endian samples, using the same conversion as WAV export.
func AudioBufferTo16BitLE(buff kaiku.AudioBuffer, dst []byte) []byte {
	for _, v := range buff {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(kaiku.ToPCM16(v[0])))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(kaiku.ToPCM16(v[1])))
	}
	return dst
}
