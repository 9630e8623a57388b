package oto

import (
	"encoding/binary"
	"math"
)

// FloatBufferToFloat32LE appends the samples of buff to dst as 32-bit
// little-endian floats, the native format of the oto driver, and returns
// the extended slice. Samples are clipped to [-1, 1].
func FloatBufferToFloat32LE(buff []float32, dst []byte) []byte {
	for _, v := range buff {
		v = max(-1, min(1, v))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// FloatBufferTo16BitLE appends the samples of buff to dst as 16-bit
// little-endian integers and returns the extended slice.
func FloatBufferTo16BitLE(buff []float32, dst []byte) []byte {
	for _, v := range buff {
		var uv int16
		if v < -1.0 {
			uv = -math.MaxInt16
		} else if v > 1.0 {
			uv = math.MaxInt16
		} else {
			uv = int16(v * math.MaxInt16)
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(uv))
	}
	return dst
}
