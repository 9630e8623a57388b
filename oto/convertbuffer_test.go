package oto_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/trackline/trackline/oto"
)

func TestFloatBufferToFloat32LE(t *testing.T) {
	in := []float32{0, 0.5, -0.25, 2, -3}
	expected := []float32{0, 0.5, -0.25, 1, -1}
	out := oto.FloatBufferToFloat32LE(in, nil)
	if len(out) != 4*len(in) {
		t.Fatalf("length: got %v, expected %v", len(out), 4*len(in))
	}
	for i, e := range expected {
		if v := math.Float32frombits(binary.LittleEndian.Uint32(out[4*i:])); v != e {
			t.Errorf("sample %d: got %v, expected %v", i, v, e)
		}
	}
}

func TestFloatBufferTo16BitLEReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 64)
	out := oto.FloatBufferTo16BitLE([]float32{1, -1, 0, 5}, dst)
	if &out[0] != &dst[:1][0] {
		t.Errorf("buffer with enough capacity was not reused")
	}
	expected := []int16{math.MaxInt16, -math.MaxInt16, 0, math.MaxInt16}
	for i, e := range expected {
		if v := int16(binary.LittleEndian.Uint16(out[2*i:])); v != e {
			t.Errorf("sample %d: got %v, expected %v", i, v, e)
		}
	}
}
