package storage

import (
	"encoding/binary"
	"math"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

// EncodeVector serializes a float32 vector as little-endian bytes for
// blob storage.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes a vector blob written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.New(errors.KindVectorIndex, "invalid vector blob length").
			WithContext("length", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
