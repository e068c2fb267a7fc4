package memory

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VectorToBinary packs a vector as densely packed little-endian IEEE-754
// float32, 4 bytes per element, BSON generic binary subtype. This is an
// on-disk format shared with other readers; the endianness must not change.
func VectorToBinary(vec []float32) primitive.Binary {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return primitive.Binary{Subtype: 0x00, Data: buf}
}

// BinaryToVector unpacks a packed float32 vector. The element count is the
// byte length divided by 4.
func BinaryToVector(bin primitive.Binary) ([]float32, error) {
	if len(bin.Data)%4 != 0 {
		return nil, fmt.Errorf("embedding binary length %d not a multiple of 4", len(bin.Data))
	}
	vec := make([]float32, len(bin.Data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(bin.Data[i*4:]))
	}
	return vec, nil
}
