package can

import "encoding/binary"

// U16LE reads an unsigned 16-bit little-endian signal starting at byteOffset
// within a frame's data bytes.
func U16LE(f Frame, byteOffset int) uint16 {
	return binary.LittleEndian.Uint16(f.Data[byteOffset : byteOffset+2])
}

// I16LE reads a signed 16-bit little-endian signal.
func I16LE(f Frame, byteOffset int) int16 {
	return int16(U16LE(f, byteOffset))
}

// Scaled applies a (factor, offset) linear transform to a raw integer
// signal, the shape every DBC-style signal in the corner/radar frames
// uses.
func Scaled(raw int32, factor, offset float64) float64 {
	return float64(raw)*factor + offset
}
