package serde

import (
	"encoding/binary"
	"slices"

	"github.com/CefBoud/monmeta/types"
)

// Encoding is Big Endian as per the protocol
var Encoding = binary.BigEndian

// BufferIncrement is the size of the increment when the buffer limit is reached
const BufferIncrement = 16384

// Encoder is a byte slice with an offset
type Encoder struct {
	b      []byte // Buffer to hold encoded data
	offset int    // Current position in the buffer
}

// NewEncoder creates a new Encoder with an initial buffer
func NewEncoder() Encoder {
	return Encoder{b: make([]byte, BufferIncrement)}
}

// ensureBufferSpace ensures the buffer has enough space to accommodate the new data
func (e *Encoder) ensureBufferSpace(off int) {
	if off+e.offset > len(e.b) {
		newBuffer := make([]byte, len(e.b)+BufferIncrement+off)
		copy(newBuffer, e.b)
		e.b = newBuffer
	}
}

// PutInt32 encodes a uint32 value into the buffer
func (e *Encoder) PutInt32(i uint32) {
	e.ensureBufferSpace(4)
	Encoding.PutUint32(e.b[e.offset:], i)
	e.offset += 4
}

// PutSignedInt32 encodes an int32 value (two's complement) into the buffer.
// Negative values are how the protocol carries its sentinels (-1 no leader/controller, -2 delete).
func (e *Encoder) PutSignedInt32(i int32) {
	e.PutInt32(uint32(i))
}

// PutInt64 encodes a uint64 value into the buffer
func (e *Encoder) PutInt64(i uint64) {
	e.ensureBufferSpace(8)
	Encoding.PutUint64(e.b[e.offset:], i)
	e.offset += 8
}

// PutInt16 encodes a uint16 value into the buffer
func (e *Encoder) PutInt16(i uint16) {
	e.ensureBufferSpace(2)
	Encoding.PutUint16(e.b[e.offset:], i)
	e.offset += 2
}

// PutInt8 encodes a uint8 value into the buffer
func (e *Encoder) PutInt8(i uint8) {
	e.ensureBufferSpace(1)
	e.b[e.offset] = byte(i)
	e.offset++
}

// PutBool encodes a boolean value into the buffer
func (e *Encoder) PutBool(b bool) {
	e.ensureBufferSpace(1)
	e.b[e.offset] = byte(0)
	if b {
		e.b[e.offset] = byte(1)
	}
	e.offset++
}

// PutString encodes a string (INT16 length + content) into the buffer
func (e *Encoder) PutString(s string) {
	e.ensureBufferSpace(2 + len(s))
	e.PutInt16(uint16(len(s)))
	copy(e.b[e.offset:], s)
	e.offset += len(s)
}

// PutBytes encodes a raw byte slice into the buffer
func (e *Encoder) PutBytes(b []byte) {
	e.ensureBufferSpace(len(b))
	copy(e.b[e.offset:], b)
	e.offset += len(b)
}

// PutUUID encodes a 16-byte identifier into the buffer
func (e *Encoder) PutUUID(u [16]byte) {
	e.ensureBufferSpace(16)
	copy(e.b[e.offset:], u[:])
	e.offset += 16
}

// PutInt32Array encodes an array of int32 as an INT32 count followed by the elements
func (e *Encoder) PutInt32Array(a []int32) {
	e.PutInt32(uint32(len(a)))
	for _, i := range a {
		e.PutSignedInt32(i)
	}
}

// PutArrayLen encodes the element count of an array
func (e *Encoder) PutArrayLen(l int) {
	e.PutInt32(uint32(l))
}

// PutLen encodes the total length of the buffer at the start
func (e *Encoder) PutLen() {
	lengthBytes := Encoding.AppendUint32([]byte{}, uint32(e.offset))
	e.b = slices.Insert(e.b, 0, lengthBytes...)
	e.offset += len(lengthBytes)
}

// EndStruct marks the end of a structure (empty tagged fields buffer)
func (e *Encoder) EndStruct() {
	e.ensureBufferSpace(1)
	e.b[e.offset] = 0
	e.offset++
}

// Bytes returns the encoded data as a byte slice
func (e *Encoder) Bytes() []byte {
	return e.b[:e.offset]
}

// ParseHeader parses the header of a framed request
func ParseHeader(buffer []byte, connAddr string) types.Request {
	clientIDLen := Encoding.Uint16(buffer[12:])

	return types.Request{
		Length:            Encoding.Uint32(buffer),
		RequestAPIKey:     Encoding.Uint16(buffer[4:]),
		RequestAPIVersion: Encoding.Uint16(buffer[6:]),
		CorrelationID:     Encoding.Uint32(buffer[8:]),
		ClientID:          string(buffer[14 : 14+clientIDLen]),
		ConnectionAddress: connAddr,
		Body:              buffer[14+clientIDLen+1:], // + 1 for empty _tagged_fields
	}
}

// Decoder is a byte slice and offset
type Decoder struct {
	b      []byte
	Offset int
}

// NewDecoder creates a new Decoder from a byte slice
func NewDecoder(b []byte) Decoder {
	return Decoder{b: b}
}

// UInt32 decodes a uint32 value from the buffer
func (d *Decoder) UInt32() uint32 {
	res := Encoding.Uint32(d.b[d.Offset:])
	d.Offset += 4
	return res
}

// Int32 decodes a signed int32 value from the buffer
func (d *Decoder) Int32() int32 {
	return int32(d.UInt32())
}

// UInt64 decodes a uint64 value from the buffer
func (d *Decoder) UInt64() uint64 {
	res := Encoding.Uint64(d.b[d.Offset:])
	d.Offset += 8
	return res
}

// UInt16 decodes a uint16 value from the buffer
func (d *Decoder) UInt16() uint16 {
	res := Encoding.Uint16(d.b[d.Offset:])
	d.Offset += 2
	return res
}

// UInt8 decodes a uint8 value from the buffer
func (d *Decoder) UInt8() uint8 {
	res := uint8(d.b[d.Offset])
	d.Offset++
	return res
}

// Bool decodes a boolean value from the buffer
func (d *Decoder) Bool() bool {
	res := d.b[d.Offset] > 0
	d.Offset++
	return res
}

// UUID decodes a 16-byte identifier from the buffer
func (d *Decoder) UUID() [16]byte {
	uuid := d.b[d.Offset : d.Offset+16]
	d.Offset += 16
	return [16]byte(uuid)
}

// String decodes a string (INT16 length + content) from the buffer
func (d *Decoder) String() string {
	stringLen := d.UInt16()
	if stringLen == 0 { // nullable string
		return ""
	}
	res := string(d.b[d.Offset : d.Offset+int(stringLen)])
	d.Offset += int(stringLen)
	return res
}

// Int32Array decodes an INT32 count followed by that many int32 elements
func (d *Decoder) Int32Array() []int32 {
	n := int(d.UInt32())
	if n == 0 {
		return nil
	}
	res := make([]int32, n)
	for i := 0; i < n; i++ {
		res[i] = d.Int32()
	}
	return res
}

// ArrayLen decodes the element count of an array
func (d *Decoder) ArrayLen() int {
	return int(d.UInt32())
}

// GetNBytes decodes `n` bytes from the buffer
func (d *Decoder) GetNBytes(n int) []byte {
	res := d.b[d.Offset : d.Offset+n]
	d.Offset += n
	return res
}

// EndStruct skips an empty tagged fields buffer
func (d *Decoder) EndStruct() {
	d.Offset++
}
