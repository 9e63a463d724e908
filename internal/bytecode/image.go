package bytecode

import "encoding/binary"

// DebugInfo stores the source location an instruction was emitted from.
type DebugInfo struct {
	Line     int
	Column   int
	File     string
	Function string
}

// Image is the append-only byte buffer the code generator writes into and
// the VM loads: code stream first, then the constants table, which the
// compiler's Generator.Generate adds with Append after the final HALT
// (spec.md §3 "Byte image").
type Image struct {
	Code  []byte
	Debug []DebugInfo
}

// NewImage returns an empty image ready for emission.
func NewImage() *Image {
	return &Image{Code: []byte{}, Debug: []DebugInfo{}}
}

// Pos returns the offset the next write will land at.
func (im *Image) Pos() int {
	return len(im.Code)
}

// WriteOp appends an opcode byte and returns the offset it was written at.
func (im *Image) WriteOp(op OpCode) int {
	pos := len(im.Code)
	im.Code = append(im.Code, byte(op))
	im.Debug = append(im.Debug, DebugInfo{})
	return pos
}

// WriteOpDebug is WriteOp with an explicit source-location annotation.
func (im *Image) WriteOpDebug(op OpCode, d DebugInfo) int {
	pos := len(im.Code)
	im.Code = append(im.Code, byte(op))
	im.Debug = append(im.Debug, d)
	return pos
}

// WriteByte appends a single raw byte (e.g. a tag byte) and returns its offset.
func (im *Image) WriteByte(b byte) int {
	pos := len(im.Code)
	im.Code = append(im.Code, b)
	im.Debug = append(im.Debug, DebugInfo{})
	return pos
}

// WriteI32 appends a little-endian 4-byte placeholder (typically an
// address slot awaiting a later patch) and returns the slot's offset.
func (im *Image) WriteI32(v int32) int {
	pos := len(im.Code)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	im.Code = append(im.Code, buf[:]...)
	im.Debug = append(im.Debug, DebugInfo{}, DebugInfo{}, DebugInfo{}, DebugInfo{})
	return pos
}

// WriteI64 appends a little-endian 8-byte immediate (integer/real payloads).
func (im *Image) WriteI64(v int64) int {
	pos := len(im.Code)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	im.Code = append(im.Code, buf[:]...)
	for i := 0; i < 8; i++ {
		im.Debug = append(im.Debug, DebugInfo{})
	}
	return pos
}

// PatchI32 overwrites the 4-byte slot at pos (previously returned by
// WriteI32) with a resolved address.
func (im *Image) PatchI32(pos int, v int32) {
	binary.LittleEndian.PutUint32(im.Code[pos:pos+4], uint32(v))
}

// PatchOp overwrites the single opcode byte at pos (previously returned by
// WriteOp), used to backpatch a NOP placeholder into a real cast once the
// code generator has determined the operand types it straddles.
func (im *Image) PatchOp(pos int, op OpCode) {
	im.Code[pos] = byte(op)
}

// ReadI32 decodes a little-endian 4-byte address at pos.
func (im *Image) ReadI32(pos int) int32 {
	return int32(binary.LittleEndian.Uint32(im.Code[pos : pos+4]))
}

// GetDebugInfo returns the recorded source location for the instruction at
// byte offset ip, or the zero value if ip is out of range.
func (im *Image) GetDebugInfo(ip int) DebugInfo {
	if ip >= 0 && ip < len(im.Debug) {
		return im.Debug[ip]
	}
	return DebugInfo{}
}

// Append concatenates another byte slice (e.g. a serialized constants
// table) onto the image and returns the offset it starts at.
func (im *Image) Append(b []byte) int {
	pos := len(im.Code)
	im.Code = append(im.Code, b...)
	for range b {
		im.Debug = append(im.Debug, DebugInfo{})
	}
	return pos
}

// RelativeOffset computes an IP-relative displacement: target minus the
// address immediately following the patched slot. The code generator does
// not call it; its jump/call/goto slots hold absolute TagAddrMem addresses.
func RelativeOffset(target, slotPos, slotSize int) int32 {
	return int32(target - (slotPos + slotSize))
}
