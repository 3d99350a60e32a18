// Package frame implements the fixed 15-byte motor state frame sent to the
// stepper receiver over UDP.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Slots is the number of motors carried by one frame.
	Slots = 3
	// SlotSize is one bool byte followed by a little-endian float32.
	SlotSize = 5
	// Size is the length of an encoded frame.
	Size = Slots * SlotSize
	// Port is the UDP port the receiver listens on.
	Port = 7755
)

// ErrFrameFormat is matched by every *FormatError.
var ErrFrameFormat = errors.New("frame format error")

// FormatError reports a payload that is not a valid frame, usually a
// sender/receiver version mismatch.
type FormatError struct {
	Length int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid frame (%d bytes): %s", e.Length, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFrameFormat
}

// MotorState is the (enabled, angle) pair for one motor. Angle is in
// radians.
type MotorState struct {
	Enabled bool    `json:"enabled"`
	Angle   float32 `json:"angle"`
}

// StateFrame is a snapshot of the three motor slots. Unused slots are
// disabled with a zero angle.
type StateFrame struct {
	Motors [Slots]MotorState `json:"motors"`
}

// New builds a frame from up to Slots states; missing slots are padded.
func New(states ...MotorState) StateFrame {
	var f StateFrame
	copy(f.Motors[:], states)
	return f
}

// Equal compares frames bit for bit, so a NaN angle equals itself.
func (f StateFrame) Equal(o StateFrame) bool {
	for i := range f.Motors {
		if f.Motors[i].Enabled != o.Motors[i].Enabled {
			return false
		}
		if math.Float32bits(f.Motors[i].Angle) != math.Float32bits(o.Motors[i].Angle) {
			return false
		}
	}
	return true
}

// Encode writes the frame as [bool0][f32_0][bool1][f32_1][bool2][f32_2].
func Encode(f StateFrame) []byte {
	buf := make([]byte, Size)
	for i, m := range f.Motors {
		off := i * SlotSize
		if m.Enabled {
			buf[off] = 1
		}
		binary.LittleEndian.PutUint32(buf[off+1:off+SlotSize], math.Float32bits(m.Angle))
	}
	return buf
}

// Decode is the inverse of Encode. Any nonzero bool byte reads as true.
// It fails with a *FormatError when the payload is not exactly Size bytes.
func Decode(b []byte) (StateFrame, error) {
	if len(b) != Size {
		return StateFrame{}, &FormatError{Length: len(b), Reason: fmt.Sprintf("want %d bytes", Size)}
	}
	var f StateFrame
	for i := range f.Motors {
		off := i * SlotSize
		f.Motors[i].Enabled = b[off] != 0
		f.Motors[i].Angle = math.Float32frombits(binary.LittleEndian.Uint32(b[off+1 : off+SlotSize]))
	}
	return f, nil
}
