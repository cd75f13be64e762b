// Package hdlc implements the HDLC framing used by T.30 control messages and
// by T.4 Annex A error correction frames.
//
// Frames are held in T.30 notation order: the first bit on the line is the
// most significant bit of each byte, so FCF values match the numbering of
// T.30 Table 2 (DIS = 0x01, DCS = 0x41, ...). Modems transmit the least
// significant bit first; Encode and Decode do the reversal.
package hdlc

import (
	"fmt"

	"gofaxmodem/t30"
)

// minWireLen is address, control, FCF and a two byte FCS.
const minWireLen = 5

// Frame is a decoded HDLC frame without its FCS.
type Frame struct {
	buf []byte
}

// NewFrame builds a frame carrying fcf and the optional information field.
func NewFrame(fcf t30.FCF, final bool, fif ...byte) *Frame {
	ctl := ControlNonFinal
	if final {
		ctl = ControlFinal
	}
	buf := make([]byte, 0, 3+len(fif))
	buf = append(buf, Address, ctl, byte(fcf))
	buf = append(buf, fif...)
	return &Frame{buf: buf}
}

// Encode returns the wire form of f: every byte bit-reversed, followed by the
// FCS low byte first.
func Encode(f *Frame) []byte {
	out := make([]byte, len(f.buf), len(f.buf)+2)
	copy(out, f.buf)
	ReverseBytes(out)
	fcs := FCS(out)
	return append(out, byte(fcs), byte(fcs>>8))
}

// Decode validates the wire form of a frame and converts it back to notation
// order. Callers treat both ErrMalformed and ErrBadFCS as "no frame received".
func Decode(wire []byte) (*Frame, error) {
	if len(wire) < minWireLen {
		return nil, fmt.Errorf("%d byte frame: %w", len(wire), t30.ErrMalformed)
	}
	body := wire[:len(wire)-2]
	got := uint16(wire[len(wire)-2]) | uint16(wire[len(wire)-1])<<8
	if want := FCS(body); got != want {
		return nil, fmt.Errorf("fcs %04x, want %04x: %w", got, want, t30.ErrBadFCS)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	ReverseBytes(buf)
	if buf[0] != Address {
		return nil, fmt.Errorf("address %02x: %w", buf[0], t30.ErrMalformed)
	}
	if buf[1] != ControlFinal && buf[1] != ControlNonFinal {
		return nil, fmt.Errorf("control %02x: %w", buf[1], t30.ErrMalformed)
	}
	return &Frame{buf: buf}, nil
}

// Bytes returns the frame in notation order without FCS.
func (f *Frame) Bytes() []byte { return f.buf }

// Len is the frame length without FCS.
func (f *Frame) Len() int { return len(f.buf) }

// IsFinal reports whether the P/F bit marks this as the last frame of a
// message sequence.
func (f *Frame) IsFinal() bool { return f.buf[1] == ControlFinal }

// RawFCF returns the FCF byte including the X bit.
func (f *Frame) RawFCF() t30.FCF { return t30.FCF(f.buf[2]) }

// FCF returns the frame type with the X bit removed.
func (f *Frame) FCF() t30.FCF { return t30.FCF(f.buf[2]).Type() }

// FIF returns the facsimile information field.
func (f *Frame) FIF() []byte { return f.buf[3:] }

// FCF2 returns the secondary FCF carried by PPS and EOR, or 0 if absent.
func (f *Frame) FCF2() t30.FCF {
	if len(f.buf) < 4 {
		return 0
	}
	return t30.FCF(f.buf[3]).Type()
}

func (f *Frame) String() string {
	return fmt.Sprintf("%v (%d bytes)", f.FCF(), len(f.buf)-3)
}
