// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"fmt"
	"time"
)

// Decoder implements the CFS frame decoder as a byte-at-a-time state
// machine. Feeding it partial reads is fine; bytes are buffered until a
// complete frame boundary is reached. Garbage ahead of a marker is
// discarded and reported once as a FramingError when sync is regained.
type Decoder struct {
	state   int
	offset  int // absolute offset of the next byte
	garbage int // bytes skipped while hunting for a marker
	desyncs uint64

	address byte
	length  byte
	body    []byte // status, fn, data, crc
}

// NewDecoder creates a decoder in the idle (marker-hunting) state.
func NewDecoder() *Decoder {
	return &Decoder{
		state: stateIdle,
		body:  make([]byte, 0, MaxFrameSize),
	}
}

// Reset returns the decoder to idle without touching the offset or
// desync counters.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.address = 0
	d.length = 0
	d.body = d.body[:0]
}

// Desyncs returns the number of framing-desync events observed.
func (d *Decoder) Desyncs() uint64 { return d.desyncs }

// Offset returns the absolute number of bytes consumed.
func (d *Decoder) Offset() int { return d.offset }

// DecodeByte pushes one byte through the state machine. It returns a
// completed frame, or nil while the frame is still incomplete. A
// FramingError marks recovered desync (decoding continues); a
// ChecksumError drops the frame and returns to idle.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	offset := d.offset
	d.offset++

	switch d.state {
	case stateIdle:
		if b != FrameMarker {
			d.garbage++
			return nil, nil
		}
		d.state = stateAddress
		if d.garbage > 0 {
			n := d.garbage
			d.garbage = 0
			d.desyncs++
			return nil, &FramingError{Discarded: n, Offset: offset}
		}
		return nil, nil

	case stateAddress:
		d.address = b
		d.state = stateLength
		return nil, nil

	case stateLength:
		// Shortest legal body is status + fn + crc.
		if b < 3 {
			addr := d.address
			d.Reset()
			d.garbage += 3 // marker, address, bad length
			return nil, fmt.Errorf("cfs: invalid frame length %d from 0x%02X", b, addr)
		}
		d.length = b
		d.state = stateBody
		return nil, nil

	case stateBody:
		d.body = append(d.body, b)
		if len(d.body) < int(d.length) {
			return nil, nil
		}
		frame, err := d.finish(offset)
		d.Reset()
		return frame, err

	default:
		d.Reset()
		return nil, fmt.Errorf("cfs: decoder in invalid state %d", d.state)
	}
}

// finish validates the checksum and assembles the frame. Called with the
// offset of the final (CRC) byte.
func (d *Decoder) finish(offset int) (*Frame, error) {
	body := d.body
	got := body[len(body)-1]

	// CRC covers length through data; rebuild that range.
	crcRange := make([]byte, 0, 1+len(body)-1)
	crcRange = append(crcRange, d.length)
	crcRange = append(crcRange, body[:len(body)-1]...)
	expected := CalculateCRC(crcRange)

	if got != expected {
		return nil, &ChecksumError{
			Address:  d.address,
			Expected: expected,
			Got:      got,
			Offset:   offset,
		}
	}

	data := make([]byte, len(body)-3)
	copy(data, body[2:len(body)-1])

	return &Frame{
		address:   d.address,
		status:    body[0],
		fn:        body[1],
		data:      data,
		crc:       got,
		timestamp: time.Now(),
	}, nil
}

// DecodeFrame decodes a single complete frame from buf. Convenience for
// tests and tooling; streaming callers should use DecodeByte.
func DecodeFrame(buf []byte) (*Frame, error) {
	d := NewDecoder()
	for _, b := range buf {
		frame, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
	return nil, fmt.Errorf("cfs: truncated frame: %d bytes", len(buf))
}
