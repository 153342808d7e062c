// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import "time"

// Frame represents one complete addressed, checksummed unit of wire data.
type Frame struct {
	address   byte
	status    byte
	fn        byte
	data      []byte
	crc       byte
	timestamp time.Time
}

// NewFrame creates a frame with the given fields. The CRC is computed at
// encode time; frames produced by the decoder carry the received CRC.
func NewFrame(address, status, fn byte, data []byte) *Frame {
	return &Frame{
		address:   address,
		status:    status,
		fn:        fn,
		data:      data,
		timestamp: time.Now(),
	}
}

// Address returns the bus address the frame targets or originates from.
func (f *Frame) Address() byte { return f.address }

// Status returns the status byte: StatusRequest/StatusAddrOp in requests,
// a ResponseState code in responses.
func (f *Frame) Status() byte { return f.status }

// Fn returns the function code.
func (f *Frame) Fn() byte { return f.fn }

// Data returns the function-specific data bytes (may be empty).
func (f *Frame) Data() []byte { return f.data }

// CRC returns the checksum carried on the wire.
func (f *Frame) CRC() byte { return f.crc }

// Timestamp returns the frame's decode (or build) time.
func (f *Frame) Timestamp() time.Time { return f.timestamp }

// Length returns the wire value of the length field: status + fn + data
// + crc.
func (f *Frame) Length() byte { return byte(len(f.data) + 3) }

// IsBroadcast returns true for frames addressed to all devices or all
// boxes.
func (f *Frame) IsBroadcast() bool {
	return f.address == AddressBroadcast || f.address == AddressBroadcastBox
}

// IsDiscovery returns true for frames on the reserved discovery address.
func (f *Frame) IsDiscovery() bool { return f.address == AddressDiscovery }

// OK reports whether a response frame carries the OK state.
func (f *Frame) OK() bool { return f.status == StateOK }
