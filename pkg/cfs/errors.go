// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the caller boundary.
var (
	// ErrNoDevicesFound is returned when a discovery window elapses
	// without a single response on the bus.
	ErrNoDevicesFound = errors.New("cfs: no devices found on bus")

	// ErrUnsupportedCommand is returned for function codes the catalogue
	// does not know. Unknown codes are never forwarded to hardware.
	ErrUnsupportedCommand = errors.New("cfs: unsupported command")

	// ErrSessionClosed is returned by the dispatcher after Close.
	ErrSessionClosed = errors.New("cfs: session closed")

	// ErrBusy is returned when discovery is started while another
	// discovery run is still in progress.
	ErrBusy = errors.New("cfs: bus busy")
)

// FramingError reports garbage bytes discarded while hunting for a frame
// marker. It is recoverable; the decoder has already resynchronized when
// it is returned.
type FramingError struct {
	Discarded int // bytes skipped before the marker
	Offset    int // absolute byte offset of the resync point
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("cfs: framing desync, %d bytes discarded before marker at offset %d", e.Discarded, e.Offset)
}

// ChecksumError reports a frame whose CRC8 did not match. The frame is
// dropped; the dispatcher treats it like line noise and retries.
type ChecksumError struct {
	Address  byte
	Expected byte
	Got      byte
	Offset   int
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("cfs: CRC mismatch on frame from 0x%02X at offset %d: expected 0x%02X, got 0x%02X",
		e.Address, e.Offset, e.Expected, e.Got)
}

// DeviceTimeoutError reports that a device failed to answer after every
// configured attempt. Directed sends mark the device Unresponsive right
// away; the poll path counts a miss instead.
type DeviceTimeoutError struct {
	Address  byte
	Fn       byte
	Attempts int
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("cfs: device 0x%02X did not answer fn 0x%02X after %d attempts", e.Address, e.Fn, e.Attempts)
}

// InvalidArgumentError reports a caller-side argument outside the
// catalogue schema for a command. Never retried.
type InvalidArgumentError struct {
	Fn     byte
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("cfs: invalid argument for fn 0x%02X: %s %s", e.Fn, e.Field, e.Reason)
}

// MalformedResponseError reports a structurally invalid response payload:
// wrong length for the function code, or a field value outside its
// documented range. Treated as a failed attempt and retried.
type MalformedResponseError struct {
	Fn     byte
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("cfs: malformed response for fn 0x%02X: %s", e.Fn, e.Reason)
}

// DeviceError reports a non-OK status byte in an otherwise valid
// response frame.
type DeviceError struct {
	Address byte
	Fn      byte
	State   byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("cfs: device 0x%02X rejected fn 0x%02X: %s (0x%02X)",
		e.Address, e.Fn, FormatResponseState(e.State), e.State)
}

// isTransient reports whether an error should be retried by the
// dispatcher. Caller/programming errors are never transient.
func isTransient(err error) bool {
	var ce *ChecksumError
	var fe *FramingError
	var me *MalformedResponseError
	return errors.As(err, &ce) || errors.As(err, &fe) || errors.As(err, &me)
}
