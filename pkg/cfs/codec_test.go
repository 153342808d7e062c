// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"bytes"
	"errors"
	"testing"
)

// capturedFrames are complete frames lifted from an interceptty capture of
// a K2 Plus talking to its CFS during a multi-color print.
var capturedFrames = []struct {
	name    string
	wire    []byte
	address byte
	status  byte
	fn      byte
	data    []byte
}{
	{
		name:    "GET_ADDR_TABLE request",
		wire:    []byte{0xF7, 0x01, 0x03, 0x00, 0xA3, 0xDD},
		address: 0x01, status: 0x00, fn: 0xA3, data: nil,
	},
	{
		name:    "SET_BOX_MODE request",
		wire:    []byte{0xF7, 0x01, 0x05, 0xFF, 0x04, 0x00, 0x01, 0x90},
		address: 0x01, status: 0xFF, fn: 0x04, data: []byte{0x00, 0x01},
	},
	{
		name:    "GET_VERSION_SN request",
		wire:    []byte{0xF7, 0x01, 0x03, 0xFF, 0x14, 0x06},
		address: 0x01, status: 0xFF, fn: 0x14, data: nil,
	},
	{
		name:    "SET_PRE_LOADING request",
		wire:    []byte{0xF7, 0x01, 0x05, 0xFF, 0x0D, 0x0F, 0x01, 0x69},
		address: 0x01, status: 0xFF, fn: 0x0D, data: []byte{0x0F, 0x01},
	},
	{
		name:    "GET_SLAVE_INFO broadcast probe",
		wire:    []byte{0xF7, 0xFE, 0x05, 0x00, 0xA1, 0xFE, 0xFE, 0xF8},
		address: 0xFE, status: 0x00, fn: 0xA1, data: []byte{0xFE, 0xFE},
	},
	{
		name:    "GET_BOX_STATE response",
		wire:    []byte{0xF7, 0x01, 0x07, 0x00, 0x0A, 0x1C, 0x14, 0x00, 0x00, 0x48},
		address: 0x01, status: 0x00, fn: 0x0A, data: []byte{0x1C, 0x14, 0x00, 0x00},
	},
}

func TestEncode_CapturedTraces(t *testing.T) {
	for _, tt := range capturedFrames {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.address, tt.status, tt.fn, tt.data)
			if err != nil {
				t.Fatalf("encode error: %v", err)
			}
			if !bytes.Equal(wire, tt.wire) {
				t.Errorf("wire mismatch:\nexpected % X\ngot      % X", tt.wire, wire)
			}
		})
	}
}

func TestDecode_CapturedTraces(t *testing.T) {
	for _, tt := range capturedFrames {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame(tt.wire)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if frame.Address() != tt.address {
				t.Errorf("address: expected 0x%02X, got 0x%02X", tt.address, frame.Address())
			}
			if frame.Status() != tt.status {
				t.Errorf("status: expected 0x%02X, got 0x%02X", tt.status, frame.Status())
			}
			if frame.Fn() != tt.fn {
				t.Errorf("fn: expected 0x%02X, got 0x%02X", tt.fn, frame.Fn())
			}
			if !bytes.Equal(frame.Data(), tt.data) && len(tt.data) > 0 {
				t.Errorf("data: expected % X, got % X", tt.data, frame.Data())
			}
			if len(tt.data) == 0 && len(frame.Data()) != 0 {
				t.Errorf("data: expected empty, got % X", frame.Data())
			}
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		address byte
		status  byte
		fn      byte
		data    []byte
	}{
		{"empty data", AddressBox1, StatusRequest, FnGetFilamentSensor, nil},
		{"one byte", AddressHub, StatusRequest, FnCtrlConnectionMotor, []byte{0x01}},
		{"broadcast", AddressBroadcast, StatusAddrOp, FnGetSlaveInfo, []byte{0xFE, 0xFE}},
		{"discovery source", AddressDiscovery, StateOK, FnGetSlaveInfo, []byte{0x02, 0xAA, 0xBB, 0xCC}},
		{"max data", AddressBox4, StatusRequest, FnCommunicationTest, bytes.Repeat([]byte{0x5A}, MaxDataSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.address, tt.status, tt.fn, tt.data)
			if err != nil {
				t.Fatalf("encode error: %v", err)
			}
			frame, err := DecodeFrame(wire)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if frame.Address() != tt.address || frame.Status() != tt.status || frame.Fn() != tt.fn {
				t.Errorf("header mismatch: got addr=0x%02X status=0x%02X fn=0x%02X",
					frame.Address(), frame.Status(), frame.Fn())
			}
			if !bytes.Equal(frame.Data(), tt.data) {
				t.Errorf("data mismatch: expected % X, got % X", tt.data, frame.Data())
			}
			if frame.CRC() != wire[len(wire)-1] {
				t.Errorf("crc mismatch: expected 0x%02X, got 0x%02X", wire[len(wire)-1], frame.CRC())
			}
		})
	}
}

func TestEncode_DataTooLarge(t *testing.T) {
	if _, err := Encode(AddressBox1, StatusRequest, FnCommunicationTest, make([]byte, MaxDataSize+1)); err == nil {
		t.Error("expected error for oversized data")
	}
}

// Any single bit flip inside the checksummed range (length byte through
// CRC byte) must be rejected. Marker and address sit outside the CRC; a
// flipped marker loses the frame entirely and a flipped address is caught
// by address filtering at the dispatcher, not by the checksum.
func TestDecode_SingleBitFlip(t *testing.T) {
	wire, err := Encode(AddressBox2, StatusRequest, FnGetBoxState, nil)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	for byteIdx := 2; byteIdx < len(wire); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(wire))
			copy(mutated, wire)
			mutated[byteIdx] ^= 1 << bit

			frame, derr := DecodeFrame(mutated)
			if frame != nil {
				t.Errorf("byte %d bit %d: corrupted frame accepted", byteIdx, bit)
				continue
			}
			if derr == nil {
				t.Errorf("byte %d bit %d: no error for corrupted frame", byteIdx, bit)
			}
		}
	}
}

// The decoder must produce identical frames regardless of how the wire
// bytes are chunked across reads.
func TestDecode_Fragmentation(t *testing.T) {
	wire, err := Encode(AddressHub, StateOK, FnMeasuringWheel, []byte{0x34, 0x12})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	for split := 1; split < len(wire); split++ {
		d := NewDecoder()
		var frame *Frame
		feed := func(chunk []byte) {
			for _, b := range chunk {
				f, ferr := d.DecodeByte(b)
				if ferr != nil {
					t.Fatalf("split %d: decode error: %v", split, ferr)
				}
				if f != nil {
					frame = f
				}
			}
		}
		feed(wire[:split])
		if frame != nil {
			t.Fatalf("split %d: frame completed early", split)
		}
		feed(wire[split:])
		if frame == nil {
			t.Fatalf("split %d: no frame decoded", split)
		}
		if frame.Address() != AddressHub || frame.Fn() != FnMeasuringWheel {
			t.Errorf("split %d: wrong frame decoded", split)
		}
		if !bytes.Equal(frame.Data(), []byte{0x34, 0x12}) {
			t.Errorf("split %d: data mismatch: % X", split, frame.Data())
		}
	}
}

func TestDecode_GarbageBeforeMarker(t *testing.T) {
	wire, err := Encode(AddressBox1, StateOK, FnOnlineCheck, nil)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	stream := append([]byte{0x00, 0x42, 0x99}, wire...)

	d := NewDecoder()
	var frame *Frame
	var framing *FramingError
	for _, b := range stream {
		f, derr := d.DecodeByte(b)
		if derr != nil {
			var fe *FramingError
			if !errors.As(derr, &fe) {
				t.Fatalf("unexpected error: %v", derr)
			}
			framing = fe
		}
		if f != nil {
			frame = f
		}
	}

	if framing == nil {
		t.Fatal("expected a framing error for leading garbage")
	}
	if framing.Discarded != 3 {
		t.Errorf("expected 3 discarded bytes, got %d", framing.Discarded)
	}
	if frame == nil {
		t.Fatal("frame after garbage should still decode")
	}
	if frame.Fn() != FnOnlineCheck {
		t.Errorf("wrong frame after resync: fn 0x%02X", frame.Fn())
	}
	if d.Desyncs() != 1 {
		t.Errorf("expected 1 desync, got %d", d.Desyncs())
	}
}

func TestDecode_BackToBackFrames(t *testing.T) {
	first, _ := Encode(AddressBox1, StateOK, FnGetFilamentSensor, []byte{1, 1, 0, 0, 0})
	second, _ := Encode(AddressHub, StateOK, FnGetBufferState, []byte{1})
	stream := append(append([]byte{}, first...), second...)

	d := NewDecoder()
	var frames []*Frame
	for _, b := range stream {
		f, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Fn() != FnGetFilamentSensor || frames[1].Fn() != FnGetBufferState {
		t.Error("frames decoded out of order")
	}
}

func TestDecode_InvalidLength(t *testing.T) {
	d := NewDecoder()
	var gotErr error
	for _, b := range []byte{FrameMarker, AddressBox1, 0x02} {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("expected error for length below minimum")
	}

	// The decoder must resync on the next valid frame.
	wire, _ := Encode(AddressBox1, StateOK, FnOnlineCheck, nil)
	var frame *Frame
	for _, b := range wire {
		f, err := d.DecodeByte(b)
		if err != nil {
			var fe *FramingError
			if !errors.As(err, &fe) {
				t.Fatalf("unexpected error during resync: %v", err)
			}
			continue
		}
		if f != nil {
			frame = f
		}
	}
	if frame == nil {
		t.Fatal("decoder did not recover after invalid length")
	}
}

func TestDecode_ChecksumError(t *testing.T) {
	wire, _ := Encode(AddressBox3, StatusRequest, FnGetRemainLen, nil)
	wire[len(wire)-1] ^= 0xFF

	_, err := DecodeFrame(wire)
	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if cerr.Address != AddressBox3 {
		t.Errorf("checksum error address: expected 0x%02X, got 0x%02X", AddressBox3, cerr.Address)
	}
	if cerr.Expected == cerr.Got {
		t.Error("checksum error should carry differing expected/got values")
	}
}

func TestDecodeFrame_Truncated(t *testing.T) {
	wire, _ := Encode(AddressBox1, StatusRequest, FnGetBoxState, nil)
	if _, err := DecodeFrame(wire[:len(wire)-1]); err == nil {
		t.Error("expected error for truncated input")
	}
}
