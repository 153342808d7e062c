// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import "testing"

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC(nil); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%02X", crc)
	}
}

func TestCalculateCRC_CapturedTraces(t *testing.T) {
	// CRC ranges lifted from frames captured with interceptty during
	// multi-color printing: length byte through last data byte.
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "GET_ADDR_TABLE request to box 1",
			data:     []byte{0x03, 0x00, 0xA3},
			expected: 0xDD,
		},
		{
			name:     "ONLINE_CHECK request to box 1",
			data:     []byte{0x03, 0x00, 0xA2},
			expected: 0xDA,
		},
		{
			name:     "SET_BOX_MODE request",
			data:     []byte{0x05, 0xFF, 0x04, 0x00, 0x01},
			expected: 0x90,
		},
		{
			name:     "GET_VERSION_SN request",
			data:     []byte{0x03, 0xFF, 0x14},
			expected: 0x06,
		},
		{
			name:     "GET_BOX_STATE request",
			data:     []byte{0x03, 0xFF, 0x0A},
			expected: 0x5C,
		},
		{
			name:     "GET_SLAVE_INFO broadcast probe",
			data:     []byte{0x05, 0x00, 0xA1, 0xFE, 0xFE},
			expected: 0xF8,
		},
		{
			name:     "GET_BOX_STATE response",
			data:     []byte{0x07, 0x00, 0x0A, 0x1C, 0x14, 0x00, 0x00},
			expected: 0x48,
		},
		{
			name:     "SET_BOX_MODE ack",
			data:     []byte{0x03, 0x00, 0x04},
			expected: 0xA1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x03, 0xFF, 0x08, 0x01, 0x02}
	if CalculateCRC(data) != CalculateCRC(data) {
		t.Error("CRC should be deterministic")
	}
}
