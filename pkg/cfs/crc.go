// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

// CalculateCRC computes the CRC8 checksum used by the CFS protocol
// (polynomial 0x07, initial value 0x00, MSB first). The hardware covers
// the length byte through the last data byte; marker and address are
// excluded from the range.
func CalculateCRC(data []byte) byte {
	crc := byte(crcInitial)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
