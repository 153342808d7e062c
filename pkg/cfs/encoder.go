package cfs

import "fmt"

// EncodeFrame produces the wire representation of a frame:
//
//	[0xF7][address][length][status][fn][data...][crc8]
//
// where length counts everything after the length byte, checksum
// included, and the CRC8 covers length through the last data byte.
func EncodeFrame(f *Frame) ([]byte, error) {
	return Encode(f.address, f.status, f.fn, f.data)
}

// Encode builds a wire frame from raw fields.
func Encode(address, status, fn byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("cfs: data too large: %d bytes (max %d)", len(data), MaxDataSize)
	}

	length := byte(len(data) + 3) // status + fn + crc
	buf := make([]byte, 0, frameOverhead+int(length))
	buf = append(buf, FrameMarker, address, length, status, fn)
	buf = append(buf, data...)

	// CRC range starts at the length byte.
	buf = append(buf, CalculateCRC(buf[2:]))
	return buf, nil
}

// MustEncodeFrame encodes a frame built by a catalogue constructor.
// Panics on oversized data, which a catalogue builder cannot produce.
func MustEncodeFrame(f *Frame) []byte {
	buf, err := EncodeFrame(f)
	if err != nil {
		panic(fmt.Sprintf("cfs: encode error: %v", err))
	}
	return buf
}
