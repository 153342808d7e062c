// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"fmt"
	"sync"
	"time"
)

// LinkStats is a point-in-time copy of the dispatcher's traffic counters.
type LinkStats struct {
	StartTime      time.Time
	FramesSent     uint64
	FramesReceived uint64
	ValidFrames    uint64
	CRCErrors      uint64
	Desyncs        uint64
	Malformed      uint64
	Timeouts       uint64
	Retries        uint64
	DeviceErrors   uint64
}

// Statistics tracks bus traffic and error counters for one dispatcher.
type Statistics struct {
	mu sync.Mutex
	s  LinkStats
}

// NewStatistics creates a zeroed statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{s: LinkStats{StartTime: time.Now()}}
}

func (s *Statistics) sent() {
	s.mu.Lock()
	s.s.FramesSent++
	s.mu.Unlock()
}

func (s *Statistics) received(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.FramesReceived++
	if err == nil {
		s.s.ValidFrames++
		return
	}
	switch err.(type) {
	case *ChecksumError:
		s.s.CRCErrors++
	case *FramingError:
		s.s.Desyncs++
	case *MalformedResponseError:
		s.s.Malformed++
	case *DeviceError:
		s.s.DeviceErrors++
	}
}

func (s *Statistics) timeout() {
	s.mu.Lock()
	s.s.Timeouts++
	s.mu.Unlock()
}

func (s *Statistics) retry() {
	s.mu.Lock()
	s.s.Retries++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() LinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.s = LinkStats{StartTime: time.Now()}
	s.mu.Unlock()
}

// String returns a formatted summary.
func (s LinkStats) String() string {
	elapsed := time.Since(s.StartTime)
	var rxRate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rxRate = float64(s.FramesReceived) / secs
	}

	var validPercent float64
	if s.FramesReceived > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.FramesReceived)
	}

	result := fmt.Sprintf("=== Link statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Frames received: %8d (%.1f/sec)\n", s.FramesReceived, rxRate)
	result += fmt.Sprintf("Valid frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC errors:      %8d\n", s.CRCErrors)
	}
	if s.Desyncs > 0 {
		result += fmt.Sprintf("Framing desyncs: %8d\n", s.Desyncs)
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.Malformed)
	}
	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("Device errors:   %8d\n", s.DeviceErrors)
	}
	result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	result += fmt.Sprintf("Retries:         %8d\n", s.Retries)
	result += "=====================================\n"
	return result
}
