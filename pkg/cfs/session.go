// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"fmt"
	"sync"
	"time"
)

// SessionState is the bus-wide addressing state.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionDiscovering
	SessionReady
	SessionDegraded
)

func (s SessionState) String() string {
	switch s {
	case SessionDiscovering:
		return "discovering"
	case SessionReady:
		return "ready"
	case SessionDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Readiness is the per-device communication state.
type Readiness int

const (
	ReadinessUnknown Readiness = iota
	ReadinessDiscovering
	ReadinessReady
	ReadinessUnresponsive
)

func (r Readiness) String() string {
	switch r {
	case ReadinessDiscovering:
		return "discovering"
	case ReadinessReady:
		return "ready"
	case ReadinessUnresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// Device is one unit on the bus. Addresses are assigned during discovery
// and stay stable for the session lifetime.
type Device struct {
	Addr        byte
	Kind        DeviceKind
	Serial      []byte
	LastSeen    time.Time
	Readiness   Readiness
	missedPolls int
}

// Session owns the set of known devices, keyed by address. It is
// mutated only by the discovery/polling paths of the dispatcher.
type Session struct {
	mu      sync.RWMutex
	state   SessionState
	devices map[byte]*Device
}

// NewSession creates an uninitialized session.
func NewSession() *Session {
	return &Session{
		state:   SessionUninitialized,
		devices: make(map[byte]*Device),
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Devices returns a snapshot of all known devices, hub first, then
// boxes by address.
func (s *Session) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, 0, len(s.devices))
	if hub, ok := s.devices[AddressHub]; ok {
		out = append(out, snapshotDevice(hub))
	}
	for addr := byte(AddressBox1); addr < AddressBox1+MaxBoxes; addr++ {
		if dev, ok := s.devices[addr]; ok {
			out = append(out, snapshotDevice(dev))
		}
	}
	return out
}

// Device returns a snapshot of the device at addr.
func (s *Session) Device(addr byte) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[addr]
	if !ok {
		return Device{}, false
	}
	return snapshotDevice(dev), true
}

// DeviceStatus reports a device's readiness; ReadinessUnknown for
// addresses never discovered.
func (s *Session) DeviceStatus(addr byte) Readiness {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dev, ok := s.devices[addr]; ok {
		return dev.Readiness
	}
	return ReadinessUnknown
}

func snapshotDevice(d *Device) Device {
	out := *d
	out.Serial = make([]byte, len(d.Serial))
	copy(out.Serial, d.Serial)
	return out
}

// Reset tears the session back to Uninitialized, forgetting all devices.
func (s *Session) Reset() {
	s.mu.Lock()
	s.state = SessionUninitialized
	s.devices = make(map[byte]*Device)
	s.mu.Unlock()
}

// beginDiscovery moves the session into Discovering, clearing any
// previous device set.
func (s *Session) beginDiscovery() {
	s.mu.Lock()
	s.state = SessionDiscovering
	s.devices = make(map[byte]*Device)
	s.mu.Unlock()
}

// nextAddress picks the operating address for a discovered device:
// the hub address for hubs, the lowest free box slot for boxes.
func (s *Session) nextAddress(kind DeviceKind) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindHub:
		if _, taken := s.devices[AddressHub]; taken {
			return 0, fmt.Errorf("cfs: hub address already assigned")
		}
		return AddressHub, nil
	case KindBox:
		for addr := byte(AddressBox1); addr < AddressBox1+MaxBoxes; addr++ {
			if _, taken := s.devices[addr]; !taken {
				return addr, nil
			}
		}
		return 0, fmt.Errorf("cfs: all %d box addresses assigned", MaxBoxes)
	}
	return 0, fmt.Errorf("cfs: cannot assign address to unknown device kind")
}

// reserve records a device as Discovering at its assigned address.
func (s *Session) reserve(addr byte, info SlaveInfo) {
	s.mu.Lock()
	s.devices[addr] = &Device{
		Addr:      addr,
		Kind:      info.Kind,
		Serial:    append([]byte(nil), info.Serial...),
		Readiness: ReadinessDiscovering,
	}
	s.mu.Unlock()
}

// drop removes a device that never acknowledged its address assignment.
func (s *Session) drop(addr byte) {
	s.mu.Lock()
	delete(s.devices, addr)
	s.mu.Unlock()
}

// finishDiscovery settles the session state after the discovery window:
// Ready when the hub answered and was confirmed, Degraded when only
// boxes turned up, back to Uninitialized with ErrNoDevicesFound when the
// bus stayed silent.
func (s *Session) finishDiscovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.devices) == 0 {
		s.state = SessionUninitialized
		return ErrNoDevicesFound
	}
	s.state = SessionReady
	s.settle()
	return nil
}

// settle recomputes Ready/Degraded from device readiness. Ready needs a
// confirmed hub and no unresponsive device; boxes without a hub cannot
// feed filament, so they leave the session Degraded. Caller holds the
// lock; no-op outside the Ready/Degraded states.
func (s *Session) settle() {
	if s.state != SessionReady && s.state != SessionDegraded {
		return
	}
	hubReady := false
	for _, dev := range s.devices {
		if dev.Readiness == ReadinessUnresponsive {
			s.state = SessionDegraded
			return
		}
		if dev.Kind == KindHub && dev.Readiness == ReadinessReady {
			hubReady = true
		}
	}
	if hubReady {
		s.state = SessionReady
	} else {
		s.state = SessionDegraded
	}
}

// touch marks a device as seen: readiness Ready, missed-poll counter
// cleared. Recovers the session from Degraded when every device is
// responsive again.
func (s *Session) touch(addr byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[addr]
	if !ok {
		return
	}
	dev.LastSeen = time.Now()
	dev.missedPolls = 0
	if dev.Readiness == ReadinessUnresponsive || dev.Readiness == ReadinessDiscovering {
		dev.Readiness = ReadinessReady
	}
	s.settle()
}

// confirm promotes a device from Discovering to Ready after its address
// acknowledgement.
func (s *Session) confirm(addr byte) {
	s.mu.Lock()
	if dev, ok := s.devices[addr]; ok {
		dev.Readiness = ReadinessReady
		dev.LastSeen = time.Now()
	}
	s.mu.Unlock()
}

// unresponsive marks a device Unresponsive after retry exhaustion and
// degrades the session.
func (s *Session) unresponsive(addr byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[addr]
	if !ok {
		return
	}
	dev.Readiness = ReadinessUnresponsive
	s.settle()
}

// miss counts one failed poll against a device. After limit consecutive
// misses the device becomes Unresponsive and the session Degraded; other
// devices remain usable.
func (s *Session) miss(addr byte, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[addr]
	if !ok {
		return
	}
	dev.missedPolls++
	if dev.missedPolls >= limit && dev.Readiness == ReadinessReady {
		dev.Readiness = ReadinessUnresponsive
		s.settle()
	}
}
