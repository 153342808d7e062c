// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"errors"
	"testing"
)

func boxInfo(serial ...byte) SlaveInfo {
	return SlaveInfo{Kind: KindBox, Serial: serial}
}

func TestSession_InitialState(t *testing.T) {
	s := NewSession()
	if s.State() != SessionUninitialized {
		t.Errorf("new session should be uninitialized, got %v", s.State())
	}
	if len(s.Devices()) != 0 {
		t.Error("new session should have no devices")
	}
	if s.DeviceStatus(AddressBox1) != ReadinessUnknown {
		t.Error("unknown address should report unknown readiness")
	}
}

func TestSession_NextAddress(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()

	addr, err := s.nextAddress(KindHub)
	if err != nil || addr != AddressHub {
		t.Fatalf("hub address: got 0x%02X, %v", addr, err)
	}
	s.reserve(addr, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})

	if _, err := s.nextAddress(KindHub); err == nil {
		t.Error("second hub should be rejected")
	}

	for i := 0; i < MaxBoxes; i++ {
		addr, err := s.nextAddress(KindBox)
		if err != nil {
			t.Fatalf("box %d: %v", i, err)
		}
		if addr != AddressBox1+byte(i) {
			t.Errorf("box %d: expected 0x%02X, got 0x%02X", i, AddressBox1+byte(i), addr)
		}
		s.reserve(addr, boxInfo(byte(i)))
	}
	if _, err := s.nextAddress(KindBox); err == nil {
		t.Error("fifth box should be rejected")
	}
	if _, err := s.nextAddress(KindUnknown); err == nil {
		t.Error("unknown kind should be rejected")
	}
}

func TestSession_NextAddress_ReusesDroppedSlot(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()

	a1, _ := s.nextAddress(KindBox)
	s.reserve(a1, boxInfo(1))
	a2, _ := s.nextAddress(KindBox)
	s.reserve(a2, boxInfo(2))
	s.drop(a1)

	addr, err := s.nextAddress(KindBox)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != a1 {
		t.Errorf("expected dropped slot 0x%02X to be reused, got 0x%02X", a1, addr)
	}
}

func TestSession_FinishDiscovery(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	if err := s.finishDiscovery(); !errors.Is(err, ErrNoDevicesFound) {
		t.Errorf("empty discovery should fail, got %v", err)
	}
	if s.State() != SessionUninitialized {
		t.Errorf("expected uninitialized after empty discovery, got %v", s.State())
	}

	s.beginDiscovery()
	s.reserve(AddressHub, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})
	s.confirm(AddressHub)
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != SessionReady {
		t.Errorf("expected ready, got %v", s.State())
	}
	if s.DeviceStatus(AddressBox1) != ReadinessReady {
		t.Errorf("confirmed device should be ready, got %v", s.DeviceStatus(AddressBox1))
	}
}

// Boxes without a hub cannot feed the printer: the session must not
// report Ready when the hub never answered discovery.
func TestSession_FinishDiscovery_NoHub(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	s.reserve(AddressBox2, boxInfo(2))
	s.confirm(AddressBox2)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != SessionDegraded {
		t.Errorf("expected degraded without a hub, got %v", s.State())
	}
	if s.DeviceStatus(AddressBox1) != ReadinessReady {
		t.Errorf("boxes themselves stay ready, got %v", s.DeviceStatus(AddressBox1))
	}

	// A hub turning up on a later discovery run makes the bus Ready.
	s.beginDiscovery()
	s.reserve(AddressHub, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})
	s.confirm(AddressHub)
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != SessionReady {
		t.Errorf("expected ready with a hub, got %v", s.State())
	}
}

func TestSession_DegradeAndRecover(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressHub, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})
	s.confirm(AddressHub)
	s.reserve(AddressBox1, boxInfo(2))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("discovery: %v", err)
	}

	s.unresponsive(AddressBox1)
	if s.State() != SessionDegraded {
		t.Errorf("expected degraded, got %v", s.State())
	}
	if s.DeviceStatus(AddressBox1) != ReadinessUnresponsive {
		t.Errorf("expected unresponsive, got %v", s.DeviceStatus(AddressBox1))
	}
	if s.DeviceStatus(AddressHub) != ReadinessReady {
		t.Error("hub should be unaffected")
	}

	s.touch(AddressBox1)
	if s.DeviceStatus(AddressBox1) != ReadinessReady {
		t.Errorf("touched device should be ready, got %v", s.DeviceStatus(AddressBox1))
	}
	if s.State() != SessionReady {
		t.Errorf("expected ready after recovery, got %v", s.State())
	}
}

func TestSession_MissedPollLimit(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressHub, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})
	s.confirm(AddressHub)
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("discovery: %v", err)
	}

	const limit = 3
	for i := 0; i < limit-1; i++ {
		s.miss(AddressBox1, limit)
		if s.DeviceStatus(AddressBox1) != ReadinessReady {
			t.Fatalf("miss %d should not flip readiness yet", i+1)
		}
		if s.State() != SessionReady {
			t.Fatalf("miss %d should not degrade the session yet", i+1)
		}
	}
	s.miss(AddressBox1, limit)
	if s.DeviceStatus(AddressBox1) != ReadinessUnresponsive {
		t.Error("device should be unresponsive at the miss limit")
	}
	if s.State() != SessionDegraded {
		t.Errorf("expected degraded, got %v", s.State())
	}

	// A successful response clears the miss counter.
	s.touch(AddressBox1)
	s.miss(AddressBox1, limit)
	if s.DeviceStatus(AddressBox1) != ReadinessReady {
		t.Error("single miss after recovery should not flip readiness")
	}
}

func TestSession_DevicesOrder(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressBox2, boxInfo(2))
	s.confirm(AddressBox2)
	s.reserve(AddressHub, SlaveInfo{Kind: KindHub, Serial: []byte{0x01}})
	s.confirm(AddressHub)
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("discovery: %v", err)
	}

	devices := s.Devices()
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	if devices[0].Addr != AddressHub {
		t.Errorf("hub should come first, got 0x%02X", devices[0].Addr)
	}
	if devices[1].Addr != AddressBox1 || devices[2].Addr != AddressBox2 {
		t.Error("boxes should follow in address order")
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressBox1, boxInfo(1))
	s.confirm(AddressBox1)
	if err := s.finishDiscovery(); err != nil {
		t.Fatalf("discovery: %v", err)
	}

	s.Reset()
	if s.State() != SessionUninitialized {
		t.Errorf("expected uninitialized, got %v", s.State())
	}
	if len(s.Devices()) != 0 {
		t.Error("reset should forget all devices")
	}
}

func TestSession_SnapshotIsolation(t *testing.T) {
	s := NewSession()
	s.beginDiscovery()
	s.reserve(AddressBox1, boxInfo(0xAA, 0xBB))
	s.confirm(AddressBox1)

	dev, ok := s.Device(AddressBox1)
	if !ok {
		t.Fatal("device missing")
	}
	dev.Serial[0] = 0xFF
	again, _ := s.Device(AddressBox1)
	if again.Serial[0] != 0xAA {
		t.Error("snapshot shares serial storage with the session")
	}
}
