// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"sync"
	"time"
)

// Freshness classifies a store lookup.
type Freshness int

const (
	// Unknown means the sensor has never been read.
	Unknown Freshness = iota
	// Fresh means the cached value is within the freshness threshold.
	Fresh
	// Stale means a value is cached but older than the threshold.
	// Callers decide whether stale data is acceptable.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Reading is one cached sensor value with its age.
type Reading struct {
	Value     any
	UpdatedAt time.Time
	Age       time.Duration
	Freshness Freshness
}

type storeKey struct {
	addr byte
	kind SensorKind
}

// Store caches last-known decoded sensor values. Last-write-wins, never
// blocks; single writer (the dispatcher), many readers.
type Store struct {
	mu        sync.RWMutex
	freshness time.Duration
	values    map[storeKey]struct {
		value any
		at    time.Time
	}
}

// NewStore creates a store with the given freshness threshold.
func NewStore(freshness time.Duration) *Store {
	return &Store{
		freshness: freshness,
		values: make(map[storeKey]struct {
			value any
			at    time.Time
		}),
	}
}

// Put records a value for (addr, kind), stamped now.
func (s *Store) Put(addr byte, kind SensorKind, value any) {
	s.mu.Lock()
	s.values[storeKey{addr, kind}] = struct {
		value any
		at    time.Time
	}{value, time.Now()}
	s.mu.Unlock()
}

// Get returns the last known value for (addr, kind) and how fresh it is.
// A value older than the freshness threshold is reported Stale, not
// silently returned as current.
func (s *Store) Get(addr byte, kind SensorKind) Reading {
	s.mu.RLock()
	entry, ok := s.values[storeKey{addr, kind}]
	s.mu.RUnlock()
	if !ok {
		return Reading{Freshness: Unknown}
	}
	age := time.Since(entry.at)
	freshness := Fresh
	if age > s.freshness {
		freshness = Stale
	}
	return Reading{
		Value:     entry.value,
		UpdatedAt: entry.at,
		Age:       age,
		Freshness: freshness,
	}
}

// Forget drops all cached values for a device, used on session reset.
func (s *Store) Forget(addr byte) {
	s.mu.Lock()
	for k := range s.values {
		if k.addr == addr {
			delete(s.values, k)
		}
	}
	s.mu.Unlock()
}

// update decodes a successful sensor response and caches its fields.
// Non-sensor responses are ignored. Called by the dispatcher only.
func (s *Store) update(f *Frame) {
	switch f.Fn() {
	case FnGetFilamentSensor:
		sensors, err := ParseBoxSensors(f.Data())
		if err != nil {
			return
		}
		s.Put(f.Address(), SensorGate, sensors.Gate)
		for i, state := range sensors.Slots {
			s.Put(f.Address(), SensorSlot1+SensorKind(i), state)
		}
	case FnGetBufferState:
		state, err := ParseBufferState(f.Data())
		if err != nil {
			return
		}
		s.Put(f.Address(), SensorBuffer, state)
	case FnMeasuringWheel:
		count, err := ParseEncoder(f.Data())
		if err != nil {
			return
		}
		s.Put(f.Address(), SensorEncoder, count)
	case FnGetBoxState:
		env, err := ParseEnvironment(f.Data())
		if err != nil {
			return
		}
		s.Put(f.Address(), SensorHumidity, env.Humidity)
		s.Put(f.Address(), SensorTemperature, env.Temperature)
	case FnGetRFID:
		tag, err := ParseRFID(f.Data())
		if err != nil {
			return
		}
		s.Put(f.Address(), SensorRFID, tag)
	}
}
