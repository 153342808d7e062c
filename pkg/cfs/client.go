// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"bytes"
	"context"
	"errors"
)

// Discover runs the identify/assign handshake and brings the session
// from Uninitialized to Ready. It broadcasts GET_SLAVE_INFO, collects
// every candidate answering on the discovery address within the
// discovery window, assigns each a stable operating address with
// SET_SLAVE_ADDR, and requires the acknowledgement before marking the
// device Ready. A silent bus yields ErrNoDevicesFound.
//
// Discovery obeys the one-outstanding-request rule: it runs through the
// same queue as everything else and must complete before steady-state
// polling starts.
func (d *Dispatcher) Discover(ctx context.Context) ([]Device, error) {
	if d.session.State() == SessionDiscovering {
		return nil, ErrBusy
	}
	d.session.beginDiscovery()

	probe, err := NewSlaveInfoProbe()
	if err != nil {
		return nil, err
	}
	answers, err := d.broadcastCollect(ctx, probe, d.policy.DiscoveryWindow)
	if err != nil {
		d.session.Reset()
		return nil, err
	}

	seen := make(map[string]bool)
	for _, answer := range answers {
		if answer.Source != AddressDiscovery || answer.Fn != FnGetSlaveInfo {
			continue
		}
		info, err := ParseSlaveInfo(answer.Data)
		if err != nil {
			d.stats.received(err)
			continue
		}
		// Candidates re-announce while unaddressed; take each serial once.
		if seen[string(info.Serial)] {
			continue
		}
		seen[string(info.Serial)] = true

		addr, err := d.session.nextAddress(info.Kind)
		if err != nil {
			continue // address pool exhausted for this kind
		}
		d.session.reserve(addr, info)

		assign, err := NewSetSlaveAddr(info.Serial, addr)
		if err != nil {
			d.session.drop(addr)
			continue
		}
		// The device acknowledges from its newly assigned address.
		if _, err := d.sendExpect(ctx, assign, addr); err != nil {
			d.session.drop(addr)
			continue
		}
		d.session.confirm(addr)
	}

	if err := d.session.finishDiscovery(); err != nil {
		return nil, err
	}
	return d.session.Devices(), nil
}

// Poll runs one ONLINE_CHECK round over every known device. Misses are
// counted against the policy's MissedPollLimit, so one noisy cycle does
// not flip a device Unresponsive; an unresponsive device answering again
// is restored to Ready by the normal response path.
func (d *Dispatcher) Poll(ctx context.Context) error {
	for _, dev := range d.session.Devices() {
		cmd, err := NewOnlineCheck(dev.Addr)
		if err != nil {
			return err
		}
		if _, err := d.sendQuiet(ctx, cmd); err != nil {
			var timeout *DeviceTimeoutError
			if errors.As(err, &timeout) {
				d.session.miss(dev.Addr, d.policy.MissedPollLimit)
				continue
			}
			var devErr *DeviceError
			if errors.As(err, &devErr) {
				continue // answered, just unhappy; touch already recorded
			}
			return err
		}
	}
	return nil
}

// ReadSensor returns the cached value for (addr, kind) with its
// staleness classification. It never touches the bus.
func (d *Dispatcher) ReadSensor(addr byte, kind SensorKind) Reading {
	return d.store.Get(addr, kind)
}

// DeviceStatus reports the readiness of the device at addr.
func (d *Dispatcher) DeviceStatus(addr byte) Readiness {
	return d.session.DeviceStatus(addr)
}

// ReadBoxSensors polls a box's gate and slot switches. The store is
// refreshed as a side effect.
func (d *Dispatcher) ReadBoxSensors(ctx context.Context, target byte) (BoxSensors, error) {
	cmd, err := NewReadBoxSensors(target)
	if err != nil {
		return BoxSensors{}, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return BoxSensors{}, err
	}
	return ParseBoxSensors(resp.Data)
}

// ReadEnvironment polls a box's humidity and temperature.
func (d *Dispatcher) ReadEnvironment(ctx context.Context, target byte) (Environment, error) {
	cmd, err := NewReadEnvironment(target)
	if err != nil {
		return Environment{}, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return Environment{}, err
	}
	return ParseEnvironment(resp.Data)
}

// ReadHubSensor polls the hub's buffer switch.
func (d *Dispatcher) ReadHubSensor(ctx context.Context) (FilamentState, error) {
	cmd, err := NewReadHubSensor()
	if err != nil {
		return 0, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return ParseBufferState(resp.Data)
}

// ReadEncoder polls the hub's measuring wheel count.
func (d *Dispatcher) ReadEncoder(ctx context.Context) (uint16, error) {
	cmd, err := NewReadEncoder()
	if err != nil {
		return 0, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return ParseEncoder(resp.Data)
}

// ReadRFID polls the tag for one slot of a box.
func (d *Dispatcher) ReadRFID(ctx context.Context, target byte, slot int) (RFIDTag, error) {
	cmd, err := NewReadRFID(target, slot)
	if err != nil {
		return RFIDTag{}, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return RFIDTag{}, err
	}
	return ParseRFID(resp.Data)
}

// GearControl drives one slot's feed gear.
func (d *Dispatcher) GearControl(ctx context.Context, target byte, slot, action, speed int) error {
	cmd, err := NewGearControl(target, slot, action, speed)
	if err != nil {
		return err
	}
	_, err = d.Send(ctx, cmd)
	return err
}

// ExtruderControl drives the hub's connection motor.
func (d *Dispatcher) ExtruderControl(ctx context.Context, action, speed int) error {
	cmd, err := NewExtruderControl(action, speed)
	if err != nil {
		return err
	}
	_, err = d.Send(ctx, cmd)
	return err
}

// Ping runs a COMMUNICATION_TEST round trip and reports whether the
// device echoed the payload back.
func (d *Dispatcher) Ping(ctx context.Context, target byte, payload []byte) (bool, error) {
	cmd, err := NewPing(target, payload)
	if err != nil {
		return false, err
	}
	resp, err := d.Send(ctx, cmd)
	if err != nil {
		return false, err
	}
	return bytes.Equal(resp.Data, payload), nil
}
