// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import "encoding/binary"

// TargetClass restricts which devices a function code may be sent to.
type TargetClass int

const (
	TargetEither TargetClass = iota
	TargetBox
	TargetHub
	TargetDiscovery // address-management traffic (0xA0-0xA3)
)

// lenVariable marks a request or response whose data length is not fixed.
const lenVariable = -1

// commandSpec declares the wire schema for one function code.
type commandSpec struct {
	name    string
	target  TargetClass
	reqLen  int // request data length, lenVariable if open
	respLen int // response data length, lenVariable if open
	respMin int // minimum response data length when variable
}

// catalogue is the single source of truth for supported function codes.
// A code missing here fails closed with ErrUnsupportedCommand.
var catalogue = map[byte]commandSpec{
	FnCreateConnect:       {name: "CREATE_CONNECT", target: TargetEither, reqLen: 0, respLen: 0},
	FnGetRFID:             {name: "GET_RFID", target: TargetBox, reqLen: 1, respLen: lenVariable, respMin: 1},
	FnGetRemainLen:        {name: "GET_REMAIN_LEN", target: TargetBox, reqLen: 0, respLen: 8},
	FnSetBoxMode:          {name: "SET_BOX_MODE", target: TargetBox, reqLen: 2, respLen: 0},
	FnGetBufferState:      {name: "GET_BUFFER_STATE", target: TargetHub, reqLen: 0, respLen: 1},
	FnCtrlMaterialMotor:   {name: "CTRL_MATERIAL_MOTOR_ACTION", target: TargetBox, reqLen: 3, respLen: 0},
	FnCtrlConnectionMotor: {name: "CTRL_CONNECTION_MOTOR_ACTION", target: TargetHub, reqLen: 2, respLen: 0},
	FnGetFilamentSensor:   {name: "GET_FILAMENT_SENSOR_STATE", target: TargetBox, reqLen: 0, respLen: 5},
	FnSetMotorSpeed:       {name: "SET_MOTOR_SPEED", target: TargetBox, reqLen: 2, respLen: 0},
	FnGetBoxState:         {name: "GET_BOX_STATE", target: TargetBox, reqLen: 0, respLen: 4},
	FnSetPreLoading:       {name: "SET_PRE_LOADING", target: TargetBox, reqLen: 2, respLen: 0},
	FnMeasuringWheel:      {name: "MEASURING_WHEEL", target: TargetHub, reqLen: 0, respLen: 2},
	FnExtrudeProcess:      {name: "EXTRUDE_PROCESS", target: TargetBox, reqLen: 1, respLen: 0},
	FnRetrudeProcess:      {name: "RETRUDE_PROCESS", target: TargetBox, reqLen: 1, respLen: 0},
	FnGetVersionSN:        {name: "GET_VERSION_SN", target: TargetEither, reqLen: 0, respLen: lenVariable, respMin: 1},
	FnGetHardwareStatus:   {name: "GET_HARDWARE_STATUS", target: TargetEither, reqLen: 0, respLen: lenVariable, respMin: 1},
	FnCommunicationTest:   {name: "COMMUNICATION_TEST", target: TargetEither, reqLen: lenVariable, respLen: lenVariable},

	FnSetSlaveAddr: {name: "SET_SLAVE_ADDR", target: TargetDiscovery, reqLen: lenVariable, respLen: 0, respMin: 0},
	FnGetSlaveInfo: {name: "GET_SLAVE_INFO", target: TargetDiscovery, reqLen: 2, respLen: lenVariable, respMin: 2},
	FnOnlineCheck:  {name: "ONLINE_CHECK", target: TargetDiscovery, reqLen: 0, respLen: lenVariable, respMin: 0},
	FnGetAddrTable: {name: "GET_ADDR_TABLE", target: TargetDiscovery, reqLen: 0, respLen: lenVariable, respMin: 0},
}

// Command is one logical request: function code, target address and
// data. Immutable once built.
type Command struct {
	fn     byte
	target byte
	status byte
	data   []byte
}

// Fn returns the function code.
func (c Command) Fn() byte { return c.fn }

// Target returns the destination bus address.
func (c Command) Target() byte { return c.target }

// Status returns the request status byte.
func (c Command) Status() byte { return c.status }

// Data returns a copy of the request data.
func (c Command) Data() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Frame builds the outgoing frame for the command.
func (c Command) Frame() *Frame { return NewFrame(c.target, c.status, c.fn, c.data) }

// Name returns the catalogue name for the command's function code.
func (c Command) Name() string { return FormatFn(c.fn) }

// requestStatus returns the status byte a request must carry for fn.
func requestStatus(fn byte) byte {
	if fn >= FnSetSlaveAddr && fn <= FnGetAddrTable {
		return StatusAddrOp
	}
	return StatusRequest
}

// Build validates fn, target class and data shape against the catalogue
// and returns an immutable Command. This is the generic entry point; the
// typed constructors below are preferred.
func Build(fn, target byte, data []byte) (Command, error) {
	spec, ok := catalogue[fn]
	if !ok {
		return Command{}, ErrUnsupportedCommand
	}
	if spec.reqLen != lenVariable && len(data) != spec.reqLen {
		return Command{}, &InvalidArgumentError{Fn: fn, Field: "data",
			Reason: "length mismatch"}
	}
	if err := checkTarget(fn, spec.target, target); err != nil {
		return Command{}, err
	}
	d := make([]byte, len(data))
	copy(d, data)
	return Command{fn: fn, target: target, status: requestStatus(fn), data: d}, nil
}

func checkTarget(fn byte, class TargetClass, target byte) error {
	isBox := target >= AddressBox1 && target <= AddressBox1+MaxBoxes-1
	switch class {
	case TargetBox:
		if !isBox && target != AddressBroadcastBox {
			return &InvalidArgumentError{Fn: fn, Field: "target", Reason: "requires a box address"}
		}
	case TargetHub:
		if target != AddressHub {
			return &InvalidArgumentError{Fn: fn, Field: "target", Reason: "requires the hub address"}
		}
	case TargetEither:
		if !isBox && target != AddressHub && target != AddressBroadcastBox && target != AddressBroadcast {
			return &InvalidArgumentError{Fn: fn, Field: "target", Reason: "not a device address"}
		}
	case TargetDiscovery:
		// Address-management traffic may go anywhere, including the
		// reserved discovery address and broadcasts.
	}
	return nil
}

func checkSlot(fn byte, slot int) error {
	if slot < 0 || slot >= SlotCount {
		return &InvalidArgumentError{Fn: fn, Field: "slot", Reason: "out of range"}
	}
	return nil
}

func checkSpeed(fn byte, speed int) error {
	if speed < MinGearSpeed || speed > MaxGearSpeed {
		return &InvalidArgumentError{Fn: fn, Field: "speed", Reason: "out of range"}
	}
	return nil
}

// NewIdentify creates a CREATE_CONNECT command (0x01).
func NewIdentify(target byte) (Command, error) {
	return Build(FnCreateConnect, target, nil)
}

// NewReadRFID creates a GET_RFID command (0x02) for one filament slot.
func NewReadRFID(target byte, slot int) (Command, error) {
	if err := checkSlot(FnGetRFID, slot); err != nil {
		return Command{}, err
	}
	return Build(FnGetRFID, target, []byte{byte(slot)})
}

// NewReadRemainLen creates a GET_REMAIN_LEN command (0x03).
func NewReadRemainLen(target byte) (Command, error) {
	return Build(FnGetRemainLen, target, nil)
}

// NewSetBoxMode creates a SET_BOX_MODE command (0x04).
func NewSetBoxMode(target, mode, arg byte) (Command, error) {
	return Build(FnSetBoxMode, target, []byte{mode, arg})
}

// NewReadHubSensor creates a GET_BUFFER_STATE command (0x05).
func NewReadHubSensor() (Command, error) {
	return Build(FnGetBufferState, AddressHub, nil)
}

// NewGearControl creates a CTRL_MATERIAL_MOTOR_ACTION command (0x06)
// driving one slot's feed gear. Speed is in percent.
func NewGearControl(target byte, slot, action, speed int) (Command, error) {
	if err := checkSlot(FnCtrlMaterialMotor, slot); err != nil {
		return Command{}, err
	}
	if action < MotorStop || action > maxMotorAction {
		return Command{}, &InvalidArgumentError{Fn: FnCtrlMaterialMotor, Field: "action", Reason: "out of range"}
	}
	if err := checkSpeed(FnCtrlMaterialMotor, speed); err != nil {
		return Command{}, err
	}
	return Build(FnCtrlMaterialMotor, target, []byte{byte(slot), byte(action), byte(speed)})
}

// NewExtruderControl creates a CTRL_CONNECTION_MOTOR_ACTION command
// (0x07) driving the hub's connection motor.
func NewExtruderControl(action, speed int) (Command, error) {
	if action < MotorStop || action > maxMotorAction {
		return Command{}, &InvalidArgumentError{Fn: FnCtrlConnectionMotor, Field: "action", Reason: "out of range"}
	}
	if err := checkSpeed(FnCtrlConnectionMotor, speed); err != nil {
		return Command{}, err
	}
	return Build(FnCtrlConnectionMotor, AddressHub, []byte{byte(action), byte(speed)})
}

// NewReadBoxSensors creates a GET_FILAMENT_SENSOR_STATE command (0x08).
func NewReadBoxSensors(target byte) (Command, error) {
	return Build(FnGetFilamentSensor, target, nil)
}

// NewSetMotorSpeed creates a SET_MOTOR_SPEED command (0x09).
func NewSetMotorSpeed(target byte, slot, speed int) (Command, error) {
	if err := checkSlot(FnSetMotorSpeed, slot); err != nil {
		return Command{}, err
	}
	if err := checkSpeed(FnSetMotorSpeed, speed); err != nil {
		return Command{}, err
	}
	return Build(FnSetMotorSpeed, target, []byte{byte(slot), byte(speed)})
}

// NewReadEnvironment creates a GET_BOX_STATE command (0x0A) reading a
// box's humidity and temperature.
func NewReadEnvironment(target byte) (Command, error) {
	return Build(FnGetBoxState, target, nil)
}

// NewSetPreLoading creates a SET_PRE_LOADING command (0x0D). slots is a
// bitmask of slots to pre-load.
func NewSetPreLoading(target, slots byte, enable bool) (Command, error) {
	e := byte(0)
	if enable {
		e = 1
	}
	return Build(FnSetPreLoading, target, []byte{slots, e})
}

// NewReadEncoder creates a MEASURING_WHEEL command (0x0E).
func NewReadEncoder() (Command, error) {
	return Build(FnMeasuringWheel, AddressHub, nil)
}

// NewExtrude creates an EXTRUDE_PROCESS command (0x10).
func NewExtrude(target byte, slot int) (Command, error) {
	if err := checkSlot(FnExtrudeProcess, slot); err != nil {
		return Command{}, err
	}
	return Build(FnExtrudeProcess, target, []byte{byte(slot)})
}

// NewRetrude creates a RETRUDE_PROCESS command (0x11).
func NewRetrude(target byte, slot int) (Command, error) {
	if err := checkSlot(FnRetrudeProcess, slot); err != nil {
		return Command{}, err
	}
	return Build(FnRetrudeProcess, target, []byte{byte(slot)})
}

// NewReadVersion creates a GET_VERSION_SN command (0x14).
func NewReadVersion(target byte) (Command, error) {
	return Build(FnGetVersionSN, target, nil)
}

// NewReadHardwareStatus creates a GET_HARDWARE_STATUS command (0x15).
func NewReadHardwareStatus(target byte) (Command, error) {
	return Build(FnGetHardwareStatus, target, nil)
}

// NewPing creates a COMMUNICATION_TEST command (0x55) echoing payload.
func NewPing(target byte, payload []byte) (Command, error) {
	return Build(FnCommunicationTest, target, payload)
}

// NewSlaveInfoProbe creates the broadcast GET_SLAVE_INFO command (0xA1)
// that opens a discovery window. Unaddressed devices answer on the
// reserved discovery address.
func NewSlaveInfoProbe() (Command, error) {
	return Build(FnGetSlaveInfo, AddressBroadcast, []byte{AddressBroadcastBox, AddressBroadcastBox})
}

// NewSetSlaveAddr creates a SET_SLAVE_ADDR command (0xA0) binding the
// device with the given serial to a stable operating address.
func NewSetSlaveAddr(serial []byte, addr byte) (Command, error) {
	if len(serial) == 0 {
		return Command{}, &InvalidArgumentError{Fn: FnSetSlaveAddr, Field: "serial", Reason: "empty"}
	}
	if addr == 0 || addr > AddressHub {
		return Command{}, &InvalidArgumentError{Fn: FnSetSlaveAddr, Field: "addr", Reason: "out of range"}
	}
	data := make([]byte, 0, len(serial)+1)
	data = append(data, serial...)
	data = append(data, addr)
	return Build(FnSetSlaveAddr, AddressDiscovery, data)
}

// NewOnlineCheck creates an ONLINE_CHECK command (0xA2), the steady-state
// readiness poll.
func NewOnlineCheck(target byte) (Command, error) {
	return Build(FnOnlineCheck, target, nil)
}

// NewGetAddrTable creates a GET_ADDR_TABLE command (0xA3).
func NewGetAddrTable(target byte) (Command, error) {
	return Build(FnGetAddrTable, target, nil)
}

// ---- Response decoding ----

// validateResponse checks a response frame's shape against the catalogue
// entry for fn. This is the single point where length mismatches and
// unknown codes are rejected.
func validateResponse(fn byte, f *Frame) error {
	spec, ok := catalogue[fn]
	if !ok {
		return ErrUnsupportedCommand
	}
	n := len(f.Data())
	if spec.respLen != lenVariable {
		if n != spec.respLen {
			return &MalformedResponseError{Fn: fn, Reason: "unexpected data length"}
		}
		return nil
	}
	if n < spec.respMin {
		return &MalformedResponseError{Fn: fn, Reason: "data shorter than minimum"}
	}
	return nil
}

// BoxSensors is the decoded GET_FILAMENT_SENSOR_STATE response: the gate
// switch plus the four post-gear slot switches.
type BoxSensors struct {
	Gate  FilamentState
	Slots [SlotCount]FilamentState
}

// ParseBoxSensors decodes a GET_FILAMENT_SENSOR_STATE data section.
func ParseBoxSensors(data []byte) (BoxSensors, error) {
	var out BoxSensors
	if len(data) != SlotCount+1 {
		return out, &MalformedResponseError{Fn: FnGetFilamentSensor, Reason: "unexpected data length"}
	}
	for i, b := range data {
		if FilamentState(b) > maxFilamentState {
			return out, &MalformedResponseError{Fn: FnGetFilamentSensor, Reason: "impossible sensor state"}
		}
		if i == 0 {
			out.Gate = FilamentState(b)
		} else {
			out.Slots[i-1] = FilamentState(b)
		}
	}
	return out, nil
}

// ParseBufferState decodes a GET_BUFFER_STATE data section (hub buffer
// switch position).
func ParseBufferState(data []byte) (FilamentState, error) {
	if len(data) != 1 {
		return 0, &MalformedResponseError{Fn: FnGetBufferState, Reason: "unexpected data length"}
	}
	if FilamentState(data[0]) > maxFilamentState {
		return 0, &MalformedResponseError{Fn: FnGetBufferState, Reason: "impossible sensor state"}
	}
	return FilamentState(data[0]), nil
}

// ParseEncoder decodes a MEASURING_WHEEL data section into the raw
// little-endian wheel count.
func ParseEncoder(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, &MalformedResponseError{Fn: FnMeasuringWheel, Reason: "unexpected data length"}
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Environment is the decoded GET_BOX_STATE response.
type Environment struct {
	Humidity    int // percent relative humidity
	Temperature int // degrees Celsius
}

// ParseEnvironment decodes a GET_BOX_STATE data section. The trailing
// two bytes are reserved by the firmware and ignored.
func ParseEnvironment(data []byte) (Environment, error) {
	var out Environment
	if len(data) != 4 {
		return out, &MalformedResponseError{Fn: FnGetBoxState, Reason: "unexpected data length"}
	}
	if data[0] > 100 {
		return out, &MalformedResponseError{Fn: FnGetBoxState, Reason: "humidity above 100%"}
	}
	out.Humidity = int(data[0])
	out.Temperature = int(data[1])
	return out, nil
}

// RFIDTag is the decoded GET_RFID response.
type RFIDTag struct {
	Slot int
	Tag  []byte
}

// ParseRFID decodes a GET_RFID data section: slot byte followed by the
// raw tag bytes (empty when no spool tag is present).
func ParseRFID(data []byte) (RFIDTag, error) {
	var out RFIDTag
	if len(data) < 1 {
		return out, &MalformedResponseError{Fn: FnGetRFID, Reason: "data shorter than minimum"}
	}
	if int(data[0]) >= SlotCount {
		return out, &MalformedResponseError{Fn: FnGetRFID, Reason: "impossible slot index"}
	}
	out.Slot = int(data[0])
	out.Tag = make([]byte, len(data)-1)
	copy(out.Tag, data[1:])
	return out, nil
}

// ParseRemainLen decodes a GET_REMAIN_LEN data section: remaining
// filament length per slot in little-endian centimetres.
func ParseRemainLen(data []byte) ([SlotCount]uint16, error) {
	var out [SlotCount]uint16
	if len(data) != SlotCount*2 {
		return out, &MalformedResponseError{Fn: FnGetRemainLen, Reason: "unexpected data length"}
	}
	for i := 0; i < SlotCount; i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return out, nil
}

// SlaveInfo is the decoded GET_SLAVE_INFO response a candidate device
// sends on the discovery address.
type SlaveInfo struct {
	Kind   DeviceKind
	Serial []byte
}

// ParseSlaveInfo decodes a GET_SLAVE_INFO data section: a kind byte
// followed by the device serial number.
func ParseSlaveInfo(data []byte) (SlaveInfo, error) {
	var out SlaveInfo
	if len(data) < 2 {
		return out, &MalformedResponseError{Fn: FnGetSlaveInfo, Reason: "data shorter than minimum"}
	}
	switch data[0] {
	case kindByteHub:
		out.Kind = KindHub
	case kindByteBox:
		out.Kind = KindBox
	default:
		return out, &MalformedResponseError{Fn: FnGetSlaveInfo, Reason: "unknown device kind"}
	}
	out.Serial = make([]byte, len(data)-1)
	copy(out.Serial, data[1:])
	return out, nil
}

// ParseVersionSN decodes a GET_VERSION_SN data section. The firmware
// reports an ASCII version/serial string.
func ParseVersionSN(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &MalformedResponseError{Fn: FnGetVersionSN, Reason: "empty data"}
	}
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return "", &MalformedResponseError{Fn: FnGetVersionSN, Reason: "non-printable byte in version string"}
		}
	}
	return string(data), nil
}
