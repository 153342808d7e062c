// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

// Package cfs implements the binary RS485 protocol spoken by the Creality
// CFS filament-management peripheral (one hub plus up to four filament
// boxes on a shared half-duplex bus).
//
// The package provides the frame codec, the command catalogue, a
// single-in-flight dispatcher, the discovery/addressing state machine and
// a last-known-value sensor store. The physical port is abstracted behind
// the Transport interface; serial and WebSocket-bridge implementations
// are included.
package cfs

// Frame marker and size limits.
const (
	FrameMarker = 0xF7

	// MaxFrameSize bounds a complete frame on the wire. The length byte
	// counts status + fn + data + crc, so the largest frame is
	// 3 + 255 bytes; real CFS traffic stays far below this.
	MaxFrameSize = 3 + 255
	MaxDataSize  = 255 - 3 // length minus status, fn and crc

	// frameOverhead is marker + address + length.
	frameOverhead = 3
)

// CRC8 configuration, sealed against captured bus traces. The checksum
// covers the length byte through the last data byte; marker and address
// are excluded.
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
)

// Bus addresses. Boxes occupy 0x01-0x04, the hub sits above them.
// Unaddressed devices answer discovery probes on AddressDiscovery until
// SET_SLAVE_ADDR gives them a stable operating address.
const (
	AddressBox1 = 0x01
	AddressBox2 = 0x02
	AddressBox3 = 0x03
	AddressBox4 = 0x04
	AddressHub  = 0x05

	AddressDiscovery    = 0xF0
	AddressBroadcastBox = 0xFE // all boxes
	AddressBroadcast    = 0xFF // all devices
)

// MaxBoxes is the number of box addresses the bus supports.
const MaxBoxes = 4

// Request status byte. Commands from the controller carry StatusRequest;
// the address-management commands (0xA0-0xA3) carry StatusAddrOp.
// Responses reuse the field for a ResponseState code.
const (
	StatusRequest = 0xFF
	StatusAddrOp  = 0x00
)

// Function codes. 0x0B, 0x0F and 0x13 appear in captured traffic with no
// known payload schema; they are named here so the formatter can label
// them but carry no catalogue entry, so they cannot be built.
const (
	FnCreateConnect        = 0x01
	FnGetRFID              = 0x02
	FnGetRemainLen         = 0x03
	FnSetBoxMode           = 0x04
	FnGetBufferState       = 0x05
	FnCtrlMaterialMotor    = 0x06
	FnCtrlConnectionMotor  = 0x07
	FnGetFilamentSensor    = 0x08
	FnSetMotorSpeed        = 0x09
	FnGetBoxState          = 0x0A
	FnLoaderToApp          = 0x0B
	FnSetPreLoading        = 0x0D
	FnMeasuringWheel       = 0x0E
	FnTightenUpEnable      = 0x0F
	FnExtrudeProcess       = 0x10
	FnRetrudeProcess       = 0x11
	FnExtrudeProcessModel2 = 0x13
	FnGetVersionSN         = 0x14
	FnGetHardwareStatus    = 0x15
	FnCommunicationTest    = 0x55

	// Auto address acquisition.
	FnSetSlaveAddr = 0xA0
	FnGetSlaveInfo = 0xA1
	FnOnlineCheck  = 0xA2
	FnGetAddrTable = 0xA3
)

// ResponseState codes carried in the status byte of responses.
const (
	StateOK           = 0x00
	StateParamsErr    = 0x01
	StateCRCErr       = 0x02
	StateStateErr     = 0x03
	StateLengthErr    = 0x04
	StateExtrudeErr1  = 0x05
	StateExtrudeErr4  = 0x08
	StateExtrudeErr5  = 0x09
	StateExtrudeErr6  = 0x0A
	StateExtrudeErr7  = 0x0B
	StateExtrudeErr8  = 0x0C
	StateExtrudeErr10 = 0x0D
	StateExtrudeErr9  = 0x0E
	StateRetrudeErr1  = 0x12
	StateRetrudeErr2  = 0x13
	StateRetrudeErr3  = 0x14
	StateRetrudeErr4  = 0x15
	StateRetrudeErr5  = 0x16
	StateRetrudeErr6  = 0x19
	StateRetrudeErr7  = 0x1A
	StateMotorLoadErr = 0x22
	StateUpdating     = 0x30
	StateFilamentErr  = 0x50
	StateSpeedErr     = 0x51
	StateEnwindErr    = 0x52
)

// Decoder states (internal).
const (
	stateIdle = iota
	stateAddress
	stateLength
	stateBody
)

// DeviceKind distinguishes the two CFS unit types.
type DeviceKind int

const (
	KindUnknown DeviceKind = iota
	KindHub
	KindBox
)

func (k DeviceKind) String() string {
	switch k {
	case KindHub:
		return "hub"
	case KindBox:
		return "box"
	default:
		return "unknown"
	}
}

// Device kind bytes as reported in GET_SLAVE_INFO responses.
const (
	kindByteHub = 0x01
	kindByteBox = 0x02
)

// SensorKind identifies a cached sensor reading.
type SensorKind int

const (
	SensorGate SensorKind = iota // box gate (pre-gear) filament switch
	SensorSlot1                  // box post-gear switches, one per slot
	SensorSlot2
	SensorSlot3
	SensorSlot4
	SensorBuffer      // hub buffer position switch
	SensorEncoder     // hub measuring wheel
	SensorHumidity    // box environment
	SensorTemperature // box environment
	SensorRFID        // last tag read
)

func (k SensorKind) String() string {
	switch k {
	case SensorGate:
		return "gate"
	case SensorSlot1:
		return "slot1"
	case SensorSlot2:
		return "slot2"
	case SensorSlot3:
		return "slot3"
	case SensorSlot4:
		return "slot4"
	case SensorBuffer:
		return "buffer"
	case SensorEncoder:
		return "encoder"
	case SensorHumidity:
		return "humidity"
	case SensorTemperature:
		return "temperature"
	case SensorRFID:
		return "rfid"
	default:
		return "invalid"
	}
}

// FilamentState is the value reported by gate and slot switches.
type FilamentState int

const (
	FilamentAbsent  FilamentState = 0
	FilamentPresent FilamentState = 1
	FilamentJammed  FilamentState = 2

	maxFilamentState = FilamentJammed
)

func (s FilamentState) String() string {
	switch s {
	case FilamentAbsent:
		return "absent"
	case FilamentPresent:
		return "present"
	case FilamentJammed:
		return "jammed"
	default:
		return "invalid"
	}
}

// Motor actions for CTRL_MATERIAL_MOTOR_ACTION and
// CTRL_CONNECTION_MOTOR_ACTION.
const (
	MotorStop    = 0x00
	MotorForward = 0x01
	MotorReverse = 0x02

	maxMotorAction = MotorReverse
)

// Gear speed bounds for SET_MOTOR_SPEED and motor actions, in percent.
const (
	MinGearSpeed = 0
	MaxGearSpeed = 100
)

// SlotCount is the number of filament slots per box.
const SlotCount = 4
