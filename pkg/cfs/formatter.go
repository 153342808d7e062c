// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded frame into a human-readable line, used
// by the raw_log command.
func FormatFrame(f *Frame) string {
	ts := f.timestamp.Format("15:04:05.000")
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) addr=0x%02X st=%s", ts, FormatFn(f.fn), f.fn, f.address, formatStatus(f))
	if len(f.data) > 0 {
		fmt.Fprintf(&b, " data=%s", HexDump(f.data))
	}
	b.WriteByte('\n')
	return b.String()
}

// formatStatus renders the status byte: request markers verbatim,
// anything else as a ResponseState.
func formatStatus(f *Frame) string {
	switch f.status {
	case StatusRequest:
		return "REQ"
	case StatusAddrOp:
		if f.fn >= FnSetSlaveAddr && f.fn <= FnGetAddrTable {
			return "REQ"
		}
		return FormatResponseState(f.status)
	default:
		return FormatResponseState(f.status)
	}
}

// FormatFn returns the catalogue name for a function code, or UNKNOWN.
func FormatFn(fn byte) string {
	if spec, ok := catalogue[fn]; ok {
		return spec.name
	}
	switch fn {
	case FnLoaderToApp:
		return "LOADER_TO_APP"
	case FnTightenUpEnable:
		return "TIGHTEN_UP_ENABLE"
	case FnExtrudeProcessModel2:
		return "EXTRUDE_PROCESS_MODEL2"
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", fn)
}

// FormatResponseState returns the human-readable name for a response
// state code.
func FormatResponseState(state byte) string {
	switch state {
	case StateOK:
		return "OK"
	case StateParamsErr:
		return "PARAMS_ERR"
	case StateCRCErr:
		return "CRC_ERR"
	case StateStateErr:
		return "STATE_ERR"
	case StateLengthErr:
		return "LENGTH_ERR"
	case StateMotorLoadErr:
		return "MOTOR_LOAD_ERR"
	case StateUpdating:
		return "UPDATE_STATE"
	case StateFilamentErr:
		return "FILAMENT_ERR"
	case StateSpeedErr:
		return "SPEED_ERR"
	case StateEnwindErr:
		return "ENWIND_ERR"
	}
	switch {
	case state >= StateExtrudeErr1 && state <= StateExtrudeErr9:
		return fmt.Sprintf("EXTRUDE_ERR_0x%02X", state)
	case state >= StateRetrudeErr1 && state <= StateRetrudeErr7:
		return fmt.Sprintf("RETRUDE_ERR_0x%02X", state)
	}
	return fmt.Sprintf("STATE_0x%02X", state)
}

// HexDump renders bytes as space-separated hex.
func HexDump(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
