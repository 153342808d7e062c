// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"bytes"
	"strings"
	"testing"
)

func TestCapture_Format(t *testing.T) {
	var buf bytes.Buffer
	c := NewCapture(&buf)

	if err := c.Record(DirOut, []byte{0xF7, 0x01, 0x41}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := c.Record(DirIn, []byte{0x00}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := strings.Join([]string{
		">\t0xf7 (.)",
		">\t0x01 (.)",
		">\t0x41 (A)",
		"<\t0x00 (.)",
		"",
	}, "\n")
	if buf.String() != expected {
		t.Errorf("capture format mismatch:\nexpected %q\ngot      %q", expected, buf.String())
	}
}

func TestCapture_Close(t *testing.T) {
	var buf bytes.Buffer
	c := NewCapture(&buf)
	if err := c.Record(DirIn, []byte{0x7E}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if !strings.Contains(buf.String(), "0x7e (~)") {
		t.Errorf("missing byte in capture: %q", buf.String())
	}
}
