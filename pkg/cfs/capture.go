// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Capture direction tags: '>' controller to bus, '<' bus to controller.
const (
	DirOut = '>'
	DirIn  = '<'
)

// Capture writes a raw-frame log in the interceptty style used while
// reverse-engineering the protocol: one byte per line, hex plus its
// printable ASCII form, tagged with direction. The files diff cleanly
// against captures taken on real hardware.
type Capture struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

// NewCapture wraps a writer. If w is also an io.Closer, Close closes it.
func NewCapture(w io.Writer) *Capture {
	out := &Capture{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		out.c = c
	}
	return out
}

// Record logs one buffer of bus bytes in the given direction.
func (c *Capture) Record(dir byte, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range data {
		if _, err := fmt.Fprintf(c.w, "%c\t0x%02x (%s)\n", dir, b, printable(b)); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// Close flushes and closes the underlying writer if it is closable.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil {
		return err
	}
	if c.c != nil {
		return c.c.Close()
	}
	return nil
}

func printable(b byte) string {
	if b >= 0x20 && b <= 0x7E {
		return string(rune(b))
	}
	return "."
}
