// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// DefaultBaudRate is the CFS bus rate.
const DefaultBaudRate = 230400

// Transport is the byte-stream contract the engine consumes. The
// physical port (RS485 adapter, or a remote bridge) lives behind it; the
// engine never manages the port itself.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// SetReadTimeout bounds how long a single Read may block. A timed-out
	// Read returns (0, nil).
	SetReadTimeout(d time.Duration) error
}

// SerialTransport drives a local RS485 adapter via go.bug.st/serial.
type SerialTransport struct {
	port serial.Port
}

// OpenSerial opens the named port at the given baud rate (8N1).
func OpenSerial(portName string, baudRate int) (*SerialTransport, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialTransport{port: port}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialTransport) Close() error                { return s.port.Close() }

func (s *SerialTransport) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// transport.
var ErrConnectionClosed = fmt.Errorf("cfs: websocket connection closed")

// WebSocketTransport drives the bus through a serial-over-WebSocket
// bridge. Binary messages carry raw bus bytes.
type WebSocketTransport struct {
	conn        *websocket.Conn
	buf         []byte
	bufOffset   int
	readTimeout time.Duration
	closed      bool
}

// WebSocketConfig configures OpenWebSocket.
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// OpenWebSocket dials a bridge with optional HTTP Basic auth.
func OpenWebSocket(cfg WebSocketConfig) (*WebSocketTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

func (w *WebSocketTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	if w.readTimeout > 0 {
		w.conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	} else {
		w.conn.SetReadDeadline(time.Time{})
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// A deadline hit mirrors a serial timeout: empty read, keep
			// the connection usable.
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				return 0, nil
			}
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) Close() error { return w.conn.Close() }

func (w *WebSocketTransport) SetReadTimeout(d time.Duration) error {
	w.readTimeout = d
	return nil
}
