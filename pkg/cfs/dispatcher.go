// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Policy holds every timeout and retry parameter the dispatcher uses.
// Nothing here is hardcoded in the transaction logic.
type Policy struct {
	// Attempts is the maximum number of writes per request before
	// DeviceTimeoutError is surfaced.
	Attempts int
	// ResponseTimeout bounds the wait for a response per attempt.
	ResponseTimeout time.Duration
	// Backoff is the delay before the second attempt; each further
	// attempt multiplies it by BackoffFactor (1.0 = fixed backoff).
	Backoff       time.Duration
	BackoffFactor float64
	// DiscoveryWindow is how long a broadcast probe collects responses.
	DiscoveryWindow time.Duration
	// MissedPollLimit is how many consecutive failed ONLINE_CHECK polls
	// turn a Ready device Unresponsive.
	MissedPollLimit int
	// Freshness is the sensor-store staleness threshold.
	Freshness time.Duration
}

// DefaultPolicy returns the documented defaults. At 230400 baud a full
// response fits well inside 50ms; the timeout leaves headroom for
// firmware that answers slowly while motors are moving.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		ResponseTimeout: 250 * time.Millisecond,
		Backoff:         50 * time.Millisecond,
		BackoffFactor:   2.0,
		DiscoveryWindow: 2 * time.Second,
		MissedPollLimit: 3,
		Freshness:       5 * time.Second,
	}
}

// Response is a decoded answer frame correlated to one command.
type Response struct {
	Source byte
	State  byte
	Fn     byte
	Data   []byte
}

func responseFromFrame(f *Frame) *Response {
	return &Response{
		Source: f.Address(),
		State:  f.Status(),
		Fn:     f.Fn(),
		Data:   f.Data(),
	}
}

type result struct {
	resp  *Response
	multi []*Response
	err   error
}

type pending struct {
	ctx        context.Context
	cmd        Command
	expectFrom byte
	broadcast  bool
	window     time.Duration
	deferMark  bool // leave readiness to the caller on retry exhaustion
	reply      chan result
}

// Dispatcher serializes all traffic onto the half-duplex bus: one
// worker goroutine drains a FIFO queue, so at most one request/response
// pair is ever in flight. Send is the sole entry point for bus writes.
type Dispatcher struct {
	tr      Transport
	policy  Policy
	session *Session
	store   *Store
	stats   *Statistics
	decoder *Decoder

	mu      sync.Mutex
	capture *Capture

	requests  chan *pending
	done      chan struct{}
	closeOnce sync.Once

	lastSent []byte // written frame, for local-echo suppression
}

// NewDispatcher creates a dispatcher over the given transport. The
// session starts Uninitialized; call Discover before steady-state use.
func NewDispatcher(tr Transport, policy Policy) *Dispatcher {
	d := &Dispatcher{
		tr:       tr,
		policy:   policy,
		session:  NewSession(),
		store:    NewStore(policy.Freshness),
		stats:    NewStatistics(),
		decoder:  NewDecoder(),
		requests: make(chan *pending, 32),
		done:     make(chan struct{}),
	}
	go d.worker()
	return d
}

// Session returns the addressing state machine.
func (d *Dispatcher) Session() *Session { return d.session }

// Store returns the sensor state store.
func (d *Dispatcher) Store() *Store { return d.store }

// Stats returns the link statistics tracker.
func (d *Dispatcher) Stats() *Statistics { return d.stats }

// SetCapture attaches a raw-frame capture log to all bus traffic.
func (d *Dispatcher) SetCapture(c *Capture) {
	d.mu.Lock()
	d.capture = c
	d.mu.Unlock()
}

// Close shuts the dispatcher down and closes the transport. Queued
// requests fail with ErrSessionClosed.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return d.tr.Close()
}

// Send enqueues a command and blocks until it is served in FIFO order.
// A still-queued request is abandoned when ctx is cancelled; a request
// already on the wire runs out its timeout window first.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) (*Response, error) {
	return d.sendExpect(ctx, cmd, cmd.Target())
}

// sendExpect is Send with an explicit source address for the expected
// response, used when a device answers from a different address than
// the one written to (address assignment).
func (d *Dispatcher) sendExpect(ctx context.Context, cmd Command, expectFrom byte) (*Response, error) {
	res := d.enqueue(&pending{
		ctx:        ctx,
		cmd:        cmd,
		expectFrom: expectFrom,
		reply:      make(chan result, 1),
	})
	return res.resp, res.err
}

// sendQuiet is Send without marking the device Unresponsive on retry
// exhaustion. The poll path uses it so the missed-poll counter, not a
// single failed cycle, decides when a device is down.
func (d *Dispatcher) sendQuiet(ctx context.Context, cmd Command) (*Response, error) {
	res := d.enqueue(&pending{
		ctx:        ctx,
		cmd:        cmd,
		expectFrom: cmd.Target(),
		deferMark:  true,
		reply:      make(chan result, 1),
	})
	return res.resp, res.err
}

// broadcastCollect writes cmd once and collects every response frame
// decoded inside the window. Used by discovery.
func (d *Dispatcher) broadcastCollect(ctx context.Context, cmd Command, window time.Duration) ([]*Response, error) {
	res := d.enqueue(&pending{
		ctx:       ctx,
		cmd:       cmd,
		broadcast: true,
		window:    window,
		reply:     make(chan result, 1),
	})
	return res.multi, res.err
}

func (d *Dispatcher) enqueue(p *pending) result {
	select {
	case <-d.done:
		return result{err: ErrSessionClosed}
	case <-p.ctx.Done():
		return result{err: p.ctx.Err()}
	case d.requests <- p:
	}
	select {
	case <-d.done:
		return result{err: ErrSessionClosed}
	case res := <-p.reply:
		return res
	}
}

// worker serves queued requests strictly in submission order.
func (d *Dispatcher) worker() {
	for {
		select {
		case <-d.done:
			return
		case p := <-d.requests:
			// Cancellation is free while the request is still queued.
			if err := p.ctx.Err(); err != nil {
				p.reply <- result{err: err}
				continue
			}
			if p.broadcast {
				multi, err := d.transactBroadcast(p)
				p.reply <- result{multi: multi, err: err}
			} else {
				resp, err := d.transact(p)
				p.reply <- result{resp: resp, err: err}
			}
		}
	}
}

// transact runs one request/response cycle with the retry policy.
// Transient link errors (checksum, framing, malformed response, silence)
// burn attempts; device rejections and caller errors do not retry.
func (d *Dispatcher) transact(p *pending) (*Response, error) {
	backoff := d.policy.Backoff
	var attempts int

	for attempts = 0; attempts < d.policy.Attempts; attempts++ {
		if attempts > 0 {
			d.stats.retry()
			if !d.sleep(backoff) {
				return nil, ErrSessionClosed
			}
			backoff = time.Duration(float64(backoff) * d.policy.BackoffFactor)
			// A cancelled caller stops further attempts; the attempt
			// already sent has run out its window by now.
			if err := p.ctx.Err(); err != nil {
				return nil, err
			}
		}

		if err := d.writeCommand(p.cmd); err != nil {
			return nil, err
		}

		frame, err := d.awaitFrame(p.expectFrom, d.policy.ResponseTimeout)
		if err != nil {
			if isTransient(err) {
				continue
			}
			return nil, err
		}
		if frame == nil {
			d.stats.timeout()
			continue
		}

		if err := validateResponse(p.cmd.Fn(), frame); err != nil {
			d.stats.received(err)
			continue
		}
		if !frame.OK() {
			derr := &DeviceError{Address: frame.Address(), Fn: frame.Fn(), State: frame.Status()}
			d.stats.received(derr)
			d.session.touch(frame.Address())
			return responseFromFrame(frame), derr
		}

		d.store.update(frame)
		d.session.touch(frame.Address())
		return responseFromFrame(frame), nil
	}

	if !p.deferMark {
		d.session.unresponsive(p.expectFrom)
	}
	return nil, &DeviceTimeoutError{Address: p.expectFrom, Fn: p.cmd.Fn(), Attempts: attempts}
}

// transactBroadcast writes once and drains every decodable frame inside
// the window. Checksum and framing errors are counted, not fatal.
func (d *Dispatcher) transactBroadcast(p *pending) ([]*Response, error) {
	if err := d.writeCommand(p.cmd); err != nil {
		return nil, err
	}

	var out []*Response
	deadline := time.Now().Add(p.window)
	buf := make([]byte, 256)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out, nil
		}
		if err := d.tr.SetReadTimeout(remaining); err != nil {
			return out, err
		}
		n, err := d.tr.Read(buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		d.recordCapture(DirIn, buf[:n])
		for _, b := range buf[:n] {
			frame, derr := d.decoder.DecodeByte(b)
			if derr != nil {
				d.stats.received(derr)
				continue
			}
			if frame == nil {
				continue
			}
			if d.isEcho(frame) {
				continue
			}
			d.stats.received(nil)
			out = append(out, responseFromFrame(frame))
		}
	}
}

// writeCommand encodes and writes one frame to the transport.
func (d *Dispatcher) writeCommand(cmd Command) error {
	wire, err := EncodeFrame(cmd.Frame())
	if err != nil {
		return err
	}
	d.lastSent = wire
	d.recordCapture(DirOut, wire)
	if _, err := d.tr.Write(wire); err != nil {
		return err
	}
	d.stats.sent()
	return nil
}

// awaitFrame reads until a frame from the expected address decodes, the
// timeout elapses (returns nil, nil), or a checksum error aborts the
// attempt. Frames from other addresses are stale bus traffic and are
// skipped; framing desyncs are recoverable and only counted.
func (d *Dispatcher) awaitFrame(from byte, timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if err := d.tr.SetReadTimeout(remaining); err != nil {
			return nil, err
		}
		n, err := d.tr.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		d.recordCapture(DirIn, buf[:n])
		for i := 0; i < n; i++ {
			frame, derr := d.decoder.DecodeByte(buf[i])
			if derr != nil {
				d.stats.received(derr)
				// A corrupt frame is indistinguishable from noise;
				// abandon the attempt and let the retry policy resend.
				if _, corrupt := derr.(*ChecksumError); corrupt {
					return nil, derr
				}
				continue
			}
			if frame == nil {
				continue
			}
			if d.isEcho(frame) {
				continue
			}
			d.stats.received(nil)
			if frame.Address() != from {
				continue
			}
			return frame, nil
		}
	}
}

// isEcho detects our own transmission looped back by RS485 adapters
// with local echo enabled.
func (d *Dispatcher) isEcho(f *Frame) bool {
	if d.lastSent == nil {
		return false
	}
	wire, err := EncodeFrame(f)
	if err != nil {
		return false
	}
	if bytes.Equal(wire, d.lastSent) {
		d.lastSent = nil
		return true
	}
	return false
}

func (d *Dispatcher) recordCapture(dir byte, data []byte) {
	d.mu.Lock()
	c := d.capture
	d.mu.Unlock()
	if c != nil {
		c.Record(dir, data)
	}
}

func (d *Dispatcher) sleep(dur time.Duration) bool {
	select {
	case <-d.done:
		return false
	case <-time.After(dur):
		return true
	}
}
