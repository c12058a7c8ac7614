// Package ipc implements the power hub transport: length-framed
// transactions carrying parcels over a unix or tcp stream socket.
//
// A Conn multiplexes concurrent transactions over one socket and routes
// transactions addressed to locally registered objects (callbacks) to
// their stubs. The same Conn type backs both sides of the protocol; the
// Server wires accepted connections with its service object table.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	pslog "github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/parcel"
)

// Handle identifies an object reachable over a connection. Handle 0 is the
// hub object; handles with the high bit set name objects owned by the
// connecting client.
type Handle uint64

// HubHandle addresses the hub's service manager object.
const HubHandle Handle = 0

// handleClientOwned marks handles allocated by RegisterObject.
const handleClientOwned Handle = 1 << 63

// HubDescriptor is the hub object's interface descriptor.
const HubDescriptor = "hub.IServiceManager"

const (
	hubGetService   = FirstCall
	hubListServices = FirstCall + 1
)

// TransactionObserver receives the outcome of every transaction started on
// a Conn. service is the hub name of the target when known. outcome is one
// of ok, exception, timeout, canceled, closed, error.
type TransactionObserver func(service string, code uint32, outcome string, elapsed time.Duration)

type reply struct {
	data []byte
	err  error
}

type inbound struct {
	txnID  uint64
	target Handle
	code   uint32
	oneway bool
	data   []byte
}

// Conn is a hub connection. It is safe for concurrent use.
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	log zerolog.Logger

	// ctx is canceled when the connection shuts down; inbound stub
	// invocations run under it.
	ctx    context.Context
	cancel context.CancelFunc

	wmu sync.Mutex // serializes frame writes

	mu       sync.Mutex
	closed   bool
	err      error
	nextTxn  uint64
	nextObj  uint64
	pending  map[uint64]chan reply
	local    map[Handle]Stub
	names    map[Handle]string
	observer TransactionObserver

	dispatchCh chan inbound
	done       chan struct{}
	wg         sync.WaitGroup
}

// SplitAddr parses a hub address of the form unix:///path/to.sock or
// tcp://host:port into a network and target for net.Dial.
func SplitAddr(addr string) (network, target string, err error) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	}
	return "", "", fmt.Errorf("ipc: address %q: expected unix:// or tcp:// scheme", addr)
}

// Dial connects to a hub address.
func Dial(addr string) (*Conn, error) {
	return DialContext(context.Background(), addr)
}

// DialContext connects to a hub address, honoring ctx for the dial itself.
func DialContext(ctx context.Context, addr string) (*Conn, error) {
	network, target, err := SplitAddr(addr)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, target)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", addr, err)
	}
	return NewConn(nc), nil
}

// NewConn starts the read and dispatch goroutines over an established
// stream. Most callers use Dial; NewConn serves tests and in-process
// pipes.
func NewConn(nc net.Conn) *Conn {
	return newConn(nc, nil)
}

func newConn(nc net.Conn, local map[Handle]Stub) *Conn {
	if local == nil {
		local = make(map[Handle]Stub)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		nc:         nc,
		br:         bufio.NewReader(nc),
		log:        pslog.WithComponent("ipc"),
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[uint64]chan reply),
		local:      local,
		names:      make(map[Handle]string),
		dispatchCh: make(chan inbound, 16),
		done:       make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()
	return c
}

// SetObserver installs a transaction observer. Call before issuing
// transactions.
func (c *Conn) SetObserver(fn TransactionObserver) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// Transact sends a transaction to target and blocks until its reply
// arrives or ctx is done. The returned reader is positioned after the
// reply's status header. Non-OK statuses are returned as *Status errors.
func (c *Conn) Transact(ctx context.Context, target Handle, code uint32, w *parcel.Writer) (*parcel.Reader, error) {
	start := time.Now()
	r, err := c.transact(ctx, target, code, w)
	c.observe(target, code, err, time.Since(start))
	return r, err
}

func (c *Conn) transact(ctx context.Context, target Handle, code uint32, w *parcel.Writer) (*parcel.Reader, error) {
	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return nil, fmt.Errorf("ipc: transact: %w", err)
	}
	c.nextTxn++
	id := c.nextTxn
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeFrame(header{kind: frameTransaction, txnID: id, target: target, code: code}, w.Bytes()); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case rep := <-ch:
		if rep.err != nil {
			return nil, fmt.Errorf("ipc: transact: %w", rep.err)
		}
		r := parcel.NewReader(rep.data)
		st, err := readStatus(r)
		if err != nil {
			return nil, fmt.Errorf("ipc: reply status: %w", err)
		}
		if st != nil {
			return nil, st
		}
		return r, nil
	case <-ctx.Done():
		// Abandon the wait; a late reply is dropped by txn id lookup.
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ipc: transact code %d: %w", code, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// TransactOneway sends a transaction that gets no reply.
func (c *Conn) TransactOneway(ctx context.Context, target Handle, code uint32, w *parcel.Writer) error {
	start := time.Now()
	err := c.transactOneway(ctx, target, code, w)
	c.observe(target, code, err, time.Since(start))
	return err
}

func (c *Conn) transactOneway(ctx context.Context, target Handle, code uint32, w *parcel.Writer) error {
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("ipc: transact oneway: %w", err)
	}
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeFrame(header{kind: frameTransaction, target: target, code: code, flags: flagOneway}, w.Bytes())
}

// RegisterObject makes obj reachable by the peer and returns its handle,
// for passing in a parcel as an object reference.
func (c *Conn) RegisterObject(obj Stub) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextObj++
	h := Handle(c.nextObj) | handleClientOwned
	c.local[h] = obj
	return h
}

// UnregisterObject removes a handle registered with RegisterObject.
func (c *Conn) UnregisterObject(h Handle) {
	c.mu.Lock()
	delete(c.local, h)
	c.mu.Unlock()
}

// GetService resolves a registered service name to its handle.
func (c *Conn) GetService(ctx context.Context, name string) (Handle, error) {
	w := parcel.NewWriter()
	w.WriteString16(HubDescriptor)
	w.WriteString16(name)
	r, err := c.Transact(ctx, HubHandle, hubGetService, w)
	if err != nil {
		if errors.Is(err, ErrIllegalArgument) {
			return 0, fmt.Errorf("ipc: service %q: %w", name, ErrServiceNotFound)
		}
		return 0, fmt.Errorf("ipc: get service %q: %w", name, err)
	}
	h, ok, err := r.ReadObjectHandle()
	if err != nil {
		return 0, fmt.Errorf("ipc: get service %q: %w", name, err)
	}
	if !ok {
		return 0, fmt.Errorf("ipc: service %q: %w", name, ErrServiceNotFound)
	}
	c.mu.Lock()
	c.names[Handle(h)] = name
	c.mu.Unlock()
	return Handle(h), nil
}

// ListServices returns the names registered on the hub.
func (c *Conn) ListServices(ctx context.Context) ([]string, error) {
	w := parcel.NewWriter()
	w.WriteString16(HubDescriptor)
	r, err := c.Transact(ctx, HubHandle, hubListServices, w)
	if err != nil {
		return nil, fmt.Errorf("ipc: list services: %w", err)
	}
	names, err := r.String16Vector()
	if err != nil {
		return nil, fmt.Errorf("ipc: list services: %w", err)
	}
	return names, nil
}

// Close tears down the connection. In-flight transactions fail with
// ErrConnClosed. Close blocks until the connection's goroutines exit.
func (c *Conn) Close() error {
	c.shutdown(ErrConnClosed)
	c.wg.Wait()
	return nil
}

// shutdown transitions to closed exactly once and fails all in-flight
// transactions with cause.
func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	_ = c.nc.Close()
	for _, ch := range pending {
		ch <- reply{err: cause}
	}
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) writeFrame(h header, data []byte) error {
	if len(data) > maxFramePayload-headerSize {
		return fmt.Errorf("ipc: payload of %d bytes exceeds frame limit: %w", len(data), ErrProtocol)
	}
	frame := encodeFrame(h, data)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.nc.Write(frame); err != nil {
		return fmt.Errorf("ipc: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		payload, err := readFrame(c.br)
		if err != nil {
			c.connLost(err)
			return
		}
		hdr, data := parsePayload(payload)
		switch hdr.kind {
		case frameReply:
			c.mu.Lock()
			ch, ok := c.pending[hdr.txnID]
			delete(c.pending, hdr.txnID)
			c.mu.Unlock()
			if !ok {
				c.log.Debug().Str("event", "ipc.reply.unmatched").Uint64("txn_id", hdr.txnID).Msg("dropping reply with no waiter")
				continue
			}
			ch <- reply{data: data}
		case frameTransaction:
			in := inbound{
				txnID:  hdr.txnID,
				target: hdr.target,
				code:   hdr.code,
				oneway: hdr.flags&flagOneway != 0,
				data:   data,
			}
			select {
			case c.dispatchCh <- in:
			case <-c.done:
				return
			}
		default:
			c.connLost(fmt.Errorf("ipc: frame kind %d: %w", hdr.kind, ErrProtocol))
			return
		}
	}
}

func (c *Conn) connLost(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		c.shutdown(ErrConnClosed)
		return
	}
	c.log.Warn().Str("event", "ipc.conn.lost").Err(err).Msg("connection lost")
	c.shutdown(fmt.Errorf("ipc: connection lost: %w", err))
}

// dispatchLoop runs inbound transactions in arrival order, one at a time.
func (c *Conn) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case in := <-c.dispatchCh:
			c.handleInbound(in)
		case <-c.done:
			return
		}
	}
}

func (c *Conn) handleInbound(in inbound) {
	c.mu.Lock()
	obj := c.local[in.target]
	c.mu.Unlock()

	out := parcel.NewWriter()
	st := c.invoke(obj, in, out)
	if in.oneway {
		if st != nil {
			c.log.Debug().Str("event", "ipc.dispatch.failed").Uint32("code", in.code).Str("status", st.Code.String()).Str("detail", st.Message).Msg("oneway handler failed")
		}
		return
	}
	rw := parcel.NewWriter()
	writeStatus(rw, st)
	data := rw.Bytes()
	if st == nil {
		data = append(data, out.Bytes()...)
	}
	if err := c.writeFrame(header{kind: frameReply, txnID: in.txnID, code: in.code}, data); err != nil {
		c.log.Debug().Str("event", "ipc.reply.write_failed").Err(err).Msg("could not send reply")
	}
}

func (c *Conn) invoke(obj Stub, in inbound, out *parcel.Writer) *Status {
	if obj == nil {
		c.log.Warn().Str("event", "ipc.dispatch.unknown_handle").Uint64("target", uint64(in.target)).Msg("transaction for unknown object")
		return Errorf(CodeIllegalState, "no object at handle %#x", uint64(in.target))
	}
	r := parcel.NewReader(in.data)
	token, err := r.String16()
	if err != nil {
		return Errorf(CodeIllegalState, "interface token: %v", err)
	}
	if token != obj.Descriptor() {
		return Errorf(CodeSecurity, "interface token %q does not match %q", token, obj.Descriptor())
	}
	err = obj.Transact(ContextWithCaller(c.ctx, c), in.code, r, out)
	if err == nil {
		return nil
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	return Errorf(CodeIllegalState, "%v", err)
}

func (c *Conn) observe(target Handle, code uint32, err error, elapsed time.Duration) {
	c.mu.Lock()
	obs := c.observer
	name := c.names[target]
	c.mu.Unlock()
	if obs == nil {
		return
	}
	if name == "" {
		if target == HubHandle {
			name = "hub"
		} else {
			name = "object"
		}
	}
	obs(name, code, outcome(err), elapsed)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var st *Status
	switch {
	case errors.As(err, &st):
		return "exception"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrConnClosed):
		return "closed"
	}
	return "error"
}
