package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"dashrpc/metrics"
	"dashrpc/rpcerr"
	"dashrpc/transport"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle of the shared connection.
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	}
	return "absent"
}

// ErrClientClosed is the cause of calls made after Client.Close.
var ErrClientClosed = errors.New("client closed")

// connManager owns the one shared transport.
//
//	Absent ──connect──► Connecting ──ok──► Established ──transport done──► Absent
//	                        │
//	                        └──fail──► Absent (next connect dials again)
//
// Concurrent connects while Connecting join the same singleflight call, so N
// callers cost one dial and all see the same transport or the same error.
type connManager struct {
	dialer      Dialer
	dialTimeout time.Duration
	log         *zap.Logger
	metrics     *metrics.Collector

	mu         sync.Mutex
	conn       *transport.ClientTransport
	connecting bool
	closed     bool

	group singleflight.Group
}

func (m *connManager) state() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.current() != nil:
		return StateEstablished
	case m.connecting:
		return StateConnecting
	}
	return StateAbsent
}

// current returns the live transport, dropping one that has already closed but
// whose watcher has not run yet. Caller holds mu.
func (m *connManager) current() *transport.ClientTransport {
	if m.conn == nil {
		return nil
	}
	select {
	case <-m.conn.Done():
		m.conn = nil
		return nil
	default:
		return m.conn
	}
}

// connect returns the established transport, joining or starting an open
// attempt when there is none. A caller whose ctx ends stops waiting; the
// shared attempt carries on for the others.
func (m *connManager) connect(ctx context.Context) (*transport.ClientTransport, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, rpcerr.ConnectionError.Wrap(ErrClientClosed)
	}
	if t := m.current(); t != nil {
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("connect", m.open)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transport.ClientTransport), nil
	case <-ctx.Done():
		return nil, rpcerr.ConnectionError.Wrap(ctx.Err())
	}
}

// open runs once per singleflight round. The dial gets its own deadline: it is
// shared, so no single caller's ctx may cut it short.
func (m *connManager) open() (any, error) {
	m.mu.Lock()
	if t := m.current(); t != nil {
		// An earlier round finished between our caller's check and DoChan.
		m.mu.Unlock()
		return t, nil
	}
	m.connecting = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	defer cancel()
	start := time.Now()
	t, err := m.dialer.Dial(ctx)
	m.metrics.Connect(err)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("connect failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, rpcerr.ConnectionError.Wrap(err)
	}
	if m.closed {
		m.mu.Unlock()
		t.Close()
		return nil, rpcerr.ConnectionError.Wrap(ErrClientClosed)
	}
	m.conn = t
	m.mu.Unlock()

	m.log.Info("connected", zap.String("remote", t.RemoteAddr()), zap.Duration("elapsed", time.Since(start)))
	go m.watch(t)
	return t, nil
}

// watch is the single closure handler of t: it resets the state so the next
// call reconnects instead of reusing a dead handle.
func (m *connManager) watch(t *transport.ClientTransport) {
	<-t.Done()
	m.mu.Lock()
	if m.conn == t {
		m.conn = nil
	}
	m.mu.Unlock()
	m.log.Info("connection closed", zap.String("remote", t.RemoteAddr()), zap.Error(t.Err()))
}

func (m *connManager) close() error {
	m.mu.Lock()
	m.closed = true
	t := m.conn
	m.conn = nil
	m.mu.Unlock()
	if t != nil {
		return t.Close()
	}
	return nil
}
