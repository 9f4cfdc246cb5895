// Package transport implements the client side of the multiplexed connection.
//
// ClientTransport lets many concurrent calls share one WebSocket. Each call
// opens a stream with a fresh odd stream ID; a single background goroutine
// (recvLoop) reads every frame and routes it to the stream it belongs to.
//
//	goroutine-1 ──RequestResponse(id=1)──┐
//	goroutine-2 ──RequestStream(id=3)────┼──→ one WebSocket ──→ backend
//	goroutine-3 ──RequestResponse(id=5)──┘
//
//	recvLoop:  ←── PAYLOAD(id=3) → streams[3].events ← Next → goroutine-2 wakes up
//
// When the socket breaks, every open stream receives a terminal error event and
// Done() is closed. A closed transport is never reused.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"dashrpc/message"
	"dashrpc/protocol"
	"dashrpc/rpcerr"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is the cause carried by streams opened or still pending after Close.
var ErrClosed = errors.New("transport closed")

// RemoteError is the cause of a stream error the backend reported with an ERROR frame.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

type Options struct {
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration // 0 disables keepalives
	MaxLifetime       time.Duration // close after this long without any inbound frame; 0 disables
	Logger            *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ClientTransport manages a single multiplexed WebSocket connection.
type ClientTransport struct {
	conn *websocket.Conn
	opts Options
	log  *zap.Logger

	mu      sync.Mutex         // guards nextID, streams and closed
	nextID  uint32             // next client stream ID, odd
	streams map[uint32]*Stream // open streams awaiting events
	closed  bool               // no new streams once set

	sending sync.Mutex // one writer at a time, frames must not interleave

	lastRecv  atomic.Int64 // unix nanos of the last inbound frame
	done      chan struct{}
	closeOnce sync.Once
	err       error // why the transport closed, readable after done
}

// Dial opens a WebSocket to url and starts the transport's background loops.
func Dial(ctx context.Context, url string, opts Options) (*ClientTransport, error) {
	opts = opts.withDefaults()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewClientTransport(conn, opts), nil
}

// NewClientTransport wraps an established WebSocket and starts two goroutines:
//   - recvLoop: reads frames and dispatches them to open streams
//   - keepaliveLoop: probes the backend and closes the transport when it goes silent
func NewClientTransport(conn *websocket.Conn, opts Options) *ClientTransport {
	opts = opts.withDefaults()
	t := &ClientTransport{
		conn:    conn,
		opts:    opts,
		log:     opts.Logger.With(zap.String("remote", conn.RemoteAddr().String())),
		nextID:  1,
		streams: make(map[uint32]*Stream),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(int64(protocol.HeaderSize) + 2*int64(protocol.MaxBlockLen))
	t.lastRecv.Store(time.Now().UnixNano())
	go t.recvLoop()
	if opts.KeepaliveInterval > 0 {
		go t.keepaliveLoop(opts.KeepaliveInterval)
	}
	return t
}

// RequestResponse opens a stream expecting at most one value.
func (t *ClientTransport) RequestResponse(p message.Payload) (*Stream, error) {
	return t.open(protocol.FrameRequestResponse, 0, p)
}

// RequestStream opens a stream expecting up to n values followed by completion.
func (t *ClientTransport) RequestStream(p message.Payload, n uint32) (*Stream, error) {
	return t.open(protocol.FrameRequestStream, n, p)
}

// open registers the stream BEFORE writing the request so recvLoop can never
// see a reply for an ID it does not know.
func (t *ClientTransport) open(ft protocol.FrameType, n uint32, p message.Payload) (*Stream, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, rpcerr.ConnectionError.Wrap(t.closeCause())
	}
	id := t.nextID
	t.nextID += 2
	s := &Stream{
		id:       id,
		t:        t,
		events:   make(chan message.Event),
		wake:     make(chan struct{}, 1),
		released: make(chan struct{}),
	}
	t.streams[id] = s
	t.mu.Unlock()
	go s.forward()

	h := protocol.Header{Type: ft, StreamID: id, RequestN: n}
	if err := t.write(&h, p.Metadata, p.Data); err != nil {
		t.remove(id)
		return nil, rpcerr.ConnectionError.Wrap(fmt.Errorf("send %s: %w", ft, err))
	}
	t.log.Debug("stream opened", zap.Uint32("stream_id", id), zap.Stringer("type", ft))
	return s, nil
}

// write sends one frame. A failed write means the socket is unusable, so the
// transport is torn down and recvLoop fails every pending stream.
func (t *ClientTransport) write(h *protocol.Header, metadata, data []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	err := WriteFrame(t.conn, h, metadata, data)
	if err != nil {
		t.conn.Close()
	}
	return err
}

func (t *ClientTransport) remove(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.streams[id]; !ok {
		return false
	}
	delete(t.streams, id)
	return true
}

func (t *ClientTransport) lookup(id uint32) (*Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[id]
	return s, ok
}

// recvLoop is the only reader of the socket: frames must be consumed in order.
func (t *ClientTransport) recvLoop() {
	var err error
	for {
		var f *protocol.Frame
		f, err = ReadFrame(t.conn)
		if err != nil {
			break
		}
		t.lastRecv.Store(time.Now().UnixNano())
		t.dispatch(f)
	}
	t.shutdown(err)
}

func (t *ClientTransport) dispatch(f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameKeepalive:
		if f.Flags.Has(protocol.FlagRespond) {
			h := protocol.Header{Type: protocol.FrameKeepalive}
			if err := t.write(&h, nil, f.Data); err != nil {
				t.log.Debug("keepalive echo failed", zap.Error(err))
			}
		}

	case protocol.FramePayload:
		s, ok := t.lookup(f.StreamID)
		if !ok {
			t.log.Debug("payload for unknown stream dropped", zap.Uint32("stream_id", f.StreamID))
			return
		}
		if !f.Flags.Has(protocol.FlagNext) && !f.Flags.Has(protocol.FlagComplete) {
			t.log.Warn("payload without NEXT or COMPLETE ignored", zap.Uint32("stream_id", f.StreamID))
			return
		}
		if f.Flags.Has(protocol.FlagNext) {
			s.deliver(message.Event{Kind: message.EventNext, Data: f.Data})
		}
		if f.Flags.Has(protocol.FlagComplete) {
			t.remove(f.StreamID)
			s.deliver(message.Event{Kind: message.EventComplete})
		}

	case protocol.FrameError:
		s, ok := t.lookup(f.StreamID)
		if !ok {
			return
		}
		t.remove(f.StreamID)
		cause := &RemoteError{Message: string(f.Data)}
		s.deliver(message.Event{Kind: message.EventError, Err: rpcerr.ConnectionError.Wrap(cause)})

	default:
		t.log.Warn("unexpected frame from server", zap.Stringer("type", f.Type), zap.Uint32("stream_id", f.StreamID))
	}
}

// shutdown is called once, by recvLoop, when the socket stops delivering frames.
func (t *ClientTransport) shutdown(cause error) {
	t.mu.Lock()
	t.closed = true
	if t.err == nil {
		t.err = cause
	}
	pending := t.streams
	t.streams = make(map[uint32]*Stream)
	err := rpcerr.ConnectionError.Wrap(t.closeCause())
	t.mu.Unlock()

	t.conn.Close()
	t.closeOnce.Do(func() { close(t.done) })
	t.log.Info("transport closed", zap.Error(cause), zap.Int("pending", len(pending)))

	// Notify every pending caller so none of them waits for a reply that cannot come.
	for _, s := range pending {
		s.deliver(message.Event{Kind: message.EventError, Err: err})
	}
}

func (t *ClientTransport) closeCause() error {
	if t.err == nil || errors.Is(t.err, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, t.err)
}

// keepaliveLoop probes the backend periodically. The backend echoes every probe,
// so a link that stays silent for MaxLifetime is considered dead.
func (t *ClientTransport) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		if limit := t.opts.MaxLifetime; limit > 0 {
			if silent := time.Since(time.Unix(0, t.lastRecv.Load())); silent > limit {
				t.log.Warn("backend silent, closing transport", zap.Duration("silent", silent))
				t.closeWith(fmt.Errorf("no frames for %s", silent.Round(time.Millisecond)))
				return
			}
		}
		h := protocol.Header{Type: protocol.FrameKeepalive, Flags: protocol.FlagRespond}
		if err := t.write(&h, nil, nil); err != nil {
			return
		}
	}
}

func (t *ClientTransport) closeWith(cause error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = cause
	}
	t.mu.Unlock()
	t.conn.Close()
}

// Close tears the connection down. Pending streams fail with a ConnectionError.
func (t *ClientTransport) Close() error {
	t.closeWith(ErrClosed)
	<-t.done
	return nil
}

// Done is closed once the transport can no longer carry calls.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the transport closed, or nil while it is open.
func (t *ClientTransport) Err() error {
	select {
	case <-t.done:
	default:
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCause()
}

// RemoteAddr is the backend address, for logs.
func (t *ClientTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Stream is the client's record of one open call on the connection.
//
// recvLoop only appends to the stream's queue; a per-stream goroutine hands the
// queued events to the consumer. A slow consumer therefore delays its own
// stream and nothing else on the connection.
type Stream struct {
	id          uint32
	t           *ClientTransport
	events      chan message.Event
	released    chan struct{}
	releaseOnce sync.Once

	mu    sync.Mutex
	queue []message.Event
	wake  chan struct{} // cap 1, poked by deliver
}

func (s *Stream) ID() uint32 { return s.id }

// Events delivers the stream's events in transport order. After a terminal
// event nothing else is sent. The channel is never closed.
func (s *Stream) Events() <-chan message.Event { return s.events }

// deliver queues ev for the consumer and never blocks.
func (s *Stream) deliver(ev message.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// forward runs until the consumer has taken the terminal event or the stream
// is released.
func (s *Stream) forward() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.released:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = message.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- ev:
			if ev.Terminal() {
				return
			}
		case <-s.released:
			return
		}
	}
}

// Release forgets the stream locally without telling the backend; any later
// frames for it are dropped. Used when a call is abandoned (timeout).
func (s *Stream) Release() {
	s.t.remove(s.id)
	s.releaseOnce.Do(func() { close(s.released) })
}

// Cancel releases the stream and, if it was still open, sends CANCEL so the
// backend stops producing.
func (s *Stream) Cancel() {
	open := s.t.remove(s.id)
	s.releaseOnce.Do(func() { close(s.released) })
	if !open {
		return
	}
	h := protocol.Header{Type: protocol.FrameCancel, StreamID: s.id}
	if err := s.t.write(&h, nil, nil); err != nil {
		s.t.log.Debug("cancel not sent", zap.Uint32("stream_id", s.id), zap.Error(err))
	}
}
