// Package server is a reference backend speaking the dashboard's multiplexed
// protocol over WebSocket. It serves the command-line demo and the tests of
// the client packages.
//
// Request processing pipeline:
//
//	Upgrade → handleConn (single goroutine reads frames)
//	  → for each REQUEST_*: go handleRequest (parallel processing)
//	    → route lookup → Middleware Chain → handler → PAYLOAD / ERROR frames
//
// A CANCEL frame cancels the context of the stream it names.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"dashrpc/codec"
	"dashrpc/middleware"
	"dashrpc/protocol"
	"dashrpc/registry"
	"dashrpc/route"
	"dashrpc/transport"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler answers a single-reply request. Returning (nil, nil) completes the
// request without a value; an error is sent to the client as an ERROR frame.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// StreamHandler answers a multi-reply request by calling send once per item.
// Returning nil completes the stream; an error ends it with an ERROR frame.
type StreamHandler func(ctx context.Context, data []byte, send func([]byte) error) error

// RawHandler writes frames for a request itself, in any order. The stream is
// closed on the server side when it returns.
type RawHandler func(ctx context.Context, data []byte, w *Responder)

type entry struct {
	single Handler
	stream StreamHandler
	raw    RawHandler
}

type Options struct {
	Path        string // HTTP path of the WebSocket endpoint
	ServiceName string // name registered in the service registry
	Logger      *zap.Logger
}

// Server is the reference backend.
type Server struct {
	opts        Options
	log         *zap.Logger
	routes      map[string]*entry
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(businessHandler)))
	buildOnce   sync.Once
	upgrader    websocket.Upgrader

	ctx    context.Context // parent of every request context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[*websocket.Conn]struct{}

	wg            sync.WaitGroup // in-flight single-reply requests, awaited by Shutdown
	shutdown      atomic.Bool
	registry      registry.Registry
	advertiseAddr string
}

func NewServer(opts Options) *Server {
	if opts.Path == "" {
		opts.Path = "/rpc"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "dashboard"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		log:    opts.Logger,
		routes: make(map[string]*entry),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Handle registers a single-reply route. Routes must be registered before the
// server accepts connections.
func (svr *Server) Handle(routeName string, h Handler) {
	svr.routes[routeName] = &entry{single: h}
}

func (svr *Server) HandleStream(routeName string, h StreamHandler) {
	svr.routes[routeName] = &entry{stream: h}
}

func (svr *Server) HandleRaw(routeName string, h RawHandler) {
	svr.routes[routeName] = &entry{raw: h}
}

// Register exposes the handler-shaped methods of rcvr as routes under name.
// See registerMethods for the accepted signatures.
func (svr *Server) Register(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	json := codec.GetCodec(codec.CodecTypeJSON)
	for routeName, m := range svc.method {
		m := m
		decodeArgs := func(data []byte) (reflect.Value, error) {
			argv := reflect.New(m.ArgType)
			return argv, json.Decode(data, argv.Interface())
		}
		if m.stream {
			svr.HandleStream(routeName, func(ctx context.Context, data []byte, send func([]byte) error) error {
				argv, err := decodeArgs(data)
				if err != nil {
					return err
				}
				return svc.stream(ctx, m, argv, sendSink(send))
			})
			continue
		}
		svr.Handle(routeName, func(ctx context.Context, data []byte) ([]byte, error) {
			argv, err := decodeArgs(data)
			if err != nil {
				return nil, err
			}
			reply, err := svc.call(ctx, m, argv)
			if err != nil || reply == nil {
				return nil, err
			}
			if m.raw {
				return reply.([]byte), nil
			}
			return json.Encode(reply)
		})
	}
	return nil
}

type sendSink func([]byte) error

func (s sendSink) Send(v any) error {
	data, err := codec.GetCodec(codec.CodecTypeJSON).Encode(v)
	if err != nil {
		return err
	}
	return s(data)
}

// Use registers a middleware around single-reply handlers. Middlewares are
// applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

func (svr *Server) build() {
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
}

// Serve listens on address, registers advertiseAddr under the service name when
// reg is not nil, and serves until Shutdown.
//
// advertiseAddr is the WebSocket URL clients dial, e.g. "ws://127.0.0.1:7000/rpc";
// it differs from the listen address because ":7000" is not routable.
func (svr *Server) Serve(address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()

	if reg != nil {
		svr.registry = reg
		svr.advertiseAddr = advertiseAddr
		err := reg.Register(svr.ctx, svr.opts.ServiceName, registry.ServiceInstance{Addr: advertiseAddr, Weight: 1}, 10)
		if err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", svr.opts.ServiceName, err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle(svr.opts.Path, svr)
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	svr.log.Info("serving", zap.String("addr", listener.Addr().String()), zap.String("path", svr.opts.Path))

	err = httpServer.Serve(listener)
	if svr.shutdown.Load() {
		return nil
	}
	return err
}

// Addr is the listen address once Serve is running.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if svr.shutdown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := svr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		svr.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	svr.handleConn(ws)
}

// serverConn is one client connection. Reads happen on the handleConn
// goroutine; writes from request goroutines are serialized by writeMu.
type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[uint32]context.CancelFunc
}

func (c *serverConn) write(h *protocol.Header, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return transport.WriteFrame(c.ws, h, nil, data)
}

func (c *serverConn) finish(id uint32) {
	c.mu.Lock()
	cancel, ok := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (svr *Server) handleConn(ws *websocket.Conn) {
	svr.buildOnce.Do(svr.build)
	svr.mu.Lock()
	svr.conns[ws] = struct{}{}
	svr.mu.Unlock()

	c := &serverConn{ws: ws, streams: make(map[uint32]context.CancelFunc)}
	ws.SetReadLimit(int64(protocol.HeaderSize) + 2*int64(protocol.MaxBlockLen))
	log := svr.log.With(zap.String("peer", ws.RemoteAddr().String()))
	log.Debug("connection opened")

	for {
		f, err := transport.ReadFrame(ws)
		if err != nil {
			log.Debug("connection closed", zap.Error(err))
			break
		}
		switch f.Type {
		case protocol.FrameKeepalive:
			if f.Flags.Has(protocol.FlagRespond) {
				c.write(&protocol.Header{Type: protocol.FrameKeepalive}, f.Data)
			}
		case protocol.FrameRequestResponse, protocol.FrameRequestStream:
			svr.startRequest(c, f, log)
		case protocol.FrameCancel:
			c.finish(f.StreamID)
		default:
			log.Debug("ignoring frame", zap.Stringer("type", f.Type), zap.Uint32("stream_id", f.StreamID))
		}
	}

	c.mu.Lock()
	for id, cancel := range c.streams {
		cancel()
		delete(c.streams, id)
	}
	c.mu.Unlock()
	svr.mu.Lock()
	delete(svr.conns, ws)
	svr.mu.Unlock()
	ws.Close()
}

func (svr *Server) startRequest(c *serverConn, f *protocol.Frame, log *zap.Logger) {
	w := &Responder{c: c, id: f.StreamID}
	routeName, err := route.Decode(f.Metadata)
	if err != nil {
		w.Error(err.Error())
		return
	}
	e, ok := svr.routes[routeName]
	if !ok {
		w.Error("unknown route: " + routeName)
		return
	}
	if svr.shutdown.Load() {
		w.Error("shutting down")
		return
	}

	ctx, cancel := context.WithCancel(svr.ctx)
	c.mu.Lock()
	c.streams[f.StreamID] = cancel
	c.mu.Unlock()

	if e.single != nil {
		svr.wg.Add(1)
	}
	go func() {
		defer c.finish(f.StreamID)
		if e.single != nil {
			defer svr.wg.Done()
		}
		svr.handleRequest(ctx, e, routeName, f.Data, w, log)
	}()
}

// handleRequest runs one request and turns the handler's result into frames.
func (svr *Server) handleRequest(ctx context.Context, e *entry, routeName string, data []byte, w *Responder, log *zap.Logger) {
	switch {
	case e.raw != nil:
		e.raw(ctx, data, w)

	case e.stream != nil:
		err := e.stream(ctx, data, func(item []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.Next(item)
		})
		switch {
		case ctx.Err() != nil:
			// Cancelled by the client or by shutdown: nobody is listening.
		case err != nil:
			log.Debug("stream failed", zap.String("route", routeName), zap.Error(err))
			w.Error(err.Error())
		default:
			w.Complete()
		}

	default:
		reply, err := svr.handler(ctx, &middleware.Invocation{Route: routeName, Data: data})
		switch {
		case ctx.Err() != nil:
		case err != nil:
			w.Error(err.Error())
		case reply == nil:
			w.Complete()
		default:
			w.NextComplete(reply)
		}
	}
}

// businessHandler is the innermost handler of the middleware chain.
func (svr *Server) businessHandler(ctx context.Context, inv *middleware.Invocation) ([]byte, error) {
	e, ok := svr.routes[inv.Route]
	if !ok || e.single == nil {
		return nil, fmt.Errorf("unknown route: %s", inv.Route)
	}
	return e.single(ctx, inv.Data)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop routing to this server)
//  2. Stop accepting connections
//  3. Wait for in-flight single-reply requests, at most timeout
//  4. Cancel streams and close every connection
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.registry.Deregister(ctx, svr.opts.ServiceName, svr.advertiseAddr); err != nil {
			svr.log.Warn("deregister failed", zap.Error(err))
		}
		cancel()
	}

	svr.shutdown.Store(true)
	svr.mu.Lock()
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("timeout waiting for ongoing requests to finish")
	}

	svr.cancel()
	svr.mu.Lock()
	for ws := range svr.conns {
		ws.Close()
	}
	svr.mu.Unlock()
	return err
}

// Responder writes the frames of one request's stream.
type Responder struct {
	c  *serverConn
	id uint32
}

func (w *Responder) Next(data []byte) error {
	return w.payload(protocol.FlagNext, data)
}

func (w *Responder) NextComplete(data []byte) error {
	return w.payload(protocol.FlagNext|protocol.FlagComplete, data)
}

func (w *Responder) Complete() error {
	return w.payload(protocol.FlagComplete, nil)
}

func (w *Responder) Error(msg string) error {
	return w.c.write(&protocol.Header{Type: protocol.FrameError, StreamID: w.id}, []byte(msg))
}

func (w *Responder) payload(flags protocol.Flags, data []byte) error {
	return w.c.write(&protocol.Header{Type: protocol.FramePayload, Flags: flags, StreamID: w.id}, data)
}
