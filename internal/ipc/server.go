package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	pslog "github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/parcel"
)

// Stub is the serving side of an interface. Transact receives the reader
// positioned after the verified interface token and writes its reply
// payload to out; for oneway calls out is discarded.
//
// Returning a *Status controls the reply's status header; any other error
// is reported to the peer as an illegal state.
type Stub interface {
	Descriptor() string
	Transact(ctx context.Context, code uint32, in *parcel.Reader, out *parcel.Writer) error
}

// Server hosts a hub: the service manager object plus registered service
// objects, served to any number of connections. Transactions on one
// connection are handled sequentially; connections are independent.
type Server struct {
	log zerolog.Logger

	mu        sync.Mutex
	closed    bool
	services  map[string]Handle
	table     map[Handle]Stub
	nextSvc   Handle
	listeners []net.Listener
	conns     map[*Conn]struct{}

	wg sync.WaitGroup
}

// NewServer returns a Server with only the hub object installed.
func NewServer() *Server {
	s := &Server{
		log:      pslog.WithComponent("ipc.server"),
		services: make(map[string]Handle),
		table:    make(map[Handle]Stub),
		conns:    make(map[*Conn]struct{}),
	}
	s.table[HubHandle] = &hubStub{srv: s}
	return s
}

// Register adds a service under name. Handles are assigned in registration
// order and are stable for the server's lifetime. Register before serving;
// connections accepted earlier do not see later registrations.
func (s *Server) Register(name string, obj Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.services[name]; dup {
		panic("ipc: Register called twice for service " + name)
	}
	s.nextSvc++
	s.services[name] = s.nextSvc
	s.table[s.nextSvc] = obj
	s.log.Debug().Str("event", "ipc.server.register").Str("service", name).Uint64("handle", uint64(s.nextSvc)).Msg("service registered")
}

// ListenAndServe listens on a hub address (unix:// or tcp://) and serves
// until Close. A stale unix socket file is removed before binding.
func (s *Server) ListenAndServe(addr string) error {
	network, target, err := SplitAddr(addr)
	if err != nil {
		return err
	}
	if network == "unix" {
		_ = os.Remove(target)
	}
	lis, err := net.Listen(network, target)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Close. It returns nil after
// Close, or the accept error otherwise.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = lis.Close()
		return ErrConnClosed
	}
	s.listeners = append(s.listeners, lis)
	s.mu.Unlock()

	for {
		nc, err := lis.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		if !s.adopt(nc) {
			_ = nc.Close()
			return nil
		}
	}
}

// adopt wires an accepted socket with the server's object table and tracks
// the connection until it dies. Returns false when the server is closed.
func (s *Server) adopt(nc net.Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	local := make(map[Handle]Stub, len(s.table))
	for h, obj := range s.table {
		local[h] = obj
	}
	s.mu.Unlock()

	c := newConn(nc, local)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.log.Debug().Str("event", "ipc.server.accept").Str("remote", nc.RemoteAddr().String()).Msg("connection accepted")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-c.done
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the listeners, closes every connection, and waits for all
// server goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, lis := range listeners {
		_ = lis.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return nil
}

// hubStub implements the service manager object at handle 0.
type hubStub struct {
	srv *Server
}

func (h *hubStub) Descriptor() string { return HubDescriptor }

func (h *hubStub) Transact(_ context.Context, code uint32, in *parcel.Reader, out *parcel.Writer) error {
	switch code {
	case hubGetService:
		name, err := in.String16()
		if err != nil {
			return err
		}
		h.srv.mu.Lock()
		handle, ok := h.srv.services[name]
		h.srv.mu.Unlock()
		if !ok {
			return Errorf(CodeIllegalArgument, "unknown service %q", name)
		}
		out.WriteObjectHandle(uint64(handle))
		return nil
	case hubListServices:
		h.srv.mu.Lock()
		names := make([]string, 0, len(h.srv.services))
		for name := range h.srv.services {
			names = append(names, name)
		}
		h.srv.mu.Unlock()
		sort.Strings(names)
		out.WriteString16Vector(names)
		return nil
	}
	return Errorf(CodeUnsupported, "hub method %d", code)
}
