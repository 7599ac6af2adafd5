// Package listener implements the shared UDP log-ingest socket (spec.md
// §4.6): datagrams are demultiplexed by source endpoint to a registered
// set of server handles.
package listener

import (
	"fmt"
	"net"
	"sync"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/vlog"
)

const maxDatagram = 65507

// ServerHandle is anything that can accept a received log line and
// report the remote endpoint it was registered under.
type ServerHandle interface {
	RemoteAddr() *net.UDPAddr
	ProcessLog(line string) error
}

// Disposable is implemented by a ServerHandle that can report whether it
// has already been torn down.
type Disposable interface {
	Disposed() bool
}

// Listener is a single UDP socket demultiplexing received datagrams to
// registered Server handles by source endpoint. Administrative
// operations (Listen, Stop, AddServer, RemoveServer) take an exclusive
// lock; the reader loop takes a shared lock to look up a destination and
// a fresh shared lock each time it rearms.
type Listener struct {
	mu          sync.RWMutex
	servers     map[string]ServerHandle
	conn        *net.UDPConn
	onException func(error)
	logger      *vlog.Logger
}

// New creates an unbound Listener.
func New(logger *vlog.Logger) *Listener {
	return &Listener{servers: make(map[string]ServerHandle), logger: logger}
}

// OnException registers the callback invoked when a registered server's
// ProcessLog returns an error (or panics) while handling a datagram.
func (l *Listener) OnException(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onException = fn
}

// AddServer registers s under its remote endpoint.
func (l *Listener) AddServer(s ServerHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.servers[s.RemoteAddr().String()] = s
	return nil
}

// RemoveServer unregisters s. It raises ErrDisposed if s reports itself
// already disposed.
func (l *Listener) RemoveServer(s ServerHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := s.(Disposable); ok && d.Disposed() {
		return verr.ErrDisposed
	}
	delete(l.servers, s.RemoteAddr().String())
	return nil
}

// RemoveServerAddr unregisters whatever server is bound to addr, if any.
func (l *Listener) RemoveServerAddr(addr *net.UDPAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.servers, addr.String())
}

// Listen opens the UDP socket at localAddr and starts the reader. It
// raises ErrAlreadyListening if already open.
func (l *Listener) Listen(localAddr *net.UDPAddr) error {
	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		return verr.ErrAlreadyListening
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("listener: listen %s: %w", localAddr, err)
	}
	l.conn = conn
	l.mu.Unlock()

	go l.readLoop(conn)
	return nil
}

// LocalAddr returns the socket's bound local address, or nil if the
// listener is not currently open.
func (l *Listener) LocalAddr() *net.UDPAddr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Stop shuts down and closes the socket; the reader exits on its next
// completed receive.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *Listener) readLoop(conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		l.mu.RLock()
		live := l.conn == conn
		l.mu.RUnlock()
		if !live {
			return
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.dispatch(from, payload)
	}
}

func (l *Listener) dispatch(from *net.UDPAddr, payload []byte) {
	l.mu.RLock()
	s, ok := l.servers[from.String()]
	l.mu.RUnlock()
	if !ok {
		return
	}

	if err := l.safeProcess(s, payload); err != nil {
		l.mu.RLock()
		handler := l.onException
		l.mu.RUnlock()
		if handler != nil {
			handler(err)
		} else if l.logger != nil {
			l.logger.Warn("listener: unhandled exception: %v", err)
		}
	}
}

func (l *Listener) safeProcess(s ServerHandle, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener: handler panic: %v", r)
		}
	}()
	return s.ProcessLog(string(payload))
}
