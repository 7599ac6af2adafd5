package valveq

import (
	"net"

	"github.com/hlstat/valveq/internal/listener"
	"github.com/hlstat/valveq/internal/logevent"
	"github.com/hlstat/valveq/pkg/vlog"
)

// Event and its variants are internal/logevent's tagged union over log
// line kinds, re-exported here (as type aliases, so they remain the
// identical underlying type) for callers that need to name or
// type-switch over them without reaching into an internal package.
type (
	Event          = logevent.Event
	Header         = logevent.Header
	Player         = logevent.Player
	CvarEvent      = logevent.CvarEvent
	RconEvent      = logevent.RconEvent
	KickEvent      = logevent.KickEvent
	TeamScore      = logevent.TeamScore
	PlayerScore    = logevent.PlayerScore
	PlayerOnPlayer = logevent.PlayerOnPlayer
	PlayerAction   = logevent.PlayerAction
	PlayerEvent    = logevent.PlayerEvent
	TeamEvent      = logevent.TeamEvent
	ServerEvent    = logevent.ServerEvent
	InfoEvent      = logevent.InfoEvent
)

// EmptyPlayer is the sentinel Player returned when a log line's player
// field fails to parse.
var EmptyPlayer = logevent.Empty

// Listener is a shared UDP log-ingest socket that demultiplexes received
// datagrams to whichever registered Server's remote endpoint they came
// from (spec.md §4.6). Create one with NewListener and register a Server
// with it via Server.AttachListener to fan a single socket in to several
// handles, instead of each Server opening its own with StartLogListener.
type Listener = listener.Listener

// NewListener creates a Listener with no socket open yet; call Listen to
// bind it before attaching any Server.
func NewListener(logger *vlog.Logger) *Listener {
	return listener.New(logger)
}

// OnEvent registers a subscriber invoked, synchronously on whichever
// goroutine is reading the attached listener's socket, for every event
// parsed from one of s's log lines. User code must not block long here
// (spec.md §5): the library does no queueing on a subscriber's behalf.
func (s *Server) OnEvent(fn func(Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.eventSubs = append(s.eventSubs, fn)
}

// OnException registers a subscriber invoked when a received log line
// fails to classify into any known event (spec.md §7: UnknownEvent is
// surfaced here, on the goroutine reading the listener's socket).
// ProcessLog also returns the same error to its own caller.
func (s *Server) OnException(fn func(error)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.exceptionSubs = append(s.exceptionSubs, fn)
}

func (s *Server) dispatchEvent(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.eventSubs {
		fn(ev)
	}
}

func (s *Server) dispatchException(err error) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.exceptionSubs {
		fn(err)
	}
}

// RemoteAddr satisfies internal/listener.ServerHandle: log datagrams are
// demultiplexed to the Server whose remote endpoint matches the
// datagram's source address.
func (s *Server) RemoteAddr() *net.UDPAddr { return s.addr.Load() }

// ProcessLog satisfies internal/listener.ServerHandle. It classifies one
// received log line; a successfully classified event goes to this
// server's own event subscribers, while a line that matched the outer
// log-line frame but no inner event pattern goes to its exception
// subscribers and is also returned as the method's error, for the
// listener to fall back on logging if nothing else handles it. A line
// that matches no log frame at all is silently dropped.
func (s *Server) ProcessLog(line string) error {
	ev, err := logevent.Parse(line)
	if err != nil {
		s.dispatchException(err)
		return err
	}
	if ev == nil {
		return nil
	}
	s.dispatchEvent(ev)
	return nil
}

// Disposed satisfies internal/listener.Disposable.
func (s *Server) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
