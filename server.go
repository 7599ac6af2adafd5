package valveq

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/hlstat/valveq/internal/a2s"
	"github.com/hlstat/valveq/internal/goldsrc"
	"github.com/hlstat/valveq/internal/listener"
	"github.com/hlstat/valveq/internal/srcrcon"
	"github.com/hlstat/valveq/internal/status"
	"github.com/hlstat/valveq/internal/transport"
	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/vlog"
)

// rconClient is the set of operations internal/goldsrc.Client and
// internal/srcrcon.Client both implement identically, letting Server
// dispatch the shared commands (cvar, logging, status) without a
// per-engine switch at every call site.
type rconClient interface {
	QueryRcon(cmd string, timeout time.Duration) (string, error)
	GetCvar(name string, timeout time.Duration) (string, error)
	IsLogging(timeout time.Duration) (bool, error)
	StartLog(timeout time.Duration) error
	StopLog(timeout time.Duration) error
	GetLogAddresses(timeout time.Duration) ([]string, error)
	AddLogAddress(ip, port string, timeout time.Duration) error
	DeleteLogAddress(ip, port string, timeout time.Duration) error
	GetStatus(timeout time.Duration) (*status.StatusInfo, error)
}

// Server is a handle bound to one remote game server, composing the A2S
// query transport, the engine-appropriate RCON client, and an optional
// attachment to a log listener (spec.md §3, §4). The remote endpoint and
// RCON password are read/written without locking (spec.md §5: "readable/
// writable without locks; writes are advisory"); structural state
// (disposal, listener attachment, subscriber lists) is guarded.
type Server struct {
	id     string
	engine EngineKind
	logger *vlog.Logger

	addr     atomic.Pointer[net.UDPAddr]
	rconAddr atomic.Pointer[net.TCPAddr]
	password atomic.Pointer[string]
	timeout  atomic.Int64 // nanoseconds; 0 means infinite

	gold *goldsrc.Client
	src  *srcrcon.Client

	mu           sync.Mutex
	disposed     bool
	lst          *listener.Listener
	ownsListener bool
	listening    bool

	subMu         sync.RWMutex
	eventSubs     []func(Event)
	exceptionSubs []func(error)
}

// New creates a live Server bound to addr, speaking engine's wire
// dialect, authenticating RCON with password. For EngineGoldSrc this
// immediately opens the persistent connected UDP socket RCON operations
// reuse; for EngineSource the TCP session is left unconnected until
// ConnectRcon is called.
func New(engine EngineKind, addr *net.UDPAddr, password string, logger *vlog.Logger) (*Server, error) {
	s := &Server{id: xid.New().String(), engine: engine, logger: logger}
	s.addr.Store(addr)
	s.password.Store(&password)
	s.timeout.Store(int64(DefaultTimeout))

	switch engine {
	case EngineGoldSrc:
		gc, err := goldsrc.Dial(addr, password, logger)
		if err != nil {
			return nil, err
		}
		s.gold = gc
	case EngineSource:
		s.rconAddr.Store(&net.TCPAddr{IP: addr.IP, Port: addr.Port})
		s.src = srcrcon.New(password, logger)
	default:
		return nil, fmt.Errorf("valveq: unknown engine kind %v", engine)
	}
	return s, nil
}

// ID returns the handle's correlation id. Log lines carry the id of the
// *vlog.Logger passed to New, not this one.
func (s *Server) ID() string { return s.id }

// Engine returns which wire dialect this handle speaks.
func (s *Server) Engine() EngineKind { return s.engine }

// Address returns the current remote query/log endpoint.
func (s *Server) Address() *net.UDPAddr { return s.addr.Load() }

// SetAddress updates the remote endpoint for subsequent operations.
func (s *Server) SetAddress(addr *net.UDPAddr) {
	s.addr.Store(addr)
	if s.engine == EngineSource {
		s.rconAddr.Store(&net.TCPAddr{IP: addr.IP, Port: addr.Port})
	}
}

// Password returns the RCON credential currently configured.
func (s *Server) Password() string {
	if p := s.password.Load(); p != nil {
		return *p
	}
	return ""
}

// SetPassword updates the RCON credential for subsequent operations.
func (s *Server) SetPassword(password string) { s.password.Store(&password) }

// Timeout returns the handle's current blocking-operation timeout (0
// means infinite).
func (s *Server) Timeout() time.Duration { return time.Duration(s.timeout.Load()) }

// SetTimeoutMS validates and stores a new blocking-operation timeout in
// milliseconds.
func (s *Server) SetTimeoutMS(ms int) error {
	d, err := normalizeTimeout(ms)
	if err != nil {
		return err
	}
	s.timeout.Store(int64(d))
	return nil
}

func (s *Server) getTimeout() time.Duration { return time.Duration(s.timeout.Load()) }

func (s *Server) checkLive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return verr.ErrDisposed
	}
	return nil
}

func (s *Server) dialect() transport.Dialect {
	if s.engine == EngineGoldSrc {
		return transport.DialectGoldSrc
	}
	return transport.DialectOrangeBox
}

func (s *Server) query(request []byte, timeout time.Duration) ([]byte, error) {
	t := &transport.Transport{Addr: s.addr.Load(), Dialect: s.dialect(), Logger: s.logger}
	return t.Query(request, timeout)
}

func (s *Server) client() rconClient {
	if s.gold != nil {
		return s.gold
	}
	return s.src
}

// Ping reports whether the server answered an A2S ping. It returns
// (false, nil) specifically for a timeout and propagates any other
// transport error (spec.md §7).
func (s *Server) Ping() (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	reply, err := s.query(transport.PingRequest(), s.getTimeout())
	if err != nil {
		if verr.IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return transport.PingSucceeded(reply), nil
}

// GetInfo performs an A2S_INFO query and parses the reply.
func (s *Server) GetInfo() (*a2s.ServerInfo, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	reply, err := s.query(transport.InfoRequest(), s.getTimeout())
	if err != nil {
		return nil, err
	}
	return a2s.ParseServerInfo(reply)
}

var emptyChallenge = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

func (s *Server) getChallenge(timeout time.Duration) ([4]byte, error) {
	reply, err := s.query(transport.ChallengeRequest(), timeout)
	if err != nil {
		return [4]byte{}, err
	}
	challenge, ok := transport.ParseChallenge(reply)
	if !ok {
		return [4]byte{}, &verr.FormatError{Context: "challenge reply", Input: fmt.Sprintf("% x", reply)}
	}
	if challenge == emptyChallenge {
		return [4]byte{}, verr.ErrBadQueryChallenge
	}
	return challenge, nil
}

// GetPlayers performs the two-roundtrip challenge handshake and an
// A2S_PLAYER query, returning the parsed player list.
func (s *Server) GetPlayers() ([]a2s.PlayerInfo, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	timeout := s.getTimeout()
	challenge, err := s.getChallenge(timeout)
	if err != nil {
		return nil, err
	}
	reply, err := s.query(transport.PlayersRequest(challenge), timeout)
	if err != nil {
		return nil, err
	}
	return a2s.ParsePlayers(reply)
}

// GetRules performs the two-roundtrip challenge handshake and an
// A2S_RULES query, returning the parsed cvar rule mapping.
func (s *Server) GetRules() (map[string]string, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	timeout := s.getTimeout()
	challenge, err := s.getChallenge(timeout)
	if err != nil {
		return nil, err
	}
	reply, err := s.query(transport.RulesRequest(challenge), timeout)
	if err != nil {
		return nil, err
	}
	return a2s.ParseRules(reply)
}

// ChallengeRcon negotiates a fresh GoldSrc RCON challenge nonce. It is
// only valid for an EngineGoldSrc handle.
func (s *Server) ChallengeRcon() error {
	if err := s.checkLive(); err != nil {
		return err
	}
	if s.gold == nil {
		return fmt.Errorf("valveq: ChallengeRcon is only valid for a GoldSrc server")
	}
	return s.gold.ChallengeRcon(s.getTimeout())
}

// ConnectRcon establishes the RCON session: a challenge nonce for
// GoldSrc, or an authenticated TCP session for Source. The returned bool
// reports whether RCON authentication succeeded (always true for GoldSrc
// once a nonce is acquired, since the password is only verified per
// command there).
func (s *Server) ConnectRcon() (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	timeout := s.getTimeout()
	if s.gold != nil {
		if err := s.gold.ChallengeRcon(timeout); err != nil {
			return false, err
		}
		return true, nil
	}
	return s.src.Connect(s.rconAddr.Load(), nil, timeout)
}

// DisconnectRcon tears down the Source TCP session. It is a no-op for
// GoldSrc, which holds no persistent session.
func (s *Server) DisconnectRcon() error {
	if s.src != nil {
		return s.src.Disconnect()
	}
	return nil
}

// IsConnected reports whether RCON is currently usable: a negotiated
// challenge for GoldSrc, or an open TCP session for Source.
func (s *Server) IsConnected() bool {
	if s.gold != nil {
		return s.gold.Challenged()
	}
	if s.src != nil {
		return s.src.Connected()
	}
	return false
}

// SendRcon fires cmd without collecting a reply. Over GoldSrc this is a
// genuine fire-and-forget UDP datagram; Source has no such mode at the
// packet level, so it is implemented as QueryRcon with the reply
// discarded (spec.md §9 separates the two names, not necessarily their
// wire cost, for every engine).
func (s *Server) SendRcon(cmd string) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	timeout := s.getTimeout()
	if s.gold != nil {
		return s.gold.SendRcon(cmd, timeout)
	}
	_, err := s.src.QueryRcon(cmd, timeout)
	return err
}

// QueryRcon sends cmd and returns its collected reply text.
func (s *Server) QueryRcon(cmd string) (string, error) {
	if err := s.checkLive(); err != nil {
		return "", err
	}
	return s.client().QueryRcon(cmd, s.getTimeout())
}

// IsRconPasswordValid verifies the configured password without leaving a
// new session behind: for Source it connects only if not already
// connected and disconnects again afterward; for GoldSrc it round-trips
// an echo token.
func (s *Server) IsRconPasswordValid() (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	timeout := s.getTimeout()
	if s.gold != nil {
		return s.gold.IsRconPasswordValid(timeout)
	}

	if s.src.Connected() {
		return true, nil
	}
	ok, err := s.src.Connect(s.rconAddr.Load(), nil, timeout)
	if err != nil {
		if errors.Is(err, verr.ErrBadRconPassword) {
			return false, nil
		}
		return false, err
	}
	s.src.Disconnect()
	return ok, nil
}

// GetCvar reads a server cvar's current value.
func (s *Server) GetCvar(name string) (string, error) {
	if err := s.checkLive(); err != nil {
		return "", err
	}
	return s.client().GetCvar(name, s.getTimeout())
}

// SetCvar sets a server cvar and confirms the server echoed the new
// value back. This is a composite built from QueryRcon rather than a
// primitive either RCON client exposes directly, since neither wire
// protocol distinguishes "set" from "get" beyond the presence of a
// quoted argument.
func (s *Server) SetCvar(name, value string) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	reply, err := s.client().QueryRcon(fmt.Sprintf(`%s "%s"`, name, value), s.getTimeout())
	if err != nil {
		return err
	}
	if !strings.Contains(reply, value) {
		return &verr.GameServerError{Command: name, Reply: reply}
	}
	return nil
}

// IsLogging reports whether server-side logging is enabled.
func (s *Server) IsLogging() (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	return s.client().IsLogging(s.getTimeout())
}

// StartLog enables server-side logging.
func (s *Server) StartLog() error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.client().StartLog(s.getTimeout())
}

// StopLog disables server-side logging.
func (s *Server) StopLog() error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.client().StopLog(s.getTimeout())
}

// GetLogAddresses lists the server's registered log destinations.
func (s *Server) GetLogAddresses() ([]string, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	return s.client().GetLogAddresses(s.getTimeout())
}

// AddLogAddress registers ip:port as a log destination.
func (s *Server) AddLogAddress(ip, port string) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.client().AddLogAddress(ip, port, s.getTimeout())
}

// DeleteLogAddress unregisters ip:port as a log destination.
func (s *Server) DeleteLogAddress(ip, port string) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.client().DeleteLogAddress(ip, port, s.getTimeout())
}

// GetStatus queries and parses the server's textual "status" reply.
func (s *Server) GetStatus() (*status.StatusInfo, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	return s.client().GetStatus(s.getTimeout())
}

// AttachListener registers s with an existing, possibly shared Listener.
// The caller owns lst's lifecycle (Listen/Stop); Dispose only removes s
// from it.
func (s *Server) AttachListener(lst *listener.Listener) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	if err := lst.AddServer(s); err != nil {
		return err
	}
	s.mu.Lock()
	s.lst = lst
	s.ownsListener = false
	s.listening = true
	s.mu.Unlock()
	return nil
}

// StartLogListener creates a private Listener bound to localAddr,
// registers s with it, and starts receiving. Disposing s, or calling
// StopLogListener, also stops this listener.
func (s *Server) StartLogListener(localAddr *net.UDPAddr) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	// ProcessLog itself already delivers a classification failure to s's
	// own exception subscribers (events.go), so the listener's own
	// onException hook is left unset here: on a Listener shared by several
	// Servers (AttachListener) that single listener-wide hook could only
	// ever point at one server's subscribers anyway. It still exists as a
	// backstop that logs a ProcessLog panic the normal return path never
	// sees.
	lst := listener.New(s.logger)
	if err := lst.AddServer(s); err != nil {
		return err
	}
	if err := lst.Listen(localAddr); err != nil {
		return err
	}
	s.mu.Lock()
	s.lst = lst
	s.ownsListener = true
	s.listening = true
	s.mu.Unlock()
	return nil
}

// StopLogListener detaches s from its listener, stopping the listener
// too if s created it privately via StartLogListener.
func (s *Server) StopLogListener() error {
	s.mu.Lock()
	lst := s.lst
	owns := s.ownsListener
	s.lst = nil
	s.ownsListener = false
	s.listening = false
	s.mu.Unlock()

	if lst == nil {
		return nil
	}
	if err := lst.RemoveServer(s); err != nil {
		return err
	}
	if owns {
		return lst.Stop()
	}
	return nil
}

// Dispose tears the handle down: it stops any log listener attachment,
// disconnects any RCON session, and releases the remote endpoint. It is
// idempotent. A concurrent RCON call blocked on its socket unblocks with
// an I/O error rather than deadlocking, since disposal closes the RCON
// sockets without waiting for in-flight operations. An A2S query already
// in flight is not interrupted: it runs on its own transient socket,
// which disposal does not close, until its reply arrives or its timeout
// expires.
func (s *Server) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	var firstErr error
	if err := s.StopLogListener(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.src != nil {
		if err := s.src.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.gold != nil {
		if err := s.gold.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.addr.Store(nil)
	return firstErr
}

// Snapshot is a cheap, point-in-time diagnostic read of a Server's state,
// distinct from the live handle (spec.md SUPPLEMENTED FEATURES).
type Snapshot struct {
	ID            string
	Engine        EngineKind
	Address       string
	Disposed      bool
	RconConnected bool
	Listening     bool
}

// Snapshot reports s's current state for status dashboards.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{ID: s.id, Engine: s.engine, Disposed: s.disposed, Listening: s.listening}
	s.mu.Unlock()

	if addr := s.addr.Load(); addr != nil {
		snap.Address = addr.String()
	}
	snap.RconConnected = s.IsConnected()
	return snap
}
