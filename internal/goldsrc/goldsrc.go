// Package goldsrc implements the GoldSrc engine's stateless, UDP,
// challenge-based RCON protocol (spec.md §4.4.1).
package goldsrc

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/hlstat/valveq/internal/status"
	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/vlog"
	"github.com/hlstat/valveq/pkg/wire"
)

const maxDatagram = 65507

var packetPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

type rconState int

const (
	stateUnchallenged rconState = iota
	stateChallenged
)

var challengeReply = regexp.MustCompile(`(?s)^.{4}challenge rcon (\d+)`)

// Client holds a connected UDP socket addressed to a single GoldSrc server
// and the RCON challenge nonce negotiated with it, if any. It is safe for
// concurrent use; all operations are serialized.
//
// connMu guards only the conn field, independently of mu, which serializes
// the logical RCON sequence (challenge/nonce state). This lets Close
// interrupt a blocking round trip without waiting on mu: Close needs only
// connMu, so it can close the socket out from under a read that is
// holding mu, which makes that read return an I/O error immediately
// instead of the two ever deadlocking on each other.
type Client struct {
	mu       sync.Mutex
	password string
	logger   *vlog.Logger

	state rconState
	nonce string

	connMu sync.Mutex
	conn   *net.UDPConn
}

// Dial opens a connected UDP socket to addr. The socket filters replies to
// addr and is reused across RCON operations; no challenge is negotiated
// until ChallengeRcon (or an operation that requires one) is called.
func Dial(addr *net.UDPAddr, password string, logger *vlog.Logger) (*Client, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, verr.Classify(fmt.Errorf("goldsrc: dial %s: %w", addr, err))
	}
	return &Client{conn: conn, password: password, logger: logger, state: stateUnchallenged}, nil
}

// Challenged reports whether a challenge nonce has been negotiated.
func (c *Client) Challenged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateChallenged
}

func (c *Client) currentConn() (*net.UDPConn, bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.conn != nil
}

// Close releases the underlying socket. It is idempotent and safe to call
// while another goroutine is blocked in a round trip: that round trip's
// read or write on the now-closed socket returns an error rather than
// hanging.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

func (c *Client) roundTrip(body []byte, timeout time.Duration) ([]byte, error) {
	conn, ok := c.currentConn()
	if !ok {
		return nil, verr.ErrDisposed
	}
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("goldsrc: set deadline: %w", err)
		}
	}
	if _, err := conn.Write(wire.Concat(packetPrefix, body)); err != nil {
		return nil, verr.Classify(fmt.Errorf("goldsrc: write: %w", err))
	}
	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, verr.Classify(fmt.Errorf("goldsrc: read: %w", err))
	}
	return buf[:n], nil
}

// ChallengeRcon requests a fresh challenge nonce and transitions the client
// to the Challenged state on success.
func (c *Client) ChallengeRcon(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challengeLocked(timeout)
}

func (c *Client) challengeLocked(timeout time.Duration) error {
	reply, err := c.roundTrip([]byte("challenge rcon"), timeout)
	if err != nil {
		return err
	}
	m := challengeReply.FindSubmatch(reply)
	if m == nil {
		return verr.ErrBadRconChallenge
	}
	c.nonce = string(m[1])
	c.state = stateChallenged
	c.logf("goldsrc: challenged, nonce=%s", c.nonce)
	return nil
}

func (c *Client) rconBody(cmd string) []byte {
	return []byte(fmt.Sprintf(`rcon %s "%s" %s`, c.nonce, c.password, cmd))
}

// SendRcon fires cmd at the server without waiting for or consuming a
// reply.
func (c *Client) SendRcon(cmd string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.currentConn()
	if !ok {
		return verr.ErrDisposed
	}
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("goldsrc: set deadline: %w", err)
		}
	}
	if _, err := conn.Write(wire.Concat(packetPrefix, c.rconBody(cmd))); err != nil {
		return verr.Classify(fmt.Errorf("goldsrc: write: %w", err))
	}
	return nil
}

// QueryRcon sends cmd and returns the server's single-datagram reply as
// text, translating the two recognized failure replies into sentinel
// errors.
func (c *Client) QueryRcon(cmd string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked(cmd, timeout)
}

func (c *Client) queryLocked(cmd string, timeout time.Duration) (string, error) {
	reply, err := c.roundTrip(c.rconBody(cmd), timeout)
	if err != nil {
		return "", err
	}
	if len(reply) < 4 {
		return "", &verr.FormatError{Context: "rcon reply", Input: fmt.Sprintf("% x", reply)}
	}
	body := string(reply[4:])
	switch {
	case strings.HasPrefix(body, "bad challenge."):
		return "", verr.ErrBadRconChallenge
	case strings.HasPrefix(body, "bad rcon_password."):
		return "", verr.ErrBadRconPassword
	}
	return body, nil
}

// IsRconPasswordValid challenges the server if necessary, then verifies the
// configured password by round-tripping a unique echo token.
func (c *Client) IsRconPasswordValid(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateUnchallenged {
		if err := c.challengeLocked(timeout); err != nil {
			return false, err
		}
	}

	token := xid.New().String()
	reply, err := c.queryLocked("echo "+token, timeout)
	if err != nil {
		if errors.Is(err, verr.ErrBadRconPassword) {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(reply, token), nil
}

var cvarReply = `(?i)"%s" is "([^"]*)"`

// GetCvar extracts a cvar's value from the server's "<name>" reply.
func (c *Client) GetCvar(name string, timeout time.Duration) (string, error) {
	reply, err := c.QueryRcon(name, timeout)
	if err != nil {
		return "", err
	}
	re := regexp.MustCompile(fmt.Sprintf(cvarReply, regexp.QuoteMeta(name)))
	m := re.FindStringSubmatch(reply)
	if m == nil {
		return "", &verr.FormatError{Context: "cvar reply", Input: reply}
	}
	return m[1], nil
}

// IsLogging reports whether server-side logging is currently enabled.
func (c *Client) IsLogging(timeout time.Duration) (bool, error) {
	reply, err := c.QueryRcon("log", timeout)
	if err != nil {
		return false, err
	}
	return !strings.Contains(reply, "not currently logging"), nil
}

// StartLog enables server-side logging. No reply is consumed.
func (c *Client) StartLog(timeout time.Duration) error {
	return c.SendRcon("log on", timeout)
}

// StopLog disables server-side logging. No reply is consumed.
func (c *Client) StopLog(timeout time.Duration) error {
	return c.SendRcon("log off", timeout)
}

var logAddressEntry = regexp.MustCompile(`current:\s+(\d+\.\d+\.\d+\.\d+:\d+)`)

// GetLogAddresses lists the server's registered log destinations by
// sending an argument-less logaddress_add, which the server answers with
// its current state.
func (c *Client) GetLogAddresses(timeout time.Duration) ([]string, error) {
	reply, err := c.QueryRcon("logaddress_add", timeout)
	if err != nil {
		return nil, err
	}
	matches := logAddressEntry.FindAllStringSubmatch(reply, -1)
	addrs := make([]string, 0, len(matches))
	for _, m := range matches {
		addrs = append(addrs, m[1])
	}
	return addrs, nil
}

// AddLogAddress registers ip:port as a log destination.
func (c *Client) AddLogAddress(ip string, port string, timeout time.Duration) error {
	reply, err := c.QueryRcon(fmt.Sprintf("logaddress_add %s %s", ip, port), timeout)
	if err != nil {
		return err
	}
	return classifyLogAddressReply("logaddress_add", reply, fmt.Sprintf("logaddress_add:  %s:%s", ip, port))
}

// DeleteLogAddress unregisters ip:port as a log destination.
func (c *Client) DeleteLogAddress(ip string, port string, timeout time.Duration) error {
	reply, err := c.QueryRcon(fmt.Sprintf("logaddress_del %s %s", ip, port), timeout)
	if err != nil {
		return err
	}
	return classifyLogAddressReply("logaddress_del", reply, fmt.Sprintf("deleting:  %s:%s", ip, port))
}

func classifyLogAddressReply(cmd, reply, successMarker string) error {
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "unable to resolve"):
		return verr.ErrUnableToResolve
	case strings.Contains(lower, "already in list"):
		return verr.ErrAddressAlreadyInList
	case strings.Contains(lower, "no addresses"):
		return verr.ErrNoAddressesAdded
	case strings.Contains(lower, "not found"):
		return verr.ErrAddressNotFound
	case strings.Contains(reply, successMarker):
		return nil
	default:
		return &verr.GameServerError{Command: cmd, Reply: reply}
	}
}

// GetStatus queries and parses the server's "status" reply.
func (c *Client) GetStatus(timeout time.Duration) (*status.StatusInfo, error) {
	reply, err := c.QueryRcon("status", timeout)
	if err != nil {
		return nil, err
	}
	return status.ParseGoldSrc(reply)
}
