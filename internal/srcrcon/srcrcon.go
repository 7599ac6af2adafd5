// Package srcrcon implements the Source engine's session-oriented, TCP
// RCON protocol (spec.md §4.4.2).
package srcrcon

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hlstat/valveq/internal/status"
	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/vlog"
)

// Client holds a Source RCON TCP session. All operations on the stream
// are serialized by mu; the packet-id counter is monotonic across the
// session's lifetime.
//
// connMu guards conn/connected/authenticated independently of mu, which
// serializes the logical request sequence (packet-id allocation). This
// lets Disconnect interrupt a blocked QueryRcon without waiting on mu:
// Disconnect needs only connMu, so it can close the socket out from under
// a read that is holding mu, which makes that read return an I/O error
// immediately instead of the two ever deadlocking on each other.
type Client struct {
	mu       sync.Mutex
	password string
	logger   *vlog.Logger
	counter  int32

	connMu        sync.Mutex
	conn          net.Conn
	connected     bool
	authenticated bool
}

// New creates a Client that will authenticate with password once
// Connect is called.
func New(password string, logger *vlog.Logger) *Client {
	return &Client{password: password, logger: logger}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

func (c *Client) nextID() int32 {
	id := c.counter
	c.counter++
	return id
}

func (c *Client) currentConn() (net.Conn, bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.connected
}

func (c *Client) setConn(conn net.Conn, connected bool) {
	c.connMu.Lock()
	c.conn = conn
	c.connected = connected
	c.connMu.Unlock()
}

// Connect opens a TCP session to addr (optionally from localAddr),
// authenticates with the configured password, and reports whether
// authentication succeeded. On an error the socket is closed and the
// session remains Disconnected. When the server's AUTH reply has an
// unexpected type, Connect returns false with no error and the session
// stays connected but unauthenticated.
func (c *Client) Connect(addr *net.TCPAddr, localAddr *net.TCPAddr, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, connected := c.currentConn(); connected {
		return false, verr.ErrAlreadyConnected
	}

	conn, err := net.DialTCP("tcp", localAddr, addr)
	if err != nil {
		return false, verr.Classify(fmt.Errorf("srcrcon: dial %s: %w", addr, err))
	}

	ok, err := c.authenticate(conn, timeout)
	if err != nil {
		conn.Close()
		return false, err
	}

	c.setConn(conn, true)
	c.connMu.Lock()
	c.authenticated = ok
	c.connMu.Unlock()
	return ok, nil
}

func (c *Client) authenticate(conn net.Conn, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return false, fmt.Errorf("srcrcon: set deadline: %w", err)
		}
	}

	id := c.nextID()
	if _, err := conn.Write(Packet{ID: id, Type: TypeAuth, Body: c.password}.Encode()); err != nil {
		return false, verr.Classify(fmt.Errorf("srcrcon: write auth: %w", err))
	}

	// The server answers with an empty RESP_VALUE (discarded) followed by
	// the AUTH_RESPONSE.
	if _, err := ReadPacket(conn); err != nil {
		return false, verr.Classify(fmt.Errorf("srcrcon: read auth resp_value: %w", err))
	}
	resp, err := ReadPacket(conn)
	if err != nil {
		return false, verr.Classify(fmt.Errorf("srcrcon: read auth_response: %w", err))
	}

	if resp.ID == -1 {
		return false, verr.ErrBadRconPassword
	}
	c.logf("srcrcon: authenticated, id=%d", id)
	return resp.Type == TypeAuthResponse, nil
}

// Connected reports whether the session currently owns a live TCP
// connection.
func (c *Client) Connected() bool {
	_, connected := c.currentConn()
	return connected
}

// Disconnect shuts down and closes the socket. It is idempotent, and safe
// to call while another goroutine is blocked in QueryRcon: that call's
// read on the now-closed socket returns an error rather than hanging.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	if !c.connected {
		c.connMu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.authenticated = false
	c.connMu.Unlock()
	return conn.Close()
}

// QueryRcon sends cmd and collects its (possibly multi-packet) response
// using the flush-sentinel technique: an EXEC carrying cmd is immediately
// followed by an EXEC carrying an empty body. Every response body tagged
// with the command's packet id is concatenated; collection stops the
// first time a packet arrives whose id is at least the sentinel's id.
func (c *Client) QueryRcon(cmd string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, connected := c.currentConn()
	if !connected {
		return "", verr.ErrNotConnected
	}

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return "", fmt.Errorf("srcrcon: set deadline: %w", err)
		}
	}

	p1 := c.nextID()
	if _, err := conn.Write(Packet{ID: p1, Type: TypeExecCommand, Body: cmd}.Encode()); err != nil {
		return "", verr.Classify(fmt.Errorf("srcrcon: write exec: %w", err))
	}
	p2 := c.nextID()
	if _, err := conn.Write(Packet{ID: p2, Type: TypeExecCommand, Body: ""}.Encode()); err != nil {
		return "", verr.Classify(fmt.Errorf("srcrcon: write flush sentinel: %w", err))
	}

	var body strings.Builder
	for {
		pkt, err := ReadPacket(conn)
		if err != nil {
			// A short read or closed connection here simply surfaces as
			// the query's error; it does not hang waiting for a sentinel
			// that will never arrive.
			return "", verr.Classify(fmt.Errorf("srcrcon: read response: %w", err))
		}
		if pkt.ID == p1 {
			body.WriteString(pkt.Body)
		}
		if pkt.ID >= p2 {
			break
		}
	}
	return body.String(), nil
}

var cvarReply = `"%s" = "([^"]*)"`

// GetCvar extracts a cvar's value from the server's reply.
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

// StartLog enables server-side logging.
func (c *Client) StartLog(timeout time.Duration) error {
	_, err := c.QueryRcon("log on", timeout)
	return err
}

// StopLog disables server-side logging.
func (c *Client) StopLog(timeout time.Duration) error {
	_, err := c.QueryRcon("log off", timeout)
	return err
}

var logAddressEntry = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+:\d+)`)

// GetLogAddresses lists the server's registered log destinations.
func (c *Client) GetLogAddresses(timeout time.Duration) ([]string, error) {
	reply, err := c.QueryRcon("logaddress_list", timeout)
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
	reply, err := c.QueryRcon(fmt.Sprintf("logaddress_add %s:%s", ip, port), timeout)
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
	return classifyLogAddressReply("logaddress_del", reply, fmt.Sprintf("logaddress_del:  %s:%s", ip, port))
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
	return status.ParseSource(reply)
}
