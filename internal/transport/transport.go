// Package transport implements the A2S query transport (spec.md §4.2): a
// transient UDP socket per query, single- vs split-packet response
// dispatch, and the two split-packet reassembly dialects.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/vlog"
)

// Dialect selects the split-packet header layout to use when reassembling a
// multi-packet reply. The dialect is chosen by engine kind, never
// auto-detected (spec.md §4.2).
type Dialect int

const (
	// DialectGoldSrc uses a 9-byte split-packet header: request id (4
	// bytes) followed by one byte whose low nibble is the total fragment
	// count and whose high nibble is this fragment's index.
	DialectGoldSrc Dialect = iota

	// DialectOrangeBox uses a 12-byte split-packet header: request id (4
	// bytes), a total-count byte, a current-index byte, and two more
	// bytes (the negotiated split size, unused for reassembly).
	DialectOrangeBox
)

const maxDatagram = 65507

var (
	singleHeader = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
	splitHeader  = [4]byte{0xFE, 0xFF, 0xFF, 0xFF}
)

// Transport sends one A2S request over a fresh UDP socket to Addr and
// returns the reassembled reply.
type Transport struct {
	Addr    *net.UDPAddr
	Dialect Dialect
	Logger  *vlog.Logger
}

// Query opens a transient UDP socket to t.Addr, sets a receive deadline
// (timeout <= 0 means no deadline), "connects" the socket (so only replies
// from t.Addr are accepted), sends request, and returns the reassembled
// reply buffer including its original 4-byte FF FF FF FF marker — callers
// parse the type byte and fields exactly as they would a single-packet
// reply, regardless of whether reassembly occurred.
func (t *Transport) Query(request []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialUDP("udp", nil, t.Addr)
	if err != nil {
		return nil, verr.Classify(fmt.Errorf("transport: dial %s: %w", t.Addr, err))
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("transport: set deadline: %w", err)
		}
	}

	if t.log() {
		t.Logger.Debug("transport: query %d bytes to %s", len(request), t.Addr)
	}

	if _, err := conn.Write(request); err != nil {
		return nil, verr.Classify(fmt.Errorf("transport: write: %w", err))
	}

	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, verr.Classify(fmt.Errorf("transport: read: %w", err))
	}
	buf = buf[:n]

	if len(buf) < 4 {
		return nil, &verr.FormatError{Context: "query reply header", Input: fmt.Sprintf("% x", buf)}
	}

	var header [4]byte
	copy(header[:], buf[:4])

	switch header {
	case singleHeader:
		return buf, nil
	case splitHeader:
		return t.reassemble(conn, buf, timeout)
	default:
		return nil, &verr.UnknownHeaderError{Header: header}
	}
}

func (t *Transport) log() bool { return t.Logger != nil }

// reassemble collects the remaining fragments of a split reply, using the
// configured dialect to locate each fragment's total count, index, and
// payload offset, and concatenates payloads (fragment headers stripped) in
// index order. The concatenated result begins with the original reply's
// FF FF FF FF marker, since that marker lives inside the first fragment's
// payload.
func (t *Transport) reassemble(conn net.Conn, first []byte, timeout time.Duration) ([]byte, error) {
	headerLen, totalCount, index, payload, err := t.splitFields(first)
	if err != nil {
		return nil, err
	}
	_ = headerLen

	if totalCount == 0 {
		return nil, nil
	}

	fragments := make([][]byte, totalCount)
	fragments[index] = payload
	remaining := totalCount - 1

	buf := make([]byte, maxDatagram)
	for remaining > 0 {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, verr.Classify(fmt.Errorf("transport: read fragment: %w", err))
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		_, count, idx, fpayload, err := t.splitFields(pkt)
		if err != nil {
			return nil, err
		}
		if count != totalCount {
			return nil, &verr.FormatError{Context: "split reply fragment count", Input: fmt.Sprintf("%d != %d", count, totalCount)}
		}
		if int(idx) >= len(fragments) {
			return nil, &verr.FormatError{Context: "split reply fragment index", Input: fmt.Sprintf("%d", idx)}
		}
		if fragments[idx] == nil {
			remaining--
		}
		fragments[idx] = fpayload
	}

	out := make([]byte, 0, maxDatagram*len(fragments))
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out, nil
}

// splitFields parses a split-packet fragment's dialect-specific header and
// returns (header length, total fragment count, this fragment's index,
// payload). Both dialects place the total count and index within the first
// 10 bytes of the fragment.
func (t *Transport) splitFields(pkt []byte) (headerLen int, total, index uint8, payload []byte, err error) {
	switch t.Dialect {
	case DialectGoldSrc:
		headerLen = 9
		if len(pkt) < headerLen {
			return 0, 0, 0, nil, &verr.FormatError{Context: "goldsrc split header", Input: fmt.Sprintf("%d bytes", len(pkt))}
		}
		b := pkt[8]
		total = b & 0x0F
		index = b >> 4
	case DialectOrangeBox:
		headerLen = 12
		if len(pkt) < headerLen {
			return 0, 0, 0, nil, &verr.FormatError{Context: "orangebox split header", Input: fmt.Sprintf("%d bytes", len(pkt))}
		}
		total = pkt[8]
		index = pkt[9]
	default:
		return 0, 0, 0, nil, fmt.Errorf("transport: unknown dialect %d", t.Dialect)
	}
	return headerLen, total, index, pkt[headerLen:], nil
}
