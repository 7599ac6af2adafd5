package transport

import (
	"net"
	"testing"
	"time"
)

func fakeServer(t *testing.T, handle func(conn *net.UDPConn, from *net.UDPAddr, req []byte)) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 65507)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := make([]byte, n)
			copy(req, buf[:n])
			handle(conn, from, req)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestQuerySinglePacket(t *testing.T) {
	addr := fakeServer(t, func(conn *net.UDPConn, from *net.UDPAddr, req []byte) {
		reply := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x6A}
		conn.WriteToUDP(reply, from)
	})

	tr := &Transport{Addr: addr, Dialect: DialectGoldSrc}
	reply, err := tr.Query(PingRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !PingSucceeded(reply) {
		t.Fatalf("expected ping success, got % x", reply)
	}
}

func TestQueryUnknownHeader(t *testing.T) {
	addr := fakeServer(t, func(conn *net.UDPConn, from *net.UDPAddr, req []byte) {
		conn.WriteToUDP([]byte{0x01, 0x02, 0x03, 0x04}, from)
	})

	tr := &Transport{Addr: addr, Dialect: DialectGoldSrc}
	_, err := tr.Query(PingRequest(), time.Second)
	if err == nil {
		t.Fatal("expected error for unknown header")
	}
}

func TestQueryTimeout(t *testing.T) {
	addr := fakeServer(t, func(conn *net.UDPConn, from *net.UDPAddr, req []byte) {
		// never reply
	})

	tr := &Transport{Addr: addr, Dialect: DialectGoldSrc}
	_, err := tr.Query(PingRequest(), 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestQuerySplitPacketGoldSrc(t *testing.T) {
	fullReply := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x49}, []byte("payload-data-that-spans-fragments")...)

	addr := fakeServer(t, func(conn *net.UDPConn, from *net.UDPAddr, req []byte) {
		mid := len(fullReply) / 2
		chunks := [][]byte{fullReply[:mid], fullReply[mid:]}

		for i, chunk := range chunks {
			header := []byte{0xFE, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4, byte(len(chunks)) | byte(i)<<4}
			conn.WriteToUDP(append(header, chunk...), from)
		}
	})

	tr := &Transport{Addr: addr, Dialect: DialectGoldSrc}
	reply, err := tr.Query(InfoRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(reply) != string(fullReply) {
		t.Fatalf("reassembled = %q, want %q", reply, fullReply)
	}
}

func TestQuerySplitPacketOrangeBox(t *testing.T) {
	fullReply := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x49}, []byte("another-payload-split-across-two")...)

	addr := fakeServer(t, func(conn *net.UDPConn, from *net.UDPAddr, req []byte) {
		mid := len(fullReply) / 2
		chunks := [][]byte{fullReply[:mid], fullReply[mid:]}

		for i, chunk := range chunks {
			header := []byte{0xFE, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4, byte(len(chunks)), byte(i), 0, 0}
			conn.WriteToUDP(append(header, chunk...), from)
		}
	})

	tr := &Transport{Addr: addr, Dialect: DialectOrangeBox}
	reply, err := tr.Query(InfoRequest(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(reply) != string(fullReply) {
		t.Fatalf("reassembled = %q, want %q", reply, fullReply)
	}
}

func TestParseChallengeRoundTrip(t *testing.T) {
	reply := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x41, 1, 2, 3, 4}
	c, ok := ParseChallenge(reply)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if c != [4]byte{1, 2, 3, 4} {
		t.Fatalf("challenge = %v, want [1 2 3 4]", c)
	}
}
