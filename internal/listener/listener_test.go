package listener

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hlstat/valveq/pkg/verr"
)

type fakeServer struct {
	addr     *net.UDPAddr
	mu       sync.Mutex
	lines    []string
	disposed bool
	fail     error
	panics   bool
}

func (f *fakeServer) RemoteAddr() *net.UDPAddr { return f.addr }

func (f *fakeServer) ProcessLog(line string) error {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeServer) Disposed() bool { return f.disposed }

func (f *fakeServer) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestListenAlreadyListening(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Stop()

	if err := l.Listen(localAddr); !errors.Is(err, verr.ErrAlreadyListening) {
		t.Fatalf("second Listen err = %v, want ErrAlreadyListening", err)
	}
}

func TestDispatchRoutesToMatchingServer(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Stop()

	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()
	senderAddr := sender.LocalAddr().(*net.UDPAddr)

	srv := &fakeServer{addr: senderAddr}
	if err := l.AddServer(srv); err != nil {
		t.Fatalf("AddServer: %v", err)
	}

	listenerAddr := l.conn.LocalAddr().(*net.UDPAddr)
	if _, err := sender.WriteToUDP([]byte("hello"), listenerAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	waitFor(t, func() bool { return len(srv.received()) == 1 })
	if got := srv.received(); got[0] != "hello" {
		t.Fatalf("received %q, want %q", got[0], "hello")
	}
}

func TestDispatchDropsUnmatchedDatagram(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Stop()

	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()

	listenerAddr := l.conn.LocalAddr().(*net.UDPAddr)
	if _, err := sender.WriteToUDP([]byte("nobody registered"), listenerAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}
	// No registered server should receive this; give the reader time to
	// process and drop it, then confirm Stop still works cleanly.
	time.Sleep(50 * time.Millisecond)
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestProcessLogErrorReachesExceptionHandler(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Stop()

	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()
	senderAddr := sender.LocalAddr().(*net.UDPAddr)

	wantErr := fmt.Errorf("handler blew up")
	srv := &fakeServer{addr: senderAddr, fail: wantErr}
	if err := l.AddServer(srv); err != nil {
		t.Fatalf("AddServer: %v", err)
	}

	var mu sync.Mutex
	var gotErr error
	l.OnException(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
	})

	listenerAddr := l.conn.LocalAddr().(*net.UDPAddr)
	if _, err := sender.WriteToUDP([]byte("line"), listenerAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, wantErr) {
		t.Fatalf("gotErr = %v, want %v", gotErr, wantErr)
	}
}

func TestProcessLogPanicReachesExceptionHandler(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Stop()

	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()
	senderAddr := sender.LocalAddr().(*net.UDPAddr)

	srv := &fakeServer{addr: senderAddr, panics: true}
	if err := l.AddServer(srv); err != nil {
		t.Fatalf("AddServer: %v", err)
	}

	var mu sync.Mutex
	var gotErr error
	l.OnException(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
	})

	listenerAddr := l.conn.LocalAddr().(*net.UDPAddr)
	if _, err := sender.WriteToUDP([]byte("line"), listenerAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	// The reader loop must still be alive after a handler panic: a second
	// datagram reaches the handler and is reported again.
	mu.Lock()
	gotErr = nil
	mu.Unlock()
	if _, err := sender.WriteToUDP([]byte("another"), listenerAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})
	waitFor(t, func() bool { return len(srv.received()) == 0 }) // panics before appending
}

func TestRemoveServerDisposed(t *testing.T) {
	l := New(nil)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	srv := &fakeServer{addr: addr, disposed: true}
	if err := l.AddServer(srv); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := l.RemoveServer(srv); !errors.Is(err, verr.ErrDisposed) {
		t.Fatalf("RemoveServer err = %v, want ErrDisposed", err)
	}
}

func TestRemoveServerAddr(t *testing.T) {
	l := New(nil)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	srv := &fakeServer{addr: addr}
	if err := l.AddServer(srv); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	l.RemoveServerAddr(addr)
	l.mu.RLock()
	_, ok := l.servers[addr.String()]
	l.mu.RUnlock()
	if ok {
		t.Fatal("server still registered after RemoveServerAddr")
	}
}

func TestStopIdempotent(t *testing.T) {
	l := New(nil)
	localAddr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err := l.Listen(localAddr); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
