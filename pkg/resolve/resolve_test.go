package resolve

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestLookupHostLiteralIP(t *testing.T) {
	ip, err := LookupHost(context.Background(), nil, "192.168.1.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip.String() != "192.168.1.10" {
		t.Fatalf("ip = %v, want 192.168.1.10", ip)
	}
}

func TestResolveUDPAddrLiteralIP(t *testing.T) {
	addr, err := ResolveUDPAddr(context.Background(), nil, "10.0.0.5:27015")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Port != 27015 || addr.IP.String() != "10.0.0.5" {
		t.Fatalf("addr = %v, want 10.0.0.5:27015", addr)
	}
}

func TestResolveTCPAddrBadHostPort(t *testing.T) {
	if _, err := ResolveTCPAddr(context.Background(), nil, "no-port-here"); err == nil {
		t.Fatal("expected error for malformed host:port")
	}
}

// fakeDNSServer answers every A query with answerIP, so NewResolver's
// miekg/dns query path can be exercised without reaching a real DNS
// server.
func fakeDNSServer(t *testing.T, answerIP string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}

	srv := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if len(r.Question) > 0 {
			rr, err := dns.NewRR(fmt.Sprintf("%s A %s", r.Question[0].Name, answerIP))
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
		w.WriteMsg(m)
	})}

	go srv.ActivateAndServe()
	t.Cleanup(func() {
		srv.Shutdown()
		pc.Close()
	})

	return pc.LocalAddr().String()
}

func TestLookupHostCustomResolver(t *testing.T) {
	dnsAddr := fakeDNSServer(t, "9.9.9.9")
	r := NewResolver(dnsAddr, time.Second)

	ip, err := LookupHost(context.Background(), r, "game.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip.String() != "9.9.9.9" {
		t.Fatalf("ip = %v, want 9.9.9.9", ip)
	}
}

func TestResolveUDPAddrCustomResolver(t *testing.T) {
	dnsAddr := fakeDNSServer(t, "1.2.3.4")
	r := NewResolver(dnsAddr, time.Second)

	addr, err := ResolveUDPAddr(context.Background(), r, "game.example.com:27015")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Port != 27015 || addr.IP.String() != "1.2.3.4" {
		t.Fatalf("addr = %v, want 1.2.3.4:27015", addr)
	}
}
