// Package resolve turns a "host:port" server address into a concrete
// net.UDPAddr/net.TCPAddr, optionally via a caller-specified DNS resolver
// instead of the OS stub resolver — useful when a hosting panel's DNS is
// flaky or slow and the caller wants an explicit, bounded lookup timeout
// independent of whatever the platform resolver does.
//
// Callers run it before creating a Server handle; the handle itself never
// resolves names, and Server.SetAddress takes an already-resolved address.
package resolve

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up A records via a specific DNS server instead of the OS
// resolver; AAAA records are not queried. The zero value is not usable;
// construct with NewResolver.
type Resolver struct {
	// Server is the "ip:port" of the DNS server to query.
	Server string

	// Timeout bounds a single query; zero means 5 seconds.
	Timeout time.Duration

	client *dns.Client
}

// NewResolver returns a Resolver that queries the given DNS server address
// (e.g. "1.1.1.1:53").
func NewResolver(server string, timeout time.Duration) *Resolver {
	return &Resolver{
		Server:  server,
		Timeout: timeout,
		client:  &dns.Client{Timeout: timeout},
	}
}

// LookupHost resolves host to its first IPv4 address using the configured
// DNS server. If r is nil, or r.Server is empty, it falls back to the OS
// resolver via net.DefaultResolver.
func LookupHost(ctx context.Context, r *Resolver, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	if r == nil || r.Server == "" {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("resolve: no addresses found for %s", host)
		}
		return addrs[0], nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := r.client
	if client == nil {
		client = &dns.Client{Timeout: timeout}
	}

	reply, _, err := client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return nil, fmt.Errorf("resolve: query %s via %s: %w", host, r.Server, err)
	}
	for _, ans := range reply.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("resolve: no A record for %s from %s", host, r.Server)
}

// ResolveUDPAddr resolves hostport ("host:port") to a *net.UDPAddr.
func ResolveUDPAddr(ctx context.Context, r *Resolver, hostport string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("resolve: invalid port %q: %w", portStr, err)
	}
	ip, err := LookupHost(ctx, r, host)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// ResolveTCPAddr resolves hostport ("host:port") to a *net.TCPAddr.
func ResolveTCPAddr(ctx context.Context, r *Resolver, hostport string) (*net.TCPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("resolve: invalid port %q: %w", portStr, err)
	}
	ip, err := LookupHost(ctx, r, host)
	if err != nil {
		return nil, err
	}
	return &net.TCPAddr{IP: ip, Port: port}, nil
}
