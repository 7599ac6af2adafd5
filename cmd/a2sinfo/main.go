// a2sinfo sends a single A2S_INFO query to a game server and prints the
// parsed reply.
//
// Example usage:
//
//	a2sinfo -addr 127.0.0.1:27015 -engine source
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hlstat/valveq"
	"github.com/hlstat/valveq/pkg/resolve"
	"github.com/hlstat/valveq/pkg/vlog"
)

var (
	fAddr       = flag.String("addr", "127.0.0.1:27015", "server address, host:port")
	fEngine     = flag.String("engine", "source", "engine kind: goldsrc or source")
	fTimeout    = flag.Int("timeout", 5000, "query timeout in milliseconds (0 or -1 for infinite)")
	fDebug      = flag.Bool("debug", false, "log wire-level detail to stderr")
	fDNSServer  = flag.String("dns-server", "", "DNS server (ip:port) to resolve -addr's host through, instead of the OS resolver")
	fDNSTimeout = flag.Duration("dns-timeout", 5*time.Second, "timeout for a -dns-server query")
)

func main() {
	flag.Parse()

	logger := vlog.New()
	if *fDebug {
		logger.AddLogger("stderr", os.Stderr, vlog.DEBUG, false)
	}

	var engine valveq.EngineKind
	switch *fEngine {
	case "goldsrc":
		engine = valveq.EngineGoldSrc
	case "source":
		engine = valveq.EngineSource
	default:
		fmt.Fprintf(os.Stderr, "a2sinfo: unknown -engine %q (want goldsrc or source)\n", *fEngine)
		os.Exit(2)
	}

	var resolver *resolve.Resolver
	if *fDNSServer != "" {
		resolver = resolve.NewResolver(*fDNSServer, *fDNSTimeout)
	}

	addr, err := resolve.ResolveUDPAddr(context.Background(), resolver, *fAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo:", err)
		os.Exit(1)
	}

	server, err := valveq.New(engine, addr, "", logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo:", err)
		os.Exit(1)
	}
	defer server.Dispose()

	if err := server.SetTimeoutMS(*fTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo:", err)
		os.Exit(2)
	}

	ok, err := server.Ping()
	if err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo: ping:", err)
		os.Exit(1)
	}
	fmt.Printf("ping: %v\n", ok)

	info, err := server.GetInfo()
	if err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo: info:", err)
		os.Exit(1)
	}

	fmt.Printf("name:        %s\n", info.Name)
	fmt.Printf("map:         %s\n", info.Map)
	fmt.Printf("game dir:    %s\n", info.GameDir)
	fmt.Printf("game desc:   %s\n", info.GameDescription)
	fmt.Printf("players:     %d/%d (%d bots)\n", info.NumPlayers, info.MaxPlayers, info.NumBots)
	fmt.Printf("password:    %v\n", info.Password)
	fmt.Printf("secure:      %v\n", info.Secure)
	if info.IsGoldSrc {
		fmt.Printf("engine:      goldsrc\n")
		fmt.Printf("game ip:     %s\n", info.GameIP)
		if info.IsMod && info.Mod != nil {
			fmt.Printf("mod:         %s (v%d, %d bytes)\n", info.Mod.InfoURL, info.Mod.Version, info.Mod.Size)
		}
	} else {
		fmt.Printf("engine:      source (app %d)\n", info.AppID)
		fmt.Printf("version:     %s\n", info.GameVersion)
	}

	players, err := server.GetPlayers()
	if err != nil {
		fmt.Fprintln(os.Stderr, "a2sinfo: players:", err)
		return
	}
	for _, p := range players {
		fmt.Printf("player %d: %-20s kills=%-5d time=%.0fs\n", p.Index, p.Name, p.Kills, p.TimeConnected)
	}
}
