// rconsh is an interactive RCON console, modeled on the teacher's
// pkg/miniclient.Conn.Attach prompt/history loop.
//
// Example usage:
//
//	rconsh -addr 127.0.0.1:27015 -engine source -password hunter2
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/hlstat/valveq"
	"github.com/hlstat/valveq/pkg/resolve"
	"github.com/hlstat/valveq/pkg/vlog"
)

var (
	fAddr       = flag.String("addr", "127.0.0.1:27015", "server address, host:port")
	fEngine     = flag.String("engine", "source", "engine kind: goldsrc or source")
	fPassword   = flag.String("password", "", "RCON password")
	fTimeout    = flag.Int("timeout", 5000, "RCON timeout in milliseconds (0 or -1 for infinite)")
	fDNSServer  = flag.String("dns-server", "", "DNS server (ip:port) to resolve -addr's host through, instead of the OS resolver")
	fDNSTimeout = flag.Duration("dns-timeout", 5*time.Second, "timeout for a -dns-server query")
)

func main() {
	flag.Parse()

	logger := vlog.New()
	logger.AddLogger("stderr", os.Stderr, vlog.WARN, false)

	var engine valveq.EngineKind
	switch *fEngine {
	case "goldsrc":
		engine = valveq.EngineGoldSrc
	case "source":
		engine = valveq.EngineSource
	default:
		fmt.Fprintf(os.Stderr, "rconsh: unknown -engine %q (want goldsrc or source)\n", *fEngine)
		os.Exit(2)
	}

	var resolver *resolve.Resolver
	if *fDNSServer != "" {
		resolver = resolve.NewResolver(*fDNSServer, *fDNSTimeout)
	}

	addr, err := resolve.ResolveUDPAddr(context.Background(), resolver, *fAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rconsh:", err)
		os.Exit(1)
	}

	server, err := valveq.New(engine, addr, *fPassword, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rconsh:", err)
		os.Exit(1)
	}
	defer server.Dispose()

	if err := server.SetTimeoutMS(*fTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "rconsh:", err)
		os.Exit(2)
	}

	if ok, err := server.ConnectRcon(); err != nil {
		fmt.Fprintln(os.Stderr, "rconsh: connect:", err)
		os.Exit(1)
	} else if !ok {
		fmt.Fprintln(os.Stderr, "rconsh: authentication failed")
		os.Exit(1)
	}

	attach(server)
}

func attach(server *valveq.Server) {
	fmt.Println("type a command to send it over RCON; ^D or 'quit' to exit")
	fmt.Println()

	input := liner.NewLiner()
	defer input.Close()

	input.SetCtrlCAborts(true)

	prompt := fmt.Sprintf("rcon:%s$ ", server.Address())

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" || line == "disconnect" {
			break
		}

		reply, err := server.QueryRcon(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(reply)
	}

	if err := server.DisconnectRcon(); err != nil {
		fmt.Fprintln(os.Stderr, "rconsh: disconnect:", err)
	}
}
