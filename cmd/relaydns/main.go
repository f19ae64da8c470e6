// Command relaydns runs the DNS relay daemon: it accepts queries on the
// configured input interfaces, resolves them through the upstream servers
// on the output interface, and answers from the resolver cache, with
// optional DNS64 synthesis. Settings live in a SQLite database and can be
// overridden per run with flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jroosing/relaydns/internal/api"
	"github.com/jroosing/relaydns/internal/api/handlers"
	"github.com/jroosing/relaydns/internal/config"
	"github.com/jroosing/relaydns/internal/database"
	"github.com/jroosing/relaydns/internal/logging"
	"github.com/jroosing/relaydns/internal/proxy"
	"github.com/jroosing/relaydns/internal/resolvers"
	"github.com/jroosing/relaydns/internal/server"
)

// DefaultDatabasePath is the default location for the settings database.
const DefaultDatabasePath = "relaydns.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	dbPath      string
	host        string
	port        int
	noTCP       bool
	inputIfaces string
	outputIface string
	nat64Prefix string
	forceSynth  bool
	apiEnabled  bool
	jsonLogs    bool
	debug       bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.dbPath, "db", DefaultDatabasePath, "Path to SQLite settings database")
	flag.StringVar(&f.host, "host", "", "Override DNS listener bind host")
	flag.IntVar(&f.port, "port", 0, "Override DNS listener bind port")
	flag.BoolVar(&f.noTCP, "no-tcp", false, "Disable the TCP listener")
	flag.StringVar(&f.inputIfaces, "input-ifaces", "", "Comma-separated input interface names")
	flag.StringVar(&f.outputIface, "output-iface", "", "Egress interface name for upstream queries")
	flag.StringVar(&f.nat64Prefix, "nat64-prefix", "", "NAT64 prefix enabling DNS64 (e.g. 64:ff9b::/96)")
	flag.BoolVar(&f.forceSynth, "force-aaaa-synth", false, "Synthesize AAAA answers even when real ones exist")
	flag.BoolVar(&f.apiEnabled, "api", false, "Enable the management API")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

// applyCLIOverrides applies command-line overrides to the config. These
// do not persist to the database.
func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.noTCP {
		cfg.Server.EnableTCP = false
	}
	if f.inputIfaces != "" {
		cfg.Proxy.InputInterfaces = splitList(f.inputIfaces)
	}
	if f.outputIface != "" {
		cfg.Proxy.OutputInterface = f.outputIface
	}
	if f.nat64Prefix != "" {
		cfg.Proxy.NAT64Prefix = f.nat64Prefix
	}
	if f.forceSynth {
		cfg.Proxy.ForceAAAASynthesis = true
	}
	if f.apiEnabled {
		cfg.API.Enabled = true
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	db, err := database.Open(flags.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open settings database: %w", err)
	}
	defer db.Close()

	cfg := db.ExportToConfig()
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
	})
	logger.Info("relaydns starting",
		"database", flags.dbPath,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"tcp", cfg.Server.EnableTCP,
		"upstreams", cfg.Upstream.Servers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	timeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil {
		timeout = 3 * time.Second
	}
	cache := resolvers.NewCache(0)
	upstream := &resolvers.Upstream{Servers: cfg.Upstream.Servers, Timeout: timeout, Logger: logger}
	core := resolvers.New(cache, upstream, logger)
	engine := proxy.New(core, core, logger)

	if err := installProxyConfig(engine, cfg.Proxy); err != nil {
		return err
	}
	defer engine.Terminate()

	go core.Run(ctx)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	udp := &server.UDPServer{Logger: logger, Engine: engine, Dispatch: core.Submit}
	var tcp *server.TCPServer
	if cfg.Server.EnableTCP {
		tcp = &server.TCPServer{Logger: logger, Engine: engine, Dispatch: core.Submit}
	}

	errCh := make(chan error, 3)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		h := handlers.New(cfg, logger)
		h.SetProxyStats(engine.Stats)
		h.SetApplyProxyConfig(func(pc config.ProxyConfig) error {
			if err := installProxyConfig(engine, pc); err != nil {
				return err
			}
			return db.SaveProxyConfig(pc)
		})
		apiServer = api.New(cfg, logger, h)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		logger.Info("management api listening", "addr", apiServer.Addr())
	}

	select {
	case <-ctx.Done():
		// shutdown requested via signal
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer shutdownCancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}
	return nil
}

// installProxyConfig resolves interface names and the NAT64 prefix and
// initializes the engine with them.
func installProxyConfig(engine *proxy.Proxy, pc config.ProxyConfig) error {
	var inputs []uint32
	for _, name := range pc.InputInterfaces {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return fmt.Errorf("input interface %q: %w", name, err)
		}
		inputs = append(inputs, uint32(ifi.Index))
	}
	if len(inputs) > proxy.MaxInputInterfaces {
		return fmt.Errorf("too many input interfaces (%d > %d)", len(inputs), proxy.MaxInputInterfaces)
	}

	var output uint32
	if pc.OutputInterface != "" {
		ifi, err := net.InterfaceByName(pc.OutputInterface)
		if err != nil {
			return fmt.Errorf("output interface %q: %w", pc.OutputInterface, err)
		}
		output = uint32(ifi.Index)
	}

	var prefixBytes []byte
	prefixBits := 0
	if pc.NAT64Prefix != "" {
		p, err := netip.ParsePrefix(pc.NAT64Prefix)
		if err != nil || !p.Addr().Is6() {
			return fmt.Errorf("invalid nat64 prefix %q", pc.NAT64Prefix)
		}
		addr := p.Addr().As16()
		prefixBytes = addr[:]
		prefixBits = p.Bits()
	}

	engine.Init(inputs, output, prefixBytes, prefixBits, pc.ForceAAAASynthesis)
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
