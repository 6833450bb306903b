package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chord_ring/chord"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	basePort           = 8001
	concurrentRequests = 3
)

func main() {
	var (
		addr        = flag.String("addr", ":8001", "address other nodes use to reach this node; its hash is the node id")
		listen      = flag.String("listen", "", "address to listen on (default: -addr)")
		bootstrap   = flag.String("bootstrap", "", "address of a node already in the ring; empty starts a new ring")
		bits        = flag.Int("bits", chord.DefaultBits, "width M of the identifier space, 1..64")
		timeout     = flag.Duration("timeout", 0, "timeout of every outbound call, 0 waits forever")
		logLevel    = flag.String("log-level", "info", "trace, debug, info, warn or error")
		interactive = flag.Bool("interactive", false, "open the operator console once the node has joined")
		simulate    = flag.Int("simulate", 0, "start N local nodes, join them and check the ring, then exit")
		firstPort   = flag.Int("base-port", basePort, "first port used by -simulate")
		requests    = flag.Int("requests", concurrentRequests, "concurrent lookups issued by -simulate")
		upnp        = flag.Bool("upnp", false, "map the listen port on the UPnP gateway and advertise its external address")
		monitor     = flag.Duration("monitor", 0, "ping successor and predecessor at this interval, 0 disables")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	conf := chord.DefaultConfig()
	conf.Bits = *bits
	conf.Timeout = *timeout
	conf.MonitorInterval = *monitor
	if err := conf.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *simulate > 0 {
		if err := runSimulation(ctx, *simulate, *firstPort, *requests, conf); err != nil {
			log.Fatal().Err(err).Msg("simulation failed")
		}
		return
	}

	if *listen == "" {
		*listen = *addr
	}
	if err := checkAddresses(*addr, *listen, *bootstrap); err != nil {
		log.Fatal().Err(err).Msg("invalid address")
	}
	if *upnp {
		*addr = advertise(*addr, *listen)
	}

	runNode(ctx, *addr, *listen, *bootstrap, *interactive, conf)
}

func advertise(addr, listen string) string {
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		log.Fatal().Err(err).Str("listen", listen).Msg("invalid listen address")
	}
	port, _ := strconv.Atoi(portStr)

	external, err := mapPort(port)
	if err != nil {
		log.Warn().Err(err).Msg("UPnP unavailable, keeping configured address")
		return addr
	}
	return external
}

func runNode(ctx context.Context, addr, listen, bootstrap string, interactive bool, conf *chord.Config) {
	trans := chord.NewHTTPTransport(conf.Timeout)
	node, server, err := createNode(addr, bootstrap, trans, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create node")
	}
	if err := server.Start(listen); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	if err := node.Join(ctx); err != nil {
		log.Error().Err(err).Msg("failed to join ring")
		return
	}

	if conf.MonitorInterval > 0 {
		hm := chord.NewHeartbeatManager(node, conf.MonitorInterval, conf.Timeout)
		hm.Start()
		defer hm.Stop()
	}

	color.HiYellow("================================================\n"+
		"=======  Node started!\n"+
		"=======  Address     := %s\n"+
		"=======  Chord ID    := %d (M = %d)\n"+
		"================================================\n",
		node.Address(), node.ID(), node.Ring().Bits())

	if interactive {
		console(ctx, node)
		return
	}
	<-ctx.Done()
	log.Info().Msg("shutting down")
}
