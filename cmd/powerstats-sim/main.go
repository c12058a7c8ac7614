// Command powerstats-sim serves synthetic power telemetry over the hub
// socket protocol, so powerstatsd and pstats can be developed and
// tested without device hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/hal"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/sysmon"
	"github.com/railmon/powerstats/internal/version"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		listen      = flag.String("listen", "unix:///tmp/powerhub.sock", "hub listen address (unix:// or tcp://)")
		seed        = flag.Uint64("seed", 0, "jitter seed (0 = derive from time)")
		railCount   = flag.Int("rails", 6, "number of synthetic meter rails")
		consumers   = flag.String("consumers", "CPU/0,CPU/1,DISPLAY,WIFI,GPU", "comma-separated consumers, TYPE[/ordinal]")
		tick        = flag.Duration("tick", time.Second, "power jitter interval")
		failRate    = flag.Float64("fail-rate", 0, "per-tick probability of a transient read failure")
		noSysmon    = flag.Bool("no-sysmon", false, "do not register the system service")
		noHAL       = flag.Bool("no-hal", false, "do not register the vendor HAL")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("powerstats-sim %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Debug by default so hub connections show up; this is a dev tool.
	log.Configure(log.Config{
		Level:   config.ParseString("POWERSTATS_LOG_LEVEL", "debug"),
		Service: "powerstats-sim",
		Version: version.Version,
	})
	logger := log.WithComponent("sim")

	if *noHAL && *noSysmon {
		logger.Fatal().Msg("both services disabled, nothing to serve")
	}
	if *railCount < 1 {
		logger.Fatal().Int("rails", *railCount).Msg("need at least one rail")
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewSource(int64(*seed)))

	consumerDefs, err := parseConsumers(*consumers)
	if err != nil {
		logger.Fatal().Err(err).Str("consumers", *consumers).Msg("bad consumer list")
	}

	mock, chans, cons := buildTopology(rng, *railCount, consumerDefs)

	srv := ipc.NewServer()
	var services []string
	if !*noHAL {
		srv.Register(hal.Instance, hal.NewStub(mock))
		services = append(services, hal.Instance)
	}
	if !*noSysmon {
		srv.Register(sysmon.ServiceName, sysmon.NewStub(sysmon.NewMockService(mock)))
		services = append(services, sysmon.ServiceName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go jitterLoop(ctx, mock, chans, cons, *tick, *failRate, rng, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(*listen) }()

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("addr", *listen).
		Uint64("seed", *seed).
		Msg("starting powerstats-sim")
	logger.Info().Msgf("→ Rails: %d", len(chans))
	logger.Info().Msgf("→ Consumers: %s", *consumers)
	logger.Info().Msgf("→ Services: %s", strings.Join(services, ", "))
	logger.Info().Msgf("→ Jitter tick: %s", *tick)
	if *failRate > 0 {
		logger.Info().Msgf("→ Fault injection: %.1f%% per tick", *failRate*100)
	}

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "sim.shutdown").Msg("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Str("event", "sim.failed").Msg("serve failed")
		}
	}
	_ = srv.Close()
	logger.Info().Msg("simulator exiting")
}
