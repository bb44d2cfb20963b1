package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chordkv/internal/bootstrap"
	"chordkv/internal/bootstrap/register"
	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	zapfactory "chordkv/internal/logger/zap"
	"chordkv/internal/node"
	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/telemetry"
	"chordkv/internal/transport"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	lis, advertised, err := transport.Listen(cfg.Ring.Mode, cfg.Node.Bind, cfg.Node.Host, cfg.Node.Port)
	if err != nil {
		lgr.Error("fatal: failed to initialize listener", logger.F("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	lgr.Debug("created listener", logger.F("addr", advertised))

	space, err := domain.NewSpace(cfg.Ring.IDBits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err.Error()))
		os.Exit(1)
	}
	lgr.Debug("identifier space initialized", logger.F("id_bits", space.Bits))

	host, port, err := splitHostPort(advertised)
	if err != nil {
		lgr.Error("failed to parse advertised address", logger.F("err", err.Error()))
		os.Exit(1)
	}

	var id domain.ID
	if cfg.Node.Id == "" {
		id = space.NewIdFromString(advertised)
	} else {
		id, err = space.FromHexString(cfg.Node.Id)
		if err != nil {
			lgr.Error("invalid node ID in configuration", logger.F("err", err.Error()))
			os.Exit(1)
		}
	}
	self := domain.Endpoint{IP: host, Port: port, NodeId: id}
	lgr = lgr.Named("node").WithEndpoint(self)
	lgr.Info("new node initializing", logger.F("id", id.ToHexString(true)))

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "chordkv-node", id)
	defer func() { _ = shutdownTracer(context.Background()) }()

	mode, err := node.ParseMode(cfg.Ring.ConsistencyMode)
	if err != nil {
		lgr.Error("invalid consistency mode", logger.F("err", err.Error()))
		os.Exit(1)
	}

	rng := ring.New(self, space, cfg.Ring.FaultTolerance.SuccessorListSize, ring.WithLogger(lgr.Named("ring")))
	st := store.NewMemory(lgr.Named("store"))
	n := node.New(rng, st, cfg.Ring.ReplicaFactor, mode,
		node.WithLogger(lgr),
		node.WithFailureTimeout(cfg.Ring.FaultTolerance.FailureTimeout),
	)
	lgr.Debug("initialized node", logger.F("replicaFactor", cfg.Ring.ReplicaFactor), logger.F("mode", mode.String()))

	srv := transport.New(lis, n.Dispatch, transport.WithLogger(lgr.Named("transport")))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()
	lgr.Debug("transport server started")

	disco, registrar := newBootstrap(cfg.Ring.Bootstrap, lgr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	peers, err := disco.Discover(ctx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err.Error()))
		_ = srv.Stop()
		os.Exit(1)
	}
	lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

	if err := joinRing(n, peers, lgr); err != nil {
		lgr.Error("failed to join ring", logger.F("err", err.Error()))
		_ = srv.Stop()
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := disco.Register(ctx, self); err != nil {
		lgr.Warn("failed to publish node address via discovery backend", logger.F("err", err.Error()))
	} else {
		lgr.Info("node published via discovery backend")
	}
	cancel()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := disco.Deregister(ctx, self); err != nil {
			lgr.Warn("failed to remove published node address", logger.F("err", err.Error()))
		}
	}()

	if registrar != nil {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		err := registrar.RegisterNode(ctx, id.ToHexString(false), host, port)
		cancel()
		if err != nil {
			lgr.Warn("failed to register node with directory backend", logger.F("err", err.Error()))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = registrar.DeregisterNode(ctx, id.ToHexString(false), host, port)
				_ = registrar.Close()
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	n.StartStabilizers(ctx, cfg.Ring.FaultTolerance.StabilizationInterval, cfg.Ring.OwnershipRepair.Interval)
	lgr.Debug("stabilization workers started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, leaving ring gracefully")
		stop()

		departCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.Depart(departCtx); err != nil {
			lgr.Warn("depart failed", logger.F("err", err.Error()))
		}
		cancel()

		if err := srv.Stop(); err != nil {
			lgr.Warn("transport stop failed", logger.F("err", err.Error()))
		}
	case err := <-serveErr:
		lgr.Error("transport server terminated unexpectedly", logger.F("err", err.Error()))
		stop()
		os.Exit(1)
	}
}

// joinRing tries each candidate peer in turn until one successfully
// resolves this node's place in the ring, or forms a new single-node
// ring when there are none.
func joinRing(n *node.Node, peers []string, lgr logger.Logger) error {
	if len(peers) == 0 {
		lgr.Info("no bootstrap peers found, starting a new ring")
		return n.Join(context.Background(), "")
	}
	var lastErr error
	for _, p := range peers {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := n.Join(ctx, p)
		cancel()
		if err == nil {
			lgr.Info("joined ring", logger.F("via", p))
			return nil
		}
		lgr.Warn("join attempt failed, trying next peer", logger.F("peer", p), logger.F("err", err.Error()))
		lastErr = err
	}
	return lastErr
}

// newBootstrap builds the Bootstrap used for peer discovery and, when a
// directory backend other than the bootstrap mode itself is configured,
// the Registrar used to publish this node for future joiners.
func newBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) (bootstrap.Bootstrap, register.Registrar) {
	var disco bootstrap.Bootstrap
	switch cfg.Mode {
	case "static":
		disco = bootstrap.NewStaticBootstrap(cfg.Peers)
	case "route53":
		r53, err := bootstrap.NewRoute53Bootstrap(cfg.Register.Route53, cfg.Register.TTL)
		if err != nil {
			lgr.Error("failed to initialize route53 bootstrap, falling back to static", logger.F("err", err.Error()))
			disco = bootstrap.NewStaticBootstrap(cfg.Peers)
		} else {
			disco = r53
		}
	case "init":
		disco = bootstrap.NewStaticBootstrap(nil)
	default: // "dns"
		disco = dnsBootstrap{cfg: cfg, lgr: lgr}
	}

	if !cfg.Register.Enabled || cfg.Mode == "route53" {
		return disco, nil
	}
	reg, err := register.NewRegistrar(context.Background(), cfg.Register)
	if err != nil {
		lgr.Warn("failed to initialize directory registrar", logger.F("err", err.Error()))
		return disco, nil
	}
	return disco, reg
}

// dnsBootstrap adapts ResolveBootstrap (a plain function, since DNS
// lookups need no persistent client state) to the Bootstrap interface.
type dnsBootstrap struct {
	cfg config.BootstrapConfig
	lgr logger.Logger
}

func (d dnsBootstrap) Discover(ctx context.Context) ([]string, error) {
	return bootstrap.ResolveBootstrap(d.cfg, d.lgr)
}
func (d dnsBootstrap) Register(ctx context.Context, ep domain.Endpoint) error   { return nil }
func (d dnsBootstrap) Deregister(ctx context.Context, ep domain.Endpoint) error { return nil }

func splitHostPort(advertised string) (host string, port int, err error) {
	h, p, err := net.SplitHostPort(advertised)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return h, port, nil
}
