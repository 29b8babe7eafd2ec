package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/elciao/elciao/el-proxy/config"
	"github.com/elciao/elciao/el-proxy/metrics"
	"github.com/elciao/elciao/el-proxy/proxy/backend"
	"github.com/elciao/elciao/el-proxy/proxy/backend/execution"
	"github.com/elciao/elciao/el-proxy/proxy/backend/trust"
	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-proxy/proxy/frontend"
	"github.com/elciao/elciao/el-proxy/proxy/notary"
	"github.com/elciao/elciao/el-service/cliapp"
	"github.com/elciao/elciao/el-service/client"
	"github.com/elciao/elciao/el-service/eth"
	"github.com/elciao/elciao/el-service/httputil"
	opmetrics "github.com/elciao/elciao/el-service/metrics"
	oprpc "github.com/elciao/elciao/el-service/rpc"
)

type Service struct {
	closing atomic.Bool

	log log.Logger

	metrics    metrics.Metricer
	metricsSrv *httputil.HTTPServer

	rpcClient *rpc.Client
	upstream  *client.ResilientClient
	chainID   uint64

	store     *trust.Store
	backend   *backend.Backend
	feeds     *feed.Runner
	wsClient  *ethclient.Client
	notarizer *notary.Notarizer

	rpcHandler *oprpc.Handler
	httpServer *httputil.HTTPServer
}

var _ cliapp.Lifecycle = (*Service)(nil)

func FromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (*Service, error) {
	su := &Service{log: logger}
	if err := su.initFromCLIConfig(ctx, cfg); err != nil {
		return nil, errors.Join(err, su.Stop(ctx)) // try to clean up our failed initialization attempt
	}
	return su, nil
}

func (s *Service) initFromCLIConfig(ctx context.Context, cfg *config.Config) error {
	s.initMetrics(cfg)
	if err := s.initMetricsServer(cfg); err != nil {
		return fmt.Errorf("failed to start Metrics server: %w", err)
	}
	if err := s.initUpstream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to connect to upstream: %w", err)
	}
	s.initBackend(cfg)
	if err := s.initRPCHandler(cfg); err != nil {
		return fmt.Errorf("failed to start RPC handler: %w", err)
	}
	s.initHTTPServer(cfg)
	if err := s.initNotary(cfg); err != nil {
		return fmt.Errorf("failed to set up notary: %w", err)
	}
	if err := s.initFeeds(ctx, cfg); err != nil {
		return fmt.Errorf("failed to set up trust feed: %w", err)
	}
	return nil
}

func (s *Service) initMetrics(cfg *config.Config) {
	if cfg.MetricsConfig.Enabled {
		procName := "default"
		s.metrics = metrics.NewMetrics(procName)
		s.metrics.RecordInfo(cfg.Version)
	} else {
		s.metrics = metrics.NoopMetrics{}
	}
}

func (s *Service) initMetricsServer(cfg *config.Config) error {
	if !cfg.MetricsConfig.Enabled {
		s.log.Info("Metrics disabled")
		return nil
	}
	m, ok := s.metrics.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", s.metrics)
	}
	s.log.Debug("Starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
	metricsSrv, err := opmetrics.StartServer(m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.log.Info("Started metrics server", "addr", metricsSrv.Addr())
	s.metricsSrv = metricsSrv
	return nil
}

func (s *Service) initUpstream(ctx context.Context, cfg *config.Config) error {
	rpcClient, err := client.DialRPCClientWithBackoff(ctx, s.log, cfg.Upstream.URL, cfg.Upstream.DialAttempts, cfg.Upstream.DialPause)
	if err != nil {
		return err
	}
	s.rpcClient = rpcClient
	s.upstream = client.NewResilientClient(client.NewBaseRPCClient(rpcClient), s.log, s.metrics, cfg.Upstream.ResilientConfig)

	var chainID hexutil.Uint64
	if err := s.upstream.Request(ctx, &chainID, "eth_chainId"); err != nil {
		return fmt.Errorf("failed to fetch chain ID: %w", err)
	}
	if cfg.ChainID != 0 && uint64(chainID) != cfg.ChainID {
		return fmt.Errorf("upstream serves chain %d, expected chain %d", uint64(chainID), cfg.ChainID)
	}
	s.chainID = uint64(chainID)
	s.log.Info("Connected to upstream", "chain_id", s.chainID)
	return nil
}

func (s *Service) initBackend(cfg *config.Config) {
	s.store = trust.NewStore(s.log, s.metrics, cfg.Trust, s.upstream)
	if cfg.Feed.HasCheckpoint() {
		s.log.Info("Trusting checkpoint", "number", cfg.Feed.CheckpointNumber, "hash", cfg.Feed.CheckpointHash)
		s.store.Advance(cfg.Feed.CheckpointHash, cfg.Feed.CheckpointNumber)
	}
	exec := execution.NewBuilder(s.log, cfg.Execution, s.upstream, s.chainID)
	s.backend = backend.New(s.log, s.metrics, backend.Config{
		ChainID:        s.chainID,
		StrictReceipts: cfg.StrictReceipts,
	}, s.store, exec, s.upstream)
}

func (s *Service) initRPCHandler(cfg *config.Config) error {
	opts := append(cfg.RPC.Options(),
		oprpc.WithLogger(s.log),
		oprpc.WithHTTPRecorder(s.metrics),
	)
	s.rpcHandler = oprpc.NewHandler(cfg.Version, opts...)
	if err := s.rpcHandler.AddAPI(rpc.API{
		Namespace: "eth",
		Service:   frontend.NewEthFrontend(s.backend),
	}); err != nil {
		return fmt.Errorf("failed to add eth API: %w", err)
	}
	if err := s.rpcHandler.AddAPI(rpc.API{
		Namespace: "net",
		Service:   frontend.NewNetFrontend(s.backend),
	}); err != nil {
		return fmt.Errorf("failed to add net API: %w", err)
	}
	return nil
}

func (s *Service) initHTTPServer(cfg *config.Config) {
	endpoint := net.JoinHostPort(cfg.RPC.ListenAddr, strconv.Itoa(cfg.RPC.ListenPort))
	s.httpServer = httputil.NewHTTPServer(endpoint, s.rpcHandler)
}

func (s *Service) initNotary(cfg *config.Config) error {
	sink, err := notary.NewSink(s.log, cfg.Notary)
	if err != nil {
		return err
	}
	if sink == nil {
		s.log.Info("Notary disabled")
		return nil
	}
	s.notarizer = notary.NewNotarizer(s.log, s.metrics, s.backend, sink, cfg.Notary, s.chainID)
	return nil
}

func (s *Service) initFeeds(ctx context.Context, cfg *config.Config) error {
	var f feed.Feed
	switch cfg.Feed.Kind {
	case feed.KindBeacon:
		f = feed.NewBeaconPoller(s.log, cfg.Feed.BeaconURL, cfg.Feed.Optimistic, cfg.Feed.PollInterval)
	case feed.KindExecution:
		s.log.Warn("Trusting the head of the upstream node, use a beacon feed outside of development")
		if cfg.Feed.ExecutionWS != "" {
			wsClient, err := ethclient.DialContext(ctx, cfg.Feed.ExecutionWS)
			if err != nil {
				return fmt.Errorf("failed to dial websocket feed: %w", err)
			}
			s.wsClient = wsClient
			f = feed.NewExecutionSubscriber(s.log, wsClient)
		} else {
			f = feed.NewExecutionPoller(s.log, ethclient.NewClient(s.rpcClient), cfg.Feed.PollInterval)
		}
	default:
		return fmt.Errorf("unknown trust feed kind %q", cfg.Feed.Kind)
	}
	handlers := []feed.Handler{
		func(ev feed.Event) {
			s.store.Advance(ev.Hash, ev.Number)
		},
	}
	if s.notarizer != nil {
		handlers = append(handlers, s.notarizer.Handle)
	}
	s.feeds = feed.NewRunner(s.log, s.metrics, []feed.Feed{f}, handlers...)
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting JSON-RPC server")
	if err := s.httpServer.Start(); err != nil {
		return fmt.Errorf("unable to start RPC server: %w", err)
	}
	if s.notarizer != nil {
		s.notarizer.Start()
	}
	s.feeds.Start()

	s.metrics.RecordUp()
	s.log.Info("JSON-RPC Server started", "endpoint", s.httpServer.HTTPEndpoint())
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		s.log.Warn("Already closing")
		return nil // already closing
	}
	s.log.Info("Stopping el-proxy")
	var result error
	if s.feeds != nil {
		if err := s.feeds.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop trust feed: %w", err))
		}
	}
	s.log.Info("Stopped trust feed")
	if s.notarizer != nil {
		if err := s.notarizer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop notary: %w", err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	if s.rpcHandler != nil {
		s.rpcHandler.Stop()
	}
	s.log.Info("Stopped RPC Server")
	if s.wsClient != nil {
		s.wsClient.Close()
	}
	if s.upstream != nil {
		s.upstream.Close()
	}
	s.log.Info("Closed upstream")
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	s.log.Info("el-proxy stopped")
	return result
}

func (s *Service) Stopped() bool {
	return s.closing.Load()
}

func (s *Service) RPC() string {
	return s.httpServer.HTTPEndpoint()
}

func (s *Service) ChainID() uint64 {
	return s.chainID
}

// TrustedTip returns the latest trusted block, and false before the first one arrived.
func (s *Service) TrustedTip() (eth.BlockID, bool) {
	return s.store.Tip()
}
