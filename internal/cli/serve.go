package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/api"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/internal/config"
	"github.com/xraph/tally/observability"
	kafkapub "github.com/xraph/tally/publish/kafka"
	redispub "github.com/xraph/tally/publish/redis"
	settlemem "github.com/xraph/tally/settlement/memory"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP API",
		Long:  "Serve the invoice ledger over HTTP, expose Prometheus metrics and publish events to the configured brokers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := newServer(ctx, cfg, logger)
			if err != nil {
				return err
			}

			apiLn, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return errors.Join(fmt.Errorf("listen %s: %w", cfg.Listen, err), srv.close())
			}
			var metricsLn net.Listener
			if cfg.MetricsListen != "" {
				metricsLn, err = net.Listen("tcp", cfg.MetricsListen)
				if err != nil {
					apiLn.Close()
					return errors.Join(fmt.Errorf("listen %s: %w", cfg.MetricsListen, err), srv.close())
				}
			}
			return srv.run(ctx, apiLn, metricsLn)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to tally.yaml (default ./tally.yaml if present)")

	return cmd
}

// server owns everything tally serve runs.
type server struct {
	cfg      config.Config
	logger   *slog.Logger
	ledger   *tally.Ledger
	bank     *settlemem.Bank
	registry *prometheus.Registry
	closers  []func()
}

// newServer builds and starts the ledger with the plugins cfg enables.
func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server, error) {
	s := &server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []tally.Option{
		tally.WithLogger(logger),
		tally.WithPluginTimeout(cfg.PluginTimeout),
		tally.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(s.registry))),
	}

	if cfg.Audit.Enabled {
		opts = append(opts, tally.WithPlugin(audithook.New(
			audithook.LogRecorder(logger),
			audithook.WithLogger(logger),
			audithook.WithSkip(cfg.Audit.Disabled...),
			audithook.WithMinSeverity(cfg.Audit.MinSeverity),
		)))
	}

	if cfg.Bank.Enabled {
		bank, err := newBank(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.bank = bank
		opts = append(opts, tally.WithSettler(bank))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := s.kafkaPublisher(ctx)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		opts = append(opts, tally.WithPlugin(p))
	}

	if cfg.Redis.URL != "" {
		p, err := s.redisPublisher(ctx)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		opts = append(opts, tally.WithPlugin(p))
	}

	s.ledger = tally.New(memory.New(), opts...)
	if err := s.ledger.Start(ctx); err != nil {
		s.closeAll()
		return nil, err
	}
	return s, nil
}

func newBank(cfg config.Config, logger *slog.Logger) (*settlemem.Bank, error) {
	unit, err := cfg.ParseUnit()
	if err != nil {
		return nil, err
	}
	bank := settlemem.New(settlemem.WithLogger(logger))
	for raw, value := range cfg.Bank.Deposits {
		addr, err := account.Parse(raw)
		if err != nil {
			return nil, err
		}
		amount, err := types.ParseIn(value, unit)
		if err != nil {
			return nil, err
		}
		bank.Deposit(addr, amount)
	}
	for _, raw := range cfg.Bank.Frozen {
		addr, err := account.Parse(raw)
		if err != nil {
			return nil, err
		}
		bank.Freeze(addr)
	}
	return bank, nil
}

func (s *server) kafkaPublisher(ctx context.Context) (*kafkapub.Publisher, error) {
	kc := s.cfg.Kafka
	format, err := kafkapub.ParseFormat(kc.Format)
	if err != nil {
		return nil, err
	}
	client, err := kafkapub.Dial(kc.Brokers, kc.Topic)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, client.Close)

	if kc.CreateTopic {
		if err := kafkapub.EnsureTopic(ctx, client, kc.Topic, kc.Partitions, 1); err != nil {
			return nil, err
		}
	}
	s.logger.Info("publishing events to kafka", "brokers", kc.Brokers, "topic", kc.Topic, "format", format)
	return kafkapub.New(client,
		kafkapub.WithTopic(kc.Topic),
		kafkapub.WithFormat(format),
		kafkapub.WithLogger(s.logger),
	), nil
}

func (s *server) redisPublisher(ctx context.Context) (*redispub.Publisher, error) {
	rc := s.cfg.Redis
	client, err := redispub.Dial(ctx, rc.URL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })

	opts := []redispub.Option{
		redispub.WithChannel(rc.Channel),
		redispub.WithLogger(s.logger),
	}
	if rc.Stream != "" {
		opts = append(opts, redispub.WithStream(rc.Stream, rc.StreamMaxLen))
	}
	s.logger.Info("publishing events to redis", "channel", rc.Channel, "stream", rc.Stream)
	return redispub.New(client, opts...), nil
}

// apiHandler is the ledger API.
func (s *server) apiHandler() http.Handler {
	return api.NewHandler(s.ledger,
		api.WithLogger(s.logger),
		api.WithTimeout(s.cfg.RequestTimeout),
	).Router()
}

// metricsHandler serves the Prometheus registry.
func (s *server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// run serves until ctx is done, then shuts the servers down and stops the
// ledger. metricsLn may be nil.
func (s *server) run(ctx context.Context, apiLn, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	servers := []*http.Server{{Handler: s.apiHandler(), ReadHeaderTimeout: 10 * time.Second}}
	listeners := []net.Listener{apiLn}
	if metricsLn != nil {
		servers = append(servers, &http.Server{Handler: s.metricsHandler(), ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, metricsLn)
	}

	for i, hs := range servers {
		ln := listeners[i]
		s.logger.Info("listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, hs := range servers {
			errs = append(errs, hs.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	return errors.Join(err, s.close())
}

// close stops the ledger, which flushes plugins, then releases clients.
func (s *server) close() error {
	err := s.ledger.Stop()
	s.closeAll()
	s.logger.Info("server stopped")
	return err
}

func (s *server) closeAll() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}
