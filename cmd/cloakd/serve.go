package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockberries/cloak/config"
	cloakgrpc "github.com/blockberries/cloak/grpc"
	"github.com/blockberries/cloak/proposal"
	"github.com/blockberries/cloak/shell"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serves proposal verification over gRPC",
		RunE:  serveFunc,
	}
	flags := c.Flags()
	addConfigFlags(flags)
	flags.String(GenesisKey, "", "Genesis file applied to an in-memory store")
	flags.String(ListenKey, "", "Overrides server.listen_address")
	flags.String(MetricsKey, "", "Overrides server.metrics_address")
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	cfg, err := loadConfig(c.Flags())
	if err != nil {
		return err
	}
	log, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, c, cfg, log)
}

func serve(ctx context.Context, c *cobra.Command, cfg *config.Config, log *zap.Logger) error {
	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if genesisPath, _ := c.Flags().GetString(GenesisKey); genesisPath != "" {
		if cfg.Storage.Backend != config.BackendMemory {
			return errors.New("--genesis is only for the memory backend; use cloakd init")
		}
		g, err := config.LoadGenesis(genesisPath)
		if err != nil {
			return err
		}
		if err := g.Apply(store); err != nil {
			return err
		}
	}

	dec, err := loadDecrypter(cfg.Verification.DecryptionKeyFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	proc, err := proposal.New(proposal.Config{
		Logger:     log.Named("proposal"),
		Registerer: reg,
		Decrypter:  dec,
		Workers:    cfg.Verification.Workers,
		CacheSize:  cfg.Verification.CacheSize,
	})
	if err != nil {
		return err
	}
	app, err := shell.New(shell.Config{
		Store:     store,
		Processor: proc,
		Logger:    log.Named("shell"),
		ChainID:   cfg.Server.ChainID,
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	cloakgrpc.NewGRPCServer(app, log.Named("grpc")).Register(gs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Serving gRPC", zap.String("address", lis.Addr().String()))
		if err := gs.Serve(lis); !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	var metrics *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metrics = &http.Server{Addr: cfg.Server.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("Serving metrics", zap.String("address", metrics.Addr))
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		gs.GracefulStop()
		if metrics != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metrics.Shutdown(sctx)
		}
		return nil
	})
	return g.Wait()
}
