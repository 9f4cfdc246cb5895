package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashrpc/dashboard/demo"
	"dashrpc/middleware"
	"dashrpc/registry"
	"dashrpc/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shutdownTimeout time.Duration

// serveDemoCmd 启动内存演示后端
var serveDemoCmd = &cobra.Command{
	Use:   "serve-demo",
	Short: "Run the in-memory demo backend",
	Long: `Run a backend that answers every dashboard route from seeded in-memory
data. With discovery enabled the server registers its advertise URL in etcd
and deregisters on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Named("server")
		svr := server.NewServer(server.Options{
			Path:        cfg.Server.Path,
			ServiceName: cfg.Discovery.ServiceName,
			Logger:      log,
		})
		svr.Use(middleware.LoggingMiddleware(log))
		if err := demo.Register(svr, demo.NewStore()); err != nil {
			return err
		}

		var reg registry.Registry
		if cfg.Discovery.Enable {
			etcd, err := registry.NewEtcdRegistry(cfg.Discovery.EtcdEndpoints, cfg.Discovery.DialTimeout, logger.Named("registry"))
			if err != nil {
				return err
			}
			defer etcd.Close()
			reg = etcd
		}

		errCh := make(chan error, 1)
		go func() { errCh <- svr.Serve(cfg.Server.Listen, cfg.Server.Advertise, reg) }()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case err := <-errCh:
			return err
		case s := <-sig:
			log.Info("shutting down", zap.String("signal", s.String()))
		}
		if err := svr.Shutdown(shutdownTimeout); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
		return <-errCh
	},
}

func init() {
	serveDemoCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "how long to wait for in-flight requests")
}
