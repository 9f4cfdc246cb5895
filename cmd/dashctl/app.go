package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dashrpc/client"
	"dashrpc/config"
	"dashrpc/dashboard"
	"dashrpc/loadbalance"
	"dashrpc/metrics"
	"dashrpc/middleware"
	"dashrpc/registry"
	"dashrpc/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// app holds everything a command needs to talk to the backend.
type app struct {
	client    *client.Client
	dashboard *dashboard.Dashboard
	log       *zap.Logger

	etcd       *registry.EtcdRegistry
	metricsSrv *http.Server
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}

	var collector *metrics.Collector
	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		var err error
		if collector, err = metrics.NewCollector(reg); err != nil {
			return nil, err
		}
		a.metricsSrv = serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	dialer, err := a.dialer(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	mws := []middleware.Middleware{middleware.LoggingMiddleware(log.Named("call"))}
	if cfg.RateLimit.Enable {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.Retry.MaxRetries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, log))
	}

	a.client = client.NewClient(dialer,
		client.WithLogger(log),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithMiddleware(mws...),
		client.WithMetrics(collector),
	)
	a.dashboard = dashboard.New(a.client, log.Named("dashboard"))
	return a, nil
}

func (a *app) dialer(cfg *config.Config) (client.Dialer, error) {
	topts := transport.Options{
		KeepaliveInterval: cfg.Keepalive.Interval,
		MaxLifetime:       cfg.Keepalive.MaxLifetime,
		Logger:            a.log.Named("transport"),
	}
	if !cfg.Discovery.Enable {
		return client.URLDialer(cfg.Endpoint, topts), nil
	}

	etcd, err := registry.NewEtcdRegistry(cfg.Discovery.EtcdEndpoints, cfg.Discovery.DialTimeout, a.log.Named("registry"))
	if err != nil {
		return nil, err
	}
	a.etcd = etcd
	balancer, err := loadbalance.New(cfg.Discovery.Balancer, cfg.Discovery.ClientID)
	if err != nil {
		return nil, err
	}
	return &client.EndpointDialer{
		Registry:  etcd,
		Balancer:  balancer,
		Service:   cfg.Discovery.ServiceName,
		Transport: topts,
		Logger:    a.log,
	}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.etcd != nil {
		_ = a.etcd.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
}
