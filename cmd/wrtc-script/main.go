// Command wrtc-script runs a Lua script against a bridge engine.
//
//	WRTC_ENGINE=pion wrtc-script negotiate.lua [args...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/wrtc"
	_ "github.com/thesyncim/wrtc/nativeengine"
	_ "github.com/thesyncim/wrtc/pionengine"
	"github.com/thesyncim/wrtc/script"
)

func main() {
	timeout := flag.Duration("timeout", 0, "stop the script after this long (0 waits for wrtc.done)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] script.lua [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		logrus.WithError(err).Fatal("script failed")
	}
}

func run(ctx context.Context, path string, args []string) error {
	cfg, err := wrtc.LoadConfig()
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("WRTC_LOG_LEVEL: %w", err)
	}
	log := logrus.StandardLogger()
	log.SetLevel(level)

	reg := prometheus.NewRegistry()
	metrics := wrtc.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	engine, err := wrtc.OpenEngine(cfg)
	if err != nil {
		return err
	}
	wctx := wrtc.NewContext(engine, wrtc.WithLogger(log), wrtc.WithMetrics(metrics))
	log.WithFields(logrus.Fields{"engine": engine.Name(), "script": path}).Info("running")

	runErr := script.Run(ctx, path, script.Options{
		Context:       wctx,
		Configuration: cfg.Configuration(),
		Log:           log,
		Args:          args,
	})
	if err := wctx.Shutdown(); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv
}
