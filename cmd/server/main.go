package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"preroll-buffer/internal/platform/config"
	"preroll-buffer/internal/platform/logger"
	"preroll-buffer/internal/platform/metrics"
	"preroll-buffer/internal/preroll"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	capacitySeconds := config.GetEnvInt("CAPACITY_SECONDS", 0)
	eosPolicy := config.GetEnv("EOS_POLICY", "auto")
	flushTrigger := config.GetEnv("FLUSH_TRIGGER_NAME", preroll.DefaultFlushTriggerName)
	silent := config.GetEnvBool("SILENT", false)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	svc := preroll.NewService(preroll.Config{
		CapacitySeconds:  capacitySeconds,
		EOSPolicy:        preroll.ParseEOSPolicy(eosPolicy),
		FlushTriggerName: flushTrigger,
		Silent:           silent,
	}, log)

	met := metrics.New(func() metrics.Totals {
		t := svc.Totals()
		return metrics.Totals{
			GroupsEvicted:  t.GroupsEvicted,
			FramesEvicted:  t.FramesEvicted,
			EventsEvicted:  t.EventsEvicted,
			ResidentGroups: t.ResidentGroups,
			ResidentFrames: t.ResidentFrames,
			Streams:        svc.StreamCount(),
		}
	})
	h := preroll.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler().ServeHTTP)
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"capacity_seconds", capacitySeconds,
		"eos_policy", eosPolicy,
		"flush_trigger", flushTrigger,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
