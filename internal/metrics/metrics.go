package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycler_swaps_total",
		Help: "Swap attempts by direction and result.",
	}, []string{"direction", "result"})

	CheckinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycler_checkins_total",
		Help: "Daily check-in attempts by result.",
	}, []string{"result"})

	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cycler_cycles_total",
		Help: "Completed orchestration cycles.",
	})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycler_reports_total",
		Help: "Transaction reports by result.",
	}, []string{"result"})

	RunState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cycler_run_state",
		Help: "Current lifecycle state (0 idle, 1 running, 2 stopping, 3 waiting).",
	})

	InFlightOps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cycler_inflight_ops",
		Help: "Operations currently in flight.",
	})
)

// Serve exposes /metrics on listen until ctx is cancelled. An empty listen
// address disables the endpoint.
func Serve(ctx context.Context, listen string, log *slog.Logger) {
	if listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("metrics listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "err", err)
		}
	}()
}
