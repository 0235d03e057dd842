// Package metrics exposes Prometheus instruments for the scheduling core.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReviewsTotal counts recorded reviews by result ("correct" / "incorrect").
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsched_reviews_total",
		Help: "Total reviews recorded, by result.",
	}, []string{"result"})

	// OverridesTotal counts corrective overrides.
	OverridesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardsched_overrides_total",
		Help: "Total incorrect answers overridden as correct.",
	})

	// QueueSize observes the length of every built session queue.
	QueueSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardsched_queue_size",
		Help:    "Number of cards in built session queues.",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 60, 100},
	})

	// StoreErrors counts store failures by operation.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardsched_store_errors_total",
		Help: "Store failures, by operation.",
	}, []string{"op"})

	// RemindersSent counts due-card reminders delivered.
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardsched_reminders_sent_total",
		Help: "Due-card reminders delivered to learners.",
	})
)

// ResultLabel maps a verdict to the ReviewsTotal label value.
func ResultLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
