// Package metrics instruments the fetch pipeline with Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives fetch pipeline events.
type Recorder interface {
	ChunkFetched(outcome string, elapsed time.Duration)
	PointsMerged(n int)
}

// Nop discards all events.
type Nop struct{}

func (Nop) ChunkFetched(string, time.Duration) {}
func (Nop) PointsMerged(int)                   {}

// PromSink records events in Prometheus collectors.
type PromSink struct {
	chunks   *prometheus.CounterVec
	points   prometheus.Counter
	duration prometheus.Histogram
}

// NewPromSink registers the pipeline collectors on reg, or on the default
// registerer when reg is nil. Already registered collectors are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridfetch_chunk_fetches_total",
		Help: "Chunk fetches by outcome (ok, no_data, failed)",
	}, []string{"outcome"})
	points := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridfetch_points_merged_total",
		Help: "Data points added to merged documents",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridfetch_fetch_duration_seconds",
		Help:    "Duration of a single chunk fetch including decode and parse",
		Buckets: prometheus.DefBuckets,
	})

	var err error
	if chunks, err = register(reg, chunks); err != nil {
		return nil, err
	}
	if points, err = register(reg, points); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &PromSink{chunks: chunks, points: points, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) ChunkFetched(outcome string, elapsed time.Duration) {
	s.chunks.WithLabelValues(outcome).Inc()
	s.duration.Observe(elapsed.Seconds())
}

func (s *PromSink) PointsMerged(n int) {
	if n > 0 {
		s.points.Add(float64(n))
	}
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
