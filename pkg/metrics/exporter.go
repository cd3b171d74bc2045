package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// BucketCounter reports current bucket counts for the periodic collector.
type BucketCounter interface {
	Info(ctx context.Context) (*buckets.Info, error)
}

// Exporter exposes metrics via HTTP
type Exporter struct {
	server   *http.Server
	counter  BucketCounter
	interval time.Duration
}

// NewExporter creates a metrics exporter
func NewExporter(addr string, counter BucketCounter) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Exporter{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		counter:  counter,
		interval: 15 * time.Second,
	}
}

// Collect refreshes gauges that are not updated inline
func (e *Exporter) Collect(ctx context.Context) {
	if e.counter == nil {
		return
	}
	info, err := e.counter.Info(ctx)
	if err != nil {
		smlog.Zero.Debug().Err(err).Msg("metrics: failed to collect bucket counts")
		return
	}
	SetBucketCounts(info)
}

// Run serves metrics until ctx is done
func (e *Exporter) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			e.Collect(ctx)
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.server.Shutdown(shutdownCtx)
				return
			case <-ticker.C:
			}
		}
	}()

	smlog.Zero.Info().Str("address", e.server.Addr).Msg("serving metrics")
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
