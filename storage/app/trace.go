package app

import (
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerlog "github.com/uber/jaeger-client-go/log"
	"github.com/uber/jaeger-lib/metrics"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

const serviceName = "shardman-storage"

type jaegerLogger struct{}

func (jaegerLogger) Error(msg string) {
	smlog.Zero.Error().Msg(msg)
}

func (jaegerLogger) Infof(msg string, args ...any) {
	smlog.Zero.Debug().Msgf(msg, args...)
}

var _ jaegerlog.Logger = jaegerLogger{}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitTracer installs the global jaeger tracer. Without a configured
// jaeger url spans go to the no-op tracer.
func InitTracer(cfg *config.JaegerCfg, instanceUUID string) (io.Closer, error) {
	if cfg.JaegerUrl == "" {
		return nopCloser{}, nil
	}

	jcfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:              "const",
			Param:             1,
			SamplingServerURL: cfg.JaegerUrl,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
		Gen128Bit: true,
		Tags: []opentracing.Tag{
			{Key: "span.kind", Value: "server"},
			{Key: "instance", Value: instanceUUID},
		},
	}

	return jcfg.InitGlobalTracer(
		serviceName,
		jaegercfg.Logger(jaegerLogger{}),
		jaegercfg.Metrics(metrics.NullFactory),
	)
}
