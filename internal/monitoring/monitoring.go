// Package monitoring exposes pipeline metrics to Prometheus.
package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Handler serves the metrics gathered by registry.
func Handler(registry *prometheus.Registry) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry:          registry,
		EnableOpenMetrics: true,
	}))
}

// Serve runs the metrics endpoint on bind until ctx is done. The returned
// channel is closed once the server has stopped.
func Serve(ctx context.Context, bind string, registry *prometheus.Registry) <-chan struct{} {
	server := fasthttp.Server{
		Handler:          Handler(registry),
		GetOnly:          true,
		DisableKeepalive: true,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		zap.S().Infow("Monitoring enabled",
			"bind", bind,
		)
		if err := server.ListenAndServe(bind); err != nil {
			zap.S().Errorw("failed to start monitoring bind",
				"error", err,
			)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()
	return done
}
