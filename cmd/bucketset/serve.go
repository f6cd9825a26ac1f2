package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/bobg/bucketset/store/metrics"
	"github.com/bobg/bucketset/store/pebble"
	"github.com/bobg/bucketset/store/rpc"
)

func (c maincmd) serve(ctx context.Context, addr, metricsAddr string, _ []string) error {
	// Remote clients get the same marker rules as local commands.
	s, err := metrics.New(c.s, prometheus.DefaultRegisterer, "served")
	if err != nil {
		return errors.Wrap(err, "registering store metrics")
	}
	if p, ok := c.host.(*pebble.Store); ok {
		if err := prometheus.Register(pebble.NewCollector(p)); err != nil {
			return errors.Wrap(err, "registering pebble metrics")
		}
	}

	gs := grpc.NewServer()
	rpc.RegisterStoreServer(gs, rpc.NewServer(s))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	defer lis.Close()

	c.logger.Info("serving", "addr", lis.Addr().String(), "metrics", metricsAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.Serve(lis)
	})

	var hs *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		hs = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		gs.GracefulStop()
		if hs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
