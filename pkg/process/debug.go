// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
	"gopkg.in/spacemonkeygo/monkit.v2/environment"
	"gopkg.in/spacemonkeygo/monkit.v2/present"
)

func init() {
	// zero out the http.DefaultServeMux net/http/pprof so unhelpfully
	// side-effected.
	*http.DefaultServeMux = http.ServeMux{}
}

// DebugServer exposes pprof, monkit and health endpoints.
type DebugServer struct {
	log      *zap.Logger
	listener net.Listener
	registry *monkit.Registry

	server http.Server
	mux    http.ServeMux
}

// NewDebugServer returns a debug server serving on listener.
func NewDebugServer(log *zap.Logger, listener net.Listener, registry *monkit.Registry) *DebugServer {
	server := &DebugServer{log: log, listener: listener, registry: registry}
	server.server.Handler = &server.mux

	environment.Register(registry)

	server.mux.HandleFunc("/debug/pprof/", pprof.Index)
	server.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	server.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	server.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	server.mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server.mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(registry)))
	server.mux.HandleFunc("/metrics", server.metrics)
	server.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})
	return server
}

// Addr returns the listening address.
func (server *DebugServer) Addr() net.Addr { return server.listener.Addr() }

// Run serves until ctx is canceled.
func (server *DebugServer) Run(ctx context.Context) error {
	server.log.Debug("debug server listening", zap.Stringer("addr", server.listener.Addr()))

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// metrics writes https://prometheus.io/docs/instrumenting/exposition_formats/
func (server *DebugServer) metrics(w http.ResponseWriter, r *http.Request) {
	server.registry.Stats(func(name string, val float64) {
		metric := sanitize(name)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s %g\n", metric, metric, val)
	})
}

// LogStats writes every monkit series whose name contains filter at debug level.
func LogStats(log *zap.Logger, registry *monkit.Registry, filter string) {
	registry.Stats(func(name string, val float64) {
		if strings.Contains(name, filter) {
			log.Debug("stat", zap.String("name", name), zap.Float64("value", val))
		}
	})
}

func sanitize(val string) string {
	// https://prometheus.io/docs/concepts/data_model/
	// specifies all metric names must match [a-zA-Z_:][a-zA-Z0-9_:]*
	if val != "" && '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}
