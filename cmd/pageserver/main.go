// Command pageserver hosts the page service proper: the Postgres-wire
// listener serving pagestream, basebackup, and the control verbs, plus
// the HTTP metrics worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/metrics"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/repo"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/serve"
	"github.com/zenithdb/pageserver/internal/tenant"
)

var (
	build     string
	buildtime string

	pageserverAddr string
	metricsAddr    string
	authToken      string
)

func init() {
	flag.StringVar(&pageserverAddr, "listen", "127.0.0.1:64000", "Postgres wire listen address")
	flag.StringVar(&metricsAddr, "metrics-listen", "127.0.0.1:9898", "prometheus metrics listen address")
	flag.StringVar(&authToken, "auth-token", "", "if set, require bearer-token auth on every connection")
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush()
	}
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		fmt.Printf("pageserver version %s (build %s)\n", build, buildtime)
		os.Exit(0)
	}
	flag.Parse()

	cfg := config.Load(pageserverAddr, "", metricsAddr, authToken)
	go logFlush()

	reg := tenant.New()
	sub, err := subscribe.New(nil)
	if err != nil {
		nlog.Errorf("pageserver: init subscribe registry: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	mreg := metrics.NewRegistry()

	dispatcher := &control.Dispatcher{
		Reg:     reg,
		Sub:     sub,
		Cfg:     cfg,
		Metrics: mreg,
		NewRepository: func() repo.Repository {
			return memrepo.New()
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve.ListenAndServePageserver(gctx, cfg.PageserverListenAddr, serve.PageserverDeps{
			Reg:     reg,
			Control: dispatcher,
			Metrics: mreg,
			Cfg:     cfg,
		})
	})
	g.Go(func() error {
		return mreg.Serve(gctx, cfg.MetricsListenAddr)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		nlog.Errorf("pageserver: fatal: %v", err)
		nlog.Flush()
		os.Exit(1)
	}
	nlog.Flush()
}
