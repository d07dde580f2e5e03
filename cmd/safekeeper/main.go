// Command safekeeper hosts the WAL receive endpoint a WAL proposer
// (modified Postgres) speaks to, reusing the wire codec and connection
// supervisor from the same module as cmd/pageserver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zenithdb/pageserver/internal/config"
	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/nlog"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/serve"
	"github.com/zenithdb/pageserver/internal/tenant"
)

// demoTenantHex is the fixed tenant id a standalone safekeeper seeds
// into its registry so a Greeting naming it resolves to a real timeline
// target (see newDemoTenant).
const demoTenantHex = "00000000000000000000000000000001"

var (
	build     string
	buildtime string

	safekeeperAddr string
	authToken      string
)

func init() {
	flag.StringVar(&safekeeperAddr, "listen", "127.0.0.1:64001", "WAL receive endpoint listen address")
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
		fmt.Printf("safekeeper version %s (build %s)\n", build, buildtime)
		os.Exit(0)
	}
	flag.Parse()

	cfg := config.Load("", safekeeperAddr, "", authToken)
	go logFlush()

	// The WAL receive endpoint resolves a Greeting's (tenant, timeline)
	// against the same kind of registry the pageserver owns; in a real
	// deployment this process shares a repository backend with its
	// paired pageserver rather than holding its own, but the in-memory
	// reference repository gives this binary something concrete to
	// stream against standalone.
	reg := tenant.New()
	sub, err := subscribe.New(nil)
	if err != nil {
		nlog.Errorf("safekeeper: init subscribe registry: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	if tid, err := newDemoTenant(reg); err != nil {
		nlog.Warningf("safekeeper: demo tenant setup: %v", err)
	} else {
		nlog.Infof("safekeeper: demo tenant %s ready", tid)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve.ListenAndServeSafekeeper(ctx, cfg.SafekeeperListenAddr, serve.SafekeeperDeps{
		Reg: reg,
		Sub: sub,
		Cfg: cfg,
	})
	if err != nil && ctx.Err() == nil {
		nlog.Errorf("safekeeper: fatal: %v", err)
		nlog.Flush()
		os.Exit(1)
	}
	nlog.Flush()
}

// newDemoTenant seeds the registry with a single empty tenant so a
// Greeting naming it resolves to a real timeline target; standalone
// safekeeper operation otherwise has no way to learn about tenants
// before the first Greeting arrives.
func newDemoTenant(reg *tenant.Registry) (string, error) {
	tid, err := ids.ParseTenantId(demoTenantHex)
	if err != nil {
		return "", err
	}
	if err := reg.Insert(tid, memrepo.New()); err != nil {
		return "", err
	}
	return tid.String(), nil
}
