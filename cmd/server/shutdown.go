package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// stopList collects shutdown functions as components start.
type stopList struct {
	fns []stopFn
}

func (s *stopList) add(name string, fn func(context.Context) error) {
	if fn != nil {
		s.fns = append(s.fns, stopFn{name: name, fn: fn})
	}
}

// run stops components newest first, each with an equal slice of budget.
// It empties the list, so a later call is a no-op.
func (s *stopList) run(L log.Logger, budget time.Duration) {
	fns := s.fns
	s.fns = nil
	if len(fns) == 0 {
		return
	}

	perComponent := budget / time.Duration(len(fns))
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for i := len(fns) - 1; i >= 0; i-- {
		cctx, ccancel := context.WithTimeout(ctx, perComponent)
		if err := fns[i].fn(cctx); err != nil {
			L.Error(context.Background(), err, fns[i].name+" shutdown")
		}
		ccancel()
	}
}

// drain waits out the drain period so load balancers see the failed
// readiness probe. A second signal cuts it short.
func drain(L log.Logger, d time.Duration) {
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", int(d/time.Second))

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	select {
	case <-time.After(d):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}
