// Package refresh drives the price-refresh pipeline: fetch fares for every
// enabled route, persist them, and notify on significant drops.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"farewatch/internal/database"
	"farewatch/internal/model"
	"farewatch/internal/provider"
)

// ErrAlreadyRunning is returned when RefreshAll is invoked while a refresh
// is in flight. The caller should treat it as "someone else is doing the
// work", not as a failure.
var ErrAlreadyRunning = errors.New("refresh already running")

// Alerter is the notifier capability the orchestrator needs.
type Alerter interface {
	CheckAndNotify(ctx context.Context, routes []model.Route, current, previous map[string]model.Fare) []model.Alert
}

// Options tune how a refresh sweep issues its per-route fetches.
type Options struct {
	// Concurrency is the number of parallel fetch workers. Values <= 1
	// select the sequential path.
	Concurrency int
	// Delay is the pause between calls on the sequential path, to stay
	// under provider rate limits.
	Delay time.Duration
	// FetchTimeout bounds each per-route provider call.
	FetchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Delay <= 0 {
		o.Delay = 400 * time.Millisecond
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 45 * time.Second
	}
	return o
}

// Orchestrator is the single writer of the fare store. It must never run
// two sweeps concurrently; an in-flight flag collapses overlapping
// invocations into one execution.
type Orchestrator struct {
	store    database.Store
	provider provider.Provider
	notifier Alerter
	log      *slog.Logger
	opts     Options
	now      func() time.Time

	running atomic.Bool
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(store database.Store, p provider.Provider, notifier Alerter, log *slog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		store:    store,
		provider: p,
		notifier: notifier,
		log:      log,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// RefreshAll runs one full sweep: snapshot previous fares, fetch one fare
// per enabled route, persist successes, record the refresh timestamp, and
// hand the (route, current, previous) triples to the notifier. Per-route
// failures are logged and never abort sibling routes. A second caller while
// a sweep is in flight gets ErrAlreadyRunning and no work happens.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	routes, err := o.store.EnabledRoutes()
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		o.log.Info("refresh skipped, no enabled routes")
		return nil
	}
	o.log.Info("refresh started", "routes", len(routes), "provider", o.provider.Name())

	// Snapshot pre-refresh latest fares so the notifier compares against
	// genuinely old values even though new fares are persisted mid-run.
	previous := make(map[string]model.Fare, len(routes))
	for _, route := range routes {
		fare, err := o.store.LatestFare(route.ID)
		if err != nil {
			return err
		}
		if fare != nil {
			previous[route.ID] = *fare
		}
	}

	results := o.fetchAll(ctx, routes)

	current := make(map[string]model.Fare, len(results))
	for _, route := range routes {
		res, ok := results[route.ID]
		if !ok {
			continue
		}
		if res.err != nil {
			o.log.Warn("route fetch failed",
				"route_id", route.ID,
				"origin", route.Origin,
				"destination", route.Destination,
				"error", res.err)
			continue
		}
		if err := o.store.AddFare(&res.fare); err != nil {
			o.log.Error("persist fare failed", "route_id", route.ID, "error", err)
			continue
		}
		current[route.ID] = res.fare
	}

	if err := o.store.SetLastRefreshedAt(o.now()); err != nil {
		o.log.Error("record refresh timestamp failed", "error", err)
	}

	o.notifier.CheckAndNotify(ctx, routes, current, previous)
	o.log.Info("refresh complete", "fetched", len(current), "failed", len(routes)-len(current))
	return nil
}

// Running reports whether a sweep is currently in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

type fetchResult struct {
	fare model.Fare
	err  error
}

// fetchAll issues one provider call per route and reassembles the results
// keyed by route id, never by completion order.
func (o *Orchestrator) fetchAll(ctx context.Context, routes []model.Route) map[string]fetchResult {
	if o.opts.Concurrency <= 1 {
		return o.fetchSequential(ctx, routes)
	}
	return o.fetchParallel(ctx, routes)
}

// fetchSequential walks the routes one at a time with a fixed inter-call
// delay.
func (o *Orchestrator) fetchSequential(ctx context.Context, routes []model.Route) map[string]fetchResult {
	results := make(map[string]fetchResult, len(routes))
	for i, route := range routes {
		if i > 0 {
			select {
			case <-time.After(o.opts.Delay):
			case <-ctx.Done():
				results[route.ID] = fetchResult{err: ctx.Err()}
				continue
			}
		}
		results[route.ID] = o.fetchOne(ctx, route)
	}
	return results
}

// fetchParallel fans the routes out over a bounded worker pool.
func (o *Orchestrator) fetchParallel(ctx context.Context, routes []model.Route) map[string]fetchResult {
	type keyed struct {
		routeID string
		res     fetchResult
	}

	workers := o.opts.Concurrency
	if workers > len(routes) {
		workers = len(routes)
	}

	jobs := make(chan model.Route, len(routes))
	out := make(chan keyed, len(routes))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for route := range jobs {
				out <- keyed{routeID: route.ID, res: o.fetchOne(ctx, route)}
			}
		}()
	}

	for _, route := range routes {
		jobs <- route
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]fetchResult, len(routes))
	for k := range out {
		results[k.routeID] = k.res
	}
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, route model.Route) fetchResult {
	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	fare, err := o.provider.FetchFare(fetchCtx, route)
	return fetchResult{fare: fare, err: err}
}
