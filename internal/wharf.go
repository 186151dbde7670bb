package internal

import (
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"sync"
	"time"
)

// Options tune a Wharf. Zero durations fall back to defaults.
type Options struct {
	RunID             string
	Recorder          Recorder // may be nil
	StopTimeout       time.Duration
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration
	// Supervise keeps every launched service under its restart policy from the
	// moment its initial health check settled, while the rest of the run is still starting.
	Supervise bool
}

// DependencyError is returned for a service that was not started because one of
// its dependencies never became healthy.
type DependencyError struct {
	Service    string
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s not started: dependency %s failed: %v", e.Service, e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// readiness is a one-shot signal, set once a service became healthy or failed to.
type readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) set(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *readiness) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}

// Wharf takes care of starting, health checking, and supervising the services of a run.
type Wharf struct {
	rt       Runtime
	poller   *HealthPoller
	opts     Options
	services []*Service // in start order
	byName   map[string]*Service

	jitter      float64 // randomization factor of the restart backoff
	supervisors sync.WaitGroup
}

// NewWharf is a factory method for Wharf. It fails with a *CycleError if the
// services can't be ordered.
func NewWharf(rt Runtime, specs []*ServiceSpec, opts Options) (*Wharf, error) {
	order, err := StartOrder(specs)
	if err != nil {
		return nil, err
	}

	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = time.Second
	}
	if opts.RestartBackoffMax < opts.RestartBackoff {
		opts.RestartBackoffMax = 30 * opts.RestartBackoff
	}

	w := &Wharf{
		rt:     rt,
		poller: NewHealthPoller(rt),
		opts:   opts,
		byName: make(map[string]*Service, len(order)),
		jitter: backoff.DefaultRandomizationFactor,
	}
	for _, spec := range order {
		svc := newService(spec)
		w.services = append(w.services, svc)
		w.byName[spec.Name] = svc
	}
	return w, nil
}

// Services returns the services of the run in start order.
func (w *Wharf) Services() []*Service {
	return w.services
}

// Service looks up a service of the run by name.
func (w *Wharf) Service(name string) (*Service, bool) {
	svc, ok := w.byName[name]
	return svc, ok
}

// Start launches all services, each one as soon as its dependencies are healthy.
// It returns once every service is healthy, failed, or skipped. A failing service
// does not stop services that don't depend on it; all failures are combined into
// the returned error. With Options.Supervise, each service is supervised under ctx
// as soon as its initial health check settled; Supervise waits for those loops.
func (w *Wharf) Start(ctx context.Context) error {
	// Return if context has been cancelled.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	log.Info("Starting services.")

	signals := make(map[string]*readiness, len(w.services))
	for _, svc := range w.services {
		signals[svc.Name()] = newReadiness()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, svc := range w.services {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			err := w.launchService(ctx, svc, signals)
			signals[svc.Name()].set(err)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			if w.opts.Supervise && svc.ContainerID() != "" && ctx.Err() == nil {
				w.supervisors.Add(1)
				go func() {
					defer w.supervisors.Done()
					w.supervise(ctx, svc)
				}()
			}
		}(svc)
	}
	wg.Wait()
	return errs
}

// launchService waits for the dependencies of a service, launches it, and waits
// until it passes its health check.
func (w *Wharf) launchService(ctx context.Context, svc *Service, signals map[string]*readiness) error {
	logger := log.WithField("service", svc.Name())

	for _, dep := range svc.spec.DependsOn {
		err := signals[dep].wait(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		svc.setStatus(Skipped)
		w.record(ctx, svc, EventSkipped, fmt.Sprintf("dependency %s failed", dep))
		logger.Warnf("Not starting: dependency %s failed.", dep)
		return &DependencyError{Service: svc.Name(), Dependency: dep, Err: err}
	}

	// Check if the service has been launched by another wharf instance.
	if id, ok := w.rt.Find(ctx, svc.spec); ok {
		logger.Info("Service has already been launched.")
		svc.launched(id)
		w.record(ctx, svc, EventAdopted, shortID(id))
	} else {
		logger.Info("Launching.")
		id, err := w.rt.Launch(ctx, svc.spec)
		if err != nil {
			svc.setStatus(Failed)
			return fmt.Errorf("can't launch %s: %w", svc.Name(), err)
		}
		svc.launched(id)
		w.record(ctx, svc, EventStarted, shortID(id))
	}

	if err := w.poller.Poll(ctx, svc.spec, svc.ContainerID()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		svc.setStatus(Unhealthy)
		w.record(ctx, svc, EventUnhealthy, err.Error())
		logger.Error(err)
		return err
	}

	svc.setStatus(Healthy)
	w.record(ctx, svc, EventHealthy, "")
	logger.Info("Healthy.")
	return nil
}

// Stop stops and removes the containers of all services, dependents before their dependencies.
func (w *Wharf) Stop(ctx context.Context) error {
	var errs error
	for i := len(w.services) - 1; i >= 0; i-- {
		svc := w.services[i]
		id := svc.ContainerID()
		if id == "" {
			continue
		}
		log.WithField("service", svc.Name()).Info("Stopping.")
		if err := w.rt.Stop(ctx, id, w.opts.StopTimeout); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("can't stop %s: %w", svc.Name(), err))
			continue
		}
		w.record(ctx, svc, EventStopped, "")
	}
	return errs
}

// record writes an event to the journal. Journal failures are logged, never returned.
func (w *Wharf) record(ctx context.Context, svc *Service, kind, detail string) {
	if w.opts.Recorder == nil {
		return
	}
	ev := Event{
		RunID:   w.opts.RunID,
		Service: svc.Name(),
		Kind:    kind,
		Detail:  detail,
		At:      time.Now(),
	}
	// Recorded even while the run is being cancelled.
	if err := w.opts.Recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.Debugf("can't record %s event for %s: %v", kind, svc.Name(), err)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
