package internal

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"time"
)

// Prober runs a command inside a running container and returns its exit code.
type Prober interface {
	Exec(ctx context.Context, containerID string, cmd []string) (int, error)
}

// HealthCheckExhausted is returned when a service did not pass its health check
// within its retry budget.
type HealthCheckExhausted struct {
	Service  string
	Attempts int
	LastErr  error
}

func (e *HealthCheckExhausted) Error() string {
	return fmt.Sprintf("%s did not become healthy after %d attempt(s): %v", e.Service, e.Attempts, e.LastErr)
}

func (e *HealthCheckExhausted) Unwrap() error {
	return e.LastErr
}

// HealthPoller repeatedly probes a service until it reports healthy.
type HealthPoller struct {
	prober Prober
}

// NewHealthPoller is a factory method for HealthPoller.
func NewHealthPoller(prober Prober) *HealthPoller {
	return &HealthPoller{prober: prober}
}

// Poll blocks until the service running in containerID passes its health check.
// The check runs every interval; failures during the start period are not counted
// and at least one counted attempt is always made. Services without a health
// check are healthy immediately.
func (hp *HealthPoller) Poll(ctx context.Context, spec *ServiceSpec, containerID string) error {
	hc := spec.HealthCheck
	if hc == nil {
		return nil
	}
	logger := log.WithField("service", spec.Name)

	budget := hc.Retries
	if budget < 1 {
		budget = 1
	}

	started := time.Now()
	attempts, failures := 0, 0
	timer := time.NewTimer(hc.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		err := hp.probe(ctx, hc, containerID)
		if err == nil {
			logger.Infof("Health check passed after %d attempt(s).", attempts)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(started) < hc.StartPeriod {
			logger.Debugf("Health check failed during start period: %v", err)
		} else {
			failures++
			logger.Debugf("Health check failed (%d/%d): %v", failures, budget, err)
		}
		if failures >= budget {
			return &HealthCheckExhausted{Service: spec.Name, Attempts: attempts, LastErr: err}
		}
		timer.Reset(hc.Interval)
	}
}

func (hp *HealthPoller) probe(ctx context.Context, hc *HealthCheck, containerID string) error {
	if hc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.Timeout)
		defer cancel()
	}
	code, err := hp.prober.Exec(ctx, containerID, hc.Test)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("health check exited with code %d", code)
	}
	return nil
}
