package internal

import (
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"time"
)

// Supervise blocks until the supervision loops started by Start have returned,
// that is until the ctx given to Start is cancelled or no service is left running.
func (w *Wharf) Supervise() {
	w.supervisors.Wait()
}

func (w *Wharf) supervise(ctx context.Context, svc *Service) {
	logger := log.WithField("service", svc.Name())

	b := w.restartBackOff()
	for {
		exitCode, err := w.rt.Wait(ctx, svc.ContainerID())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Errorf("Lost track of container: %v", err)
			if exitCode == 0 {
				exitCode = -1
			}
		}

		// A container that stayed up for a while starts over with a short delay.
		if svc.uptime() > b.MaxInterval {
			b.Reset()
		}
		svc.exited(exitCode)
		w.record(ctx, svc, EventExited, fmt.Sprintf("exit code %d", exitCode))

		policy := svc.spec.Restart
		if !policy.ShouldRestart(exitCode) {
			logger.Infof("Exited with code %d, restart policy %s: leaving it stopped.", exitCode, policy)
			return
		}
		logger.Warnf("Exited with code %d, restart policy %s: restarting.", exitCode, policy)

		if !w.relaunch(ctx, svc, b) {
			return
		}

		if err := w.poller.Poll(ctx, svc.spec, svc.ContainerID()); err != nil {
			if ctx.Err() != nil {
				return
			}
			svc.setStatus(Unhealthy)
			w.record(ctx, svc, EventUnhealthy, err.Error())
			logger.Error(err)
			continue
		}
		svc.setStatus(Healthy)
		w.record(ctx, svc, EventHealthy, "")
	}
}

func (w *Wharf) restartBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.RestartBackoff
	b.MaxInterval = w.opts.RestartBackoffMax
	b.RandomizationFactor = w.jitter
	b.Reset()
	return b
}

// relaunch keeps trying to replace the container of a service, waiting out the
// backoff before each attempt. Failed attempts keep growing the delay. It returns
// false if ctx was cancelled first.
func (w *Wharf) relaunch(ctx context.Context, svc *Service, b *backoff.ExponentialBackOff) bool {
	logger := log.WithField("service", svc.Name())
	for {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = b.MaxInterval
		}
		logger.Infof("Restarting in %v.", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		id, err := w.rt.Launch(ctx, svc.spec)
		if err == nil {
			svc.relaunched(id)
			w.record(ctx, svc, EventRestarted, fmt.Sprintf("%s after %v", shortID(id), delay))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		logger.Errorf("ACTION REQUIRED: failed service couldn't be relaunched: %v", err)
	}
}
