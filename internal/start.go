package internal

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"time"
)

// UpOptions select which services a run starts and whether it stays to supervise them.
type UpOptions struct {
	Profiles []string
	Targets  []string // explicitly requested services; empty means all enabled ones
	Detach   bool     // return once the services are started instead of supervising them
}

// Plan loads the descriptor and returns the services of a run grouped into batches
// that may start concurrently.
func Plan(settings Settings, profiles, targets []string) ([][]*ServiceSpec, error) {
	d, err := LoadDescriptor(settings.File)
	if err != nil {
		return nil, err
	}
	specs, err := Select(d, profiles, targets)
	if err != nil {
		return nil, err
	}
	return Levels(specs)
}

// StartWharf configures, creates, and launches a new wharf instance. Unless the
// run is detached, services are supervised from the moment they are up until ctx
// is cancelled, and then stopped.
func StartWharf(ctx context.Context, settings Settings, opts UpOptions) error {
	d, err := LoadDescriptor(settings.File)
	if err != nil {
		return err
	}
	specs, err := Select(d, opts.Profiles, opts.Targets)
	if err != nil {
		return err
	}

	cli, err := NewDockerClient()
	if err != nil {
		return fmt.Errorf("can't connect to docker: %w", err)
	}
	defer cli.Close()
	backend := NewDockerBackend(cli, settings)

	store, err := NewStore(settings.StatePath)
	if err != nil {
		return fmt.Errorf("can't open event journal: %w", err)
	}
	defer store.Close()

	runID := uuid.NewString()
	w, err := NewWharf(backend, specs, Options{
		RunID:             runID,
		Recorder:          store,
		StopTimeout:       settings.StopTimeout,
		RestartBackoff:    settings.RestartBackoff,
		RestartBackoffMax: settings.RestartBackoffMax,
		Supervise:         !opts.Detach,
	})
	if err != nil {
		return err
	}

	// Return if context has been cancelled.
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	if err := backend.Prepare(ctx); err != nil {
		return err
	}

	log.Infof("Run %s: starting %d service(s) of project %s.", runID, len(specs), settings.Project)
	startErr := w.Start(ctx)
	if startErr != nil {
		// Services that don't depend on the failed ones keep running.
		log.Errorf("Not all services started: %v", startErr)
	}
	if opts.Detach {
		return startErr
	}

	w.Supervise()

	log.Info("Stopping services.")
	stopBudget := time.Duration(len(specs))*settings.StopTimeout + 30*time.Second
	stopCtx, cancel := context.WithTimeout(context.Background(), stopBudget)
	defer cancel()
	return multierr.Append(startErr, w.Stop(stopCtx))
}
