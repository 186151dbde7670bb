package internal

import (
	"context"
	"time"
)

// Runtime is the container engine wharf drives.
type Runtime interface {
	Prober

	// Prepare creates the resources shared by all services, such as their network.
	Prepare(ctx context.Context) error
	// Find returns the running container of a service started by an earlier run.
	Find(ctx context.Context, spec *ServiceSpec) (string, bool)
	// Launch replaces any leftover container of the service with a new, started one.
	Launch(ctx context.Context, spec *ServiceSpec) (string, error)
	// Wait blocks until the container is no longer running and returns its exit code.
	Wait(ctx context.Context, containerID string) (int64, error)
	// Stop stops and removes the container.
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
}
