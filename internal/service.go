package internal

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownRestartPolicy is wrapped by ParseRestartPolicy errors.
var ErrUnknownRestartPolicy = errors.New("unknown restart policy")

// RestartPolicy decides whether a service is restarted after its container exits.
type RestartPolicy int

// The restart policies a service may declare.
const (
	RestartNever RestartPolicy = iota
	RestartOnFailure
	RestartAlways
)

// ParseRestartPolicy maps a descriptor `restart` value onto a RestartPolicy.
// An empty value means the service is never restarted.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "", "no", "never":
		return RestartNever, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "always", "unless-stopped":
		return RestartAlways, nil
	}
	return RestartNever, fmt.Errorf("%w %q", ErrUnknownRestartPolicy, s)
}

func (p RestartPolicy) String() string {
	switch p {
	case RestartOnFailure:
		return "on-failure"
	case RestartAlways:
		return "always"
	default:
		return "never"
	}
}

// ShouldRestart reports whether a container that exited with exitCode is restarted.
func (p RestartPolicy) ShouldRestart(exitCode int64) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return exitCode != 0
	default:
		return false
	}
}

// HealthCheck is a probe executed inside a service's container.
type HealthCheck struct {
	Test        []string // exec form, run without a shell
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// ServiceSpec is a service as declared in the descriptor. It is not modified after loading.
type ServiceSpec struct {
	Name        string // serves as both container suffix and DNS alias
	Image       string
	Environment map[string]string
	Ports       []string // host:container, in docker port spec format
	DependsOn   []string
	Restart     RestartPolicy
	HealthCheck *HealthCheck // nil when the service has no health check
	Profiles    []string
}

// Env returns the environment in KEY=VALUE format, sorted by key.
func (s *ServiceSpec) Env() []string {
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, s.Environment[k]))
	}
	return env
}

type status int32

// The statuses a Service may be in.
const (
	Unstarted status = iota
	Starting
	Healthy
	Unhealthy
	Exited
	Skipped
	Failed // the container could not be launched
)

func (s status) String() string {
	switch s {
	case Starting:
		return "starting"
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Exited:
		return "exited"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unstarted"
	}
}

// Service holds the runtime state of a ServiceSpec while wharf is running it.
type Service struct {
	spec *ServiceSpec

	mu          sync.Mutex
	containerID string
	status      status
	exitCode    int64
	restarts    int
	startedAt   time.Time
}

func newService(spec *ServiceSpec) *Service {
	return &Service{spec: spec}
}

// Name returns the name of the underlying ServiceSpec.
func (s *Service) Name() string {
	return s.spec.Name
}

// Spec returns the declared configuration of the service.
func (s *Service) Spec() *ServiceSpec {
	return s.spec
}

// ContainerID returns the ID of the container currently backing the service, if any.
func (s *Service) ContainerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containerID
}

// Status returns the current status of the service.
func (s *Service) Status() status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Restarts returns how many times the supervisor relaunched the service.
func (s *Service) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// ExitCode returns the exit code of the last container exit.
func (s *Service) ExitCode() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *Service) setStatus(st status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Service) launched(containerID string) {
	s.mu.Lock()
	s.containerID = containerID
	s.status = Starting
	s.startedAt = time.Now()
	s.mu.Unlock()
}

func (s *Service) relaunched(containerID string) {
	s.mu.Lock()
	s.containerID = containerID
	s.status = Starting
	s.startedAt = time.Now()
	s.restarts++
	s.mu.Unlock()
}

func (s *Service) exited(exitCode int64) {
	s.mu.Lock()
	s.status = Exited
	s.exitCode = exitCode
	s.mu.Unlock()
}

// uptime returns how long the current container has been running.
func (s *Service) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
