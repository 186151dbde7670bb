package internal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRuntime is an in-memory Runtime. Containers run until exit is called for them.
type fakeRuntime struct {
	mu        sync.Mutex
	log       []string // launch:<service> and healthy:<service>, in order
	launches  map[string]int
	execs     map[string]int
	unhealthy map[string]bool
	launchErr map[string]error
	crashes   map[string]int    // launches of a service whose container exits right away
	services  map[string]string // container ID -> service
	latest    map[string]string // service -> container ID
	exits     map[string]chan int64
	stopped   []string
	nextID    int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		launches:  map[string]int{},
		execs:     map[string]int{},
		unhealthy: map[string]bool{},
		launchErr: map[string]error{},
		crashes:   map[string]int{},
		services:  map[string]string{},
		latest:    map[string]string{},
		exits:     map[string]chan int64{},
	}
}

func (f *fakeRuntime) Prepare(context.Context) error {
	return nil
}

func (f *fakeRuntime) Find(context.Context, *ServiceSpec) (string, bool) {
	return "", false
}

func (f *fakeRuntime) Launch(_ context.Context, spec *ServiceSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.launchErr[spec.Name]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", spec.Name, f.nextID)
	f.services[id] = spec.Name
	f.latest[spec.Name] = id
	f.exits[id] = make(chan int64, 1)
	if f.crashes[spec.Name] > 0 {
		f.crashes[spec.Name]--
		f.exits[id] <- 1
	}
	f.launches[spec.Name]++
	f.log = append(f.log, "launch:"+spec.Name)
	return id, nil
}

func (f *fakeRuntime) Exec(_ context.Context, containerID string, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.services[containerID]
	f.execs[name]++
	if f.unhealthy[name] {
		return 1, nil
	}
	f.log = append(f.log, "healthy:"+name)
	return 0, nil
}

func (f *fakeRuntime) Wait(ctx context.Context, containerID string) (int64, error) {
	f.mu.Lock()
	ch := f.exits[containerID]
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case code := <-ch:
		return code, nil
	}
}

func (f *fakeRuntime) Stop(_ context.Context, containerID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, f.services[containerID])
	return nil
}

// exit makes the latest container of a service exit with code.
func (f *fakeRuntime) exit(service string, code int64) {
	f.mu.Lock()
	ch := f.exits[f.latest[service]]
	f.mu.Unlock()
	ch <- code
}

func (f *fakeRuntime) launchCount(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches[service]
}

func (f *fakeRuntime) execCount(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execs[service]
}

func (f *fakeRuntime) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.log...)
}

// memRecorder keeps recorded events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *memRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) kinds(service string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, ev := range r.events {
		if ev.Service == service {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func (r *memRecorder) details(service, kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var details []string
	for _, ev := range r.events {
		if ev.Service == service && ev.Kind == kind {
			details = append(details, ev.Detail)
		}
	}
	return details
}

// testSpec returns a service with a fast health check.
func testSpec(name string, deps ...string) *ServiceSpec {
	return &ServiceSpec{
		Name:      name,
		Image:     name + ":latest",
		DependsOn: deps,
		HealthCheck: &HealthCheck{
			Test:     []string{"true"},
			Interval: time.Millisecond,
			Timeout:  time.Second,
			Retries:  3,
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
