package internal

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError is returned when the dependency graph of a descriptor is not acyclic.
// Cycle starts and ends with the same service, e.g. [a b a].
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency found: %s", strings.Join(e.Cycle, " -> "))
}

// checkConfiguration ensures the dependency graph of the given services is acyclic.
// Dependencies on services outside the set are ignored.
func checkConfiguration(services []*ServiceSpec) error {
	const (
		unvisited = iota
		visiting
		done
	)

	byName := make(map[string]*ServiceSpec, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}

	state := make(map[string]int, len(services))
	var path []string

	var visit func(s *ServiceSpec) error
	visit = func(s *ServiceSpec) error {
		state[s.Name] = visiting
		path = append(path, s.Name)
		for _, name := range s.DependsOn {
			dep, ok := byName[name]
			if !ok {
				continue
			}
			switch state[name] {
			case visiting:
				// Cut the path down to the part that loops back to dep.
				start := 0
				for i, n := range path {
					if n == name {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), name)
				return &CycleError{Cycle: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[s.Name] = done
		return nil
	}

	for _, s := range services {
		if state[s.Name] != unvisited {
			continue
		}
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

// Levels groups services into batches: every service of a batch depends only on
// services of earlier batches, so a whole batch may start concurrently. Services
// within a batch are sorted by name. Every dependency must be part of the set.
func Levels(services []*ServiceSpec) ([][]*ServiceSpec, error) {
	byName := make(map[string]*ServiceSpec, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}

	pending := make(map[string]int, len(services))
	dependents := make(map[string][]*ServiceSpec, len(services))
	for _, s := range services {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("%w: service %q depends on %q, which is not part of this run",
					ErrInvalidDescriptor, s.Name, dep)
			}
			pending[s.Name]++
			dependents[dep] = append(dependents[dep], s)
		}
	}

	var current []*ServiceSpec
	for _, s := range services {
		if pending[s.Name] == 0 {
			current = append(current, s)
		}
	}

	var levels [][]*ServiceSpec
	placed := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return current[i].Name < current[j].Name })
		levels = append(levels, current)
		placed += len(current)

		var next []*ServiceSpec
		for _, s := range current {
			for _, d := range dependents[s.Name] {
				pending[d.Name]--
				if pending[d.Name] == 0 {
					next = append(next, d)
				}
			}
		}
		current = next
	}

	if placed != len(services) {
		if err := checkConfiguration(services); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: dependency graph can't be ordered", ErrInvalidDescriptor)
	}
	return levels, nil
}

// StartOrder returns the services in an order where each appears after all of its dependencies.
func StartOrder(services []*ServiceSpec) ([]*ServiceSpec, error) {
	levels, err := Levels(services)
	if err != nil {
		return nil, err
	}
	order := make([]*ServiceSpec, 0, len(services))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}
