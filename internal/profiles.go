package internal

import "fmt"

// Select returns the services that take part in a run, in descriptor order.
//
// Without targets, every service without profiles and every service sharing a
// profile with the selection is included. With targets, only the named services
// and their transitive dependencies are included; a named service is included
// even if its profiles are not selected, but its dependencies must be enabled.
func Select(d *Descriptor, profiles []string, targets []string) ([]*ServiceSpec, error) {
	enabled := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		enabled[p] = true
	}
	active := func(s *ServiceSpec) bool {
		if len(s.Profiles) == 0 {
			return true
		}
		for _, p := range s.Profiles {
			if enabled[p] {
				return true
			}
		}
		return false
	}

	selected := make(map[string]bool)
	if len(targets) == 0 {
		for _, s := range d.Services {
			if active(s) {
				selected[s.Name] = true
			}
		}
	} else {
		for _, name := range targets {
			if _, ok := d.Service(name); !ok {
				return nil, fmt.Errorf("no such service: %s", name)
			}
			selected[name] = true
		}
		// Pull in transitive dependencies; the descriptor is known to be acyclic.
		queue := append([]string{}, targets...)
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			s, _ := d.Service(name)
			for _, dep := range s.DependsOn {
				if selected[dep] {
					continue
				}
				selected[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	var services []*ServiceSpec
	for _, s := range d.Services {
		if !selected[s.Name] {
			continue
		}
		for _, dep := range s.DependsOn {
			depSpec, _ := d.Service(dep)
			if !active(depSpec) && !isTarget(dep, targets) {
				return nil, fmt.Errorf("%w: service %q depends on %q, which is not enabled by profiles %v",
					ErrInvalidDescriptor, s.Name, dep, profiles)
			}
		}
		services = append(services, s)
	}
	return services, nil
}

func isTarget(name string, targets []string) bool {
	for _, t := range targets {
		if t == name {
			return true
		}
	}
	return false
}
