package internal

import (
	"errors"
	"fmt"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDescriptor is wrapped by every error caused by descriptor content.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// Health check defaults, the same ones docker compose applies.
const (
	defaultHealthInterval = 30 * time.Second
	defaultHealthTimeout  = 30 * time.Second
	defaultHealthRetries  = 3
)

// Descriptor is the set of services declared in a descriptor file.
type Descriptor struct {
	Services []*ServiceSpec // sorted by name

	byName map[string]*ServiceSpec
}

// Service looks up a service by name.
func (d *Descriptor) Service(name string) (*ServiceSpec, bool) {
	s, ok := d.byName[name]
	return s, ok
}

// Names returns the names of all declared services, sorted.
func (d *Descriptor) Names() []string {
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return names
}

type descriptorFile struct {
	Services map[string]serviceEntry `yaml:"services"`
}

type serviceEntry struct {
	Image       string            `yaml:"image"`
	Restart     string            `yaml:"restart"`
	DependsOn   dependencyList    `yaml:"depends_on"`
	Environment environment       `yaml:"environment"`
	Ports       []string          `yaml:"ports"`
	HealthCheck *healthCheckEntry `yaml:"healthcheck"`
	Profiles    []string          `yaml:"profiles"`
}

type healthCheckEntry struct {
	Test        command  `yaml:"test"`
	Interval    duration `yaml:"interval"`
	Timeout     duration `yaml:"timeout"`
	Retries     *int     `yaml:"retries"`
	StartPeriod duration `yaml:"start_period"`
	Disable     bool     `yaml:"disable"`
}

// LoadDescriptor reads and validates the descriptor at path.
func LoadDescriptor(path string) (*Descriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}
	d, err := ParseDescriptor(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDescriptor decodes a compose-style YAML document and validates it.
// A descriptor with a dependency cycle is rejected with a *CycleError.
func ParseDescriptor(content []byte) (*Descriptor, error) {
	var file descriptorFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("%w: no services declared", ErrInvalidDescriptor)
	}

	d := &Descriptor{byName: make(map[string]*ServiceSpec, len(file.Services))}
	for name, entry := range file.Services {
		spec, err := entry.toSpec(name)
		if err != nil {
			return nil, fmt.Errorf("%w: service %q: %w", ErrInvalidDescriptor, name, err)
		}
		d.Services = append(d.Services, spec)
		d.byName[name] = spec
	}
	sort.Slice(d.Services, func(i, j int) bool {
		return d.Services[i].Name < d.Services[j].Name
	})

	for _, spec := range d.Services {
		for _, dep := range spec.DependsOn {
			if _, ok := d.byName[dep]; !ok {
				return nil, fmt.Errorf("%w: service %q depends on undefined service %q", ErrInvalidDescriptor, spec.Name, dep)
			}
		}
	}

	if err := checkConfiguration(d.Services); err != nil {
		return nil, err
	}
	return d, nil
}

func (e serviceEntry) toSpec(name string) (*ServiceSpec, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("empty service name")
	}
	if e.Image == "" {
		return nil, errors.New("no image specified")
	}

	restart, err := ParseRestartPolicy(e.Restart)
	if err != nil {
		return nil, err
	}

	if _, _, err := nat.ParsePortSpecs(e.Ports); err != nil {
		return nil, fmt.Errorf("invalid ports: %w", err)
	}

	healthCheck, err := e.HealthCheck.toHealthCheck()
	if err != nil {
		return nil, fmt.Errorf("invalid healthcheck: %w", err)
	}

	env := map[string]string(e.Environment)
	if env == nil {
		env = map[string]string{}
	}

	return &ServiceSpec{
		Name:        name,
		Image:       e.Image,
		Environment: env,
		Ports:       e.Ports,
		DependsOn:   []string(e.DependsOn),
		Restart:     restart,
		HealthCheck: healthCheck,
		Profiles:    e.Profiles,
	}, nil
}

// toHealthCheck normalizes the compose test forms into an exec vector.
// It returns nil when no check should run.
func (h *healthCheckEntry) toHealthCheck() (*HealthCheck, error) {
	if h == nil || h.Disable || len(h.Test) == 0 {
		return nil, nil
	}

	var test []string
	switch h.Test[0] {
	case "NONE":
		return nil, nil
	case "CMD":
		test = h.Test[1:]
	case "CMD-SHELL":
		if len(h.Test) < 2 {
			return nil, errors.New("CMD-SHELL requires a command")
		}
		test = []string{"/bin/sh", "-c", strings.Join(h.Test[1:], " ")}
	default:
		return nil, fmt.Errorf("test must start with NONE, CMD or CMD-SHELL, got %q", h.Test[0])
	}
	if len(test) == 0 {
		return nil, errors.New("empty test command")
	}

	hc := &HealthCheck{
		Test:        test,
		Interval:    time.Duration(h.Interval),
		Timeout:     time.Duration(h.Timeout),
		Retries:     defaultHealthRetries,
		StartPeriod: time.Duration(h.StartPeriod),
	}
	if hc.Interval <= 0 {
		hc.Interval = defaultHealthInterval
	}
	if hc.Timeout <= 0 {
		hc.Timeout = defaultHealthTimeout
	}
	if h.Retries != nil {
		if *h.Retries < 0 {
			return nil, fmt.Errorf("retries must not be negative, got %d", *h.Retries)
		}
		hc.Retries = *h.Retries
	}
	return hc, nil
}

// dependencyList accepts both the short list form of depends_on and the long
// form keyed by service name. Conditions of the long form are not interpreted:
// dependents always wait for their dependencies to be healthy.
type dependencyList []string

func (l *dependencyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*l = names
	case yaml.MappingNode:
		names := make([]string, 0, len(value.Content)/2)
		for i := 0; i < len(value.Content); i += 2 {
			names = append(names, value.Content[i].Value)
		}
		*l = names
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a mapping", value.Line)
	}
	return nil
}

// environment accepts a mapping or a list of KEY=VALUE strings. A list entry
// without a value takes it from the launcher's own environment.
type environment map[string]string

func (e *environment) UnmarshalYAML(value *yaml.Node) error {
	env := environment{}
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			k, v := value.Content[i], value.Content[i+1]
			if v.Tag == "!!null" {
				env[k.Value] = ""
				continue
			}
			env[k.Value] = v.Value
		}
	case yaml.SequenceNode:
		var entries []string
		if err := value.Decode(&entries); err != nil {
			return err
		}
		for _, entry := range entries {
			k, v, ok := strings.Cut(entry, "=")
			if !ok {
				v = os.Getenv(k)
			}
			env[k] = v
		}
	default:
		return fmt.Errorf("line %d: environment must be a mapping or a list", value.Line)
	}
	*e = env
	return nil
}

// command accepts a command vector or a plain string, which is run by a shell.
type command []string

func (c *command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*c = nil
			return nil
		}
		*c = command{"CMD-SHELL", value.Value}
	case yaml.SequenceNode:
		var argv []string
		if err := value.Decode(&argv); err != nil {
			return err
		}
		*c = argv
	default:
		return fmt.Errorf("line %d: test must be a string or a list", value.Line)
	}
	return nil
}

// duration accepts Go duration strings ("10s", "1m30s"). Bare integers are seconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.Atoi(value.Value); err == nil {
		*d = duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = duration(parsed)
	return nil
}
